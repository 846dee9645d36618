package state

import (
	"sync"
	"time"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
)

// pollInterval represents how often the worker looks for cached blocks that
// extend the head when it has nothing to do.
const pollInterval = 30 * time.Millisecond

// persistRequest asks the worker to commit a block on behalf of a caller
// waiting for the result.
type persistRequest struct {
	block database.Block
	reply chan error
}

// =============================================================================

// worker is the single writer of the chain. Every commit happens on its
// goroutine.
type worker struct {
	state  *State
	wg     sync.WaitGroup
	ticker *time.Ticker
	shut   chan struct{}
	direct chan persistRequest
}

// runWorker creates the persist worker and waits for its goroutine to start.
func runWorker(state *State) {
	state.worker = &worker{
		state:  state,
		ticker: time.NewTicker(pollInterval),
		shut:   make(chan struct{}),
		direct: make(chan persistRequest),
	}

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	state.worker.wg.Add(1)
	go func() {
		defer state.worker.wg.Done()
		hasStarted <- true
		state.worker.persistOperations()
	}()

	<-hasStarted
}

// shutdown terminates the goroutine performing work. A commit in progress
// completes first.
func (w *worker) shutdown() {
	w.state.evHandler("worker: shutdown: started")
	defer w.state.evHandler("worker: shutdown: completed")

	w.state.evHandler("worker: shutdown: stop ticker")
	w.ticker.Stop()

	w.state.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// =============================================================================

// persistOperations commits blocks handed over directly and drains the
// cache of blocks that extend the head.
func (w *worker) persistOperations() {
	w.state.evHandler("worker: persistOperations: G started")
	defer w.state.evHandler("worker: persistOperations: G completed")

	for {
		select {
		case req := <-w.direct:
			req.reply <- w.runDirectOperation(req.block)
		case <-w.ticker.C:
			if !w.isShutdown() {
				w.runDrainOperation()
			}
		case <-w.shut:
			w.state.evHandler("worker: persistOperations: received shut signal")
			return
		}
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

// persistDirect hands the block to the worker and waits for it to be
// committed.
func (w *worker) persistDirect(block database.Block) error {
	req := persistRequest{
		block: block,
		reply: make(chan error, 1),
	}

	select {
	case w.direct <- req:
	case <-w.shut:
		return ErrShutdown
	}

	return <-req.reply
}

// =============================================================================

// runDirectOperation commits a block requested by AddBlockDirectly. A block
// the drain already committed is reported as done.
func (w *worker) runDirectOperation(block database.Block) error {
	if w.state.committed(block) {
		return nil
	}

	if err := block.Validate(); err != nil {
		return err
	}

	w.state.queueTransactions(block)

	return w.state.commitBlock(block)
}

// runDrainOperation commits every cached block that extends the head in
// height order. A block that doesn't link stays cached for a later pass.
func (w *worker) runDrainOperation() {
	var blocks []database.Block
	for height := w.state.RetrieveHead().Height + 1; ; height++ {
		block, exists := w.state.cache.BlockByHeight(height)
		if !exists {
			break
		}
		blocks = append(blocks, block)
	}

	if len(blocks) == 0 {
		return
	}

	w.state.evHandler("worker: runDrainOperation: started: blocks[%d]", len(blocks))
	defer w.state.evHandler("worker: runDrainOperation: completed")

	for _, block := range blocks {
		if w.isShutdown() {
			return
		}

		if err := block.Validate(); err != nil {
			w.state.evHandler("worker: runDrainOperation: blk[%d]: ERROR: %s", block.Header.Number, err)
			continue
		}

		w.state.queueTransactions(block)

		if block.Header.PrevBlockHash != w.state.RetrieveHead().Hash {
			w.state.evHandler("worker: runDrainOperation: blk[%d]: waiting for parent", block.Header.Number)
			return
		}

		if err := w.state.commitBlock(block); err != nil {
			w.state.evHandler("worker: runDrainOperation: blk[%d]: ERROR: %s", block.Header.Number, err)
			return
		}
	}
}

// committed reports whether the block is bound to its height at or below
// the head.
func (s *State) committed(block database.Block) bool {
	height := block.Header.Number
	if height > s.RetrieveHead().Height {
		return false
	}

	hash, exists := s.cache.Hash(height)
	return exists && hash == block.Hash()
}

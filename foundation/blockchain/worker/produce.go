package worker

import (
	"errors"
	"time"

	"github.com/ardanlabs/mineral/foundation/blockchain/state"
)

// produceOperations runs a production check on every cycle and whenever it
// is signaled.
func (w *Worker) produceOperations() {
	w.evHandler("worker: produceOperations: G started")
	defer w.evHandler("worker: produceOperations: G completed")

	ticker := time.NewTicker(w.cycle)
	defer ticker.Stop()

	// Start this on a cycle mark so every producer checks at the same time.
	resetTicker(ticker, w.cycle)

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runProduceOperation()
			}
			resetTicker(ticker, w.cycle)

		case <-w.startProducing:
			if !w.isShutdown() {
				w.runProduceOperation()
			}

		case <-w.shut:
			w.evHandler("worker: produceOperations: received shut signal")
			return
		}
	}
}

// runProduceOperation produces the next block when this node is the
// scheduled producer and there are transactions pending.
func (w *Worker) runProduceOperation() {
	head := w.state.RetrieveHead()
	height := head.Height + 1

	// If we are not selected, return and wait for the new block.
	producerID, exists := w.state.RetrieveProducer(height)
	if !exists || producerID != w.producerID {
		return
	}

	// Make sure there are transactions in the pool.
	rx, _ := w.state.RetrievePoolCounts()
	if rx == 0 {
		return
	}

	w.evHandler("worker: runProduceOperation: PRODUCE: started: height[%d]: trans[%d]", height, rx)
	defer w.evHandler("worker: runProduceOperation: PRODUCE: completed")

	t := time.Now()
	block, err := w.state.ProduceBlock(w.privateKey)
	duration := time.Since(t)

	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoTransactions):
			w.evHandler("worker: runProduceOperation: PRODUCE: WARNING: no transactions in pool")
		default:
			w.evHandler("worker: runProduceOperation: PRODUCE: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runProduceOperation: PRODUCE: blk[%d]: hash[%s]: trans[%d]: duration[%v]", block.Header.Number, block.Hash(), len(block.Trans), duration)
}

// =============================================================================

// resetTicker makes sure the next tick happens on the described cadence.
func resetTicker(ticker *time.Ticker, cycle time.Duration) {
	nextTick := time.Now().Add(cycle).Round(cycle)
	diff := time.Until(nextTick)
	if diff <= 0 {
		diff = cycle
	}
	ticker.Reset(diff)
}

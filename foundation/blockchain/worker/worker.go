// Package worker implements block production for a node that is part of the
// producer schedule.
package worker

import (
	"crypto/ecdsa"
	"sync"
	"time"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/state"
)

// DefaultCycle is how often the worker checks if it is this node's turn to
// produce a block.
const DefaultCycle = 3 * time.Second

// =============================================================================

// Config represents the configuration required to start the worker.
type Config struct {
	State      *state.State
	PrivateKey *ecdsa.PrivateKey
	Cycle      time.Duration
	EvHandler  state.EventHandler
}

// Worker manages the block production workflow for the node.
type Worker struct {
	state          *state.State
	privateKey     *ecdsa.PrivateKey
	producerID     database.AccountID
	cycle          time.Duration
	wg             sync.WaitGroup
	shut           chan struct{}
	startProducing chan bool
	subID          string
	evHandler      state.EventHandler
}

// Run creates a worker and starts the block production goroutine.
func Run(cfg Config) *Worker {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.Cycle <= 0 {
		cfg.Cycle = DefaultCycle
	}

	w := Worker{
		state:          cfg.State,
		privateKey:     cfg.PrivateKey,
		producerID:     database.PublicKeyToAccountID(cfg.PrivateKey.PublicKey),
		cycle:          cfg.Cycle,
		shut:           make(chan struct{}),
		startProducing: make(chan bool, 1),
		evHandler:      ev,
	}

	// A committed block can make this node the next producer.
	w.subID = w.state.SubscribePersistCompleted(func(block database.Block) {
		w.SignalStartProducing()
	})

	// We don't want to return until we know the G is up and running.
	hasStarted := make(chan bool)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		hasStarted <- true
		w.produceOperations()
	}()

	<-hasStarted

	return &w
}

// Shutdown terminates the goroutine performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: unsubscribe")
	w.state.Unsubscribe(w.subID)

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SignalStartProducing starts a production check. If there is already a
// signal pending in the channel, just return since a check will happen.
func (w *Worker) SignalStartProducing() {
	select {
	case w.startProducing <- true:
	default:
	}
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

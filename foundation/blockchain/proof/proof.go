// Package proof decides which accounts are allowed to produce blocks and
// when that schedule rotates.
package proof

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ardanlabs/mineral/foundation/blockchain/database"
)

// ErrTurnTable is returned when a new producer schedule can't be built.
var ErrTurnTable = errors.New("unable to build turn table")

// Chain represents the behavior the proof needs from the chain to rebuild
// the producer schedule.
type Chain interface {
	RetrieveHead() database.HeadState
	RetrieveDelegates() ([]database.DelegateState, error)
	PersistTurnTable(producers []database.AccountID, height uint64) error
}

// Proof represents the behavior of a consensus rule set the chain consults
// after each committed block.
type Proof interface {
	RemainUpdate(height uint64) int64
	Update(chain Chain) error
	SetTurnTable(tt database.TurnTableState)
	GetCurrentTurnTable() database.TurnTableState
	Producer(height uint64) (database.AccountID, bool)
}

// EventHandler defines a function that is called when events occur.
type EventHandler func(v string, args ...any)

// =============================================================================

// Set of defaults for the producer schedule.
const (
	DefaultRoundBlocks  = 100
	DefaultMaxProducers = 21
)

// Config represents the configuration required to construct the DPoS proof.
type Config struct {
	RoundBlocks  uint64
	MaxProducers int
	EvHandler    EventHandler
}

// DPoS rotates production between the delegates holding the most votes.
type DPoS struct {
	roundBlocks  uint64
	maxProducers int
	evHandler    EventHandler

	mu        sync.RWMutex
	turnTable database.TurnTableState
}

// NewDPoS constructs the delegated proof of stake rule set.
func NewDPoS(cfg Config) *DPoS {
	if cfg.RoundBlocks == 0 {
		cfg.RoundBlocks = DefaultRoundBlocks
	}

	if cfg.MaxProducers <= 0 {
		cfg.MaxProducers = DefaultMaxProducers
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	return &DPoS{
		roundBlocks:  cfg.RoundBlocks,
		maxProducers: cfg.MaxProducers,
		evHandler:    ev,
	}
}

// RemainUpdate returns how many blocks after the committed height remain
// before the schedule must be rebuilt. A value <= 0 means rebuild now.
func (d *DPoS) RemainUpdate(height uint64) int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(d.turnTable.Producers) == 0 {
		return 0
	}

	return int64(d.turnTable.Height+d.roundBlocks) - int64(height+1)
}

// Update rebuilds the schedule from the current delegate votes. The new
// schedule becomes active at the block after head.
func (d *DPoS) Update(chain Chain) error {
	delegates, err := chain.RetrieveDelegates()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTurnTable, err)
	}

	producers := Elect(delegates, d.maxProducers)
	if len(producers) == 0 {
		return fmt.Errorf("%w: no delegates registered", ErrTurnTable)
	}

	height := chain.RetrieveHead().Height + 1
	if err := chain.PersistTurnTable(producers, height); err != nil {
		return fmt.Errorf("%w: %w", ErrTurnTable, err)
	}

	d.SetTurnTable(database.TurnTableState{Height: height, Producers: producers})
	d.evHandler("proof: update: height[%d]: producers[%d]", height, len(producers))

	return nil
}

// SetTurnTable replaces the active schedule.
func (d *DPoS) SetTurnTable(tt database.TurnTableState) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.turnTable = database.TurnTableState{
		Height:    tt.Height,
		Producers: slices.Clone(tt.Producers),
	}
}

// GetCurrentTurnTable returns a copy of the active schedule.
func (d *DPoS) GetCurrentTurnTable() database.TurnTableState {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return database.TurnTableState{
		Height:    d.turnTable.Height,
		Producers: slices.Clone(d.turnTable.Producers),
	}
}

// Producer returns the account scheduled to produce the block at height.
func (d *DPoS) Producer(height uint64) (database.AccountID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tt := d.turnTable
	if len(tt.Producers) == 0 || height < tt.Height {
		return "", false
	}

	return tt.Producers[(height-tt.Height)%uint64(len(tt.Producers))], true
}

// =============================================================================

// Elect orders the delegates by votes, highest first with the account as
// the tie-break, and returns up to max accounts.
func Elect(delegates []database.DelegateState, max int) []database.AccountID {
	sorted := slices.Clone(delegates)
	slices.SortFunc(sorted, func(a, b database.DelegateState) int {
		if c := cmp.Compare(b.Votes, a.Votes); c != 0 {
			return c
		}
		return cmp.Compare(a.AccountID, b.AccountID)
	})

	if len(sorted) > max {
		sorted = sorted[:max]
	}

	producers := make([]database.AccountID, len(sorted))
	for i, dlg := range sorted {
		producers[i] = dlg.AccountID
	}

	return producers
}

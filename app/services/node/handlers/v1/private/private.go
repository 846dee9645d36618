// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ardanlabs/mineral/business/web/errs"
	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/state"
	"github.com/ardanlabs/mineral/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log        *zap.SugaredLogger
	State      *state.State
	PrivateKey *ecdsa.PrivateKey
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	head := h.State.RetrieveHead()
	rx, txs := h.State.RetrievePoolCounts()

	producer, _ := h.State.RetrieveProducer(head.Height + 1)

	status := struct {
		Height       uint64             `json:"height"`
		Hash         string             `json:"hash"`
		HeaderHeight uint64             `json:"header_height"`
		NextProducer database.AccountID `json:"next_producer"`
		PendingRx    int                `json:"pending_rx"`
		PendingTx    int                `json:"pending_tx"`
	}{
		Height:       head.Height,
		Hash:         head.Hash,
		HeaderHeight: h.State.RetrieveHeaderHeight(),
		NextProducer: producer,
		PendingRx:    rx,
		PendingTx:    txs,
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := strconv.ParseUint(web.Param(r, "from"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid from: %w", err), http.StatusBadRequest)
	}

	to, err := strconv.ParseUint(web.Param(r, "to"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid to: %w", err), http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from is greater than to"), http.StatusBadRequest)
	}

	blocks, err := h.State.GetBlocks(from, to)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}
		return err
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// ProposeBlock takes a block received from a peer and adds it to the chain.
// The call returns once the block is committed or rejected.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var block database.Block
	if err := web.Decode(r, &block); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("propose block", "traceid", v.TraceID, "height", block.Header.Number, "hash", block.Hash())

	result, err := h.State.AddBlockDirectly(block)
	if err != nil {
		if result == state.RejectedCommit {
			return err
		}
		return errs.NewTrusted(fmt.Errorf("block not accepted: %s: %w", result, err), http.StatusNotAcceptable)
	}

	resp := struct {
		Status string `json:"status"`
		Hash   string `json:"hash"`
	}{
		Status: result.String(),
		Hash:   block.Hash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ProduceBlock builds, signs and commits a block from the pending
// transactions using the node's key.
func (h Handlers) ProduceBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.ProduceBlock(h.PrivateKey)
	if err != nil {
		return errs.Ledger(err)
	}

	resp := struct {
		Height uint64 `json:"height"`
		Hash   string `json:"hash"`
		Trans  int    `json:"trans"`
	}{
		Height: block.Header.Number,
		Hash:   block.Hash(),
		Trans:  len(block.Trans),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// SubmitNodeTransaction adds a transaction shared by another node to the
// pool.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.SignedTx
	if err := web.Decode(r, &tx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("add tran", "traceid", v.TraceID, "tx", tx, "kind", tx.Kind, "fee", tx.Fee)

	if err := h.State.SubmitTransaction(tx); err != nil {
		if errors.Is(err, state.ErrKnownTransaction) {
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}
		return errs.Ledger(err)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to pool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

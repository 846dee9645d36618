// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/mineral/business/web/errs"
	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/state"
	"github.com/ardanlabs/mineral/foundation/events"
	"github.com/ardanlabs/mineral/foundation/nameservice"
	"github.com/ardanlabs/mineral/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Head returns the last committed block and the pool sizes.
func (h Handlers) Head(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hd := h.State.RetrieveHead()
	rx, txs := h.State.RetrievePoolCounts()

	resp := head{
		Height:       hd.Height,
		Hash:         hd.Hash,
		HeaderHeight: h.State.RetrieveHeaderHeight(),
		PendingRx:    rx,
		PendingTx:    txs,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlockByHeight returns the block at the height.
func (h Handlers) BlockByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid height: %w", err), http.StatusBadRequest)
	}

	block, err := h.State.GetBlock(height)
	if err != nil {
		return errs.Ledger(err)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// BlockByHash returns the block with the hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	block, err := h.State.GetBlockByHash(web.Param(r, "hash"))
	if err != nil {
		return errs.Ledger(err)
	}

	return web.Respond(ctx, w, block, http.StatusOK)
}

// Account returns the ledger state for the account.
func (h Handlers) Account(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := h.accountID(web.Param(r, "account"))
	if err != nil {
		return err
	}

	acct, err := h.State.GetAccountState(accountID)
	if err != nil {
		return err
	}

	resp := account{
		Account:       accountID,
		Name:          h.NS.Lookup(accountID),
		Balance:       acct.Balance,
		LockedBalance: acct.LockedBalance,
		Votes:         acct.Votes,
		TotalVotes:    acct.TotalVotes(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Delegates returns every registered delegate.
func (h Handlers) Delegates(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	dlgs, err := h.State.GetDelegateStateAll()
	if err != nil {
		return err
	}

	resp := make([]delegate, len(dlgs))
	for i, dlg := range dlgs {
		resp[i] = delegate{
			Account: dlg.AccountID,
			Name:    dlg.Name,
			Votes:   dlg.Votes,
		}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Delegate returns the delegate registered by the account.
func (h Handlers) Delegate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := h.accountID(web.Param(r, "account"))
	if err != nil {
		return err
	}

	dlg, err := h.State.GetDelegateState(accountID)
	if err != nil {
		return errs.Ledger(err)
	}

	resp := delegate{
		Account: dlg.AccountID,
		Name:    dlg.Name,
		Votes:   dlg.Votes,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// TurnTable returns the producer schedule in effect at the height.
func (h Handlers) TurnTable(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	height, err := strconv.ParseUint(web.Param(r, "height"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid height: %w", err), http.StatusBadRequest)
	}

	tt, err := h.State.GetTurnTable(height)
	if err != nil {
		return errs.Ledger(err)
	}

	return web.Respond(ctx, w, tt, http.StatusOK)
}

// Transaction returns a committed transaction and its result.
func (h Handlers) Transaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	ts, err := h.State.GetTransaction(web.Param(r, "hash"))
	if err != nil {
		return errs.Ledger(err)
	}

	return web.Respond(ctx, w, ts, http.StatusOK)
}

// Pending returns the set of transactions waiting for a block.
func (h Handlers) Pending(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	pending := h.State.RetrievePending(-1)

	trans := make([]tx, len(pending))
	for i, tran := range pending {
		trans[i] = tx{
			Hash:     tran.Hash(),
			Kind:     tran.Kind.String(),
			FromID:   tran.FromID,
			FromName: h.NS.Lookup(tran.FromID),
			Fee:      tran.Fee,
			Payload:  tran.Payload,
			Sig:      tran.SignatureString(),
		}
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// SubmitTransaction adds a new wallet transaction to the pool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return errs.NewTrusted(fmt.Errorf("unable to decode payload: %w", err), http.StatusBadRequest)
	}

	h.Log.Infow("submit tran", "traceid", v.TraceID, "tx", signedTx, "kind", signedTx.Kind, "fee", signedTx.Fee)

	if err := h.State.SubmitTransaction(signedTx); err != nil {
		return errs.Ledger(err)
	}

	resp := struct {
		Status string `json:"status"`
		Hash   string `json:"hash"`
	}{
		Status: "transaction added to pool",
		Hash:   signedTx.Hash(),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// =============================================================================

// accountID accepts an account id or a name known to the name service.
func (h Handlers) accountID(value string) (database.AccountID, error) {
	if accountID, exists := h.NS.Account(value); exists {
		return accountID, nil
	}

	accountID, err := database.ToAccountID(value)
	if err != nil {
		return "", errs.NewTrusted(err, http.StatusBadRequest)
	}

	return accountID, nil
}

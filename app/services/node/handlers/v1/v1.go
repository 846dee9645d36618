// Package v1 contains the full set of handler functions and routes
// supported by the v1 web api.
package v1

import (
	"crypto/ecdsa"
	"net/http"

	"github.com/ardanlabs/mineral/app/services/node/handlers/v1/private"
	"github.com/ardanlabs/mineral/app/services/node/handlers/v1/public"
	"github.com/ardanlabs/mineral/foundation/blockchain/state"
	"github.com/ardanlabs/mineral/foundation/events"
	"github.com/ardanlabs/mineral/foundation/nameservice"
	"github.com/ardanlabs/mineral/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const version = "v1"

// Config contains all the mandatory systems required by handlers.
type Config struct {
	Log        *zap.SugaredLogger
	State      *state.State
	NS         *nameservice.NameService
	Evts       *events.Events
	PrivateKey *ecdsa.PrivateKey
}

// PublicRoutes binds all the version 1 public routes.
func PublicRoutes(app *web.App, cfg Config) {
	pbl := public.Handlers{
		Log:   cfg.Log,
		State: cfg.State,
		NS:    cfg.NS,
		WS:    websocket.Upgrader{},
		Evts:  cfg.Evts,
	}

	app.Handle(http.MethodGet, version, "/events", pbl.Events)
	app.Handle(http.MethodGet, version, "/genesis", pbl.Genesis)
	app.Handle(http.MethodGet, version, "/head", pbl.Head)
	app.Handle(http.MethodGet, version, "/blocks/:height", pbl.BlockByHeight)
	app.Handle(http.MethodGet, version, "/blocks/hash/:hash", pbl.BlockByHash)
	app.Handle(http.MethodGet, version, "/accounts/:account", pbl.Account)
	app.Handle(http.MethodGet, version, "/delegates", pbl.Delegates)
	app.Handle(http.MethodGet, version, "/delegates/:account", pbl.Delegate)
	app.Handle(http.MethodGet, version, "/turntable/:height", pbl.TurnTable)
	app.Handle(http.MethodGet, version, "/tx/pending", pbl.Pending)
	app.Handle(http.MethodGet, version, "/tx/:hash", pbl.Transaction)
	app.Handle(http.MethodPost, version, "/tx/submit", pbl.SubmitTransaction)
}

// PrivateRoutes binds all the version 1 private routes.
func PrivateRoutes(app *web.App, cfg Config) {
	prv := private.Handlers{
		Log:        cfg.Log,
		State:      cfg.State,
		PrivateKey: cfg.PrivateKey,
	}

	app.Handle(http.MethodGet, version, "/node/status", prv.Status)
	app.Handle(http.MethodGet, version, "/node/block/list/:from/:to", prv.BlocksByNumber)
	app.Handle(http.MethodPost, version, "/node/block/propose", prv.ProposeBlock)
	app.Handle(http.MethodPost, version, "/node/block/produce", prv.ProduceBlock)
	app.Handle(http.MethodPost, version, "/node/tx/submit", prv.SubmitNodeTransaction)
}

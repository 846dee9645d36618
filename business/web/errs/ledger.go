package errs

import (
	"errors"
	"net/http"

	"github.com/ardanlabs/mineral/foundation/blockchain/cache"
	"github.com/ardanlabs/mineral/foundation/blockchain/database"
	"github.com/ardanlabs/mineral/foundation/blockchain/executor"
	"github.com/ardanlabs/mineral/foundation/blockchain/state"
)

// ledgerStatus maps the expected ledger errors to the status returned to
// the client. The first match wins.
var ledgerStatus = []struct {
	err    error
	status int
}{
	{state.ErrNotFound, http.StatusNotFound},
	{executor.ErrValidation, http.StatusBadRequest},
	{state.ErrKnownTransaction, http.StatusBadRequest},
	{state.ErrNoTransactions, http.StatusConflict},
	{state.ErrLinkMismatch, http.StatusNotAcceptable},
	{cache.ErrHeightConflict, http.StatusNotAcceptable},
	{database.ErrTransRoot, http.StatusNotAcceptable},
	{database.ErrProducerSignature, http.StatusNotAcceptable},
}

// Ledger converts an expected ledger error into a trusted error with the
// matching status. Any other error is returned as is and becomes a 500.
func Ledger(err error) error {
	if err == nil || IsTrusted(err) {
		return err
	}

	for _, ls := range ledgerStatus {
		if errors.Is(err, ls.err) {
			return NewTrusted(err, ls.status)
		}
	}

	return err
}

package public

import "github.com/ardanlabs/mineral/foundation/blockchain/database"

type account struct {
	Account       database.AccountID `json:"account"`
	Name          string             `json:"name"`
	Balance       uint64             `json:"balance"`
	LockedBalance uint64             `json:"locked_balance"`
	Votes         []database.Vote    `json:"votes,omitempty"`
	TotalVotes    uint64             `json:"total_votes"`
}

type delegate struct {
	Account database.AccountID `json:"account"`
	Name    string             `json:"name"`
	Votes   uint64             `json:"votes"`
}

type tx struct {
	Hash     string             `json:"hash"`
	Kind     string             `json:"kind"`
	FromID   database.AccountID `json:"from"`
	FromName string             `json:"from_name"`
	Fee      uint64             `json:"fee"`
	Payload  database.Payload   `json:"payload"`
	Sig      string             `json:"sig"`
}

type head struct {
	Height       uint64 `json:"height"`
	Hash         string `json:"hash"`
	HeaderHeight uint64 `json:"header_height"`
	PendingRx    int    `json:"pending_rx"`
	PendingTx    int    `json:"pending_tx"`
}

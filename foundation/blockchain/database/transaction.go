package database

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/mineral/foundation/blockchain/signature"
)

// TxKind identifies which effect a transaction has on the ledger.
type TxKind uint8

// Set of transaction kinds the ledger knows how to apply.
const (
	KindTransfer TxKind = iota + 1
	KindVote
	KindRegisterDelegate
	KindOtherSign
	KindSign
	KindLock
	KindUnlock
	KindSupply
)

var kindNames = map[TxKind]string{
	KindTransfer:         "transfer",
	KindVote:             "vote",
	KindRegisterDelegate: "register_delegate",
	KindOtherSign:        "other_sign",
	KindSign:             "sign",
	KindLock:             "lock",
	KindUnlock:           "unlock",
	KindSupply:           "supply",
}

// String implements the fmt.Stringer interface.
func (k TxKind) String() string {
	if name, exists := kindNames[k]; exists {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseTxKind converts the name of a kind back into its value.
func ParseTxKind(name string) (TxKind, error) {
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction kind %q", name)
}

// =============================================================================

// Payload is the kind specific data carried by a transaction. The set of
// payloads is closed, only the types in this package implement it.
type Payload interface {
	Kind() TxKind
	payload()
}

// Output is a single amount sent to a recipient.
type Output struct {
	To     AccountID `json:"to"`
	Amount uint64    `json:"amount"`
}

// Vote is an amount of voting power given to a delegate.
type Vote struct {
	Delegate AccountID `json:"delegate"`
	Amount   uint64    `json:"amount"`
}

// Transfer moves balance from the sender to one or more recipients.
type Transfer struct {
	Outputs []Output `json:"outputs"`
}

// VoteCast replaces the sender's previous votes with a new set.
type VoteCast struct {
	Votes []Vote `json:"votes"`
}

// RegisterDelegate registers the sender as a block producer candidate.
type RegisterDelegate struct {
	Name string `json:"name"`
}

// OtherSign escrows outputs until every listed signer has signed or the
// expiration height is reached.
type OtherSign struct {
	Outputs          []Output    `json:"outputs"`
	Others           []AccountID `json:"others"`
	ExpirationHeight uint64      `json:"expiration_height"`
}

// Sign adds the sender's signature to one or more escrows.
type Sign struct {
	TxIDs []string `json:"tx_ids"`
}

// Lock moves balance into the locked balance.
type Lock struct {
	Value uint64 `json:"value"`
}

// Unlock moves the whole locked balance back into the balance.
type Unlock struct{}

// Supply mints new balance for the sender.
type Supply struct {
	Amount uint64 `json:"amount"`
}

func (Transfer) Kind() TxKind         { return KindTransfer }
func (VoteCast) Kind() TxKind         { return KindVote }
func (RegisterDelegate) Kind() TxKind { return KindRegisterDelegate }
func (OtherSign) Kind() TxKind        { return KindOtherSign }
func (Sign) Kind() TxKind             { return KindSign }
func (Lock) Kind() TxKind             { return KindLock }
func (Unlock) Kind() TxKind           { return KindUnlock }
func (Supply) Kind() TxKind           { return KindSupply }

func (Transfer) payload()         {}
func (VoteCast) payload()         {}
func (RegisterDelegate) payload() {}
func (OtherSign) payload()        {}
func (Sign) payload()             {}
func (Lock) payload()             {}
func (Unlock) payload()           {}
func (Supply) payload()           {}

// =============================================================================

// Tx is the transactional information signed by an account.
type Tx struct {
	ChainID   uint16    `json:"chain_id"`
	Kind      TxKind    `json:"kind"`
	FromID    AccountID `json:"from"`
	Fee       uint64    `json:"fee"`
	TimeStamp uint64    `json:"timestamp"`
	Payload   Payload   `json:"payload"`
}

// NewTx constructs a new transaction for the specified payload.
func NewTx(chainID uint16, fromID AccountID, fee uint64, payload Payload) (Tx, error) {
	if !fromID.IsAccountID() {
		return Tx{}, fmt.Errorf("from account is not properly formatted")
	}

	if payload == nil {
		return Tx{}, errors.New("payload is required")
	}

	tx := Tx{
		ChainID:   chainID,
		Kind:      payload.Kind(),
		FromID:    fromID,
		Fee:       fee,
		TimeStamp: uint64(time.Now().UTC().UnixNano()),
		Payload:   payload,
	}

	return tx, nil
}

// Sign uses the specified private key to sign the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (SignedTx, error) {
	if PublicKeyToAccountID(privateKey.PublicKey) != tx.FromID {
		return SignedTx{}, errors.New("signing key does not match the from account")
	}

	v, r, s, err := signature.Sign(tx, privateKey)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx: tx,
		V:  v,
		R:  r,
		S:  s,
	}

	return signedTx, nil
}

// UnmarshalJSON decodes the payload based on the kind of transaction.
func (tx *Tx) UnmarshalJSON(data []byte) error {
	var raw struct {
		ChainID   uint16          `json:"chain_id"`
		Kind      TxKind          `json:"kind"`
		FromID    AccountID       `json:"from"`
		Fee       uint64          `json:"fee"`
		TimeStamp uint64          `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	payload, err := decodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}

	*tx = Tx{
		ChainID:   raw.ChainID,
		Kind:      raw.Kind,
		FromID:    raw.FromID,
		Fee:       raw.Fee,
		TimeStamp: raw.TimeStamp,
		Payload:   payload,
	}

	return nil
}

// decodePayload constructs the concrete payload for the specified kind.
func decodePayload(kind TxKind, data json.RawMessage) (Payload, error) {
	var p Payload
	switch kind {
	case KindTransfer:
		p = &Transfer{}
	case KindVote:
		p = &VoteCast{}
	case KindRegisterDelegate:
		p = &RegisterDelegate{}
	case KindOtherSign:
		p = &OtherSign{}
	case KindSign:
		p = &Sign{}
	case KindLock:
		p = &Lock{}
	case KindUnlock:
		p = &Unlock{}
	case KindSupply:
		p = &Supply{}
	default:
		return nil, fmt.Errorf("unknown transaction kind %d", kind)
	}

	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", kind, err)
		}
	}

	// Keep value semantics for the stored payload.
	switch v := p.(type) {
	case *Transfer:
		return *v, nil
	case *VoteCast:
		return *v, nil
	case *RegisterDelegate:
		return *v, nil
	case *OtherSign:
		return *v, nil
	case *Sign:
		return *v, nil
	case *Lock:
		return *v, nil
	case *Unlock:
		return *v, nil
	case *Supply:
		return *v, nil
	}

	return nil, fmt.Errorf("unknown transaction kind %d", kind)
}

// =============================================================================

// SignedTx is a signed version of the transaction. This is how clients like
// a wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	V *big.Int `json:"v"` // Recovery identifier, either 29 or 30 with mineralID.
	R *big.Int `json:"r"` // First coordinate of the ECDSA signature.
	S *big.Int `json:"s"` // Second coordinate of the ECDSA signature.
}

// UnmarshalJSON is required since the embedded Tx has its own decoder
// which would otherwise swallow the signature fields.
func (tx *SignedTx) UnmarshalJSON(data []byte) error {
	var inner Tx
	if err := json.Unmarshal(data, &inner); err != nil {
		return err
	}

	var sig struct {
		V *big.Int `json:"v"`
		R *big.Int `json:"r"`
		S *big.Int `json:"s"`
	}
	if err := json.Unmarshal(data, &sig); err != nil {
		return err
	}

	*tx = SignedTx{
		Tx: inner,
		V:  sig.V,
		R:  sig.R,
		S:  sig.S,
	}

	return nil
}

// Validate verifies the transaction has a proper signature that conforms to
// our standards and that the signer is the from account.
func (tx SignedTx) Validate(chainID uint16) error {
	if tx.ChainID != chainID {
		return fmt.Errorf("invalid chain id, got[%d] exp[%d]", tx.ChainID, chainID)
	}

	if !tx.FromID.IsAccountID() {
		return errors.New("invalid account for from account")
	}

	if tx.Payload == nil || tx.Kind != tx.Payload.Kind() {
		return fmt.Errorf("kind %s does not match payload", tx.Kind)
	}

	if err := signature.VerifySignature(tx.V, tx.R, tx.S); err != nil {
		return err
	}

	address, err := signature.FromAddress(tx.Tx, tx.V, tx.R, tx.S)
	if err != nil {
		return err
	}

	if AccountID(address) != tx.FromID {
		return errors.New("signature address doesn't match from address")
	}

	return nil
}

// Hash returns the unique id of the transaction.
func (tx SignedTx) Hash() string {
	return signature.Hash(tx.Tx)
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions.
func (tx SignedTx) Equals(other SignedTx) bool {
	return tx.Hash() == other.Hash()
}

// SignatureString returns the signature as a string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.V, tx.R, tx.S)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%s:%s", tx.FromID, tx.Kind, tx.Hash())
}

package wish

import (
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token is the registry record of a single claim token, keyed by its plain
// id. Ownership only changes through mint, complete and burn.
type Token struct {
	ID           *uint256.Int
	Owner        ethcommon.Address
	Transferable bool
	Completed    bool
}

// Clone returns a deep copy so callers can mutate without touching the stored
// instance.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	clone := *t
	clone.ID = cloneID(t.ID)
	return &clone
}

// SanitizeToken validates a token record before it is persisted. The stored
// id must already be canonical.
func SanitizeToken(t *Token) (*Token, error) {
	if t == nil {
		return nil, fmt.Errorf("wish: nil token")
	}
	clone := t.Clone()
	if IsComposed(clone.ID) {
		return nil, fmt.Errorf("wish: token id %s not canonical", clone.ID.Dec())
	}
	if clone.Owner == (ethcommon.Address{}) {
		return nil, fmt.Errorf("wish: token owner must not be zero")
	}
	return clone, nil
}

// Ack is the typed acknowledgment returned by the registry's mutating
// operations. The escrow ledger asserts the expected value after every call
// so a non-conforming registry aborts the settlement instead of silently
// proceeding.
type Ack uint8

const (
	AckNone Ack = iota
	AckMint
	AckBurn
	AckComplete
)

package events

import (
	"math/big"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	TypeWishTransfer        = "wish.transfer"
	TypeWishCompleted       = "wish.completed"
	TypeWishSetTransferable = "wish.set_transferable"
	TypeWishSetCompleted    = "wish.set_completed"
)

// Transfer mirrors the registry ownership changes produced by mint, burn and
// complete. Mints carry a zero From, burns a zero To.
type Transfer struct {
	From    ethcommon.Address
	To      ethcommon.Address
	TokenID *uint256.Int
}

func (Transfer) EventType() string { return TypeWishTransfer }

func (e Transfer) Event() *Event {
	return &Event{
		Type: TypeWishTransfer,
		Attributes: map[string]string{
			"from":    e.From.Hex(),
			"to":      e.To.Hex(),
			"tokenId": formatTokenID(e.TokenID),
		},
	}
}

// Completed records the terminal completion of a claim token.
type Completed struct {
	TokenID   *uint256.Int
	Fulfiller ethcommon.Address
}

func (Completed) EventType() string { return TypeWishCompleted }

func (e Completed) Event() *Event {
	return &Event{
		Type: TypeWishCompleted,
		Attributes: map[string]string{
			"tokenId":   formatTokenID(e.TokenID),
			"fulfiller": e.Fulfiller.Hex(),
		},
	}
}

// SetTransferable records an eligibility flag change.
type SetTransferable struct {
	TokenID *uint256.Int
	Status  bool
}

func (SetTransferable) EventType() string { return TypeWishSetTransferable }

func (e SetTransferable) Event() *Event {
	return &Event{
		Type: TypeWishSetTransferable,
		Attributes: map[string]string{
			"tokenId": formatTokenID(e.TokenID),
			"status":  strconv.FormatBool(e.Status),
		},
	}
}

// SetCompleted records a completion flag change.
type SetCompleted struct {
	TokenID *uint256.Int
	Status  bool
}

func (SetCompleted) EventType() string { return TypeWishSetCompleted }

func (e SetCompleted) Event() *Event {
	return &Event{
		Type: TypeWishSetCompleted,
		Attributes: map[string]string{
			"tokenId": formatTokenID(e.TokenID),
			"status":  strconv.FormatBool(e.Status),
		},
	}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func formatTokenID(id *uint256.Int) string {
	if id == nil {
		return "0"
	}
	return id.Dec()
}

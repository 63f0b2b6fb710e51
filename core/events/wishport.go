package events

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	TypeWishportListed         = "wishport.listed"
	TypeWishportUnlisted       = "wishport.unlisted"
	TypeWishportFulfilled      = "wishport.fulfilled"
	TypeWishportDisputeHandled = "wishport.dispute_handled"
	TypeWishportClaimed        = "wishport.claimed"
)

// Listed records a freshly escrowed wish: the measured reward amount locked
// against the newly minted claim token.
type Listed struct {
	TokenID *uint256.Int
	Creator ethcommon.Address
	Asset   ethcommon.Address
	Amount  *big.Int
}

func (Listed) EventType() string { return TypeWishportListed }

func (e Listed) Event() *Event {
	return &Event{
		Type: TypeWishportListed,
		Attributes: map[string]string{
			"tokenId": formatTokenID(e.TokenID),
			"creator": e.Creator.Hex(),
			"asset":   e.Asset.Hex(),
			"amount":  formatAmount(e.Amount),
		},
	}
}

// Unlisted records a creator-initiated takedown and its fee/refund split.
type Unlisted struct {
	TokenID *uint256.Int
	Creator ethcommon.Address
	Asset   ethcommon.Address
	Refund  *big.Int
	Fee     *big.Int
}

func (Unlisted) EventType() string { return TypeWishportUnlisted }

func (e Unlisted) Event() *Event {
	return &Event{
		Type: TypeWishportUnlisted,
		Attributes: map[string]string{
			"tokenId": formatTokenID(e.TokenID),
			"creator": e.Creator.Hex(),
			"asset":   e.Asset.Hex(),
			"refund":  formatAmount(e.Refund),
			"fee":     formatAmount(e.Fee),
		},
	}
}

// Fulfilled records a completed wish settlement and the three-way split.
type Fulfilled struct {
	TokenID   *uint256.Int
	Fulfiller ethcommon.Address
	Asset     ethcommon.Address
	Net       *big.Int
	Refund    *big.Int
	Fee       *big.Int
}

func (Fulfilled) EventType() string { return TypeWishportFulfilled }

func (e Fulfilled) Event() *Event {
	return &Event{
		Type: TypeWishportFulfilled,
		Attributes: map[string]string{
			"tokenId":   formatTokenID(e.TokenID),
			"fulfiller": e.Fulfiller.Hex(),
			"asset":     e.Asset.Hex(),
			"net":       formatAmount(e.Net),
			"refund":    formatAmount(e.Refund),
			"fee":       formatAmount(e.Fee),
		},
	}
}

// DisputeHandled records an authority-arbitrated settlement.
type DisputeHandled struct {
	TokenID   *uint256.Int
	Fulfiller ethcommon.Address
	Asset     ethcommon.Address
	Net       *big.Int
	Refund    *big.Int
	Fee       *big.Int
}

func (DisputeHandled) EventType() string { return TypeWishportDisputeHandled }

func (e DisputeHandled) Event() *Event {
	return &Event{
		Type: TypeWishportDisputeHandled,
		Attributes: map[string]string{
			"tokenId":   formatTokenID(e.TokenID),
			"fulfiller": e.Fulfiller.Hex(),
			"asset":     e.Asset.Hex(),
			"net":       formatAmount(e.Net),
			"refund":    formatAmount(e.Refund),
			"fee":       formatAmount(e.Fee),
		},
	}
}

// Claimed records a withdrawal of accrued claimable balance.
type Claimed struct {
	Recipient ethcommon.Address
	Asset     ethcommon.Address
	Amount    *big.Int
}

func (Claimed) EventType() string { return TypeWishportClaimed }

func (e Claimed) Event() *Event {
	return &Event{
		Type: TypeWishportClaimed,
		Attributes: map[string]string{
			"recipient": e.Recipient.Hex(),
			"asset":     e.Asset.Hex(),
			"amount":    formatAmount(e.Amount),
		},
	}
}

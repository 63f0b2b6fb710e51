package rpc

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wishport/core/events"
	"wishport/native/wish"
	"wishport/native/wishport"
)

// Node is the surface the HTTP server needs from the ledger node.
type Node interface {
	List(call wishport.Call, id *uint256.Int, asset ethcommon.Address, amount, nonce *big.Int, deadline int64, sig []byte) error
	Unlist(call wishport.Call, id *uint256.Int, feePortion uint64, nonce *big.Int, deadline int64, sig []byte) error
	Fulfill(call wishport.Call, id *uint256.Int, fulfiller ethcommon.Address, refundPortion, feePortion uint64, nonce *big.Int, deadline int64, sig []byte) error
	HandleDispute(call wishport.Call, id *uint256.Int, fulfiller ethcommon.Address, rewardPortion uint64, nonce *big.Int, deadline int64, sig []byte) error
	Claim(call wishport.Call, recipient, asset ethcommon.Address, amount *big.Int) error

	SetAuthedSigner(caller, signer ethcommon.Address) error
	SetClaimAllowed(caller ethcommon.Address, allowed bool) error
	SetAssetConfig(caller, asset ethcommon.Address, cfg *wishport.AssetConfig) error
	SetAssetConfigs(caller ethcommon.Address, assets []ethcommon.Address, cfgs []*wishport.AssetConfig) error
	SetDefaultAssetConfig(caller ethcommon.Address, cfg *wishport.AssetConfig) error
	SetTransferable(caller ethcommon.Address, id *uint256.Int, status bool) error
	SetCompleted(caller ethcommon.Address, id *uint256.Int, status bool) error

	Record(id *uint256.Int) (*wishport.WishRecord, bool, error)
	OwnerOf(id *uint256.Int) (ethcommon.Address, error)
	GetToken(id *uint256.Int) (*wish.Token, error)
	TokensOfOwner(owner ethcommon.Address) ([]*uint256.Int, error)
	TokensOfOwnerFiltered(owner ethcommon.Address, onlyTransferable bool) ([]*uint256.Int, error)
	TokenURI(id *uint256.Int) (string, error)
	ClaimableBalance(account, asset ethcommon.Address) (*big.Int, error)
	Settings() (*wishport.Settings, error)
	AssetConfig(asset ethcommon.Address) (*wishport.AssetConfig, error)
	Events() []events.Event
}

package wishport

import (
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"

	"wishport/native/custody"
	"wishport/native/portion"
)

// WishRecord holds the escrowed reward of one live claim token, keyed by the
// token's plain id. Exactly one live record exists per unburned, uncompleted
// token; settlement zeroes the amount and resets the asset to the native
// sentinel.
type WishRecord struct {
	Asset  ethcommon.Address
	Amount *big.Int
}

// Clone returns a deep copy of the record.
func (r *WishRecord) Clone() *WishRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.Amount != nil {
		clone.Amount = new(big.Int).Set(r.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// Live reports whether the record still escrows a positive reward.
func (r *WishRecord) Live() bool {
	return r != nil && r.Amount != nil && r.Amount.Sign() > 0
}

func zeroRecord() *WishRecord {
	return &WishRecord{Asset: custody.NativeAsset, Amount: big.NewInt(0)}
}

// AssetConfig is the per-asset (or default) settlement configuration. Fee
// portions are expressed over portion.BasePortion.
type AssetConfig struct {
	Activated                 bool
	PlatformFeePortion        uint64
	DisputeHandlingFeePortion uint64
}

// Clone returns a copy of the config.
func (c *AssetConfig) Clone() *AssetConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// SanitizeAssetConfig validates fee portions against the base denominator.
func SanitizeAssetConfig(c *AssetConfig) (*AssetConfig, error) {
	if c == nil {
		return nil, fmt.Errorf("wishport: nil asset config")
	}
	if c.PlatformFeePortion > portion.BasePortion {
		return nil, fmt.Errorf("%w: platform fee %d", portion.ErrInvalidPercentile, c.PlatformFeePortion)
	}
	if c.DisputeHandlingFeePortion > portion.BasePortion {
		return nil, fmt.Errorf("%w: dispute fee %d", portion.ErrInvalidPercentile, c.DisputeHandlingFeePortion)
	}
	return c.Clone(), nil
}

// Settings is the admin-mutated runtime configuration of the ledger.
type Settings struct {
	AuthedSigner ethcommon.Address
	ClaimAllowed bool
}

// Clone returns a copy of the settings.
func (s *Settings) Clone() *Settings {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}

// Call carries the already-resolved logical caller and any attached native
// value for one ledger operation. Relayed-call substitution happens upstream;
// the engine never re-derives the caller from a transport sender.
type Call struct {
	Caller ethcommon.Address
	Value  *big.Int
}

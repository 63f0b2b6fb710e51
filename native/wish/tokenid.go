package wish

import (
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Token ids are 256-bit values. The low 96 bits carry the plain id that keys
// every registry record; the high 160 bits, when non-zero, encode a
// pseudo-owner address. A composed id is an addressing alias that always
// canonicalizes to its plain id.
const plainIDBits = 96

// PlainID returns the canonical low-96-bit id of the supplied token id.
func PlainID(id *uint256.Int) *uint256.Int {
	plain := new(uint256.Int).Lsh(cloneID(id), 256-plainIDBits)
	return plain.Rsh(plain, 256-plainIDBits)
}

// PseudoOwner decodes the address packed into the high 160 bits. The zero
// address is returned for plain (uncomposed) ids.
func PseudoOwner(id *uint256.Int) ethcommon.Address {
	high := new(uint256.Int).Rsh(cloneID(id), plainIDBits)
	return ethcommon.BytesToAddress(high.Bytes())
}

// IsComposed reports whether any of the high 160 bits are set.
func IsComposed(id *uint256.Int) bool {
	return PseudoOwner(id) != (ethcommon.Address{})
}

// ComposeID packs a pseudo-owner address above a plain id. The plain id's own
// high bits are discarded so the result always canonicalizes back to
// PlainID(plain).
func ComposeID(pseudoOwner ethcommon.Address, plain *uint256.Int) *uint256.Int {
	composed := new(uint256.Int).SetBytes(pseudoOwner.Bytes())
	composed.Lsh(composed, plainIDBits)
	return composed.Or(composed, PlainID(plain))
}

// Resolve canonicalizes a token id into its plain id and decoded
// pseudo-owner. Every registry entry point resolves first and operates on the
// plain id for the remainder of the call.
func Resolve(id *uint256.Int) (*uint256.Int, ethcommon.Address) {
	return PlainID(id), PseudoOwner(id)
}

func cloneID(id *uint256.Int) *uint256.Int {
	if id == nil {
		return uint256.NewInt(0)
	}
	return new(uint256.Int).Set(id)
}

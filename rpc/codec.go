package rpc

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// errBadRequest marks malformed client input so statusFor can map it to 400.
var errBadRequest = errors.New("rpc: bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func parseAddress(field, value string) (ethcommon.Address, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return ethcommon.Address{}, badRequest("%s must be set", field)
	}
	if !ethcommon.IsHexAddress(value) {
		return ethcommon.Address{}, badRequest("%s is not a valid address", field)
	}
	return ethcommon.HexToAddress(value), nil
}

// parseOptionalAddress accepts an empty string as the zero address.
func parseOptionalAddress(field, value string) (ethcommon.Address, error) {
	if strings.TrimSpace(value) == "" {
		return ethcommon.Address{}, nil
	}
	return parseAddress(field, value)
}

// parseTokenID accepts a decimal or 0x-prefixed hex 256-bit id.
func parseTokenID(field, value string) (*uint256.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, badRequest("%s must be set", field)
	}
	id := new(uint256.Int)
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		if err := id.SetFromHex(value); err != nil {
			return nil, badRequest("%s is not a valid hex id", field)
		}
		return id, nil
	}
	if err := id.SetFromDecimal(value); err != nil {
		return nil, badRequest("%s is not a valid decimal id", field)
	}
	return id, nil
}

func parseAmount(field, value string) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, badRequest("%s must be set", field)
	}
	amount, ok := new(big.Int).SetString(value, 10)
	if !ok || amount.Sign() < 0 {
		return nil, badRequest("%s is not a valid amount", field)
	}
	return amount, nil
}

// parseOptionalAmount accepts an empty string as zero.
func parseOptionalAmount(field, value string) (*big.Int, error) {
	if strings.TrimSpace(value) == "" {
		return big.NewInt(0), nil
	}
	return parseAmount(field, value)
}

func parseNonce(field, value string) (*big.Int, error) {
	return parseAmount(field, value)
}

func parseSignature(field, value string) ([]byte, error) {
	value = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if value == "" {
		return nil, badRequest("%s must be set", field)
	}
	sig, err := hex.DecodeString(value)
	if err != nil {
		return nil, badRequest("%s is not valid hex", field)
	}
	return sig, nil
}

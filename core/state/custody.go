package state

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ErrInsufficientFunds is returned when a native transfer would overdraw the
// sender's balance.
var ErrInsufficientFunds = errors.New("state: insufficient funds")

func nativeBalanceKey(addr ethcommon.Address) []byte {
	return storageKey(nativeBalancePrefix, addr.Bytes())
}

func claimableKey(account, asset ethcommon.Address) []byte {
	suffix := make([]byte, 0, len(account)+len(asset))
	suffix = append(suffix, account.Bytes()...)
	suffix = append(suffix, asset.Bytes()...)
	return storageKey(claimablePrefix, suffix)
}

// NativeBalance returns the native currency balance of addr.
func (m *Manager) NativeBalance(addr ethcommon.Address) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.kvGet(nativeBalanceKey(addr), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// SetNativeBalance overwrites the native currency balance of addr. Used by
// genesis funding and tests.
func (m *Manager) SetNativeBalance(addr ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid balance for %s", addr.Hex())
	}
	return m.kvPut(nativeBalanceKey(addr), amount)
}

// NativeTransfer moves native currency between accounts.
func (m *Manager) NativeTransfer(from, to ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid transfer amount")
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	fromBalance, err := m.NativeBalance(from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: account %s", ErrInsufficientFunds, from.Hex())
	}
	toBalance, err := m.NativeBalance(to)
	if err != nil {
		return err
	}
	if err := m.kvPut(nativeBalanceKey(from), fromBalance.Sub(fromBalance, amount)); err != nil {
		return err
	}
	return m.kvPut(nativeBalanceKey(to), toBalance.Add(toBalance, amount))
}

// ClaimableGet returns the accrued claimable balance for account and asset.
func (m *Manager) ClaimableGet(account, asset ethcommon.Address) (*big.Int, error) {
	balance := new(big.Int)
	ok, err := m.kvGet(claimableKey(account, asset), balance)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return balance, nil
}

// ClaimablePut overwrites the claimable balance for account and asset.
func (m *Manager) ClaimablePut(account, asset ethcommon.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid claimable amount")
	}
	if amount.Sign() == 0 {
		return m.kvDelete(claimableKey(account, asset))
	}
	return m.kvPut(claimableKey(account, asset), amount)
}

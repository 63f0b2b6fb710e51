// Package custody abstracts reward movement over the two supported asset
// kinds: the native currency ledger and external fungible tokens. Token pulls
// are measured by custody balance delta so fee-on-transfer tokens are
// recorded at what actually arrived, and settlement payouts can fall back to
// an account's claimable balance instead of aborting.
package custody

import (
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// NativeAsset is the sentinel asset address denoting the native currency.
var NativeAsset = ethcommon.Address{}

var (
	ErrNilState            = errors.New("custody: state not configured")
	ErrNilResolver         = errors.New("custody: token resolver not configured")
	ErrInsufficientValue   = errors.New("custody: insufficient native value")
	ErrInsufficientBalance = errors.New("custody: insufficient balance")
	ErrTokenOperation      = errors.New("custody: token operation failed")
)

// Token is the capability interface of an external fungible token contract.
// Implementations signal failure through the boolean acknowledgment or an
// error; the custody engine treats both identically.
type Token interface {
	BalanceOf(addr ethcommon.Address) (*big.Int, error)
	Transfer(to ethcommon.Address, amount *big.Int) (bool, error)
	TransferFrom(from, to ethcommon.Address, amount *big.Int) (bool, error)
}

// TokenResolver resolves an asset address to its token collaborator.
type TokenResolver interface {
	Token(asset ethcommon.Address) (Token, error)
}

type engineState interface {
	NativeTransfer(from, to ethcommon.Address, amount *big.Int) error
	ClaimableGet(account, asset ethcommon.Address) (*big.Int, error)
	ClaimablePut(account, asset ethcommon.Address, amount *big.Int) error
}

// Engine moves assets in and out of the ledger's pooled custody account and
// maintains per-account claimable balances.
type Engine struct {
	state    engineState
	resolver TokenResolver
	account  ethcommon.Address
}

// NewEngine creates a custody engine. The custody account is the ledger's own
// identity on both the native ledger and every token contract.
func NewEngine() *Engine {
	return &Engine{}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetResolver configures the token collaborator lookup.
func (e *Engine) SetResolver(resolver TokenResolver) { e.resolver = resolver }

// SetCustodyAccount configures the pooled custody identity.
func (e *Engine) SetCustodyAccount(account ethcommon.Address) { e.account = account }

// CustodyAccount returns the pooled custody identity.
func (e *Engine) CustodyAccount() ethcommon.Address { return e.account }

func (e *Engine) token(asset ethcommon.Address) (Token, error) {
	if e.resolver == nil {
		return nil, ErrNilResolver
	}
	token, err := e.resolver.Token(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: asset %s: %v", ErrTokenOperation, asset.Hex(), err)
	}
	return token, nil
}

// Pull takes the reward into custody and returns the amount actually
// received. For the native asset the attached call value must cover the
// amount before the ledger transfer runs. For tokens the custody balance is
// measured before and after the transfer-in and the delta is returned, which
// may be less than requested for fee-on-transfer tokens.
func (e *Engine) Pull(from ethcommon.Address, value *big.Int, asset ethcommon.Address, amount *big.Int) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	amt := cloneOrZero(amount)
	if amt.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative amount", ErrTokenOperation)
	}
	if asset == NativeAsset {
		if cloneOrZero(value).Cmp(amt) < 0 {
			return nil, fmt.Errorf("%w: need %s, attached %s", ErrInsufficientValue, amt, cloneOrZero(value))
		}
		if amt.Sign() == 0 {
			return amt, nil
		}
		if err := e.state.NativeTransfer(from, e.account, amt); err != nil {
			return nil, err
		}
		return amt, nil
	}
	token, err := e.token(asset)
	if err != nil {
		return nil, err
	}
	before, err := token.BalanceOf(e.account)
	if err != nil {
		return nil, fmt.Errorf("%w: asset %s: %v", ErrTokenOperation, asset.Hex(), err)
	}
	ok, err := token.TransferFrom(from, e.account, amt)
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: asset %s transfer-in rejected", ErrTokenOperation, asset.Hex())
	}
	after, err := token.BalanceOf(e.account)
	if err != nil {
		return nil, fmt.Errorf("%w: asset %s: %v", ErrTokenOperation, asset.Hex(), err)
	}
	delta := new(big.Int).Sub(cloneOrZero(after), cloneOrZero(before))
	if delta.Sign() <= 0 {
		return nil, fmt.Errorf("%w: asset %s delivered nothing", ErrTokenOperation, asset.Hex())
	}
	return delta, nil
}

// Push moves assets out of custody to the recipient, failing the call on any
// transfer failure.
func (e *Engine) Push(to, asset ethcommon.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	amt := cloneOrZero(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if asset == NativeAsset {
		return e.state.NativeTransfer(e.account, to, amt)
	}
	token, err := e.token(asset)
	if err != nil {
		return err
	}
	ok, err := token.Transfer(to, amt)
	if err != nil || !ok {
		return fmt.Errorf("%w: asset %s transfer-out rejected", ErrTokenOperation, asset.Hex())
	}
	return nil
}

// PushOrCredit attempts a push and, on failure, credits the recipient's
// claimable balance instead. Settlement payouts use this mode so one
// uncooperative recipient cannot block an entire settlement.
func (e *Engine) PushOrCredit(to, asset ethcommon.Address, amount *big.Int) error {
	amt := cloneOrZero(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if err := e.Push(to, asset, amt); err != nil {
		return e.Credit(to, asset, amt)
	}
	return nil
}

// Credit accrues a claimable balance for later withdrawal.
func (e *Engine) Credit(account, asset ethcommon.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	amt := cloneOrZero(amount)
	if amt.Sign() == 0 {
		return nil
	}
	current, err := e.state.ClaimableGet(account, asset)
	if err != nil {
		return err
	}
	return e.state.ClaimablePut(account, asset, new(big.Int).Add(cloneOrZero(current), amt))
}

// ClaimableBalance reads an account's accrued credit for an asset.
func (e *Engine) ClaimableBalance(account, asset ethcommon.Address) (*big.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	balance, err := e.state.ClaimableGet(account, asset)
	if err != nil {
		return nil, err
	}
	return cloneOrZero(balance), nil
}

// Withdraw settles part of an account's claimable balance to the recipient.
// The balance is decremented before the push and a push failure aborts the
// whole withdrawal.
func (e *Engine) Withdraw(account, recipient, asset ethcommon.Address, amount *big.Int) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	amt := cloneOrZero(amount)
	if amt.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInsufficientBalance)
	}
	balance, err := e.state.ClaimableGet(account, asset)
	if err != nil {
		return err
	}
	current := cloneOrZero(balance)
	if current.Cmp(amt) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, current, amt)
	}
	if err := e.state.ClaimablePut(account, asset, new(big.Int).Sub(current, amt)); err != nil {
		return err
	}
	if err := e.Push(recipient, asset, amt); err != nil {
		// Push failure must leave no partial state: restore the balance
		// before surfacing the error.
		if restoreErr := e.state.ClaimablePut(account, asset, current); restoreErr != nil {
			return restoreErr
		}
		return err
	}
	return nil
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Package wish implements the claim-token registry: a soulbound-like
// non-fungible token whose ids can encode a pseudo-owner address in their
// high bits. Ownership changes only through mint, complete and burn; the open
// ERC-721 transfer surface is permanently disabled.
package wish

import (
	"errors"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wishport/core/events"
)

var (
	ErrNilState         = errors.New("wish: state not configured")
	ErrNonexistentToken = errors.New("wish: nonexistent token")
	ErrAlreadyMinted    = errors.New("wish: token already minted")
	ErrInvalidReceiver  = errors.New("wish: invalid receiver")
	ErrInvalidAddress   = errors.New("wish: invalid address")
	ErrAlreadyCompleted = errors.New("wish: token already completed")
	ErrUnauthorized     = errors.New("wish: unauthorized")
	ErrSetTransferable  = errors.New("wish: transferable status unchanged")
	ErrSetCompleted     = errors.New("wish: completed status unchanged")
	ErrFunctionDisabled = errors.New("wish: function disabled")
)

type engineState interface {
	WishTokenPut(*Token) error
	WishTokenGet(id *uint256.Int) (*Token, bool, error)
	WishTokenDelete(id *uint256.Int) error
	WishOwnerIndexAdd(owner ethcommon.Address, id *uint256.Int) error
	WishOwnerIndexRemove(owner ethcommon.Address, id *uint256.Int) error
	WishOwnerTokens(owner ethcommon.Address) ([]*uint256.Int, error)
}

// Engine wires the registry state machine with external state and event
// emitters. Mutating calls are authorized for the configured admin (the
// escrow ledger) with the registry owner as fallback.
type Engine struct {
	state   engineState
	emitter events.Emitter
	owner   ethcommon.Address
	admin   ethcommon.Address
	baseURI string
}

// NewEngine creates a registry engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOwner configures the registry owner, the emergency authorization
// fallback for every mutating call.
func (e *Engine) SetOwner(owner ethcommon.Address) { e.owner = owner }

// SetAdmin configures the delegated admin, normally the escrow ledger
// identity.
func (e *Engine) SetAdmin(admin ethcommon.Address) { e.admin = admin }

// SetBaseURI configures the metadata prefix returned by TokenURI.
func (e *Engine) SetBaseURI(uri string) { e.baseURI = uri }

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(payload events.Payload) {
	if e == nil || e.emitter == nil || payload == nil {
		return
	}
	e.emitter.Emit(payload)
}

func (e *Engine) authorize(caller ethcommon.Address) error {
	if caller == (ethcommon.Address{}) {
		return fmt.Errorf("%w: zero caller", ErrUnauthorized)
	}
	if caller == e.admin || caller == e.owner {
		return nil
	}
	return fmt.Errorf("%w: caller %s", ErrUnauthorized, caller.Hex())
}

func (e *Engine) loadToken(plain *uint256.Int) (*Token, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	token, ok, err := e.state.WishTokenGet(plain)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrNonexistentToken, plain.Dec())
	}
	return token, nil
}

// Mint creates the claim token for the canonical id of the supplied token id.
// A zero recipient is silently redirected to the pseudo-owner when the id is
// composed; a zero recipient on a plain id fails.
func (e *Engine) Mint(caller, recipient ethcommon.Address, id *uint256.Int) (Ack, error) {
	if e == nil || e.state == nil {
		return AckNone, ErrNilState
	}
	if err := e.authorize(caller); err != nil {
		return AckNone, err
	}
	plain, pseudoOwner := Resolve(id)
	if recipient == (ethcommon.Address{}) {
		if pseudoOwner == (ethcommon.Address{}) {
			return AckNone, fmt.Errorf("%w: zero recipient for plain id %s", ErrInvalidReceiver, plain.Dec())
		}
		recipient = pseudoOwner
	}
	if _, ok, err := e.state.WishTokenGet(plain); err != nil {
		return AckNone, err
	} else if ok {
		return AckNone, fmt.Errorf("%w: id %s", ErrAlreadyMinted, plain.Dec())
	}
	token := &Token{ID: plain, Owner: recipient}
	if err := e.storeToken(token); err != nil {
		return AckNone, err
	}
	if err := e.state.WishOwnerIndexAdd(recipient, plain); err != nil {
		return AckNone, err
	}
	e.emit(events.Transfer{From: ethcommon.Address{}, To: recipient, TokenID: plain})
	return AckMint, nil
}

// Burn destroys an uncompleted claim token.
func (e *Engine) Burn(caller ethcommon.Address, id *uint256.Int) (Ack, error) {
	if e == nil || e.state == nil {
		return AckNone, ErrNilState
	}
	if err := e.authorize(caller); err != nil {
		return AckNone, err
	}
	plain, _ := Resolve(id)
	token, err := e.loadToken(plain)
	if err != nil {
		return AckNone, err
	}
	if token.Completed {
		return AckNone, fmt.Errorf("%w: id %s", ErrAlreadyCompleted, plain.Dec())
	}
	if err := e.state.WishOwnerIndexRemove(token.Owner, plain); err != nil {
		return AckNone, err
	}
	if err := e.state.WishTokenDelete(plain); err != nil {
		return AckNone, err
	}
	e.emit(events.Transfer{From: token.Owner, To: ethcommon.Address{}, TokenID: plain})
	return AckBurn, nil
}

// Complete transfers the token to the fulfiller and freezes it. A completed
// token can never be burned or have its eligibility flags changed.
func (e *Engine) Complete(caller, fulfiller ethcommon.Address, id *uint256.Int) (Ack, error) {
	if e == nil || e.state == nil {
		return AckNone, ErrNilState
	}
	if err := e.authorize(caller); err != nil {
		return AckNone, err
	}
	plain, _ := Resolve(id)
	token, err := e.loadToken(plain)
	if err != nil {
		return AckNone, err
	}
	if fulfiller == (ethcommon.Address{}) || fulfiller == token.Owner {
		return AckNone, fmt.Errorf("%w: fulfiller %s", ErrInvalidAddress, fulfiller.Hex())
	}
	if token.Completed {
		return AckNone, fmt.Errorf("%w: id %s", ErrAlreadyCompleted, plain.Dec())
	}
	previousOwner := token.Owner
	token.Owner = fulfiller
	token.Completed = true
	if err := e.state.WishOwnerIndexRemove(previousOwner, plain); err != nil {
		return AckNone, err
	}
	if err := e.state.WishOwnerIndexAdd(fulfiller, plain); err != nil {
		return AckNone, err
	}
	if err := e.storeToken(token); err != nil {
		return AckNone, err
	}
	e.emit(events.Transfer{From: previousOwner, To: fulfiller, TokenID: plain})
	e.emit(events.Completed{TokenID: plain, Fulfiller: fulfiller})
	return AckComplete, nil
}

// SetTransferable flips the transfer-eligibility flag. Toggling to the
// current value fails so callers observe stale writes.
func (e *Engine) SetTransferable(caller ethcommon.Address, id *uint256.Int, status bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	plain, _ := Resolve(id)
	token, err := e.loadToken(plain)
	if err != nil {
		return err
	}
	if token.Completed {
		return fmt.Errorf("%w: id %s", ErrAlreadyCompleted, plain.Dec())
	}
	if token.Transferable == status {
		return fmt.Errorf("%w: id %s already %t", ErrSetTransferable, plain.Dec(), status)
	}
	token.Transferable = status
	if err := e.storeToken(token); err != nil {
		return err
	}
	e.emit(events.SetTransferable{TokenID: plain, Status: status})
	return nil
}

// SetCompleted flips the completion flag without an ownership change. Used by
// the registry owner for manual corrections; same-value toggles fail.
func (e *Engine) SetCompleted(caller ethcommon.Address, id *uint256.Int, status bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.authorize(caller); err != nil {
		return err
	}
	plain, _ := Resolve(id)
	token, err := e.loadToken(plain)
	if err != nil {
		return err
	}
	if token.Completed == status {
		return fmt.Errorf("%w: id %s already %t", ErrSetCompleted, plain.Dec(), status)
	}
	token.Completed = status
	if err := e.storeToken(token); err != nil {
		return err
	}
	e.emit(events.SetCompleted{TokenID: plain, Status: status})
	return nil
}

func (e *Engine) storeToken(token *Token) error {
	sanitized, err := SanitizeToken(token)
	if err != nil {
		return err
	}
	return e.state.WishTokenPut(sanitized)
}

// OwnerOf resolves the current owner. Unminted composed ids report their
// pseudo-owner as a soft default; unminted plain ids do not exist.
func (e *Engine) OwnerOf(id *uint256.Int) (ethcommon.Address, error) {
	if e == nil || e.state == nil {
		return ethcommon.Address{}, ErrNilState
	}
	plain, pseudoOwner := Resolve(id)
	token, ok, err := e.state.WishTokenGet(plain)
	if err != nil {
		return ethcommon.Address{}, err
	}
	if !ok {
		if pseudoOwner != (ethcommon.Address{}) {
			return pseudoOwner, nil
		}
		return ethcommon.Address{}, fmt.Errorf("%w: id %s", ErrNonexistentToken, plain.Dec())
	}
	return token.Owner, nil
}

// GetToken returns the stored record for the canonical id.
func (e *Engine) GetToken(id *uint256.Int) (*Token, error) {
	plain, _ := Resolve(id)
	return e.loadToken(plain)
}

// Minted reports whether the canonical id exists.
func (e *Engine) Minted(id *uint256.Int) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	plain, _ := Resolve(id)
	_, ok, err := e.state.WishTokenGet(plain)
	return ok, err
}

// BalanceOf counts the tokens currently owned by the address.
func (e *Engine) BalanceOf(owner ethcommon.Address) (int, error) {
	ids, err := e.ownerTokens(owner)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// BalanceOfSoul counts the owner's non-transferable tokens.
func (e *Engine) BalanceOfSoul(owner ethcommon.Address) (int, error) {
	ids, err := e.TokensOfOwnerFiltered(owner, false)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// TokensOfOwner returns the plain ids currently owned by the address.
func (e *Engine) TokensOfOwner(owner ethcommon.Address) ([]*uint256.Int, error) {
	return e.ownerTokens(owner)
}

// TokensOfOwnerFiltered returns the owner's plain ids whose transferable flag
// equals the supplied status exactly.
func (e *Engine) TokensOfOwnerFiltered(owner ethcommon.Address, transferable bool) ([]*uint256.Int, error) {
	ids, err := e.ownerTokens(owner)
	if err != nil {
		return nil, err
	}
	filtered := make([]*uint256.Int, 0, len(ids))
	for _, id := range ids {
		token, err := e.loadToken(id)
		if err != nil {
			return nil, err
		}
		if token.Transferable == transferable {
			filtered = append(filtered, id)
		}
	}
	return filtered, nil
}

func (e *Engine) ownerTokens(owner ethcommon.Address) ([]*uint256.Int, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.state.WishOwnerTokens(owner)
}

// TokenURI renders the metadata location of a minted token, canonicalized so
// composed aliases and the plain id yield identical results.
func (e *Engine) TokenURI(id *uint256.Int) (string, error) {
	plain, _ := Resolve(id)
	if _, err := e.loadToken(plain); err != nil {
		return "", err
	}
	return e.baseURI + plain.Dec(), nil
}

// TransferFrom is permanently disabled: ownership only changes through mint,
// complete and burn.
func (e *Engine) TransferFrom(ethcommon.Address, ethcommon.Address, *uint256.Int) error {
	return ErrFunctionDisabled
}

// SafeTransferFrom is permanently disabled.
func (e *Engine) SafeTransferFrom(ethcommon.Address, ethcommon.Address, *uint256.Int) error {
	return ErrFunctionDisabled
}

// Approve is permanently disabled.
func (e *Engine) Approve(ethcommon.Address, *uint256.Int) error {
	return ErrFunctionDisabled
}

// SetApprovalForAll is permanently disabled.
func (e *Engine) SetApprovalForAll(ethcommon.Address, bool) error {
	return ErrFunctionDisabled
}

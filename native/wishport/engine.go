// Package wishport implements the escrow ledger orchestrating the wish
// marketplace: authority-signed list/unlist/fulfill/dispute instructions over
// rewards held in custody against claim tokens. Every mutating operation
// follows the same shape: verify, consume the caller nonce, read and zero the
// governing record, compute the splits, mutate the registry, move assets,
// emit an event. Records and nonces are consumed before any external call so
// reentrant calls observe already-spent state.
package wishport

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wishport/core/events"
	"wishport/native/portion"
	"wishport/native/sigauth"
	"wishport/native/wish"
)

var (
	ErrNilState            = errors.New("wishport: state not configured")
	ErrNilRegistry         = errors.New("wishport: claim registry not configured")
	ErrNilCustody          = errors.New("wishport: asset custody not configured")
	ErrNonceAlreadyUsed    = errors.New("wishport: nonce already used")
	ErrInvalidOwner        = errors.New("wishport: caller is not the token owner")
	ErrUnauthorizedAccess  = errors.New("wishport: caller is neither owner nor fulfiller")
	ErrUnauthorizedAccount = errors.New("wishport: caller is not the ledger owner")
	ErrInvalidAddress      = errors.New("wishport: invalid address")
	ErrInconsistentArrays  = errors.New("wishport: inconsistent array lengths")
	ErrAssetNotActivated   = errors.New("wishport: asset not activated")
	ErrRecordNotFound      = errors.New("wishport: no active wish record")
	ErrFailedWishOperation = errors.New("wishport: registry failed to acknowledge operation")
	ErrClaimDisabled       = errors.New("wishport: claiming is disabled")
)

// Operation selectors bound into every signed instruction so a signature for
// one entry point can never authorize another.
const (
	SelectorList          = "wishport.list"
	SelectorUnlist        = "wishport.unlist"
	SelectorFulfill       = "wishport.fulfill"
	SelectorHandleDispute = "wishport.handle_dispute"
)

// ClaimRegistry is the capability interface of the claim-token collaborator.
// Mutating calls return a typed acknowledgment the ledger asserts after every
// invocation.
type ClaimRegistry interface {
	Mint(caller, recipient ethcommon.Address, id *uint256.Int) (wish.Ack, error)
	Burn(caller ethcommon.Address, id *uint256.Int) (wish.Ack, error)
	Complete(caller, fulfiller ethcommon.Address, id *uint256.Int) (wish.Ack, error)
	OwnerOf(id *uint256.Int) (ethcommon.Address, error)
	Minted(id *uint256.Int) (bool, error)
}

// AssetCustody is the capability interface of the custody collaborator.
type AssetCustody interface {
	Pull(from ethcommon.Address, value *big.Int, asset ethcommon.Address, amount *big.Int) (*big.Int, error)
	PushOrCredit(to, asset ethcommon.Address, amount *big.Int) error
	Withdraw(account, recipient, asset ethcommon.Address, amount *big.Int) error
	ClaimableBalance(account, asset ethcommon.Address) (*big.Int, error)
}

type engineState interface {
	WishRecordPut(id *uint256.Int, record *WishRecord) error
	WishRecordGet(id *uint256.Int) (*WishRecord, bool, error)
	NonceConsumed(account ethcommon.Address, nonce *big.Int) (bool, error)
	NonceConsume(account ethcommon.Address, nonce *big.Int) error
	AssetConfigGet(asset ethcommon.Address) (*AssetConfig, bool, error)
	AssetConfigPut(asset ethcommon.Address, config *AssetConfig) error
	DefaultAssetConfigGet() (*AssetConfig, bool, error)
	DefaultAssetConfigPut(config *AssetConfig) error
	SettingsGet() (*Settings, bool, error)
	SettingsPut(*Settings) error
}

// Engine wires the escrow ledger with its collaborators. The engine identity
// is the address under which the ledger acts towards the registry and the
// custody account; the owner is the platform identity receiving fees and
// holding the admin surface.
type Engine struct {
	state    engineState
	registry ClaimRegistry
	custody  AssetCustody
	emitter  events.Emitter
	verifier *sigauth.Verifier
	domain   sigauth.Domain
	identity ethcommon.Address
	owner    ethcommon.Address
	nowFn    func() int64
}

// NewEngine creates a ledger engine with a no-op emitter and wall-clock time.
func NewEngine() *Engine {
	e := &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
	e.verifier = sigauth.NewVerifier(e.now)
	return e
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetRegistry configures the claim-token collaborator.
func (e *Engine) SetRegistry(registry ClaimRegistry) { e.registry = registry }

// SetCustody configures the asset custody collaborator.
func (e *Engine) SetCustody(c AssetCustody) { e.custody = c }

// SetDomain pins the signature domain (chain id + ledger identity).
func (e *Engine) SetDomain(domain sigauth.Domain) {
	e.domain = domain
	e.identity = domain.Contract
}

// SetOwner configures the platform owner: fee recipient, emergency signer and
// admin-surface principal.
func (e *Engine) SetOwner(owner ethcommon.Address) { e.owner = owner }

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

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

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	switch {
	case e == nil || e.state == nil:
		return ErrNilState
	case e.registry == nil:
		return ErrNilRegistry
	case e.custody == nil:
		return ErrNilCustody
	default:
		return nil
	}
}

func (e *Engine) settings() (*Settings, error) {
	settings, ok, err := e.state.SettingsGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Settings{}, nil
	}
	return settings, nil
}

// assetConfig resolves the effective config for an asset, falling back to the
// default config when no per-asset override exists.
func (e *Engine) assetConfig(asset ethcommon.Address) (*AssetConfig, error) {
	config, ok, err := e.state.AssetConfigGet(asset)
	if err != nil {
		return nil, err
	}
	if ok {
		return config, nil
	}
	config, ok, err = e.state.DefaultAssetConfigGet()
	if err != nil {
		return nil, err
	}
	if !ok {
		return &AssetConfig{}, nil
	}
	return config, nil
}

// verifyInstruction enforces the deadline, recovers the instruction signer
// against the authority (owner fallback) and consumes the caller's nonce.
func (e *Engine) verifyInstruction(digest [32]byte, sig []byte, deadline int64, caller ethcommon.Address, nonce *big.Int) error {
	settings, err := e.settings()
	if err != nil {
		return err
	}
	if _, err := e.verifier.Verify(digest, sig, deadline, settings.AuthedSigner, e.owner); err != nil {
		return err
	}
	consumed, err := e.state.NonceConsumed(caller, nonce)
	if err != nil {
		return err
	}
	if consumed {
		return fmt.Errorf("%w: account %s nonce %s", ErrNonceAlreadyUsed, caller.Hex(), nonce)
	}
	return e.state.NonceConsume(caller, nonce)
}

// loadAndZeroRecord reads the governing record and immediately zeroes it, so
// any reentrant call through a collaborator observes already-consumed state.
func (e *Engine) loadAndZeroRecord(plain *uint256.Int) (*WishRecord, error) {
	record, ok, err := e.state.WishRecordGet(plain)
	if err != nil {
		return nil, err
	}
	if !ok || !record.Live() {
		return nil, fmt.Errorf("%w: id %s", ErrRecordNotFound, plain.Dec())
	}
	if err := e.state.WishRecordPut(plain, zeroRecord()); err != nil {
		return nil, err
	}
	return record, nil
}

// List escrows a reward against a freshly minted claim token. The stored
// reward is the measured custody delta, which may undercut the requested
// amount for fee-on-transfer tokens.
func (e *Engine) List(call Call, id *uint256.Int, asset ethcommon.Address, amount *big.Int, nonce *big.Int, deadline int64, sig []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	config, err := e.assetConfig(asset)
	if err != nil {
		return err
	}
	if !config.Activated {
		return fmt.Errorf("%w: asset %s", ErrAssetNotActivated, asset.Hex())
	}
	digest := sigauth.NewMessage(e.domain, SelectorList, call.Caller).
		AddBig(id.ToBig()).
		AddAddress(asset).
		AddBig(amount).
		Seal(nonce, deadline)
	if err := e.verifyInstruction(digest, sig, deadline, call.Caller, nonce); err != nil {
		return err
	}
	plain := wish.PlainID(id)
	if record, ok, err := e.state.WishRecordGet(plain); err != nil {
		return err
	} else if ok && record.Live() {
		return fmt.Errorf("wishport: id %s already listed", plain.Dec())
	}
	// A completed token can never be burned or unlisted, so a mint failure
	// after the pull would strand the escrowed funds. Refuse before taking
	// custody.
	if minted, err := e.registry.Minted(id); err != nil {
		return err
	} else if minted {
		return fmt.Errorf("%w: id %s", wish.ErrAlreadyMinted, plain.Dec())
	}
	actual, err := e.custody.Pull(call.Caller, call.Value, asset, amount)
	if err != nil {
		return err
	}
	if err := e.state.WishRecordPut(plain, &WishRecord{Asset: asset, Amount: actual}); err != nil {
		return err
	}
	ack, err := e.registry.Mint(e.identity, call.Caller, id)
	if err != nil {
		return err
	}
	if ack != wish.AckMint {
		return fmt.Errorf("%w: id %s mint ack %d", ErrFailedWishOperation, plain.Dec(), ack)
	}
	e.emit(events.Listed{TokenID: plain, Creator: call.Caller, Asset: asset, Amount: actual})
	return nil
}

// Unlist burns the caller's claim token and refunds the escrowed reward minus
// the instruction's fee portion.
func (e *Engine) Unlist(call Call, id *uint256.Int, feePortion uint64, nonce *big.Int, deadline int64, sig []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	tokenOwner, err := e.registry.OwnerOf(id)
	if err != nil {
		return err
	}
	if call.Caller != tokenOwner {
		return fmt.Errorf("%w: caller %s, owner %s", ErrInvalidOwner, call.Caller.Hex(), tokenOwner.Hex())
	}
	digest := sigauth.NewMessage(e.domain, SelectorUnlist, call.Caller).
		AddBig(id.ToBig()).
		AddUint64(feePortion).
		Seal(nonce, deadline)
	if err := e.verifyInstruction(digest, sig, deadline, call.Caller, nonce); err != nil {
		return err
	}
	plain := wish.PlainID(id)
	record, err := e.loadAndZeroRecord(plain)
	if err != nil {
		return err
	}
	fee, err := portion.Compute(record.Amount, feePortion)
	if err != nil {
		return err
	}
	refund := new(big.Int).Sub(record.Amount, fee)
	ack, err := e.registry.Burn(e.identity, id)
	if err != nil {
		return err
	}
	if ack != wish.AckBurn {
		return fmt.Errorf("%w: id %s burn ack %d", ErrFailedWishOperation, plain.Dec(), ack)
	}
	if err := e.custody.PushOrCredit(e.owner, record.Asset, fee); err != nil {
		return err
	}
	if err := e.custody.PushOrCredit(call.Caller, record.Asset, refund); err != nil {
		return err
	}
	e.emit(events.Unlisted{TokenID: plain, Creator: call.Caller, Asset: record.Asset, Refund: refund, Fee: fee})
	return nil
}

// Fulfill settles the wish in favour of the fulfiller: the instruction's fee
// portion goes to the platform, the refund portion of the remainder back to
// the creator, and the net to the fulfiller, who becomes the completed
// token's owner.
func (e *Engine) Fulfill(call Call, id *uint256.Int, fulfiller ethcommon.Address, refundPortion, feePortion uint64, nonce *big.Int, deadline int64, sig []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if fulfiller == (ethcommon.Address{}) {
		return fmt.Errorf("%w: zero fulfiller", ErrInvalidAddress)
	}
	tokenOwner, err := e.registry.OwnerOf(id)
	if err != nil {
		return err
	}
	if call.Caller != tokenOwner && call.Caller != fulfiller {
		return fmt.Errorf("%w: caller %s", ErrUnauthorizedAccess, call.Caller.Hex())
	}
	digest := sigauth.NewMessage(e.domain, SelectorFulfill, call.Caller).
		AddBig(id.ToBig()).
		AddAddress(fulfiller).
		AddUint64(refundPortion).
		AddUint64(feePortion).
		Seal(nonce, deadline)
	if err := e.verifyInstruction(digest, sig, deadline, call.Caller, nonce); err != nil {
		return err
	}
	plain := wish.PlainID(id)
	record, err := e.loadAndZeroRecord(plain)
	if err != nil {
		return err
	}
	fee, refund, net, err := portion.Split(record.Amount, feePortion, refundPortion)
	if err != nil {
		return err
	}
	ack, err := e.registry.Complete(e.identity, fulfiller, id)
	if err != nil {
		return err
	}
	if ack != wish.AckComplete {
		return fmt.Errorf("%w: id %s complete ack %d", ErrFailedWishOperation, plain.Dec(), ack)
	}
	if err := e.custody.PushOrCredit(e.owner, record.Asset, fee); err != nil {
		return err
	}
	if err := e.custody.PushOrCredit(tokenOwner, record.Asset, refund); err != nil {
		return err
	}
	if err := e.custody.PushOrCredit(fulfiller, record.Asset, net); err != nil {
		return err
	}
	e.emit(events.Fulfilled{TokenID: plain, Fulfiller: fulfiller, Asset: record.Asset, Net: net, Refund: refund, Fee: fee})
	return nil
}

// HandleDispute settles a disputed wish according to an authority-determined
// reward portion. The dispute-handling fee comes from the asset's config; the
// remainder is split between the fulfiller (rewardPortion) and the creator.
func (e *Engine) HandleDispute(call Call, id *uint256.Int, fulfiller ethcommon.Address, rewardPortion uint64, nonce *big.Int, deadline int64, sig []byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if fulfiller == (ethcommon.Address{}) {
		return fmt.Errorf("%w: zero fulfiller", ErrInvalidAddress)
	}
	tokenOwner, err := e.registry.OwnerOf(id)
	if err != nil {
		return err
	}
	if call.Caller != tokenOwner && call.Caller != fulfiller {
		return fmt.Errorf("%w: caller %s", ErrUnauthorizedAccess, call.Caller.Hex())
	}
	digest := sigauth.NewMessage(e.domain, SelectorHandleDispute, call.Caller).
		AddBig(id.ToBig()).
		AddAddress(fulfiller).
		AddUint64(rewardPortion).
		Seal(nonce, deadline)
	if err := e.verifyInstruction(digest, sig, deadline, call.Caller, nonce); err != nil {
		return err
	}
	plain := wish.PlainID(id)
	record, err := e.loadAndZeroRecord(plain)
	if err != nil {
		return err
	}
	config, err := e.assetConfig(record.Asset)
	if err != nil {
		return err
	}
	fee, err := portion.Compute(record.Amount, config.DisputeHandlingFeePortion)
	if err != nil {
		return err
	}
	remainder := new(big.Int).Sub(record.Amount, fee)
	net, err := portion.Compute(remainder, rewardPortion)
	if err != nil {
		return err
	}
	refund := new(big.Int).Sub(remainder, net)
	ack, err := e.registry.Complete(e.identity, fulfiller, id)
	if err != nil {
		return err
	}
	if ack != wish.AckComplete {
		return fmt.Errorf("%w: id %s complete ack %d", ErrFailedWishOperation, plain.Dec(), ack)
	}
	if err := e.custody.PushOrCredit(e.owner, record.Asset, fee); err != nil {
		return err
	}
	if err := e.custody.PushOrCredit(tokenOwner, record.Asset, refund); err != nil {
		return err
	}
	if err := e.custody.PushOrCredit(fulfiller, record.Asset, net); err != nil {
		return err
	}
	e.emit(events.DisputeHandled{TokenID: plain, Fulfiller: fulfiller, Asset: record.Asset, Net: net, Refund: refund, Fee: fee})
	return nil
}

// Claim withdraws part of the caller's accrued claimable balance to the
// recipient (the caller itself when zero).
func (e *Engine) Claim(call Call, recipient, asset ethcommon.Address, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	settings, err := e.settings()
	if err != nil {
		return err
	}
	if !settings.ClaimAllowed {
		return ErrClaimDisabled
	}
	if recipient == (ethcommon.Address{}) {
		recipient = call.Caller
	}
	if err := e.custody.Withdraw(call.Caller, recipient, asset, amount); err != nil {
		return err
	}
	e.emit(events.Claimed{Recipient: recipient, Asset: asset, Amount: amount})
	return nil
}

// Record returns the live record for the canonical id.
func (e *Engine) Record(id *uint256.Int) (*WishRecord, bool, error) {
	if e == nil || e.state == nil {
		return nil, false, ErrNilState
	}
	return e.state.WishRecordGet(wish.PlainID(id))
}

// AssetConfigFor resolves the effective config for an asset.
func (e *Engine) AssetConfigFor(asset ethcommon.Address) (*AssetConfig, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.assetConfig(asset)
}

// Settings returns the current runtime settings.
func (e *Engine) Settings() (*Settings, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	return e.settings()
}

// NonceConsumed reports whether an account already spent a nonce.
func (e *Engine) NonceConsumed(account ethcommon.Address, nonce *big.Int) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	return e.state.NonceConsumed(account, nonce)
}

func (e *Engine) requireOwner(caller ethcommon.Address) error {
	if caller == (ethcommon.Address{}) || caller != e.owner {
		return fmt.Errorf("%w: caller %s", ErrUnauthorizedAccount, caller.Hex())
	}
	return nil
}

// SetAuthedSigner rotates the designated instruction authority. Owner only.
func (e *Engine) SetAuthedSigner(caller, signer ethcommon.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if signer == (ethcommon.Address{}) {
		return fmt.Errorf("%w: zero signer", ErrInvalidAddress)
	}
	settings, err := e.settings()
	if err != nil {
		return err
	}
	settings.AuthedSigner = signer
	return e.state.SettingsPut(settings)
}

// SetClaimAllowed toggles the global claim gate. Owner only.
func (e *Engine) SetClaimAllowed(caller ethcommon.Address, allowed bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	settings, err := e.settings()
	if err != nil {
		return err
	}
	settings.ClaimAllowed = allowed
	return e.state.SettingsPut(settings)
}

// SetAssetConfig stores a per-asset settlement config. Owner only.
func (e *Engine) SetAssetConfig(caller, asset ethcommon.Address, config *AssetConfig) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	sanitized, err := SanitizeAssetConfig(config)
	if err != nil {
		return err
	}
	return e.state.AssetConfigPut(asset, sanitized)
}

// SetAssetConfigs stores several per-asset configs at once; the two slices
// must pair up element-wise. Owner only.
func (e *Engine) SetAssetConfigs(caller ethcommon.Address, assets []ethcommon.Address, configs []*AssetConfig) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	if len(assets) != len(configs) {
		return fmt.Errorf("%w: %d assets, %d configs", ErrInconsistentArrays, len(assets), len(configs))
	}
	for i, asset := range assets {
		sanitized, err := SanitizeAssetConfig(configs[i])
		if err != nil {
			return err
		}
		if err := e.state.AssetConfigPut(asset, sanitized); err != nil {
			return err
		}
	}
	return nil
}

// SetDefaultAssetConfig stores the fallback settlement config. Owner only.
func (e *Engine) SetDefaultAssetConfig(caller ethcommon.Address, config *AssetConfig) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := e.requireOwner(caller); err != nil {
		return err
	}
	sanitized, err := SanitizeAssetConfig(config)
	if err != nil {
		return err
	}
	return e.state.DefaultAssetConfigPut(sanitized)
}

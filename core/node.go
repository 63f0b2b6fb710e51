package core

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wishport/config"
	"wishport/core/events"
	"wishport/core/state"
	"wishport/native/custody"
	"wishport/native/sigauth"
	"wishport/native/wish"
	"wishport/native/wishport"
	"wishport/observability/metrics"
	"wishport/storage"
)

// eventBufferSize bounds the in-memory tail of emitted events kept for the
// query surface.
const eventBufferSize = 512

// Node wires the escrow ledger, claim-token registry and asset custody over a
// shared state manager. All mutating calls execute sequentially under one
// mutex, so engines never observe concurrent state.
type Node struct {
	mu sync.Mutex

	db       storage.Database
	state    *state.Manager
	ledger   *wishport.Engine
	registry *wish.Engine
	custody  *custody.Engine

	tokens map[ethcommon.Address]custody.Token

	identity ethcommon.Address
	owner    ethcommon.Address

	log     *slog.Logger
	metrics *metrics.WishportMetrics

	events  []events.Event
	pending []events.Payload
	staging bool
}

// NewNode constructs a fully wired node on top of db. Settings and the
// default asset config are seeded from cfg only when state holds none, so
// admin changes survive restarts.
func NewNode(db storage.Database, cfg *config.Config, log *slog.Logger) (*Node, error) {
	if log == nil {
		log = slog.Default()
	}
	n := &Node{
		db:       db,
		state:    state.NewManager(db),
		tokens:   make(map[ethcommon.Address]custody.Token),
		identity: cfg.IdentityAddress(),
		owner:    cfg.OwnerAddress(),
		log:      log,
		metrics:  metrics.Wishport(),
	}

	n.registry = wish.NewEngine()
	n.registry.SetState(n.state)
	n.registry.SetOwner(n.owner)
	n.registry.SetAdmin(n.identity)
	n.registry.SetBaseURI(cfg.BaseURI)
	n.registry.SetEmitter(n)

	n.custody = custody.NewEngine()
	n.custody.SetState(n.state)
	n.custody.SetResolver(n)
	n.custody.SetCustodyAccount(n.identity)

	n.ledger = wishport.NewEngine()
	n.ledger.SetState(n.state)
	n.ledger.SetRegistry(n.registry)
	n.ledger.SetCustody(n.custody)
	n.ledger.SetDomain(sigauth.Domain{
		ChainID:  new(big.Int).SetUint64(cfg.ChainID),
		Contract: n.identity,
	})
	n.ledger.SetOwner(n.owner)
	n.ledger.SetEmitter(n)

	if err := n.seed(cfg); err != nil {
		return nil, err
	}
	log.Info("node ready",
		"chain_id", cfg.ChainID,
		"identity", n.identity.Hex(),
		"owner", n.owner.Hex(),
	)
	return n, nil
}

func (n *Node) seed(cfg *config.Config) error {
	if _, ok, err := n.state.SettingsGet(); err != nil {
		return err
	} else if !ok {
		err := n.state.SettingsPut(&wishport.Settings{
			AuthedSigner: cfg.AuthedSignerAddress(),
			ClaimAllowed: cfg.ClaimAllowed,
		})
		if err != nil {
			return err
		}
	}
	if _, ok, err := n.state.DefaultAssetConfigGet(); err != nil {
		return err
	} else if !ok {
		err := n.state.DefaultAssetConfigPut(&wishport.AssetConfig{
			Activated:                 cfg.DefaultFees.Activated,
			PlatformFeePortion:        cfg.DefaultFees.PlatformFeePortion,
			DisputeHandlingFeePortion: cfg.DefaultFees.DisputeHandlingFeePortion,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RegisterToken makes an external fungible asset reachable for escrow.
func (n *Node) RegisterToken(asset ethcommon.Address, token custody.Token) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.tokens[asset] = token
}

// Token implements custody.TokenResolver over the registered adapters.
func (n *Node) Token(asset ethcommon.Address) (custody.Token, error) {
	token, ok := n.tokens[asset]
	if !ok {
		return nil, fmt.Errorf("core: no token adapter for asset %s", asset.Hex())
	}
	return token, nil
}

// Emit implements events.Emitter. During a staged instruction events are held
// back and delivered only once the instruction commits; otherwise they land in
// the bounded in-memory tail and the metrics registry immediately.
func (n *Node) Emit(payload events.Payload) {
	if n.staging {
		n.pending = append(n.pending, payload)
		return
	}
	n.deliver(payload)
}

func (n *Node) deliver(payload events.Payload) {
	evt := payload.Event()
	if evt == nil {
		return
	}
	n.events = append(n.events, *evt)
	if len(n.events) > eventBufferSize {
		n.events = n.events[len(n.events)-eventBufferSize:]
	}
	n.metrics.ObserveEvent(evt.Type)
	n.log.Info("ledger event", "type", evt.Type)
}

func (n *Node) observe(op string, started time.Time, err error) error {
	n.metrics.ObserveOperation(op, err, started)
	if err != nil {
		n.log.Warn("ledger operation failed", "op", op, "err", err)
	}
	return err
}

// execute runs a mutating engine call inside a state overlay. A nil return
// commits the staged writes and releases the buffered events; any error
// discards both, so a failed instruction leaves no partial state behind --
// in particular the caller's nonce stays spendable for a resubmission.
func (n *Node) execute(op string, fn func() error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	started := time.Now()
	n.state.Begin()
	n.staging = true
	err := fn()
	n.staging = false
	if err == nil {
		err = n.state.Commit()
	}
	if err != nil {
		n.state.Discard()
		n.pending = n.pending[:0]
		return n.observe(op, started, err)
	}
	for _, payload := range n.pending {
		n.deliver(payload)
	}
	n.pending = n.pending[:0]
	return n.observe(op, started, nil)
}

// List escrows a reward and mints the claim token for the caller.
func (n *Node) List(call wishport.Call, id *uint256.Int, asset ethcommon.Address, amount, nonce *big.Int, deadline int64, sig []byte) error {
	return n.execute("list", func() error {
		return n.ledger.List(call, id, asset, amount, nonce, deadline, sig)
	})
}

// Unlist burns the caller's claim token and refunds the escrow.
func (n *Node) Unlist(call wishport.Call, id *uint256.Int, feePortion uint64, nonce *big.Int, deadline int64, sig []byte) error {
	return n.execute("unlist", func() error {
		return n.ledger.Unlist(call, id, feePortion, nonce, deadline, sig)
	})
}

// Fulfill settles the escrow in favour of the fulfiller.
func (n *Node) Fulfill(call wishport.Call, id *uint256.Int, fulfiller ethcommon.Address, refundPortion, feePortion uint64, nonce *big.Int, deadline int64, sig []byte) error {
	return n.execute("fulfill", func() error {
		return n.ledger.Fulfill(call, id, fulfiller, refundPortion, feePortion, nonce, deadline, sig)
	})
}

// HandleDispute settles a disputed escrow by an authority-determined reward
// portion.
func (n *Node) HandleDispute(call wishport.Call, id *uint256.Int, fulfiller ethcommon.Address, rewardPortion uint64, nonce *big.Int, deadline int64, sig []byte) error {
	return n.execute("handle_dispute", func() error {
		return n.ledger.HandleDispute(call, id, fulfiller, rewardPortion, nonce, deadline, sig)
	})
}

// Claim withdraws accrued claimable balance to the recipient.
func (n *Node) Claim(call wishport.Call, recipient, asset ethcommon.Address, amount *big.Int) error {
	return n.execute("claim", func() error {
		return n.ledger.Claim(call, recipient, asset, amount)
	})
}

// SetAuthedSigner rotates the instruction authority.
func (n *Node) SetAuthedSigner(caller, signer ethcommon.Address) error {
	return n.execute("set_authed_signer", func() error {
		return n.ledger.SetAuthedSigner(caller, signer)
	})
}

// SetClaimAllowed toggles the global claim gate.
func (n *Node) SetClaimAllowed(caller ethcommon.Address, allowed bool) error {
	return n.execute("set_claim_allowed", func() error {
		return n.ledger.SetClaimAllowed(caller, allowed)
	})
}

// SetAssetConfig stores a per-asset fee configuration.
func (n *Node) SetAssetConfig(caller, asset ethcommon.Address, cfg *wishport.AssetConfig) error {
	return n.execute("set_asset_config", func() error {
		return n.ledger.SetAssetConfig(caller, asset, cfg)
	})
}

// SetAssetConfigs stores per-asset fee configurations in batch. The overlay
// makes the batch atomic: one bad entry rolls back the whole call.
func (n *Node) SetAssetConfigs(caller ethcommon.Address, assets []ethcommon.Address, cfgs []*wishport.AssetConfig) error {
	return n.execute("set_asset_configs", func() error {
		return n.ledger.SetAssetConfigs(caller, assets, cfgs)
	})
}

// SetDefaultAssetConfig stores the fallback fee configuration.
func (n *Node) SetDefaultAssetConfig(caller ethcommon.Address, cfg *wishport.AssetConfig) error {
	return n.execute("set_default_asset_config", func() error {
		return n.ledger.SetDefaultAssetConfig(caller, cfg)
	})
}

// SetTransferable toggles the transfer flag of a claim token.
func (n *Node) SetTransferable(caller ethcommon.Address, id *uint256.Int, status bool) error {
	return n.execute("set_transferable", func() error {
		return n.registry.SetTransferable(caller, id, status)
	})
}

// SetCompleted toggles the completed flag of a claim token.
func (n *Node) SetCompleted(caller ethcommon.Address, id *uint256.Int, status bool) error {
	return n.execute("set_completed", func() error {
		return n.registry.SetCompleted(caller, id, status)
	})
}

// Record returns the escrow record for a token id.
func (n *Node) Record(id *uint256.Int) (*wishport.WishRecord, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Record(id)
}

// OwnerOf resolves the current owner of a claim token.
func (n *Node) OwnerOf(id *uint256.Int) (ethcommon.Address, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.OwnerOf(id)
}

// GetToken returns the full claim-token record.
func (n *Node) GetToken(id *uint256.Int) (*wish.Token, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.GetToken(id)
}

// BalanceOf counts the claim tokens held by owner.
func (n *Node) BalanceOf(owner ethcommon.Address) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.BalanceOf(owner)
}

// BalanceOfSoul counts the non-transferable claim tokens held by owner.
func (n *Node) BalanceOfSoul(owner ethcommon.Address) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.BalanceOfSoul(owner)
}

// TokensOfOwner enumerates the claim tokens held by owner.
func (n *Node) TokensOfOwner(owner ethcommon.Address) ([]*uint256.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.TokensOfOwner(owner)
}

// TokensOfOwnerFiltered enumerates owner's claim tokens with a given
// transferability flag.
func (n *Node) TokensOfOwnerFiltered(owner ethcommon.Address, onlyTransferable bool) ([]*uint256.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.TokensOfOwnerFiltered(owner, onlyTransferable)
}

// TokenURI returns the metadata URI for a claim token.
func (n *Node) TokenURI(id *uint256.Int) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.registry.TokenURI(id)
}

// ClaimableBalance returns the accrued claimable balance for an account.
func (n *Node) ClaimableBalance(account, asset ethcommon.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.custody.ClaimableBalance(account, asset)
}

// NativeBalance returns an account's native currency balance.
func (n *Node) NativeBalance(account ethcommon.Address) (*big.Int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state.NativeBalance(account)
}

// Settings returns the current ledger settings.
func (n *Node) Settings() (*wishport.Settings, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.Settings()
}

// AssetConfig returns the effective fee configuration for an asset.
func (n *Node) AssetConfig(asset ethcommon.Address) (*wishport.AssetConfig, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ledger.AssetConfigFor(asset)
}

// Events returns a copy of the recent event tail.
func (n *Node) Events() []events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.Event, len(n.events))
	copy(out, n.events)
	return out
}

// State exposes the underlying state manager for genesis funding and tests.
func (n *Node) State() *state.Manager {
	return n.state
}

// Identity returns the ledger's custody identity address.
func (n *Node) Identity() ethcommon.Address { return n.identity }

// Owner returns the platform owner address.
func (n *Node) Owner() ethcommon.Address { return n.owner }

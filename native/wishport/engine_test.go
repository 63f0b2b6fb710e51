package wishport

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"wishport/core/events"
	"wishport/native/custody"
	"wishport/native/portion"
	"wishport/native/sigauth"
	"wishport/native/wish"
)

const testNow int64 = 1_700_000_000

// mockState implements the ledger's state interface in memory.
type mockState struct {
	records       map[string]*WishRecord
	nonces        map[string]bool
	assetConfigs  map[ethcommon.Address]*AssetConfig
	defaultConfig *AssetConfig
	settings      *Settings
}

func newLedgerState() *mockState {
	return &mockState{
		records:      make(map[string]*WishRecord),
		nonces:       make(map[string]bool),
		assetConfigs: make(map[ethcommon.Address]*AssetConfig),
	}
}

func nonceKey(account ethcommon.Address, nonce *big.Int) string {
	return account.Hex() + "/" + nonce.String()
}

func (m *mockState) WishRecordPut(id *uint256.Int, record *WishRecord) error {
	m.records[id.Dec()] = record.Clone()
	return nil
}

func (m *mockState) WishRecordGet(id *uint256.Int) (*WishRecord, bool, error) {
	record, ok := m.records[id.Dec()]
	if !ok {
		return nil, false, nil
	}
	return record.Clone(), true, nil
}

func (m *mockState) NonceConsumed(account ethcommon.Address, nonce *big.Int) (bool, error) {
	return m.nonces[nonceKey(account, nonce)], nil
}

func (m *mockState) NonceConsume(account ethcommon.Address, nonce *big.Int) error {
	key := nonceKey(account, nonce)
	if m.nonces[key] {
		return fmt.Errorf("nonce already consumed")
	}
	m.nonces[key] = true
	return nil
}

func (m *mockState) AssetConfigGet(asset ethcommon.Address) (*AssetConfig, bool, error) {
	config, ok := m.assetConfigs[asset]
	if !ok {
		return nil, false, nil
	}
	return config.Clone(), true, nil
}

func (m *mockState) AssetConfigPut(asset ethcommon.Address, config *AssetConfig) error {
	m.assetConfigs[asset] = config.Clone()
	return nil
}

func (m *mockState) DefaultAssetConfigGet() (*AssetConfig, bool, error) {
	if m.defaultConfig == nil {
		return nil, false, nil
	}
	return m.defaultConfig.Clone(), true, nil
}

func (m *mockState) DefaultAssetConfigPut(config *AssetConfig) error {
	m.defaultConfig = config.Clone()
	return nil
}

func (m *mockState) SettingsGet() (*Settings, bool, error) {
	if m.settings == nil {
		return nil, false, nil
	}
	return m.settings.Clone(), true, nil
}

func (m *mockState) SettingsPut(settings *Settings) error {
	m.settings = settings.Clone()
	return nil
}

// wishState backs the real registry engine.
type wishState struct {
	tokens map[string]*wish.Token
	owners map[ethcommon.Address][]*uint256.Int
}

func newWishState() *wishState {
	return &wishState{
		tokens: make(map[string]*wish.Token),
		owners: make(map[ethcommon.Address][]*uint256.Int),
	}
}

func (m *wishState) WishTokenPut(t *wish.Token) error {
	m.tokens[t.ID.Dec()] = t.Clone()
	return nil
}

func (m *wishState) WishTokenGet(id *uint256.Int) (*wish.Token, bool, error) {
	token, ok := m.tokens[id.Dec()]
	if !ok {
		return nil, false, nil
	}
	return token.Clone(), true, nil
}

func (m *wishState) WishTokenDelete(id *uint256.Int) error {
	delete(m.tokens, id.Dec())
	return nil
}

func (m *wishState) WishOwnerIndexAdd(owner ethcommon.Address, id *uint256.Int) error {
	m.owners[owner] = append(m.owners[owner], new(uint256.Int).Set(id))
	return nil
}

func (m *wishState) WishOwnerIndexRemove(owner ethcommon.Address, id *uint256.Int) error {
	ids := m.owners[owner]
	for i, candidate := range ids {
		if candidate.Eq(id) {
			m.owners[owner] = append(ids[:i], ids[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("id not indexed")
}

func (m *wishState) WishOwnerTokens(owner ethcommon.Address) ([]*uint256.Int, error) {
	ids := make([]*uint256.Int, 0, len(m.owners[owner]))
	for _, id := range m.owners[owner] {
		ids = append(ids, new(uint256.Int).Set(id))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Lt(ids[j]) })
	return ids, nil
}

// custodyState backs the real custody engine.
type custodyState struct {
	native    map[ethcommon.Address]*big.Int
	claimable map[string]*big.Int
}

func newCustodyState() *custodyState {
	return &custodyState{
		native:    make(map[ethcommon.Address]*big.Int),
		claimable: make(map[string]*big.Int),
	}
}

func (m *custodyState) balance(addr ethcommon.Address) *big.Int {
	if b, ok := m.native[addr]; ok {
		return new(big.Int).Set(b)
	}
	return big.NewInt(0)
}

func (m *custodyState) NativeTransfer(from, to ethcommon.Address, amount *big.Int) error {
	fromBalance := m.balance(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("native balance too low")
	}
	m.native[from] = fromBalance.Sub(fromBalance, amount)
	m.native[to] = new(big.Int).Add(m.balance(to), amount)
	return nil
}

func (m *custodyState) ClaimableGet(account, asset ethcommon.Address) (*big.Int, error) {
	if b, ok := m.claimable[account.Hex()+"/"+asset.Hex()]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (m *custodyState) ClaimablePut(account, asset ethcommon.Address, amount *big.Int) error {
	m.claimable[account.Hex()+"/"+asset.Hex()] = new(big.Int).Set(amount)
	return nil
}

// testToken is a minimal well-behaved fungible token, optionally skimming a
// transfer fee on the way in.
type testToken struct {
	custodyAddr ethcommon.Address
	balances    map[ethcommon.Address]*big.Int
	skimBps     int64
}

func newTestToken(custodyAddr ethcommon.Address) *testToken {
	return &testToken{custodyAddr: custodyAddr, balances: make(map[ethcommon.Address]*big.Int)}
}

func (m *testToken) BalanceOf(addr ethcommon.Address) (*big.Int, error) {
	if b, ok := m.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (m *testToken) move(from, to ethcommon.Address, amount *big.Int) (bool, error) {
	fromBalance, _ := m.BalanceOf(from)
	if fromBalance.Cmp(amount) < 0 {
		return false, fmt.Errorf("token balance too low")
	}
	delivered := new(big.Int).Set(amount)
	if m.skimBps > 0 && to == m.custodyAddr {
		skim := new(big.Int).Mul(amount, big.NewInt(m.skimBps))
		skim.Div(skim, big.NewInt(10_000))
		delivered.Sub(delivered, skim)
	}
	m.balances[from] = fromBalance.Sub(fromBalance, amount)
	toBalance, _ := m.BalanceOf(to)
	m.balances[to] = toBalance.Add(toBalance, delivered)
	return true, nil
}

func (m *testToken) Transfer(to ethcommon.Address, amount *big.Int) (bool, error) {
	return m.move(m.custodyAddr, to, amount)
}

func (m *testToken) TransferFrom(from, to ethcommon.Address, amount *big.Int) (bool, error) {
	return m.move(from, to, amount)
}

type testResolver struct {
	tokens map[ethcommon.Address]custody.Token
}

func (m *testResolver) Token(asset ethcommon.Address) (custody.Token, error) {
	token, ok := m.tokens[asset]
	if !ok {
		return nil, fmt.Errorf("unknown asset")
	}
	return token, nil
}

type capturingEmitter struct {
	payloads []events.Payload
}

func (c *capturingEmitter) Emit(payload events.Payload) {
	c.payloads = append(c.payloads, payload)
}

func (c *capturingEmitter) last() events.Payload {
	if len(c.payloads) == 0 {
		return nil
	}
	return c.payloads[len(c.payloads)-1]
}

// harness wires a full ledger with real registry and custody engines.
type harness struct {
	engine       *Engine
	ledgerState  *mockState
	wishState    *wishState
	custodyState *custodyState
	registry     *wish.Engine
	custody      *custody.Engine
	resolver     *testResolver
	emitter      *capturingEmitter

	authorityKey *ecdsa.PrivateKey
	authority    ethcommon.Address
	owner        ethcommon.Address
	identity     ethcommon.Address
	domain       sigauth.Domain
}

func addr(fill byte) ethcommon.Address {
	var a ethcommon.Address
	for i := range a {
		a[i] = fill
	}
	return a
}

var (
	alice     = addr(0xA1)
	bob       = addr(0xB2)
	testAsset = ethcommon.HexToAddress("0x0000000000000000000000000000000000000E20")
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	authorityKey, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	h := &harness{
		ledgerState:  newLedgerState(),
		wishState:    newWishState(),
		custodyState: newCustodyState(),
		emitter:      &capturingEmitter{},
		authorityKey: authorityKey,
		authority:    ethcrypto.PubkeyToAddress(authorityKey.PublicKey),
		owner:        addr(0x0F),
		identity:     addr(0xFE),
	}
	h.domain = sigauth.Domain{ChainID: big.NewInt(31337), Contract: h.identity}

	h.registry = wish.NewEngine()
	h.registry.SetState(h.wishState)
	h.registry.SetOwner(h.owner)
	h.registry.SetAdmin(h.identity)

	h.resolver = &testResolver{tokens: make(map[ethcommon.Address]custody.Token)}
	h.custody = custody.NewEngine()
	h.custody.SetState(h.custodyState)
	h.custody.SetResolver(h.resolver)
	h.custody.SetCustodyAccount(h.identity)

	h.engine = NewEngine()
	h.engine.SetState(h.ledgerState)
	h.engine.SetRegistry(h.registry)
	h.engine.SetCustody(h.custody)
	h.engine.SetDomain(h.domain)
	h.engine.SetOwner(h.owner)
	h.engine.SetNowFunc(func() int64 { return testNow })
	h.engine.SetEmitter(h.emitter)

	h.ledgerState.settings = &Settings{AuthedSigner: h.authority, ClaimAllowed: true}
	h.ledgerState.defaultConfig = &AssetConfig{
		Activated:                 true,
		PlatformFeePortion:        100_000,
		DisputeHandlingFeePortion: 100_000,
	}
	return h
}

func (h *harness) addToken(skimBps int64) *testToken {
	token := newTestToken(h.identity)
	token.skimBps = skimBps
	h.resolver.tokens[testAsset] = token
	return token
}

func (h *harness) sign(t *testing.T, digest [32]byte) []byte {
	t.Helper()
	sig, err := sigauth.Sign(digest, h.authorityKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

func (h *harness) signList(t *testing.T, caller ethcommon.Address, id *uint256.Int, asset ethcommon.Address, amount, nonce *big.Int, deadline int64) []byte {
	digest := sigauth.NewMessage(h.domain, SelectorList, caller).
		AddBig(id.ToBig()).
		AddAddress(asset).
		AddBig(amount).
		Seal(nonce, deadline)
	return h.sign(t, digest)
}

func (h *harness) signUnlist(t *testing.T, caller ethcommon.Address, id *uint256.Int, feePortion uint64, nonce *big.Int, deadline int64) []byte {
	digest := sigauth.NewMessage(h.domain, SelectorUnlist, caller).
		AddBig(id.ToBig()).
		AddUint64(feePortion).
		Seal(nonce, deadline)
	return h.sign(t, digest)
}

func (h *harness) signFulfill(t *testing.T, caller ethcommon.Address, id *uint256.Int, fulfiller ethcommon.Address, refundPortion, feePortion uint64, nonce *big.Int, deadline int64) []byte {
	digest := sigauth.NewMessage(h.domain, SelectorFulfill, caller).
		AddBig(id.ToBig()).
		AddAddress(fulfiller).
		AddUint64(refundPortion).
		AddUint64(feePortion).
		Seal(nonce, deadline)
	return h.sign(t, digest)
}

func (h *harness) signDispute(t *testing.T, caller ethcommon.Address, id *uint256.Int, fulfiller ethcommon.Address, rewardPortion uint64, nonce *big.Int, deadline int64) []byte {
	digest := sigauth.NewMessage(h.domain, SelectorHandleDispute, caller).
		AddBig(id.ToBig()).
		AddAddress(fulfiller).
		AddUint64(rewardPortion).
		Seal(nonce, deadline)
	return h.sign(t, digest)
}

func (h *harness) list(t *testing.T, caller ethcommon.Address, id *uint256.Int, asset ethcommon.Address, amount int64, nonce int64) {
	t.Helper()
	amt := big.NewInt(amount)
	n := big.NewInt(nonce)
	deadline := testNow + 100
	sig := h.signList(t, caller, id, asset, amt, n, deadline)
	value := big.NewInt(0)
	if asset == custody.NativeAsset {
		value = amt
	}
	if err := h.engine.List(Call{Caller: caller, Value: value}, id, asset, amt, n, deadline, sig); err != nil {
		t.Fatalf("list: %v", err)
	}
}

func TestListNativeEscrowsAndMints(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(500)

	h.list(t, alice, uint256.NewInt(1), custody.NativeAsset, 50, 0)

	record, ok, err := h.engine.Record(uint256.NewInt(1))
	if err != nil || !ok {
		t.Fatalf("record: %v ok=%t", err, ok)
	}
	if record.Amount.String() != "50" || record.Asset != custody.NativeAsset {
		t.Fatalf("unexpected record %+v", record)
	}
	tokenOwner, err := h.registry.OwnerOf(uint256.NewInt(1))
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if tokenOwner != alice {
		t.Fatalf("expected alice, got %s", tokenOwner.Hex())
	}
	if h.custodyState.balance(h.identity).String() != "50" {
		t.Fatalf("custody should hold 50")
	}
	evt := h.emitter.last()
	if evt == nil || evt.EventType() != events.TypeWishportListed {
		t.Fatalf("expected listed event, got %v", evt)
	}
}

func TestListInsufficientValue(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(500)
	amt := big.NewInt(50)
	n := big.NewInt(0)
	deadline := testNow + 100
	sig := h.signList(t, alice, uint256.NewInt(1), custody.NativeAsset, amt, n, deadline)

	err := h.engine.List(Call{Caller: alice, Value: big.NewInt(49)}, uint256.NewInt(1), custody.NativeAsset, amt, n, deadline, sig)
	if !errors.Is(err, custody.ErrInsufficientValue) {
		t.Fatalf("expected ErrInsufficientValue, got %v", err)
	}
}

func TestListFeeOnTransferRecordsDelta(t *testing.T) {
	h := newHarness(t)
	token := h.addToken(1_000) // 10% skim
	token.balances[alice] = big.NewInt(1_000)

	h.list(t, alice, uint256.NewInt(2), testAsset, 100, 0)

	record, ok, err := h.engine.Record(uint256.NewInt(2))
	if err != nil || !ok {
		t.Fatalf("record: %v ok=%t", err, ok)
	}
	if record.Amount.String() != "90" {
		t.Fatalf("expected measured delta 90, got %s", record.Amount)
	}
}

func TestListRejectsUnactivatedAsset(t *testing.T) {
	h := newHarness(t)
	h.ledgerState.defaultConfig.Activated = false
	h.addToken(0)
	amt := big.NewInt(10)
	n := big.NewInt(0)
	deadline := testNow + 100
	sig := h.signList(t, alice, uint256.NewInt(3), testAsset, amt, n, deadline)

	err := h.engine.List(Call{Caller: alice}, uint256.NewInt(3), testAsset, amt, n, deadline, sig)
	if !errors.Is(err, ErrAssetNotActivated) {
		t.Fatalf("expected ErrAssetNotActivated, got %v", err)
	}
}

func TestListReplayedNonce(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(500)
	h.list(t, alice, uint256.NewInt(4), custody.NativeAsset, 10, 7)

	amt := big.NewInt(10)
	n := big.NewInt(7)
	deadline := testNow + 100
	sig := h.signList(t, alice, uint256.NewInt(5), custody.NativeAsset, amt, n, deadline)
	err := h.engine.List(Call{Caller: alice, Value: amt}, uint256.NewInt(5), custody.NativeAsset, amt, n, deadline, sig)
	if !errors.Is(err, ErrNonceAlreadyUsed) {
		t.Fatalf("expected ErrNonceAlreadyUsed, got %v", err)
	}
	// A distinct nonce remains independently usable.
	h.list(t, alice, uint256.NewInt(5), custody.NativeAsset, 10, 8)
}

func TestListRejectsForeignSignature(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(500)
	strangerKey, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	amt := big.NewInt(10)
	n := big.NewInt(0)
	deadline := testNow + 100
	digest := sigauth.NewMessage(h.domain, SelectorList, alice).
		AddBig(uint256.NewInt(6).ToBig()).
		AddAddress(custody.NativeAsset).
		AddBig(amt).
		Seal(n, deadline)
	sig, err := sigauth.Sign(digest, strangerKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	listErr := h.engine.List(Call{Caller: alice, Value: amt}, uint256.NewInt(6), custody.NativeAsset, amt, n, deadline, sig)
	if !errors.Is(listErr, sigauth.ErrInvalidSigner) {
		t.Fatalf("expected ErrInvalidSigner, got %v", listErr)
	}
}

func TestListExpiredSignature(t *testing.T) {
	h := newHarness(t)
	amt := big.NewInt(10)
	n := big.NewInt(0)
	deadline := testNow - 1
	sig := h.signList(t, alice, uint256.NewInt(6), custody.NativeAsset, amt, n, deadline)

	err := h.engine.List(Call{Caller: alice, Value: amt}, uint256.NewInt(6), custody.NativeAsset, amt, n, deadline, sig)
	if !errors.Is(err, sigauth.ErrExpiredSignature) {
		t.Fatalf("expected ErrExpiredSignature, got %v", err)
	}
}

func TestListComposedIDKeepsCanonicalRecord(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(500)
	composed := wish.ComposeID(bob, uint256.NewInt(9))

	h.list(t, alice, composed, custody.NativeAsset, 25, 0)

	// The record and the token live under the plain id.
	record, ok, err := h.engine.Record(uint256.NewInt(9))
	if err != nil || !ok {
		t.Fatalf("record: %v ok=%t", err, ok)
	}
	if record.Amount.String() != "25" {
		t.Fatalf("unexpected record amount %s", record.Amount)
	}
	tokenOwner, err := h.registry.OwnerOf(composed)
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if tokenOwner != alice {
		t.Fatalf("expected alice via composed alias, got %s", tokenOwner.Hex())
	}
}

func TestListRefusesMintedIDBeforePull(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(100)
	h.list(t, alice, uint256.NewInt(30), custody.NativeAsset, 50, 0)

	n := big.NewInt(1)
	deadline := testNow + 100
	sig := h.signFulfill(t, alice, uint256.NewInt(30), bob, 0, 0, n, deadline)
	if err := h.engine.Fulfill(Call{Caller: alice}, uint256.NewInt(30), bob, 0, 0, n, deadline, sig); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	// The completed token can never be burned, so escrowing against it again
	// must fail before any funds move.
	amt := big.NewInt(50)
	n2 := big.NewInt(2)
	sig2 := h.signList(t, alice, uint256.NewInt(30), custody.NativeAsset, amt, n2, deadline)
	err := h.engine.List(Call{Caller: alice, Value: amt}, uint256.NewInt(30), custody.NativeAsset, amt, n2, deadline, sig2)
	if !errors.Is(err, wish.ErrAlreadyMinted) {
		t.Fatalf("expected ErrAlreadyMinted, got %v", err)
	}
	if got := h.custodyState.balance(alice).String(); got != "50" {
		t.Fatalf("alice's funds moved on a refused list: %s", got)
	}
	if got := h.custodyState.balance(h.identity).Sign(); got != 0 {
		t.Fatalf("custody took funds on a refused list")
	}
	record, ok, err := h.engine.Record(uint256.NewInt(30))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ok && record.Live() {
		t.Fatalf("refused list left a live record: %+v", record)
	}
}

func TestUnlistRoundTripZeroFee(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(100)
	h.list(t, alice, uint256.NewInt(10), custody.NativeAsset, 100, 0)

	n := big.NewInt(1)
	deadline := testNow + 100
	sig := h.signUnlist(t, alice, uint256.NewInt(10), 0, n, deadline)
	if err := h.engine.Unlist(Call{Caller: alice}, uint256.NewInt(10), 0, n, deadline, sig); err != nil {
		t.Fatalf("unlist: %v", err)
	}

	if h.custodyState.balance(alice).String() != "100" {
		t.Fatalf("expected full refund, alice has %s", h.custodyState.balance(alice))
	}
	if h.custodyState.balance(h.owner).Sign() != 0 {
		t.Fatalf("platform owner should receive nothing")
	}
	record, ok, err := h.engine.Record(uint256.NewInt(10))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !ok || record.Live() {
		t.Fatalf("expected zeroed record, got ok=%t %+v", ok, record)
	}
	if _, err := h.registry.OwnerOf(uint256.NewInt(10)); !errors.Is(err, wish.ErrNonexistentToken) {
		t.Fatalf("expected burned token, got %v", err)
	}
}

func TestUnlistTenPercentFee(t *testing.T) {
	h := newHarness(t)
	token := h.addToken(0)
	token.balances[alice] = big.NewInt(100)
	h.list(t, alice, uint256.NewInt(11), testAsset, 100, 0)

	n := big.NewInt(1)
	deadline := testNow + 100
	sig := h.signUnlist(t, alice, uint256.NewInt(11), 100_000, n, deadline)
	if err := h.engine.Unlist(Call{Caller: alice}, uint256.NewInt(11), 100_000, n, deadline, sig); err != nil {
		t.Fatalf("unlist: %v", err)
	}

	aliceBalance, _ := token.BalanceOf(alice)
	ownerBalance, _ := token.BalanceOf(h.owner)
	if aliceBalance.String() != "90" || ownerBalance.String() != "10" {
		t.Fatalf("expected 90/10 split, got %s/%s", aliceBalance, ownerBalance)
	}
	evt := h.emitter.last()
	if evt.EventType() != events.TypeWishportUnlisted {
		t.Fatalf("expected unlisted event, got %s", evt.EventType())
	}
	attrs := evt.Event().Attributes
	if attrs["refund"] != "90" || attrs["fee"] != "10" {
		t.Fatalf("unexpected event attributes %v", attrs)
	}
}

func TestUnlistRejectsNonOwner(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(100)
	h.list(t, alice, uint256.NewInt(12), custody.NativeAsset, 100, 0)

	n := big.NewInt(0)
	deadline := testNow + 100
	sig := h.signUnlist(t, bob, uint256.NewInt(12), 0, n, deadline)
	err := h.engine.Unlist(Call{Caller: bob}, uint256.NewInt(12), 0, n, deadline, sig)
	if !errors.Is(err, ErrInvalidOwner) {
		t.Fatalf("expected ErrInvalidOwner, got %v", err)
	}
}

func TestFulfillScenario(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(50)
	h.list(t, alice, uint256.NewInt(13), custody.NativeAsset, 50, 0)

	n := big.NewInt(1)
	deadline := testNow + 100
	sig := h.signFulfill(t, alice, uint256.NewInt(13), bob, 200_000, 100_000, n, deadline)
	if err := h.engine.Fulfill(Call{Caller: alice}, uint256.NewInt(13), bob, 200_000, 100_000, n, deadline, sig); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	// fee = 5, remainder = 45, refund = 9, net = 36
	if got := h.custodyState.balance(h.owner).String(); got != "5" {
		t.Fatalf("expected platform fee 5, got %s", got)
	}
	if got := h.custodyState.balance(alice).String(); got != "9" {
		t.Fatalf("expected creator refund 9, got %s", got)
	}
	if got := h.custodyState.balance(bob).String(); got != "36" {
		t.Fatalf("expected fulfiller net 36, got %s", got)
	}
	tokenOwner, err := h.registry.OwnerOf(uint256.NewInt(13))
	if err != nil {
		t.Fatalf("ownerOf: %v", err)
	}
	if tokenOwner != bob {
		t.Fatalf("expected bob as new owner, got %s", tokenOwner.Hex())
	}
	token, err := h.registry.GetToken(uint256.NewInt(13))
	if err != nil {
		t.Fatalf("getToken: %v", err)
	}
	if !token.Completed {
		t.Fatalf("expected completed token")
	}

	// The record is zeroed, so settling again fails.
	n2 := big.NewInt(2)
	sig2 := h.signFulfill(t, bob, uint256.NewInt(13), alice, 0, 0, n2, deadline)
	err = h.engine.Fulfill(Call{Caller: bob}, uint256.NewInt(13), alice, 0, 0, n2, deadline, sig2)
	if !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestFulfillCallerMustBeOwnerOrFulfiller(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(50)
	h.list(t, alice, uint256.NewInt(14), custody.NativeAsset, 50, 0)

	stranger := addr(0xDD)
	n := big.NewInt(0)
	deadline := testNow + 100
	sig := h.signFulfill(t, stranger, uint256.NewInt(14), bob, 0, 0, n, deadline)
	err := h.engine.Fulfill(Call{Caller: stranger}, uint256.NewInt(14), bob, 0, 0, n, deadline, sig)
	if !errors.Is(err, ErrUnauthorizedAccess) {
		t.Fatalf("expected ErrUnauthorizedAccess, got %v", err)
	}

	// The named fulfiller may drive the settlement itself.
	sigFulfiller := h.signFulfill(t, bob, uint256.NewInt(14), bob, 0, 0, n, deadline)
	if err := h.engine.Fulfill(Call{Caller: bob}, uint256.NewInt(14), bob, 0, 0, n, deadline, sigFulfiller); err != nil {
		t.Fatalf("fulfill by fulfiller: %v", err)
	}
}

func TestFulfillZeroFulfiller(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[alice] = big.NewInt(50)
	h.list(t, alice, uint256.NewInt(15), custody.NativeAsset, 50, 0)

	n := big.NewInt(1)
	deadline := testNow + 100
	sig := h.signFulfill(t, alice, uint256.NewInt(15), ethcommon.Address{}, 0, 0, n, deadline)
	err := h.engine.Fulfill(Call{Caller: alice}, uint256.NewInt(15), ethcommon.Address{}, 0, 0, n, deadline, sig)
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestHandleDisputeSplitsRemainder(t *testing.T) {
	h := newHarness(t)
	token := h.addToken(0)
	token.balances[alice] = big.NewInt(100)
	h.list(t, alice, uint256.NewInt(16), testAsset, 100, 0)

	n := big.NewInt(1)
	deadline := testNow + 100
	sig := h.signDispute(t, alice, uint256.NewInt(16), bob, 500_000, n, deadline)
	if err := h.engine.HandleDispute(Call{Caller: alice}, uint256.NewInt(16), bob, 500_000, n, deadline, sig); err != nil {
		t.Fatalf("handleDispute: %v", err)
	}

	// dispute fee = 10 (config), remainder = 90, net = 45, refund = 45
	ownerBalance, _ := token.BalanceOf(h.owner)
	aliceBalance, _ := token.BalanceOf(alice)
	bobBalance, _ := token.BalanceOf(bob)
	if ownerBalance.String() != "10" || aliceBalance.String() != "45" || bobBalance.String() != "45" {
		t.Fatalf("expected 10/45/45, got %s/%s/%s", ownerBalance, aliceBalance, bobBalance)
	}
	tokenOwner, _ := h.registry.OwnerOf(uint256.NewInt(16))
	if tokenOwner != bob {
		t.Fatalf("expected completion to bob, got %s", tokenOwner.Hex())
	}
	if h.emitter.last().EventType() != events.TypeWishportDisputeHandled {
		t.Fatalf("expected dispute event")
	}
}

// brokenRegistry acknowledges nothing, simulating a non-conforming registry.
type brokenRegistry struct {
	owner ethcommon.Address
}

func (b *brokenRegistry) Mint(ethcommon.Address, ethcommon.Address, *uint256.Int) (wish.Ack, error) {
	return wish.AckNone, nil
}

func (b *brokenRegistry) Burn(ethcommon.Address, *uint256.Int) (wish.Ack, error) {
	return wish.AckNone, nil
}

func (b *brokenRegistry) Complete(ethcommon.Address, ethcommon.Address, *uint256.Int) (wish.Ack, error) {
	return wish.AckNone, nil
}

func (b *brokenRegistry) OwnerOf(*uint256.Int) (ethcommon.Address, error) {
	return b.owner, nil
}

func (b *brokenRegistry) Minted(*uint256.Int) (bool, error) {
	return false, nil
}

func TestRegistryAckMismatchAborts(t *testing.T) {
	h := newHarness(t)
	h.engine.SetRegistry(&brokenRegistry{owner: alice})
	h.custodyState.native[alice] = big.NewInt(50)

	amt := big.NewInt(50)
	n := big.NewInt(0)
	deadline := testNow + 100
	sig := h.signList(t, alice, uint256.NewInt(17), custody.NativeAsset, amt, n, deadline)
	err := h.engine.List(Call{Caller: alice, Value: amt}, uint256.NewInt(17), custody.NativeAsset, amt, n, deadline, sig)
	if !errors.Is(err, ErrFailedWishOperation) {
		t.Fatalf("expected ErrFailedWishOperation, got %v", err)
	}
}

func TestClaimLifecycle(t *testing.T) {
	h := newHarness(t)
	h.custodyState.native[h.identity] = big.NewInt(100)
	if err := h.custody.Credit(bob, custody.NativeAsset, big.NewInt(80)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	// Disabled gate rejects the claim outright.
	h.ledgerState.settings.ClaimAllowed = false
	err := h.engine.Claim(Call{Caller: bob}, ethcommon.Address{}, custody.NativeAsset, big.NewInt(30))
	if !errors.Is(err, ErrClaimDisabled) {
		t.Fatalf("expected ErrClaimDisabled, got %v", err)
	}

	if err := h.engine.SetClaimAllowed(h.owner, true); err != nil {
		t.Fatalf("setClaimAllowed: %v", err)
	}
	if err := h.engine.Claim(Call{Caller: bob}, ethcommon.Address{}, custody.NativeAsset, big.NewInt(30)); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if h.custodyState.balance(bob).String() != "30" {
		t.Fatalf("expected bob to hold 30")
	}
	balance, _ := h.custody.ClaimableBalance(bob, custody.NativeAsset)
	if balance.String() != "50" {
		t.Fatalf("expected 50 left, got %s", balance)
	}

	err = h.engine.Claim(Call{Caller: bob}, ethcommon.Address{}, custody.NativeAsset, big.NewInt(51))
	if !errors.Is(err, custody.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
}

func TestAdminSurface(t *testing.T) {
	h := newHarness(t)

	if err := h.engine.SetAuthedSigner(alice, bob); !errors.Is(err, ErrUnauthorizedAccount) {
		t.Fatalf("expected ErrUnauthorizedAccount, got %v", err)
	}
	if err := h.engine.SetAuthedSigner(h.owner, ethcommon.Address{}); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if err := h.engine.SetAuthedSigner(h.owner, bob); err != nil {
		t.Fatalf("setAuthedSigner: %v", err)
	}
	settings, err := h.engine.Settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.AuthedSigner != bob {
		t.Fatalf("expected rotated signer")
	}

	if err := h.engine.SetAssetConfigs(h.owner, []ethcommon.Address{testAsset}, nil); !errors.Is(err, ErrInconsistentArrays) {
		t.Fatalf("expected ErrInconsistentArrays, got %v", err)
	}
	overflow := &AssetConfig{Activated: true, PlatformFeePortion: portion.BasePortion + 1}
	if err := h.engine.SetAssetConfig(h.owner, testAsset, overflow); !errors.Is(err, portion.ErrInvalidPercentile) {
		t.Fatalf("expected ErrInvalidPercentile, got %v", err)
	}
	valid := &AssetConfig{Activated: true, PlatformFeePortion: 50_000, DisputeHandlingFeePortion: 25_000}
	if err := h.engine.SetAssetConfig(h.owner, testAsset, valid); err != nil {
		t.Fatalf("setAssetConfig: %v", err)
	}
	resolved, err := h.engine.AssetConfigFor(testAsset)
	if err != nil {
		t.Fatalf("assetConfigFor: %v", err)
	}
	if resolved.PlatformFeePortion != 50_000 {
		t.Fatalf("expected override to win, got %+v", resolved)
	}
}

func TestOwnerFallbackSignsInstructions(t *testing.T) {
	h := newHarness(t)
	ownerKey, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	h.engine.SetOwner(ethcrypto.PubkeyToAddress(ownerKey.PublicKey))
	h.custodyState.native[alice] = big.NewInt(50)

	amt := big.NewInt(50)
	n := big.NewInt(0)
	deadline := testNow + 100
	digest := sigauth.NewMessage(h.domain, SelectorList, alice).
		AddBig(uint256.NewInt(18).ToBig()).
		AddAddress(custody.NativeAsset).
		AddBig(amt).
		Seal(n, deadline)
	sig, err := sigauth.Sign(digest, ownerKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if err := h.engine.List(Call{Caller: alice, Value: amt}, uint256.NewInt(18), custody.NativeAsset, amt, n, deadline, sig); err != nil {
		t.Fatalf("owner-signed list: %v", err)
	}
}

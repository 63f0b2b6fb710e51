package state

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wishport/native/wishport"
)

func wishRecordKey(id *uint256.Int) []byte {
	raw := id.Bytes32()
	return storageKey(wishRecordPrefix, raw[:])
}

func nonceStorageKey(account ethcommon.Address, nonce *big.Int) []byte {
	suffix := make([]byte, 0, len(account)+len(nonce.Bytes()))
	suffix = append(suffix, account.Bytes()...)
	suffix = append(suffix, nonce.Bytes()...)
	return storageKey(noncePrefix, suffix)
}

func assetConfigKey(asset ethcommon.Address) []byte {
	return storageKey(assetConfigPrefix, asset.Bytes())
}

type storedWishRecord struct {
	Asset  ethcommon.Address
	Amount *big.Int
}

type storedAssetConfig struct {
	Activated                 bool
	PlatformFeePortion        uint64
	DisputeHandlingFeePortion uint64
}

type storedSettings struct {
	AuthedSigner ethcommon.Address
	ClaimAllowed bool
}

// WishRecordPut stores the escrow record governing a claim token.
func (m *Manager) WishRecordPut(id *uint256.Int, record *wishport.WishRecord) error {
	amount := big.NewInt(0)
	if record.Amount != nil {
		amount = new(big.Int).Set(record.Amount)
	}
	return m.kvPut(wishRecordKey(id), &storedWishRecord{Asset: record.Asset, Amount: amount})
}

// WishRecordGet loads the escrow record for a canonical id.
func (m *Manager) WishRecordGet(id *uint256.Int) (*wishport.WishRecord, bool, error) {
	stored := new(storedWishRecord)
	ok, err := m.kvGet(wishRecordKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	record := &wishport.WishRecord{Asset: stored.Asset, Amount: big.NewInt(0)}
	if stored.Amount != nil {
		record.Amount = new(big.Int).Set(stored.Amount)
	}
	return record, true, nil
}

// NonceConsumed reports whether the account has already spent the nonce.
func (m *Manager) NonceConsumed(account ethcommon.Address, nonce *big.Int) (bool, error) {
	return m.kvGet(nonceStorageKey(account, nonce), nil)
}

// NonceConsume marks the nonce as spent for the account.
func (m *Manager) NonceConsume(account ethcommon.Address, nonce *big.Int) error {
	return m.kvPut(nonceStorageKey(account, nonce), true)
}

// AssetConfigGet loads the per-asset fee configuration.
func (m *Manager) AssetConfigGet(asset ethcommon.Address) (*wishport.AssetConfig, bool, error) {
	stored := new(storedAssetConfig)
	ok, err := m.kvGet(assetConfigKey(asset), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &wishport.AssetConfig{
		Activated:                 stored.Activated,
		PlatformFeePortion:        stored.PlatformFeePortion,
		DisputeHandlingFeePortion: stored.DisputeHandlingFeePortion,
	}, true, nil
}

// AssetConfigPut stores the per-asset fee configuration.
func (m *Manager) AssetConfigPut(asset ethcommon.Address, config *wishport.AssetConfig) error {
	return m.kvPut(assetConfigKey(asset), &storedAssetConfig{
		Activated:                 config.Activated,
		PlatformFeePortion:        config.PlatformFeePortion,
		DisputeHandlingFeePortion: config.DisputeHandlingFeePortion,
	})
}

// DefaultAssetConfigGet loads the fallback fee configuration.
func (m *Manager) DefaultAssetConfigGet() (*wishport.AssetConfig, bool, error) {
	stored := new(storedAssetConfig)
	ok, err := m.kvGet(storageKey(defaultConfigKey, nil), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &wishport.AssetConfig{
		Activated:                 stored.Activated,
		PlatformFeePortion:        stored.PlatformFeePortion,
		DisputeHandlingFeePortion: stored.DisputeHandlingFeePortion,
	}, true, nil
}

// DefaultAssetConfigPut stores the fallback fee configuration.
func (m *Manager) DefaultAssetConfigPut(config *wishport.AssetConfig) error {
	return m.kvPut(storageKey(defaultConfigKey, nil), &storedAssetConfig{
		Activated:                 config.Activated,
		PlatformFeePortion:        config.PlatformFeePortion,
		DisputeHandlingFeePortion: config.DisputeHandlingFeePortion,
	})
}

// SettingsGet loads the ledger's authority settings.
func (m *Manager) SettingsGet() (*wishport.Settings, bool, error) {
	stored := new(storedSettings)
	ok, err := m.kvGet(storageKey(settingsKey, nil), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &wishport.Settings{AuthedSigner: stored.AuthedSigner, ClaimAllowed: stored.ClaimAllowed}, true, nil
}

// SettingsPut stores the ledger's authority settings.
func (m *Manager) SettingsPut(settings *wishport.Settings) error {
	return m.kvPut(storageKey(settingsKey, nil), &storedSettings{
		AuthedSigner: settings.AuthedSigner,
		ClaimAllowed: settings.ClaimAllowed,
	})
}

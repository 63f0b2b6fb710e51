package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"wishport/storage"
)

// Manager persists ledger, registry and custody state in a key/value backend.
// Keys are hashed with a domain prefix so unrelated record families cannot
// collide; values are RLP encoded.
//
// Between Begin and Commit writes are staged in an in-memory overlay that
// reads consult first, so a whole instruction either lands in the backend or
// leaves no trace when discarded.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a write overlay. Subsequent puts stay in memory until Commit.
func (m *Manager) Begin() {
	m.overlay = make(map[string][]byte)
}

// Commit flushes the overlay to the backend and closes it. Without an open
// overlay it is a no-op.
func (m *Manager) Commit() error {
	for key, value := range m.overlay {
		if err := m.db.Put([]byte(key), value); err != nil {
			return err
		}
	}
	m.overlay = nil
	return nil
}

// Discard drops the overlay without writing anything.
func (m *Manager) Discard() {
	m.overlay = nil
}

var (
	wishRecordPrefix    = []byte("wishport/record/")
	noncePrefix         = []byte("wishport/nonce/")
	assetConfigPrefix   = []byte("wishport/asset-config/")
	defaultConfigKey    = []byte("wishport/asset-config/default")
	settingsKey         = []byte("wishport/settings")
	wishTokenPrefix     = []byte("wish/token/")
	wishOwnerPrefix     = []byte("wish/owner/")
	nativeBalancePrefix = []byte("custody/native/")
	claimablePrefix     = []byte("custody/claimable/")
)

func storageKey(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) kvPut(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}
	if m.overlay != nil {
		m.overlay[string(key)] = encoded
		return nil
	}
	return m.db.Put(key, encoded)
}

// kvGet decodes the value under key into out. The boolean reports whether the
// key existed. Staged overlay writes shadow the backend.
func (m *Manager) kvGet(key []byte, out interface{}) (bool, error) {
	data, staged := m.overlay[string(key)]
	if !staged {
		var err error
		data, err = m.db.Get(key)
		if err != nil {
			if errors.Is(err, storage.ErrKeyNotFound) {
				return false, nil
			}
			return false, err
		}
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode: %w", err)
	}
	return true, nil
}

func (m *Manager) kvDelete(key []byte) error {
	// The backend has no delete; an empty value reads back as absent.
	if m.overlay != nil {
		m.overlay[string(key)] = nil
		return nil
	}
	return m.db.Put(key, nil)
}

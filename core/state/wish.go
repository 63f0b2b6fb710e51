package state

import (
	"bytes"
	"sort"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wishport/native/wish"
)

func wishTokenKey(id *uint256.Int) []byte {
	raw := id.Bytes32()
	return storageKey(wishTokenPrefix, raw[:])
}

func wishOwnerKey(owner ethcommon.Address) []byte {
	return storageKey(wishOwnerPrefix, owner.Bytes())
}

type storedWishToken struct {
	ID           [32]byte
	Owner        ethcommon.Address
	Transferable bool
	Completed    bool
}

func newStoredWishToken(t *wish.Token) *storedWishToken {
	if t == nil {
		return nil
	}
	return &storedWishToken{
		ID:           t.ID.Bytes32(),
		Owner:        t.Owner,
		Transferable: t.Transferable,
		Completed:    t.Completed,
	}
}

func (s *storedWishToken) toToken() *wish.Token {
	return &wish.Token{
		ID:           new(uint256.Int).SetBytes32(s.ID[:]),
		Owner:        s.Owner,
		Transferable: s.Transferable,
		Completed:    s.Completed,
	}
}

// WishTokenPut stores a claim token keyed by its canonical id.
func (m *Manager) WishTokenPut(t *wish.Token) error {
	sanitized, err := wish.SanitizeToken(t)
	if err != nil {
		return err
	}
	return m.kvPut(wishTokenKey(sanitized.ID), newStoredWishToken(sanitized))
}

// WishTokenGet loads a claim token by canonical id.
func (m *Manager) WishTokenGet(id *uint256.Int) (*wish.Token, bool, error) {
	stored := new(storedWishToken)
	ok, err := m.kvGet(wishTokenKey(id), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return stored.toToken(), true, nil
}

// WishTokenDelete removes a claim token from state.
func (m *Manager) WishTokenDelete(id *uint256.Int) error {
	return m.kvDelete(wishTokenKey(id))
}

func (m *Manager) ownerIndex(owner ethcommon.Address) ([][32]byte, error) {
	var ids [][32]byte
	if _, err := m.kvGet(wishOwnerKey(owner), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (m *Manager) writeOwnerIndex(owner ethcommon.Address, ids [][32]byte) error {
	if len(ids) == 0 {
		return m.kvDelete(wishOwnerKey(owner))
	}
	return m.kvPut(wishOwnerKey(owner), ids)
}

// WishOwnerIndexAdd records id under the owner's enumeration index. Duplicate
// entries are ignored to keep the index deterministic.
func (m *Manager) WishOwnerIndexAdd(owner ethcommon.Address, id *uint256.Int) error {
	ids, err := m.ownerIndex(owner)
	if err != nil {
		return err
	}
	raw := id.Bytes32()
	for _, existing := range ids {
		if bytes.Equal(existing[:], raw[:]) {
			return nil
		}
	}
	ids = append(ids, raw)
	return m.writeOwnerIndex(owner, ids)
}

// WishOwnerIndexRemove drops id from the owner's enumeration index.
func (m *Manager) WishOwnerIndexRemove(owner ethcommon.Address, id *uint256.Int) error {
	ids, err := m.ownerIndex(owner)
	if err != nil {
		return err
	}
	raw := id.Bytes32()
	for i, existing := range ids {
		if bytes.Equal(existing[:], raw[:]) {
			return m.writeOwnerIndex(owner, append(ids[:i], ids[i+1:]...))
		}
	}
	return nil
}

// WishOwnerTokens lists the canonical ids held by owner in ascending order.
func (m *Manager) WishOwnerTokens(owner ethcommon.Address) ([]*uint256.Int, error) {
	raw, err := m.ownerIndex(owner)
	if err != nil {
		return nil, err
	}
	ids := make([]*uint256.Int, 0, len(raw))
	for _, entry := range raw {
		ids = append(ids, new(uint256.Int).SetBytes32(entry[:]))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Lt(ids[j]) })
	return ids, nil
}

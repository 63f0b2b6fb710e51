// Package sigauth reconstructs and verifies the canonical signed instructions
// that authorize every mutating wishport operation. A message binds the chain
// id, the ledger identity, an operation selector, the logical caller, the
// operation fields, the caller nonce and a deadline, so a signature for one
// instruction can never authorize another.
package sigauth

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrExpiredSignature = errors.New("sigauth: expired signature")
	ErrInvalidSignature = errors.New("sigauth: invalid signature")
	ErrInvalidSigner    = errors.New("sigauth: invalid signer")
)

// signedMessagePrefix is the EIP-191 personal-message prefix applied to the
// 32-byte instruction digest prior to recovery.
const signedMessagePrefix = "\x19Ethereum Signed Message:\n32"

// Domain pins an instruction to a specific chain and ledger deployment.
type Domain struct {
	ChainID  *big.Int
	Contract ethcommon.Address
}

// Message accumulates the packed, order-fixed fields of one instruction.
type Message struct {
	buf bytes.Buffer
}

// NewMessage starts a canonical message for the given operation. The selector
// string discriminates operations so signatures cannot be replayed across
// entry points.
func NewMessage(domain Domain, selector string, caller ethcommon.Address) *Message {
	m := &Message{}
	m.buf.WriteString(selector)
	m.AddBig(domain.ChainID)
	m.AddAddress(domain.Contract)
	m.AddAddress(caller)
	return m
}

// AddAddress appends a 20-byte address field.
func (m *Message) AddAddress(addr ethcommon.Address) *Message {
	m.buf.Write(addr.Bytes())
	return m
}

// AddBig appends a uint256 field as 32 big-endian bytes.
func (m *Message) AddBig(v *big.Int) *Message {
	if v == nil {
		v = big.NewInt(0)
	}
	m.buf.Write(ethcommon.LeftPadBytes(v.Bytes(), 32))
	return m
}

// AddUint64 appends a uint64 widened to a uint256 field.
func (m *Message) AddUint64(v uint64) *Message {
	return m.AddBig(new(big.Int).SetUint64(v))
}

// Seal appends the caller nonce and deadline and returns the keccak256 digest
// of the packed message.
func (m *Message) Seal(nonce *big.Int, deadline int64) [32]byte {
	m.AddBig(nonce)
	m.AddBig(big.NewInt(deadline))
	return ethcrypto.Keccak256Hash(m.buf.Bytes())
}

// prefixedDigest wraps an instruction digest in the personal-message envelope.
func prefixedDigest(digest [32]byte) []byte {
	return ethcrypto.Keccak256([]byte(signedMessagePrefix), digest[:])
}

// RecoverSigner returns the address that produced the signature over the
// prefixed digest. Signatures must be 65 bytes; the recovery id is accepted
// in either the 0/1 or the 27/28 convention. Non-canonical signatures are
// rejected by the underlying secp256k1 recovery.
func RecoverSigner(digest [32]byte, sig []byte) (ethcommon.Address, error) {
	if len(sig) != ethcrypto.SignatureLength {
		return ethcommon.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, ethcrypto.SignatureLength, len(sig))
	}
	normalized := make([]byte, ethcrypto.SignatureLength)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	pubKey, err := ethcrypto.SigToPub(prefixedDigest(digest), normalized)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return ethcrypto.PubkeyToAddress(*pubKey), nil
}

// Sign produces a 65-byte personal-message signature over an instruction
// digest. Used by the off-chain authority tooling and by tests.
func Sign(digest [32]byte, key *ecdsa.PrivateKey) ([]byte, error) {
	return ethcrypto.Sign(prefixedDigest(digest), key)
}

// Verifier checks sealed instructions against a deadline and a set of
// eligible signing authorities.
type Verifier struct {
	now func() int64
}

// NewVerifier constructs a verifier around the supplied time source.
func NewVerifier(now func() int64) *Verifier {
	return &Verifier{now: now}
}

// Verify enforces the deadline, recovers the signer of the digest and checks
// it against the allowed authorities. The deadline is checked before any
// recovery work. The recovered address is returned on success.
func (v *Verifier) Verify(digest [32]byte, sig []byte, deadline int64, allowed ...ethcommon.Address) (ethcommon.Address, error) {
	if v == nil || v.now == nil {
		return ethcommon.Address{}, fmt.Errorf("sigauth: verifier not configured")
	}
	if v.now() > deadline {
		return ethcommon.Address{}, fmt.Errorf("%w: deadline %d", ErrExpiredSignature, deadline)
	}
	signer, err := RecoverSigner(digest, sig)
	if err != nil {
		return ethcommon.Address{}, err
	}
	for _, candidate := range allowed {
		if candidate != (ethcommon.Address{}) && signer == candidate {
			return signer, nil
		}
	}
	return ethcommon.Address{}, fmt.Errorf("%w: recovered %s", ErrInvalidSigner, signer.Hex())
}

package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// PublicKey is a player or authority identity on the ledger.
type PublicKey [32]byte

func (p PublicKey) Bytes() []byte {
	return p[:]
}

func (p PublicKey) String() string {
	return hex.EncodeToString(p[:])
}

// ParsePublicKey decodes the hex form produced by String.
func ParsePublicKey(s string) (PublicKey, error) {
	var p PublicKey
	raw, err := hex.DecodeString(s)
	if err != nil {
		return p, fmt.Errorf("malformed public key %q: %w", s, err)
	}
	if len(raw) != len(p) {
		return p, fmt.Errorf("malformed public key %q: want %d bytes, got %d", s, len(p), len(raw))
	}
	copy(p[:], raw)
	return p, nil
}

// Keypair signs transactions. The private half never leaves the process.
type Keypair struct {
	Public PublicKey
	priv   ed25519.PrivateKey
}

func (k Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// NewKeypair generates a random keypair (wallet stand-in for tests and
// the demo client).
func NewKeypair() (Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Keypair{}, err
	}
	var p PublicKey
	copy(p[:], pub)
	return Keypair{Public: p, priv: priv}, nil
}

// DeriveSigner derives a keypair from an arbitrary seed. The derivation is
// pure: the same seed always yields the same keypair, so a client that
// loses memory re-derives the identical signer. Seeds are hashed before
// use, so any length is accepted.
func DeriveSigner(seed []byte) Keypair {
	digest := sha256.Sum256(seed)
	priv := ed25519.NewKeyFromSeed(digest[:])
	var p PublicKey
	copy(p[:], priv.Public().(ed25519.PublicKey))
	return Keypair{Public: p, priv: priv}
}

// feePayerTag namespaces fee payer derivation away from every other use
// of DeriveSigner.
const feePayerTag = "voble_fee_payer_v1"

// FeePayerCache hands out the deterministic gasless fee payer for a
// wallet. Derived, never persisted: re-deriving after a restart yields the
// same key, which keeps rollup session continuity intact.
type FeePayerCache struct {
	mu sync.Mutex
	m  map[PublicKey]Keypair
}

func NewFeePayerCache() *FeePayerCache {
	return &FeePayerCache{m: make(map[PublicKey]Keypair)}
}

func (c *FeePayerCache) For(owner PublicKey) Keypair {
	c.mu.Lock()
	defer c.mu.Unlock()
	if kp, ok := c.m[owner]; ok {
		return kp
	}
	seed := make([]byte, 0, len(feePayerTag)+len(owner))
	seed = append(seed, feePayerTag...)
	seed = append(seed, owner[:]...)
	kp := DeriveSigner(seed)
	c.m[owner] = kp
	return kp
}

package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/sha3"
)

// envelopeSize is the length of a signature envelope: the signer's public
// key followed by the Ed25519 signature, so verifiers can recover the
// signer's address from the envelope alone.
const envelopeSize = ed25519.PublicKeySize + ed25519.SignatureSize

// Signer produces authentication signatures bound to one wallet address.
// The daemon satisfies it with a Keyring; tests may substitute their own.
type Signer interface {
	Address() string
	Sign(payload []byte) ([]byte, error)
}

// Keyring holds the local account's Ed25519 signing key.
type Keyring struct {
	priv    ed25519.PrivateKey
	address string
}

// NewKeyring generates an ephemeral keyring (not persisted).
func NewKeyring() (*Keyring, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keyring{priv: priv, address: AddressFromPublicKey(pub)}, nil
}

// LoadOrCreateKeyring reads the 32-byte signing seed from path, generating
// and persisting a fresh one (0600) if the file does not exist.
func LoadOrCreateKeyring(path string) (*Keyring, error) {
	seed, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("key file %s: expected %d-byte seed, got %d", path, ed25519.SeedSize, len(seed))
		}
	case errors.Is(err, os.ErrNotExist):
		seed = make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("generate seed: %w", err)
		}
		if err := os.WriteFile(path, seed, 0600); err != nil {
			return nil, fmt.Errorf("persist seed: %w", err)
		}
	default:
		return nil, fmt.Errorf("read key file: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keyring{priv: priv, address: AddressFromPublicKey(pub)}, nil
}

// Address returns the wallet address derived from the keyring's public key.
func (k *Keyring) Address() string {
	return k.address
}

// Sign signs payload and returns the signature envelope (pubkey || sig).
func (k *Keyring) Sign(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	sig := ed25519.Sign(k.priv, payload)
	env := make([]byte, 0, envelopeSize)
	env = append(env, k.priv.Public().(ed25519.PublicKey)...)
	env = append(env, sig...)
	return env, nil
}

// AddressFromPublicKey derives the wallet address for an Ed25519 public key:
// 0x + the last 20 bytes of Keccak-256 over the key, lowercase hex.
func AddressFromPublicKey(pub ed25519.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}

// RecoverAddress verifies a signature envelope over payload and returns the
// address of the key that produced it. The returned address must be compared
// against the claimed sender by the caller.
func RecoverAddress(payload, envelope []byte) (string, error) {
	if len(envelope) != envelopeSize {
		return "", fmt.Errorf("signature envelope: expected %d bytes, got %d", envelopeSize, len(envelope))
	}
	pub := ed25519.PublicKey(envelope[:ed25519.PublicKeySize])
	sig := envelope[ed25519.PublicKeySize:]
	if !ed25519.Verify(pub, payload, sig) {
		return "", errors.New("signature does not verify")
	}
	return AddressFromPublicKey(pub), nil
}

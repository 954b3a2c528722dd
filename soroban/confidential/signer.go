package confidential

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/nacl/sign"
)

// Signer signs directory calls for names under a confidential rule.
type Signer interface {
	Algorithm() string
	// PublicKey is the hex key a Rule names.
	PublicKey() string
	Sign(message string) (string, error)
}

// NewSigner builds a signer from a hex private key: a 32-byte Ed25519 seed
// for nacl, a 32-byte secp256k1 scalar for ecdsa.
func NewSigner(algorithm, keyHex string) (Signer, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("confidential: private key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("confidential: private key must be 32 bytes, got %d", len(key))
	}
	switch algorithm {
	case AlgorithmNacl:
		return newNaclSigner(key), nil
	case AlgorithmEcdsa:
		return &EcdsaSigner{key: secp256k1.PrivKeyFromBytes(key)}, nil
	default:
		return nil, fmt.Errorf("confidential: unknown algorithm %q", algorithm)
	}
}

// NaclSigner signs with nacl/sign (Ed25519).
type NaclSigner struct {
	public  [32]byte
	private [64]byte
}

// GenerateNaclSigner creates a signer with a fresh key read from r.
func GenerateNaclSigner(r io.Reader) (*NaclSigner, error) {
	pub, priv, err := sign.GenerateKey(r)
	if err != nil {
		return nil, err
	}
	return &NaclSigner{public: *pub, private: *priv}, nil
}

func newNaclSigner(seed []byte) *NaclSigner {
	s := &NaclSigner{}
	priv := ed25519.NewKeyFromSeed(seed)
	copy(s.private[:], priv)
	copy(s.public[:], priv.Public().(ed25519.PublicKey))
	return s
}

func (s *NaclSigner) Algorithm() string { return AlgorithmNacl }

func (s *NaclSigner) PublicKey() string { return hex.EncodeToString(s.public[:]) }

// Sign returns the hex detached signature of message.
func (s *NaclSigner) Sign(message string) (string, error) {
	signed := sign.Sign(nil, []byte(message), &s.private)
	return hex.EncodeToString(signed[:sign.Overhead]), nil
}

// EcdsaSigner signs the double SHA-256 of a message with secp256k1.
type EcdsaSigner struct {
	key *secp256k1.PrivateKey
}

func (s *EcdsaSigner) Algorithm() string { return AlgorithmEcdsa }

// PublicKey is the compressed public key in hex.
func (s *EcdsaSigner) PublicKey() string {
	return hex.EncodeToString(s.key.PubKey().SerializeCompressed())
}

// Sign returns the hex DER signature of message.
func (s *EcdsaSigner) Sign(message string) (string, error) {
	sig := ecdsa.Sign(s.key, doubleHash(message))
	return hex.EncodeToString(sig.Serialize()), nil
}

package confidential

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/nacl/sign"

	"github.com/TheusHen/soroban/soroban/protocol"
)

// Window is how far a signed timestamp may be from the verifier's clock.
const Window = 24 * time.Hour

var ErrUnauthorized = errors.New("confidential: unauthorized")

// Protected reports whether r carries a key to verify against.
func (r Rule) Protected() bool {
	return r.Prefix != "" && r.Algorithm != "" && r.PublicKey != ""
}

// Verify checks that auth is a fresh signature of message by the rule's
// key. It accepts anything when the rule is not Protected.
func (r Rule) Verify(auth protocol.Auth, message string, now time.Time) error {
	if !r.Protected() {
		return nil
	}
	if auth.PublicKey != r.PublicKey {
		return fmt.Errorf("%w: public key not allowed", ErrUnauthorized)
	}
	ts := time.Unix(0, auth.Timestamp)
	if !ts.After(now.Add(-Window)) || !ts.Before(now.Add(Window)) {
		return fmt.Errorf("%w: timestamp out of range", ErrUnauthorized)
	}

	var ok bool
	switch r.Algorithm {
	case AlgorithmNacl:
		if auth.Algorithm != AlgorithmNacl {
			return fmt.Errorf("%w: algorithm mismatch", ErrUnauthorized)
		}
		ok = verifyNacl(auth.PublicKey, message, auth.Signature)
	case AlgorithmEcdsa:
		ok = verifyEcdsa(auth.PublicKey, message, auth.Signature)
	default:
		return fmt.Errorf("%w: unknown algorithm %q", ErrUnauthorized, r.Algorithm)
	}
	if !ok {
		return fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	}
	return nil
}

// verifyNacl checks a detached Ed25519 signature as produced by
// nacl/sign: signature is the 64-byte prefix of the signed message.
func verifyNacl(publicKey, message, signature string) bool {
	key, err := hex.DecodeString(publicKey)
	if err != nil || len(key) != 32 {
		return false
	}
	sig, err := hex.DecodeString(signature)
	if err != nil || len(sig) != sign.Overhead {
		return false
	}
	var pk [32]byte
	copy(pk[:], key)
	_, ok := sign.Open(nil, append(sig, message...), &pk)
	return ok
}

// verifyEcdsa checks a DER secp256k1 signature over the double SHA-256 of
// message, as bitcoin wallets sign.
func verifyEcdsa(publicKey, message, signature string) bool {
	key, err := hex.DecodeString(publicKey)
	if err != nil {
		return false
	}
	pub, err := secp256k1.ParsePubKey(key)
	if err != nil {
		return false
	}
	der, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return false
	}
	return sig.Verify(doubleHash(message), pub)
}

func doubleHash(message string) []byte {
	first := sha256.Sum256([]byte(message))
	second := sha256.Sum256(first[:])
	return second[:]
}

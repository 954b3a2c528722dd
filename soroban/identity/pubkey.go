package identity

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/TheusHen/soroban/soroban/crypto"
)

// PublicKey is a Curve25519 public key. Its String form is the lowercase hex
// published in the directory.
type PublicKey [crypto.KeySize]byte

// probeScalar is a clamped scalar used to detect low-order points.
var probeScalar = [crypto.KeySize]byte{0: 8, 31: 64}

// ParsePublicKey decodes a 64-character hex key. All-zero and other
// low-order points are rejected.
func ParsePublicKey(s string) (PublicKey, error) {
	if len(s) != 2*crypto.KeySize {
		return PublicKey{}, fmt.Errorf("%w: length %d", ErrInvalidPeerKey, len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}
	var pk PublicKey
	copy(pk[:], b)
	if pk.lowOrder() {
		return PublicKey{}, fmt.Errorf("%w: low-order point", ErrInvalidPeerKey)
	}
	return pk, nil
}

func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// lowOrder reports whether pk sends every clamped scalar to the identity.
func (pk PublicKey) lowOrder() bool {
	_, err := curve25519.X25519(probeScalar[:], pk[:])
	return err != nil
}

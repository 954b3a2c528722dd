// Package identity holds the ephemeral Curve25519 key pair of one protocol run.
package identity

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"

	"github.com/TheusHen/soroban/soroban/crypto"
)

var ErrInvalidPeerKey = errors.New("identity: invalid peer public key")

// Identity is a Curve25519 key pair. It is immutable after Generate and may
// be shared between concurrent sessions. The private key never leaves the
// process.
type Identity struct {
	private [crypto.KeySize]byte
	public  PublicKey
}

// Generate creates a fresh identity from crypto/rand.
// It panics if the system RNG fails.
func Generate() *Identity {
	id, err := generate(rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("identity: reading random key: %v", err))
	}
	return id
}

func generate(r io.Reader) (*Identity, error) {
	id := &Identity{}
	if _, err := io.ReadFull(r, id.private[:]); err != nil {
		return nil, err
	}
	id.private[0] &= 248
	id.private[31] &= 127
	id.private[31] |= 64

	pub, err := curve25519.X25519(id.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(id.public[:], pub)
	return id, nil
}

func (id *Identity) PublicKey() PublicKey { return id.public }

// ChannelWith builds the secure channel shared with peer. Both parties
// obtain the same channel key regardless of who calls first.
func (id *Identity) ChannelWith(peer PublicKey, opts ...crypto.ChannelOption) (*crypto.SecureChannel, error) {
	if _, err := curve25519.X25519(id.private[:], peer[:]); err != nil {
		return nil, fmt.Errorf("%w: low-order point", ErrInvalidPeerKey)
	}
	pub := [crypto.KeySize]byte(peer)
	return crypto.NewSecureChannel(&id.private, &pub, opts...), nil
}

// ChannelWithHex parses a hex-encoded peer key as published in the
// directory and builds the channel.
func (id *Identity) ChannelWithHex(peerHex string, opts ...crypto.ChannelOption) (*crypto.SecureChannel, error) {
	peer, err := ParsePublicKey(peerHex)
	if err != nil {
		return nil, err
	}
	return id.ChannelWith(peer, opts...)
}

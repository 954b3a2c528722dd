package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/crypto/nacl/box"
)

const (
	// KeySize is the size of Curve25519 keys and of the precomputed box key.
	KeySize = 32
	// NonceSize is the XSalsa20 nonce prefix of every encrypted message.
	NonceSize = 24
)

var (
	ErrInvalidPlaintext = errors.New("crypto: invalid plaintext")
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)

// SecureChannel is an authenticated encryption context bound to one
// (local private key, remote public key) pair.
//
// Encrypted messages are hex(nonce || ciphertext || tag). The channel keeps no
// per-message state, so it is safe for concurrent use.
type SecureChannel struct {
	shared   [KeySize]byte
	compress bool
}

// ChannelOption configures a SecureChannel.
type ChannelOption func(*SecureChannel)

// WithCompression LZ4-compresses plaintexts before sealing them.
// Both peers must enable it.
func WithCompression() ChannelOption {
	return func(sc *SecureChannel) { sc.compress = true }
}

// NewSecureChannel precomputes the shared key for privateKey and peerPublicKey.
// Callers are expected to have rejected low-order peer keys.
func NewSecureChannel(privateKey, peerPublicKey *[KeySize]byte, opts ...ChannelOption) *SecureChannel {
	sc := &SecureChannel{}
	box.Precompute(&sc.shared, peerPublicKey, privateKey)
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Encrypt seals plaintext under a fresh random nonce.
// The plaintext must be non-empty UTF-8 text.
func (sc *SecureChannel) Encrypt(plaintext []byte) (string, error) {
	if len(plaintext) == 0 || !utf8.Valid(plaintext) {
		return "", ErrInvalidPlaintext
	}
	msg := plaintext
	if sc.compress {
		compressed, err := Compress(plaintext)
		if err != nil {
			return "", err
		}
		msg = compressed
	}

	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := box.SealAfterPrecomputation(nonce[:], msg, &nonce, &sc.shared)
	return hex.EncodeToString(out), nil
}

// Decrypt opens a message produced by Encrypt on the peer's channel.
func (sc *SecureChannel) Decrypt(message string) ([]byte, error) {
	raw, err := hex.DecodeString(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(raw) < NonceSize+box.Overhead {
		return nil, fmt.Errorf("%w: message too short", ErrDecryptionFailed)
	}

	var nonce [NonceSize]byte
	copy(nonce[:], raw[:NonceSize])
	plaintext, ok := box.OpenAfterPrecomputation(nil, raw[NonceSize:], &nonce, &sc.shared)
	if !ok {
		return nil, ErrDecryptionFailed
	}
	if sc.compress {
		plaintext, err = Decompress(plaintext)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
		}
	}
	return plaintext, nil
}

// Fingerprint exports the shared key. It seeds the session name chain and
// must never be published.
func (sc *SecureChannel) Fingerprint() []byte {
	out := make([]byte, KeySize)
	copy(out, sc.shared[:])
	return out
}

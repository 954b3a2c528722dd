package crypto

import (
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"
)

func newPair(t *testing.T, opts ...ChannelOption) (*SecureChannel, *SecureChannel) {
	t.Helper()
	alicePub, alicePriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	bobPub, bobPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return NewSecureChannel(alicePriv, bobPub, opts...), NewSecureChannel(bobPriv, alicePub, opts...)
}

func TestSecureChannelRoundTrip(t *testing.T) {
	alice, bob := newPair(t)

	ct, err := alice.Encrypt([]byte("Ping 1 12:00:00"))
	require.NoError(t, err)
	require.Len(t, ct, 2*(NonceSize+box.Overhead+len("Ping 1 12:00:00")))

	pt, err := bob.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "Ping 1 12:00:00", string(pt))

	ct, err = bob.Encrypt([]byte("Pong 1 12:00:01"))
	require.NoError(t, err)
	pt, err = alice.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "Pong 1 12:00:01", string(pt))
}

func TestFingerprintSymmetric(t *testing.T) {
	alice, bob := newPair(t)
	require.Equal(t, alice.Fingerprint(), bob.Fingerprint())
	require.Len(t, alice.Fingerprint(), KeySize)

	// Mutating the returned slice must not touch the channel key.
	fp := alice.Fingerprint()
	fp[0] ^= 0xff
	require.NotEqual(t, fp, alice.Fingerprint())
}

func TestEncryptFreshNonce(t *testing.T) {
	alice, bob := newPair(t)
	a, err := alice.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := alice.Encrypt([]byte("same"))
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.NotEqual(t, a[:2*NonceSize], b[:2*NonceSize])

	for _, ct := range []string{a, b} {
		pt, err := bob.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, "same", string(pt))
	}
}

func TestEncryptRejectsInvalidPlaintext(t *testing.T) {
	alice, _ := newPair(t)
	_, err := alice.Encrypt(nil)
	require.ErrorIs(t, err, ErrInvalidPlaintext)
	_, err = alice.Encrypt([]byte{})
	require.ErrorIs(t, err, ErrInvalidPlaintext)
	_, err = alice.Encrypt([]byte{0xff, 0xfe, 0xfd})
	require.ErrorIs(t, err, ErrInvalidPlaintext)
}

func TestDecryptDetectsTampering(t *testing.T) {
	alice, bob := newPair(t)
	ct, err := alice.Encrypt([]byte("hello"))
	require.NoError(t, err)

	raw := []byte(ct)
	for i := 0; i < len(raw); i += 2 {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		// Flip the low nibble of the byte encoded at position i/2.
		if tampered[i+1] == '0' {
			tampered[i+1] = '1'
		} else {
			tampered[i+1] = '0'
		}
		_, err := bob.Decrypt(string(tampered))
		require.ErrorIs(t, err, ErrDecryptionFailed, "byte %d", i/2)
	}
}

func TestDecryptMalformed(t *testing.T) {
	_, bob := newPair(t)
	for _, in := range []string{
		"",
		"zz",
		"abc",
		strings.Repeat("00", NonceSize),
		strings.Repeat("00", NonceSize+box.Overhead-1),
	} {
		_, err := bob.Decrypt(in)
		require.ErrorIs(t, err, ErrDecryptionFailed, "input %q", in)
	}
}

func TestDecryptWrongKey(t *testing.T) {
	alice, _ := newPair(t)
	_, eve := newPair(t)
	ct, err := alice.Encrypt([]byte("secret"))
	require.NoError(t, err)
	_, err = eve.Decrypt(ct)
	require.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestSecureChannelCompression(t *testing.T) {
	alice, bob := newPair(t, WithCompression())
	msg := strings.Repeat("Ping 1 12:00:00 ", 64)

	ct, err := alice.Encrypt([]byte(msg))
	require.NoError(t, err)
	require.Less(t, len(ct), 2*len(msg))

	pt, err := bob.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, msg, string(pt))

	// A peer without compression sees the LZ4 frame, not the text.
	_, plain := newPair(t)
	*plain = *bob
	plain.compress = false
	raw, err := plain.Decrypt(ct)
	require.NoError(t, err)
	require.NotEqual(t, msg, string(raw))
}

func TestCompressRoundTrip(t *testing.T) {
	data := []byte(strings.Repeat("soroban ", 1000))
	c, err := Compress(data)
	require.NoError(t, err)
	require.Less(t, len(c), len(data))

	d, err := Decompress(c)
	require.NoError(t, err)
	require.Equal(t, data, d)

	_, err = Decompress([]byte("not an lz4 frame"))
	require.ErrorIs(t, err, ErrDecompressionFailed)
}

func TestCompressReusesPooledWriters(t *testing.T) {
	for i := 0; i < 20; i++ {
		data := []byte(strings.Repeat(string(rune('a'+i)), 500+i))
		c, err := Compress(data)
		require.NoError(t, err)
		d, err := Decompress(c)
		require.NoError(t, err)
		require.Equal(t, data, d)
	}
}

func TestDerive(t *testing.T) {
	// sha256("abc")
	name, err := Derive("abc")
	require.NoError(t, err)
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", name)
	require.Len(t, name, NameLength)

	again, err := Derive("abc")
	require.NoError(t, err)
	require.Equal(t, name, again)

	other, err := Derive("abd")
	require.NoError(t, err)
	require.NotEqual(t, name, other)

	_, err = Derive("")
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = Derive(string([]byte{0xc3, 0x28}))
	require.ErrorIs(t, err, ErrInvalidInput)
}

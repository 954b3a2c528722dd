package identity

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateDistinct(t *testing.T) {
	a := Generate()
	b := Generate()
	require.NotEqual(t, a.PublicKey(), b.PublicKey())
	require.Len(t, a.PublicKey().String(), 64)
	require.Equal(t, strings.ToLower(a.PublicKey().String()), a.PublicKey().String())
}

func TestGenerateDeterministicFromReader(t *testing.T) {
	seed := bytes.Repeat([]byte{0x42}, 32)
	a, err := generate(bytes.NewReader(seed))
	require.NoError(t, err)
	b, err := generate(bytes.NewReader(seed))
	require.NoError(t, err)
	require.Equal(t, a.PublicKey(), b.PublicKey())

	_, err = generate(bytes.NewReader(seed[:10]))
	require.Error(t, err)
}

func TestParsePublicKeyRoundTrip(t *testing.T) {
	id := Generate()
	pk, err := ParsePublicKey(id.PublicKey().String())
	require.NoError(t, err)
	require.Equal(t, id.PublicKey(), pk)
}

func TestParsePublicKeyRejects(t *testing.T) {
	cases := map[string]string{
		"empty":     "",
		"short":     strings.Repeat("ab", 31),
		"long":      strings.Repeat("ab", 33),
		"not hex":   strings.Repeat("zz", 32),
		"all zero":  strings.Repeat("00", 32),
		"order one": "01" + strings.Repeat("00", 31),
		// Order-8 point of Curve25519.
		"order eight": "e0eb7a7c3b41b8ae1656e3faf19fc46ada098deb9c32b1fd866205165f49b800",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParsePublicKey(in)
			require.ErrorIs(t, err, ErrInvalidPeerKey)
		})
	}
}

func TestChannelWithSymmetric(t *testing.T) {
	alice := Generate()
	bob := Generate()

	ab, err := alice.ChannelWith(bob.PublicKey())
	require.NoError(t, err)
	ba, err := bob.ChannelWithHex(alice.PublicKey().String())
	require.NoError(t, err)
	require.Equal(t, ab.Fingerprint(), ba.Fingerprint())

	ct, err := ab.Encrypt([]byte("hello bob"))
	require.NoError(t, err)
	pt, err := ba.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "hello bob", string(pt))

	eve := Generate()
	ae, err := alice.ChannelWith(eve.PublicKey())
	require.NoError(t, err)
	require.NotEqual(t, ab.Fingerprint(), ae.Fingerprint())
}

func TestChannelWithRejectsLowOrder(t *testing.T) {
	alice := Generate()
	_, err := alice.ChannelWith(PublicKey{})
	require.ErrorIs(t, err, ErrInvalidPeerKey)

	_, err = alice.ChannelWithHex("not-a-key")
	require.ErrorIs(t, err, ErrInvalidPeerKey)
}

package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"unicode/utf8"
)

// NameLength is the length of a derived channel name (hex SHA-256).
const NameLength = 2 * sha256.Size

var ErrInvalidInput = errors.New("crypto: invalid derivation input")

// Derive maps input to a channel name: hex(SHA-256(input)).
// Every channel name of the protocol goes through this function.
func Derive(input string) (string, error) {
	if input == "" || !utf8.ValidString(input) {
		return "", ErrInvalidInput
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:]), nil
}

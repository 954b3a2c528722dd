package crypto

import (
	"encoding/hex"
	"errors"
)

var ErrChainExhausted = errors.New("crypto: name chain exhausted")

// MaxGeneration bounds the number of rotations of one chain.
const MaxGeneration = 1 << 32

// NameChain is the hash chain of rotating channel names of one session.
// Each step derives the next name from the payload that was just published
// or claimed, so an observer cannot predict a name without having decrypted
// the previous payload.
//
// Both roles advance their chain with the same payloads in the same order;
// a NameChain is owned by a single protocol run and is not safe for
// concurrent use.
type NameChain struct {
	current    string
	generation uint64
	history    []string
}

// NewNameChain starts a chain at Derive(seed).
func NewNameChain(seed string) (*NameChain, error) {
	name, err := Derive(seed)
	if err != nil {
		return nil, err
	}
	return &NameChain{current: name, history: []string{name}}, nil
}

// NewSessionChain starts the chain of a secure channel at
// Derive(hex(channel fingerprint)).
func NewSessionChain(sc *SecureChannel) (*NameChain, error) {
	return NewNameChain(hex.EncodeToString(sc.Fingerprint()))
}

// Current returns the name the next entry is published or claimed under.
func (c *NameChain) Current() string { return c.current }

// Generation returns the number of rotations so far.
func (c *NameChain) Generation() uint64 { return c.generation }

// Advance rotates the chain with payload and returns the new current name.
func (c *NameChain) Advance(payload string) (string, error) {
	if c.generation >= MaxGeneration {
		return "", ErrChainExhausted
	}
	next, err := Derive(payload)
	if err != nil {
		return "", err
	}
	c.current = next
	c.generation++
	c.history = append(c.history, next)
	return next, nil
}

// History returns every name produced by the chain, oldest first.
func (c *NameChain) History() []string {
	out := make([]string, len(c.history))
	copy(out, c.history)
	return out
}

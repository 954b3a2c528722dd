// Package session runs the Soroban rendezvous protocol: two peers sharing
// only a base channel name find each other through an untrusted directory,
// agree on a NaCl box key and exchange messages under names that rotate
// after every message.
package session

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/identity"
	"github.com/TheusHen/soroban/soroban/metrics"
)

// Role selects which side of the protocol a run plays.
type Role uint8

const (
	// Publisher advertises its key under the base name and speaks first.
	Publisher Role = 1
	// Responder discovers a publisher and answers it.
	Responder Role = 2
)

func (r Role) String() string {
	switch r {
	case Publisher:
		return "publisher"
	case Responder:
		return "responder"
	default:
		return "unknown"
	}
}

// ParseRole accepts "publisher" or "initiator", and "responder" or
// "contributor".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "publisher", "initiator":
		return Publisher, nil
	case "responder", "contributor":
		return Responder, nil
	default:
		return 0, fmt.Errorf("session: unknown role %q", s)
	}
}

// Phase is the progress of a run.
type Phase uint8

const (
	PhaseDiscover Phase = iota
	PhaseHandshake
	PhaseExchange
	PhaseDone
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseDiscover:
		return "discover"
	case PhaseHandshake:
		return "handshake"
	case PhaseExchange:
		return "exchange"
	case PhaseDone:
		return "done"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	DefaultRounds            = 3
	DefaultDiscoveryAttempts = 25
	DefaultHandshakeAttempts = 100
	DefaultMessageAttempts   = 10
)

// ComposeFunc builds the plaintext sent in round n (1-based). received is
// the last plaintext received from the peer, empty before the first one.
type ComposeFunc func(role Role, n int, received string) string

// DefaultCompose sends "Ping n <time>" as publisher and "Pong n <time>" as
// responder.
func DefaultCompose(role Role, n int, _ string) string {
	verb := "Ping"
	if role == Responder {
		verb = "Pong"
	}
	return fmt.Sprintf("%s %d %s", verb, n, time.Now().Format(time.RFC3339Nano))
}

// Options configure a run. Only Directory and BaseName are required.
type Options struct {
	Directory directory.Directory
	// Identity is generated when nil.
	Identity *identity.Identity
	BaseName string
	Rounds   int

	// HashBaseName replaces the base name with its hash before use.
	HashBaseName bool
	// ExtraIndirection hashes the private name once more.
	ExtraIndirection bool
	// KeepAdvertisement leaves the publisher's key under the base name after
	// a responder was found.
	KeepAdvertisement bool
	// Compression LZ4-compresses plaintexts. Both peers must agree.
	Compression bool

	DiscoveryBudget directory.Budget
	HandshakeBudget directory.Budget
	MessageBudget   directory.Budget

	Compose ComposeFunc
	Log     *log.Logger
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Identity == nil {
		o.Identity = identity.Generate()
	}
	if o.Rounds <= 0 {
		o.Rounds = DefaultRounds
	}
	o.DiscoveryBudget = budgetOr(o.DiscoveryBudget, DefaultDiscoveryAttempts)
	o.HandshakeBudget = budgetOr(o.HandshakeBudget, DefaultHandshakeAttempts)
	o.MessageBudget = budgetOr(o.MessageBudget, DefaultMessageAttempts)
	if o.Compose == nil {
		o.Compose = DefaultCompose
	}
	return o
}

func budgetOr(b directory.Budget, attempts int) directory.Budget {
	if b.Attempts <= 0 {
		b.Attempts = attempts
	}
	if b.Interval <= 0 {
		b.Interval = directory.DefaultInterval
	}
	return b
}

// Round records one exchange. Names are the channel names the messages
// were published or claimed under.
type Round struct {
	Number       int
	Sent         string
	SentName     string
	Received     string
	ReceivedName string
}

// Transcript is the outcome of a run. On failure it holds everything up to
// the failing step.
type Transcript struct {
	Role  Role
	Self  identity.PublicKey
	Peer  identity.PublicKey
	Phase Phase
	// BaseName and PrivateName are the names used during discovery.
	BaseName    string
	PrivateName string
	Rounds      []Round
	// Names is the full history of the session name chain.
	Names []string
}

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/TheusHen/soroban/soroban/crypto"
	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/logging"
)

var ErrNoDirectory = errors.New("session: no directory")

// run is one protocol run. It is owned by a single goroutine.
type run struct {
	role   Role
	opts   Options
	poller *directory.Poller
	log    *log.Logger
	tr     *Transcript

	advertised   bool
	peerHex      string
	channel      *crypto.SecureChannel
	chain        *crypto.NameChain
	lastReceived string
}

func newRun(role Role, opts Options) (*run, error) {
	if opts.Directory == nil {
		return nil, ErrNoDirectory
	}
	if role != Publisher && role != Responder {
		return nil, fmt.Errorf("session: invalid role %d", role)
	}
	base, err := PublicName(opts.BaseName, opts.HashBaseName)
	if err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	l := logging.OrDiscard(opts.Log).With("role", role.String())
	return &run{
		role:   role,
		opts:   opts,
		poller: &directory.Poller{Directory: opts.Directory, Log: l, Metrics: opts.Metrics},
		log:    l,
		tr: &Transcript{
			Role:     role,
			Self:     opts.Identity.PublicKey(),
			BaseName: base,
		},
	}, nil
}

// Run plays one complete protocol run as role and returns its transcript.
// The run aborts on the first error; the transcript is returned either way
// with Phase set to PhaseFailed on error.
func Run(ctx context.Context, role Role, opts Options) (*Transcript, error) {
	r, err := newRun(role, opts)
	if err != nil {
		return nil, err
	}
	return r.start(ctx, PhaseDiscover)
}

func (r *run) start(ctx context.Context, phase Phase) (*Transcript, error) {
	err := r.drive(ctx, phase)
	if r.chain != nil {
		r.tr.Names = r.chain.History()
	}
	r.opts.Metrics.Session(r.role.String(), err)
	if err != nil {
		r.log.Error("run failed", "phase", r.tr.Phase, "err", err)
		r.tr.Phase = PhaseFailed
		r.withdraw(context.WithoutCancel(ctx))
		return r.tr, err
	}
	r.log.Info("run complete", "rounds", len(r.tr.Rounds))
	return r.tr, nil
}

func (r *run) drive(ctx context.Context, phase Phase) error {
	for {
		r.tr.Phase = phase
		var err error
		switch phase {
		case PhaseDiscover:
			err = r.discover(ctx)
			phase = PhaseHandshake
		case PhaseHandshake:
			err = r.handshake(ctx)
			phase = PhaseExchange
		case PhaseExchange:
			err = r.exchange(ctx)
			phase = PhaseDone
		default:
			return nil
		}
		if err != nil {
			return fmt.Errorf("session: %s %s: %w", r.role, r.tr.Phase, err)
		}
	}
}

// withdraw removes a publisher advertisement left behind by a failed run.
func (r *run) withdraw(ctx context.Context) {
	if !r.advertised || r.opts.KeepAdvertisement {
		return
	}
	self := r.opts.Identity.PublicKey()
	if err := r.opts.Directory.Remove(ctx, r.tr.BaseName, self.String()); err != nil {
		r.log.Warn("withdrawing advertisement failed", "base", logging.Short(r.tr.BaseName), "err", err)
	}
	r.advertised = false
}

package session

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/identity"
	"github.com/TheusHen/soroban/soroban/logging"
)

const (
	DefaultRefresh     = time.Minute
	DefaultMaxSessions = 16

	retryDelay = time.Second
)

// ServerOptions configure a Server. The embedded Options apply to every
// session; KeepAdvertisement is implied.
type ServerOptions struct {
	Options
	// Refresh is how often the advertisement is re-added so it outlives
	// its directory retention.
	Refresh time.Duration
	// MaxSessions bounds concurrent sessions.
	MaxSessions int
	// OnSession is called after each session ends.
	OnSession func(*Transcript, error)
}

// Server is a long-lived publisher. It keeps one identity advertised under
// the base name and runs a publisher session with every responder that
// answers it.
type Server struct {
	opts    ServerOptions
	base    string
	private string
}

func NewServer(o ServerOptions) (*Server, error) {
	if o.Directory == nil {
		return nil, ErrNoDirectory
	}
	base, err := PublicName(o.BaseName, o.HashBaseName)
	if err != nil {
		return nil, err
	}
	o.KeepAdvertisement = true
	o.Options = o.Options.withDefaults()
	if o.Refresh <= 0 {
		o.Refresh = DefaultRefresh
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = DefaultMaxSessions
	}
	private, err := PrivateName(base, o.Identity.PublicKey(), o.ExtraIndirection)
	if err != nil {
		return nil, err
	}
	return &Server{opts: o, base: base, private: private}, nil
}

func (s *Server) PublicKey() identity.PublicKey { return s.opts.Identity.PublicKey() }

// Serve advertises the server and answers responders until ctx ends. It
// returns nil once ctx is done and every session has finished.
func (s *Server) Serve(ctx context.Context) error {
	l := logging.OrDiscard(s.opts.Log).With("role", "server")
	self := s.opts.Identity.PublicKey().String()

	advertise := func() error {
		return s.opts.Directory.Add(ctx, s.base, self, directory.ModeLong)
	}
	if err := advertise(); err != nil {
		return err
	}
	lastAdvertised := time.Now()
	l.Info("serving", "base", logging.Short(s.base), "private", logging.Short(s.private))

	poller := &directory.Poller{Directory: s.opts.Directory, Log: l, Metrics: s.opts.Metrics}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.MaxSessions)

	for ctx.Err() == nil {
		if time.Since(lastAdvertised) >= s.opts.Refresh {
			if err := advertise(); err != nil {
				l.Warn("refreshing advertisement failed", "err", err)
			} else {
				lastAdvertised = time.Now()
			}
		}

		peer, err := poller.Claim(ctx, s.private, s.opts.HandshakeBudget)
		switch {
		case err == nil:
		case errors.Is(err, directory.ErrTimeout):
			continue
		case ctx.Err() != nil:
			continue
		default:
			l.Warn("waiting for responders failed", "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(retryDelay):
			}
			continue
		}

		// Claiming a responder key does not touch the advertisement, but the
		// responder's own claim removed it from the base name.
		if err := advertise(); err != nil {
			l.Warn("re-advertising failed", "err", err)
		} else {
			lastAdvertised = time.Now()
		}

		g.Go(func() error {
			tr, err := s.session(gctx, peer)
			if s.opts.OnSession != nil {
				s.opts.OnSession(tr, err)
			}
			return nil
		})
	}

	err := g.Wait()
	if rmErr := s.opts.Directory.Remove(context.WithoutCancel(ctx), s.base, self); rmErr != nil {
		l.Warn("withdrawing advertisement failed", "err", rmErr)
	}
	return err
}

// session runs a publisher session with an already claimed responder key.
func (s *Server) session(ctx context.Context, peer string) (*Transcript, error) {
	r, err := newRun(Publisher, s.opts.Options)
	if err != nil {
		return nil, err
	}
	r.tr.PrivateName = s.private
	r.peerHex = peer
	return r.start(ctx, PhaseHandshake)
}

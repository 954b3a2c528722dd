package soroban

import (
	"context"
	"io"

	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/rpc"
	"github.com/TheusHen/soroban/soroban/session"
)

// Peer is a high-level helper that binds a directory to default session
// options. Each Publish or Respond call is an independent run with a fresh
// identity and, over Tor, a fresh circuit.
type Peer struct {
	Options session.Options
	closer  io.Closer
	isolate func() (directory.Directory, error)
}

// NewPeer returns a peer using dir. Fields of defaults other than
// Directory, BaseName and Identity are copied into every run.
func NewPeer(dir directory.Directory, defaults session.Options) *Peer {
	defaults.Directory = dir
	defaults.Identity = nil
	return &Peer{Options: defaults}
}

// Dial returns a peer talking to the directory at url.
func Dial(url string, defaults session.Options, opts ...rpc.ClientOption) (*Peer, error) {
	c, err := rpc.NewClient(url, opts...)
	if err != nil {
		return nil, err
	}
	p := NewPeer(c, defaults)
	p.closer = c
	p.isolate = func() (directory.Directory, error) { return c.Isolated() }
	return p, nil
}

func (p *Peer) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

func (p *Peer) options(base string) (session.Options, error) {
	o := p.Options
	o.BaseName = base
	if p.isolate != nil {
		dir, err := p.isolate()
		if err != nil {
			return o, err
		}
		o.Directory = dir
	}
	return o, nil
}

// Publish advertises under base and runs one publisher session.
func (p *Peer) Publish(ctx context.Context, base string) (*session.Transcript, error) {
	o, err := p.options(base)
	if err != nil {
		return nil, err
	}
	return session.Run(ctx, session.Publisher, o)
}

// Respond discovers a publisher under base and runs one responder session.
func (p *Peer) Respond(ctx context.Context, base string) (*session.Transcript, error) {
	o, err := p.options(base)
	if err != nil {
		return nil, err
	}
	return session.Run(ctx, session.Responder, o)
}

// Serve runs a long-lived publisher under base until ctx ends. onSession
// may be nil.
func (p *Peer) Serve(ctx context.Context, base string, onSession func(*session.Transcript, error)) error {
	o, err := p.options(base)
	if err != nil {
		return err
	}
	srv, err := session.NewServer(session.ServerOptions{
		Options:   o,
		OnSession: onSession,
	})
	if err != nil {
		return err
	}
	return srv.Serve(ctx)
}

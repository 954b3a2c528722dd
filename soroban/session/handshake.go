package session

import (
	"context"
	"fmt"

	"github.com/TheusHen/soroban/soroban/crypto"
	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/identity"
	"github.com/TheusHen/soroban/soroban/logging"
)

// PublicName returns the name both peers rendezvous under: base itself, or
// its hash when hash is set.
func PublicName(base string, hash bool) (string, error) {
	if base == "" {
		return "", fmt.Errorf("%w: empty base name", crypto.ErrInvalidInput)
	}
	if hash {
		return crypto.Derive(base)
	}
	return base, nil
}

// PrivateName returns the name a responder publishes its key under for the
// publisher owning key: H(public + "." + hex(key)), hashed again when extra
// is set.
func PrivateName(public string, key identity.PublicKey, extra bool) (string, error) {
	name, err := crypto.Derive(public + "." + key.String())
	if err != nil {
		return "", err
	}
	if extra {
		return crypto.Derive(name)
	}
	return name, nil
}

// discover finds the peer's public key.
//
// The publisher advertises its own key under the base name and waits for a
// responder to answer under the private name. The responder claims an
// advertised key from the base name.
func (r *run) discover(ctx context.Context) error {
	self := r.opts.Identity.PublicKey()
	switch r.role {
	case Publisher:
		if err := r.opts.Directory.Add(ctx, r.tr.BaseName, self.String(), directory.ModeLong); err != nil {
			return fmt.Errorf("advertise: %w", err)
		}
		r.advertised = true
		private, err := PrivateName(r.tr.BaseName, self, r.opts.ExtraIndirection)
		if err != nil {
			return err
		}
		r.tr.PrivateName = private
		r.log.Info("advertised public key, waiting for responder",
			"base", logging.Short(r.tr.BaseName), "private", logging.Short(private))

		peer, err := r.poller.Claim(ctx, private, r.opts.HandshakeBudget)
		if err != nil {
			return fmt.Errorf("wait for responder: %w", err)
		}
		r.peerHex = peer

	case Responder:
		peer, err := r.poller.Claim(ctx, r.tr.BaseName, r.opts.DiscoveryBudget)
		if err != nil {
			return fmt.Errorf("discover publisher: %w", err)
		}
		r.peerHex = peer
		r.log.Info("publisher found", "base", logging.Short(r.tr.BaseName))
	}
	return nil
}

// handshake builds the secure channel and the session name chain. The
// responder first publishes its own key under the publisher's private name.
func (r *run) handshake(ctx context.Context) error {
	peer, err := identity.ParsePublicKey(r.peerHex)
	if err != nil {
		return err
	}
	r.tr.Peer = peer

	if r.role == Responder {
		private, err := PrivateName(r.tr.BaseName, peer, r.opts.ExtraIndirection)
		if err != nil {
			return err
		}
		r.tr.PrivateName = private
		self := r.opts.Identity.PublicKey()
		if err := r.opts.Directory.Add(ctx, private, self.String(), directory.ModeDefault); err != nil {
			return fmt.Errorf("answer publisher: %w", err)
		}
		r.log.Info("public key sent to publisher", "private", logging.Short(private))
	}

	var opts []crypto.ChannelOption
	if r.opts.Compression {
		opts = append(opts, crypto.WithCompression())
	}
	r.channel, err = r.opts.Identity.ChannelWith(peer, opts...)
	if err != nil {
		return err
	}
	r.chain, err = crypto.NewSessionChain(r.channel)
	if err != nil {
		return err
	}

	if r.role == Publisher {
		r.withdraw(ctx)
	}
	return nil
}

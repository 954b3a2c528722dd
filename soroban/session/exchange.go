package session

import (
	"context"
	"fmt"

	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/logging"
)

type step func(ctx context.Context, rd *Round) error

// exchange runs the message rounds. The publisher sends then receives, the
// responder receives then sends; both advance the name chain after every
// publish and every claim, so the two chains stay in lockstep.
func (r *run) exchange(ctx context.Context) error {
	steps := []step{r.send, r.receive}
	if r.role == Responder {
		steps = []step{r.receive, r.send}
	}
	for n := 1; n <= r.opts.Rounds; n++ {
		r.tr.Rounds = append(r.tr.Rounds, Round{Number: n})
		rd := &r.tr.Rounds[len(r.tr.Rounds)-1]
		for _, s := range steps {
			if err := s(ctx, rd); err != nil {
				return fmt.Errorf("round %d: %w", n, err)
			}
		}
		r.opts.Metrics.Round(r.role.String())
	}
	return nil
}

func (r *run) send(ctx context.Context, rd *Round) error {
	text := r.opts.Compose(r.role, rd.Number, r.lastReceived)
	ct, err := r.channel.Encrypt([]byte(text))
	if err != nil {
		return err
	}
	name := r.chain.Current()
	if err := r.opts.Directory.Add(ctx, name, ct, directory.ModeShort); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	if _, err := r.chain.Advance(ct); err != nil {
		return err
	}
	rd.Sent, rd.SentName = text, name
	r.log.Debug("sent", "round", rd.Number, "name", logging.Short(name))
	return nil
}

func (r *run) receive(ctx context.Context, rd *Round) error {
	name := r.chain.Current()
	payload, err := r.poller.Claim(ctx, name, r.opts.MessageBudget)
	if err != nil {
		return fmt.Errorf("wait for message: %w", err)
	}
	if _, err := r.chain.Advance(payload); err != nil {
		return err
	}
	pt, err := r.channel.Decrypt(payload)
	if err != nil {
		return err
	}
	rd.Received, rd.ReceivedName = string(pt), name
	r.lastReceived = rd.Received
	r.log.Debug("received", "round", rd.Number, "name", logging.Short(name))
	return nil
}

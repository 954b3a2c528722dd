package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/TheusHen/soroban/soroban"
	"github.com/TheusHen/soroban/soroban/config"
	"github.com/TheusHen/soroban/soroban/crypto"
	"github.com/TheusHen/soroban/soroban/logging"
	"github.com/TheusHen/soroban/soroban/metrics"
	"github.com/TheusHen/soroban/soroban/rpc"
	"github.com/TheusHen/soroban/soroban/session"
)

type flags struct {
	configFile string
	url        string
	tor        string
	http3      bool
	name       string
	role       string
	rounds     int
	hash       bool
	extra      bool
	compress   bool
	once       bool
	logLevel   string
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "soroban-client",
		Short: "Soroban rendezvous client",
		Long: `Meets a peer through a Soroban directory and exchanges encrypted ping/pong
messages with it. Both peers only need to agree on a directory name.

The publisher advertises an ephemeral key under the name, the responder
answers it, and every following message is published under a fresh name
derived from the previous one. Runs restart with a new key after a backoff
unless --once is given.`,
		Example: `  # In-process demo against a local directory
  soroban-client -d room-42

  # Two terminals, over Tor
  soroban-client -d room-42 -r publisher -t 127.0.0.1:9050
  soroban-client -d room-42 -r responder -t 127.0.0.1:9050`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, f.once)
		},
	}

	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "configuration file")
	cmd.Flags().StringVarP(&f.url, "url", "u", "", "directory JSON-RPC endpoint")
	cmd.Flags().StringVarP(&f.tor, "tor", "t", "", "Tor SOCKS5 proxy address")
	cmd.Flags().BoolVar(&f.http3, "http3", false, "reach the directory over HTTP/3")
	cmd.Flags().StringVarP(&f.name, "directory", "d", "", "shared directory name")
	cmd.Flags().StringVarP(&f.role, "role", "r", "", "publisher, responder, server or demo")
	cmd.Flags().IntVarP(&f.rounds, "rounds", "n", 0, "number of ping/pong rounds")
	cmd.Flags().BoolVarP(&f.hash, "hash", "e", false, "hash the directory name before use")
	cmd.Flags().BoolVar(&f.extra, "extra-indirection", false, "hash the private name once more")
	cmd.Flags().BoolVar(&f.compress, "compress", false, "LZ4-compress messages (both peers)")
	cmd.Flags().BoolVar(&f.once, "once", false, "exit after one run")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "logging level (debug, info, warn, error)")

	return cmd
}

func loadConfig(cmd *cobra.Command, f flags) (config.Config, error) {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config file: %w", err)
	}
	config.Merge(&cfg, config.Config{
		Log:       config.LogConfig{Level: f.logLevel},
		Directory: config.DirectoryConfig{URL: f.url, Tor: f.tor, HTTP3: f.http3},
		Rendezvous: config.RendezvousConfig{
			Name:             f.name,
			Role:             f.role,
			Rounds:           f.rounds,
			HashName:         f.hash,
			ExtraIndirection: f.extra,
			Compression:      f.compress,
		},
	})
	if cmd.Flags().Changed("tor") && f.tor == "" {
		cfg.Directory.Tor = ""
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, once bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, closeLog, err := logging.Open(cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()
	logger, err := logging.New(w, "soroban", cfg.Log.Level)
	if err != nil {
		return err
	}

	m := metrics.New(prometheus.NewRegistry())
	opts := []rpc.ClientOption{
		rpc.WithLogger(logger),
		rpc.WithMetrics(m),
		rpc.WithTimeout(cfg.Directory.Timeout),
	}
	if cfg.Directory.Tor != "" {
		opts = append(opts, rpc.WithTor(cfg.Directory.Tor))
	}
	if cfg.Directory.HTTP3 {
		opts = append(opts, rpc.WithHTTP3())
	}
	signer, err := cfg.Signer()
	if err != nil {
		return err
	}
	if signer != nil {
		opts = append(opts, rpc.WithSigner(signer))
	}

	defaults := cfg.SessionOptions()
	defaults.Log = logger
	defaults.Metrics = m
	peer, err := soroban.Dial(cfg.Directory.URL, defaults, opts...)
	if err != nil {
		return err
	}
	defer peer.Close()

	logger.Info("starting", "role", cfg.Rendezvous.Role, "directory", logging.Short(cfg.Rendezvous.Name),
		"url", cfg.Directory.URL, "tor", cfg.Directory.Tor != "")

	once = once || cfg.Rendezvous.Role == "server"
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0

	for {
		err := runOnce(ctx, logger, peer, cfg)
		switch {
		case ctx.Err() != nil:
			return nil
		case once:
			return err
		case err == nil:
			bo.Reset()
			continue
		case errors.Is(err, crypto.ErrInvalidInput):
			return err
		}

		d := bo.NextBackOff()
		logger.Warn("run failed, restarting", "err", err, "in", d)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d):
		}
	}
}

func runOnce(ctx context.Context, logger *log.Logger, peer *soroban.Peer, cfg config.Config) error {
	name := cfg.Rendezvous.Name
	switch cfg.Rendezvous.Role {
	case "demo":
		return demo(ctx, logger, peer, name)
	case "server":
		return peer.Serve(ctx, name, func(tr *session.Transcript, err error) {
			if err != nil {
				logger.Warn("session failed", "err", err)
				return
			}
			report(logger, tr)
		})
	}

	role, err := session.ParseRole(cfg.Rendezvous.Role)
	if err != nil {
		return err
	}
	var tr *session.Transcript
	if role == session.Publisher {
		tr, err = peer.Publish(ctx, name)
	} else {
		tr, err = peer.Respond(ctx, name)
	}
	if err != nil {
		return err
	}
	report(logger, tr)
	return nil
}

// demo plays both roles in one process, Alice publishing and Bob
// responding.
func demo(ctx context.Context, logger *log.Logger, peer *soroban.Peer, name string) error {
	type result struct {
		tr  *session.Transcript
		err error
	}
	alice := make(chan result, 1)
	go func() {
		tr, err := peer.Publish(ctx, name)
		alice <- result{tr, err}
	}()
	bob, bobErr := peer.Respond(ctx, name)
	a := <-alice
	if err := errors.Join(a.err, bobErr); err != nil {
		return err
	}
	report(logger.WithPrefix("alice"), a.tr)
	report(logger.WithPrefix("bob"), bob)
	return nil
}

func report(logger *log.Logger, tr *session.Transcript) {
	for _, rd := range tr.Rounds {
		logger.Info("round", "n", rd.Number, "sent", rd.Sent, "received", rd.Received)
	}
	logger.Info("done", "peer", logging.Short(tr.Peer.String()), "names", len(tr.Names))
}

func main() {
	if err := fang.Execute(
		context.Background(),
		newRootCommand(),
		fang.WithVersion(versioninfo.Short()),
	); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/TheusHen/soroban/soroban/config"
	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/directory/bolt"
	"github.com/TheusHen/soroban/soroban/directory/memory"
	"github.com/TheusHen/soroban/soroban/logging"
	"github.com/TheusHen/soroban/soroban/metrics"
	"github.com/TheusHen/soroban/soroban/rpc"
	"github.com/TheusHen/soroban/soroban/transport/quic"
)

const shutdownTimeout = 5 * time.Second

type flags struct {
	configFile string
	hostname   string
	port       int
	http3Port  int
	backend    string
	boltPath   string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "soroban-directory",
		Short: "Soroban directory server",
		Long: `Serves a Soroban directory: a public add/list/remove store of short-lived
entries that soroban clients rendezvous through, spoken as JSON-RPC on /rpc.
Entries expire according to the mode they were added with.`,
		Example: `  # Local in-memory directory on port 4242
  soroban-directory

  # Persistent directory with an HTTP/3 listener
  soroban-directory --backend bolt --bolt-path /var/lib/soroban.db --http3-port 4243`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(f.configFile)
			if err != nil {
				return fmt.Errorf("failed to load config file: %w", err)
			}
			config.Merge(&cfg, config.Config{
				Log: config.LogConfig{Level: f.logLevel},
				Server: config.ServerConfig{
					Hostname:  f.hostname,
					Port:      f.port,
					HTTP3Port: f.http3Port,
					Backend:   f.backend,
					BoltPath:  f.boltPath,
				},
			})
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, f.configFile)
		},
	}

	cmd.Flags().StringVarP(&f.configFile, "config", "c", "", "configuration file")
	cmd.Flags().StringVar(&f.hostname, "hostname", "", "listen host")
	cmd.Flags().IntVar(&f.port, "port", 0, "HTTP listen port")
	cmd.Flags().IntVar(&f.http3Port, "http3-port", 0, "HTTP/3 listen port, 0 to disable")
	cmd.Flags().StringVar(&f.backend, "backend", "", "storage backend (memory, bolt)")
	cmd.Flags().StringVar(&f.boltPath, "bolt-path", "", "bolt database file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "logging level (debug, info, warn, error)")

	return cmd
}

type backend interface {
	directory.Directory
	rpc.Stater
}

func openBackend(cfg config.ServerConfig, logger *log.Logger) (backend, func() error, error) {
	switch cfg.Backend {
	case "bolt":
		s, err := bolt.Open(cfg.BoltPath, cfg.VacuumInterval, bolt.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s := memory.New(memory.WithCapacity(cfg.Capacity))
		return s, func() error { return nil }, nil
	}
}

func serve(ctx context.Context, cfg config.Config, configFile string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, closeLog, err := logging.Open(cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()
	logger, err := logging.New(w, "soroban-directory", cfg.Log.Level)
	if err != nil {
		return err
	}

	store, closeStore, err := openBackend(cfg.Server, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	policy, err := cfg.Policy()
	if err != nil {
		return err
	}
	handler, err := rpc.NewServer(store,
		rpc.WithServerLogger(logger),
		rpc.WithServerMetrics(m, reg),
		rpc.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
		rpc.WithPolicy(policy),
	)
	if err != nil {
		return err
	}

	var h3 *quic.Server
	if cfg.Server.HTTP3Port > 0 {
		h3Addr := net.JoinHostPort(cfg.Server.Hostname, strconv.Itoa(cfg.Server.HTTP3Port))
		h3, err = quic.Listen(h3Addr, cfg.Server.Hostname, handler)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	addr := net.JoinHostPort(cfg.Server.Hostname, strconv.Itoa(cfg.Server.Port))
	httpSrv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		logger.Info("listening", "addr", addr, "backend", cfg.Server.Backend)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if h3 != nil {
		g.Go(func() error {
			logger.Info("listening for HTTP/3", "addr", h3.AddrString())
			return h3.Serve()
		})
	}

	if configFile != "" {
		g.Go(func() error {
			return config.Watch(gctx, configFile, func(c config.Config) {
				p, err := c.Policy()
				if err != nil {
					logger.Error("confidential rules rejected", "err", err)
					return
				}
				handler.SetPolicy(p)
				logger.Info("confidential rules reloaded", "rules", p.Len())
			}, func(err error) {
				logger.Warn("config reload failed", "err", err)
			})
		})
	}

	if mem, ok := store.(*memory.Store); ok && cfg.Server.VacuumInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(cfg.Server.VacuumInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if n := mem.Vacuum(); n > 0 {
						logger.Debug("vacuumed expired entries", "count", n)
					}
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		if h3 != nil {
			err = errors.Join(err, h3.Close())
		}
		return err
	})

	return g.Wait()
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

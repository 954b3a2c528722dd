// Package config loads soroban client and directory settings from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TheusHen/soroban/soroban/confidential"
	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/session"
)

// Environment overrides.
const (
	EnvDirectoryURL = "SOROBAN_DIRECTORY_URL"
	EnvTor          = "SOROBAN_TOR"
	EnvLogLevel     = "SOROBAN_LOG_LEVEL"
)

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Directory  DirectoryConfig  `yaml:"directory"`
	Rendezvous RendezvousConfig `yaml:"rendezvous"`
	Server     ServerConfig     `yaml:"server"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File is "-" for stderr.
	File string `yaml:"file"`
}

// DirectoryConfig selects the directory a client talks to.
type DirectoryConfig struct {
	URL     string        `yaml:"url"`
	Tor     string        `yaml:"tor"`
	HTTP3   bool          `yaml:"http3"`
	Timeout time.Duration `yaml:"timeout"`
	// SigningKey is a hex 32-byte key that signs calls on protected names.
	SigningAlgorithm string `yaml:"signingAlgorithm"`
	SigningKey       string `yaml:"signingKey"`
}

type RendezvousConfig struct {
	Name              string        `yaml:"name"`
	Role              string        `yaml:"role"`
	Rounds            int           `yaml:"rounds"`
	HashName          bool          `yaml:"hashName"`
	ExtraIndirection  bool          `yaml:"extraIndirection"`
	Compression       bool          `yaml:"compression"`
	DiscoveryAttempts int           `yaml:"discoveryAttempts"`
	HandshakeAttempts int           `yaml:"handshakeAttempts"`
	MessageAttempts   int           `yaml:"messageAttempts"`
	PollInterval      time.Duration `yaml:"pollInterval"`
}

// ServerConfig configures soroban-directory.
type ServerConfig struct {
	Hostname       string        `yaml:"hostname"`
	Port           int           `yaml:"port"`
	HTTP3Port      int           `yaml:"http3Port"`
	Backend        string        `yaml:"backend"`
	BoltPath       string        `yaml:"boltPath"`
	Capacity       int           `yaml:"capacity"`
	VacuumInterval time.Duration `yaml:"vacuumInterval"`
	RateLimit      float64       `yaml:"rateLimit"`
	RateBurst      int           `yaml:"rateBurst"`
	// Confidential protects name prefixes behind signatures.
	Confidential []confidential.Rule `yaml:"confidential"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", File: "-"},
		Directory: DirectoryConfig{
			URL:     "http://localhost:4242/rpc",
			Timeout: 30 * time.Second,
		},
		Rendezvous: RendezvousConfig{
			Name:              "soroban.demo",
			Role:              "demo",
			Rounds:            session.DefaultRounds,
			DiscoveryAttempts: session.DefaultDiscoveryAttempts,
			HandshakeAttempts: session.DefaultHandshakeAttempts,
			MessageAttempts:   session.DefaultMessageAttempts,
			PollInterval:      directory.DefaultInterval,
		},
		Server: ServerConfig{
			Hostname:       "localhost",
			Port:           4242,
			Backend:        "memory",
			BoltPath:       "soroban-directory.db",
			VacuumInterval: 30 * time.Second,
			RateLimit:      50,
			RateBurst:      100,
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file yields the defaults; a malformed one is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return Config{}, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}
	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Merge copies the non-zero fields of src into dst.
func Merge(dst *Config, src Config) {
	mergeString(&dst.Log.Level, src.Log.Level)
	mergeString(&dst.Log.File, src.Log.File)

	mergeString(&dst.Directory.URL, src.Directory.URL)
	mergeString(&dst.Directory.Tor, src.Directory.Tor)
	dst.Directory.HTTP3 = dst.Directory.HTTP3 || src.Directory.HTTP3
	if src.Directory.Timeout != 0 {
		dst.Directory.Timeout = src.Directory.Timeout
	}
	mergeString(&dst.Directory.SigningAlgorithm, src.Directory.SigningAlgorithm)
	mergeString(&dst.Directory.SigningKey, src.Directory.SigningKey)

	r, s := &dst.Rendezvous, src.Rendezvous
	mergeString(&r.Name, s.Name)
	mergeString(&r.Role, s.Role)
	mergeInt(&r.Rounds, s.Rounds)
	r.HashName = r.HashName || s.HashName
	r.ExtraIndirection = r.ExtraIndirection || s.ExtraIndirection
	r.Compression = r.Compression || s.Compression
	mergeInt(&r.DiscoveryAttempts, s.DiscoveryAttempts)
	mergeInt(&r.HandshakeAttempts, s.HandshakeAttempts)
	mergeInt(&r.MessageAttempts, s.MessageAttempts)
	if s.PollInterval != 0 {
		r.PollInterval = s.PollInterval
	}

	v, w := &dst.Server, src.Server
	mergeString(&v.Hostname, w.Hostname)
	mergeInt(&v.Port, w.Port)
	mergeInt(&v.HTTP3Port, w.HTTP3Port)
	mergeString(&v.Backend, w.Backend)
	mergeString(&v.BoltPath, w.BoltPath)
	mergeInt(&v.Capacity, w.Capacity)
	if w.VacuumInterval != 0 {
		v.VacuumInterval = w.VacuumInterval
	}
	if w.RateLimit != 0 {
		v.RateLimit = w.RateLimit
	}
	mergeInt(&v.RateBurst, w.RateBurst)
	if len(w.Confidential) > 0 {
		v.Confidential = w.Confidential
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

func ApplyEnvOverrides(cfg *Config) {
	if url := strings.TrimSpace(os.Getenv(EnvDirectoryURL)); url != "" {
		cfg.Directory.URL = url
	}
	if tor := strings.TrimSpace(os.Getenv(EnvTor)); tor != "" {
		// Accept a boolean for the usual local Tor port.
		if on, err := strconv.ParseBool(tor); err == nil {
			if on {
				cfg.Directory.Tor = "127.0.0.1:9050"
			} else {
				cfg.Directory.Tor = ""
			}
		} else {
			cfg.Directory.Tor = tor
		}
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		cfg.Log.Level = level
	}
}

func (c Config) Validate() error {
	switch c.Rendezvous.Role {
	case "demo", "server":
	default:
		if _, err := session.ParseRole(c.Rendezvous.Role); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if c.Rendezvous.Rounds <= 0 {
		return fmt.Errorf("config: rounds must be positive, got %d", c.Rendezvous.Rounds)
	}
	if c.Directory.Tor != "" && c.Directory.HTTP3 {
		return errors.New("config: tor and http3 are mutually exclusive")
	}
	switch c.Server.Backend {
	case "memory", "bolt":
	default:
		return fmt.Errorf("config: unknown backend %q", c.Server.Backend)
	}
	if _, err := c.Signer(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	return nil
}

// Signer returns the client signer, or nil when no signing key is set.
func (c Config) Signer() (confidential.Signer, error) {
	d := c.Directory
	if d.SigningKey == "" {
		return nil, nil
	}
	alg := d.SigningAlgorithm
	if alg == "" {
		alg = confidential.AlgorithmNacl
	}
	s, err := confidential.NewSigner(alg, d.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return s, nil
}

// Policy compiles the server's confidential rules.
func (c Config) Policy() (*confidential.Policy, error) {
	p, err := confidential.NewPolicy(c.Server.Confidential)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return p, nil
}

// SessionOptions maps the rendezvous section to session options. Directory,
// identity and logging are left to the caller.
func (c Config) SessionOptions() session.Options {
	r := c.Rendezvous
	budget := func(attempts int) directory.Budget {
		return directory.Budget{Attempts: attempts, Interval: r.PollInterval}
	}
	return session.Options{
		BaseName:         r.Name,
		Rounds:           r.Rounds,
		HashBaseName:     r.HashName,
		ExtraIndirection: r.ExtraIndirection,
		Compression:      r.Compression,
		DiscoveryBudget:  budget(r.DiscoveryAttempts),
		HandshakeBudget:  budget(r.HandshakeAttempts),
		MessageBudget:    budget(r.MessageAttempts),
	}
}

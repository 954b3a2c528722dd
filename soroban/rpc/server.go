package rpc

import (
	"encoding/json"
	"math/rand/v2"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	gorpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TheusHen/soroban/soroban/confidential"
	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/logging"
	"github.com/TheusHen/soroban/soroban/metrics"
	"github.com/TheusHen/soroban/soroban/protocol"
)

// Stater is implemented by backends that can report their size.
type Stater interface {
	Stats() (names, entries int)
}

// Server exposes a directory.Directory over JSON-RPC.
//
// Routes:
//
//	POST /rpc      directory.List, directory.Add, directory.Remove
//	GET  /status   name and entry counts
//	GET  /metrics  Prometheus metrics, when a gatherer is configured
type Server struct {
	dir      directory.Directory
	log      *log.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	limiter  *limiter
	policy   atomic.Pointer[confidential.Policy]
	now      func() time.Time
	mux      *http.ServeMux
}

type ServerOption func(*Server)

func WithServerLogger(l *log.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

func WithServerMetrics(m *metrics.Metrics, g prometheus.Gatherer) ServerOption {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithRateLimit allows each client rps requests per second with the given
// burst. Clients are keyed by remote IP.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) { s.limiter = newLimiter(rps, burst) }
}

// WithPolicy guards names with confidential rules.
func WithPolicy(p *confidential.Policy) ServerOption {
	return func(s *Server) { s.policy.Store(p) }
}

func NewServer(dir directory.Directory, opts ...ServerOption) (*Server, error) {
	s := &Server{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrDiscard(s.log)

	rs := gorpc.NewServer()
	rs.RegisterCodec(json2.NewCodec(), "application/json")
	if err := rs.RegisterService(&directoryService{s: s}, protocol.Service); err != nil {
		return nil, err
	}

	s.mux = http.NewServeMux()
	s.mux.Handle("/rpc", s.rateLimited(http.MaxBytesHandler(rs, protocol.MaxBodySize)))
	s.mux.HandleFunc("/status", s.handleStatus)
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return s, nil
}

// SetPolicy replaces the confidential rules. It is safe to call while
// serving.
func (s *Server) SetPolicy(p *confidential.Policy) {
	s.policy.Store(p)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !s.limiter.allow(clientKey(r), s.now()) {
			s.metrics.ServerRequest("rpc", "limited")
			_ = protocol.WriteError(w, protocol.CodeRateLimited, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// directoryService holds the JSON-RPC methods of the directory service.
type directoryService struct {
	s *Server
}

func (d *directoryService) List(r *http.Request, args *protocol.ListArgs, reply *protocol.ListReply) error {
	s := d.s
	if args.Name == "" {
		return s.done(protocol.MethodList, invalidParams())
	}
	rule := s.policy.Load().Lookup(args.Name, args.PublicKey)
	if rule.Confidential {
		if err := rule.Verify(args.Auth, args.SignedMessage(), s.now()); err != nil {
			s.log.Warn("list refused", "name", logging.Short(args.Name), "err", err)
			return s.done(protocol.MethodList, protocol.NewError(protocol.CodeUnauthorized, "unauthorized"))
		}
	}

	entries, err := s.dir.List(r.Context(), args.Name)
	if err != nil {
		s.log.Error("list failed", "name", logging.Short(args.Name), "err", err)
		return s.done(protocol.MethodList, protocol.NewError(protocol.CodeBackendFailure, "directory unavailable"))
	}
	if args.Limit > 0 && len(entries) > args.Limit {
		rand.Shuffle(len(entries), func(i, j int) { entries[i], entries[j] = entries[j], entries[i] })
		entries = entries[:args.Limit]
	}
	if entries == nil {
		entries = []string{}
	}
	*reply = protocol.ListReply{Name: args.Name, Entries: entries}
	return s.done(protocol.MethodList, nil)
}

func (d *directoryService) Add(r *http.Request, args *protocol.AddArgs, reply *protocol.StatusReply) error {
	s := d.s
	if args.Name == "" || args.Entry == "" {
		return s.done(protocol.MethodAdd, invalidParams())
	}
	*reply = protocol.StatusReply{Status: protocol.StatusError}
	if !s.writable(protocol.MethodAdd, args.Name, args.Auth, args.SignedMessage()) {
		return s.done(protocol.MethodAdd, nil)
	}
	if err := s.dir.Add(r.Context(), args.Name, args.Entry, directory.Mode(args.Mode)); err != nil {
		s.log.Error("add failed", "name", logging.Short(args.Name), "err", err)
		return s.done(protocol.MethodAdd, nil)
	}
	reply.Status = protocol.StatusSuccess
	return s.done(protocol.MethodAdd, nil)
}

func (d *directoryService) Remove(r *http.Request, args *protocol.RemoveArgs, reply *protocol.StatusReply) error {
	s := d.s
	if args.Name == "" || args.Entry == "" {
		return s.done(protocol.MethodRemove, invalidParams())
	}
	*reply = protocol.StatusReply{Status: protocol.StatusError}
	if !s.writable(protocol.MethodRemove, args.Name, args.Auth, args.SignedMessage()) {
		return s.done(protocol.MethodRemove, nil)
	}
	if err := s.dir.Remove(r.Context(), args.Name, args.Entry); err != nil {
		s.log.Error("remove failed", "name", logging.Short(args.Name), "err", err)
		return s.done(protocol.MethodRemove, nil)
	}
	reply.Status = protocol.StatusSuccess
	return s.done(protocol.MethodRemove, nil)
}

// writable reports whether a caller may modify name. Names under a
// read-only rule need the rule's signature.
func (s *Server) writable(m protocol.Method, name string, auth protocol.Auth, message string) bool {
	rule := s.policy.Load().Lookup(name, auth.PublicKey)
	if !rule.ReadOnly {
		return true
	}
	if err := rule.Verify(auth, message, s.now()); err != nil {
		s.log.Warn("write refused", "method", m, "name", logging.Short(name), "err", err)
		return false
	}
	return true
}

// done records the outcome of a call and converts rpcErr to the error the
// codec expects.
func (s *Server) done(m protocol.Method, rpcErr *protocol.Error) error {
	if rpcErr != nil {
		s.log.Debug("rpc failed", "method", m, "code", rpcErr.Code, "msg", rpcErr.Message)
		s.metrics.ServerRequest(m.String(), "error")
		return rpcErr
	}
	s.metrics.ServerRequest(m.String(), "ok")
	return nil
}

func invalidParams() *protocol.Error {
	return protocol.NewError(protocol.CodeInvalidParams, "invalid params")
}

type statusReply struct {
	Names   int `json:"names"`
	Entries int `json:"entries"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var st statusReply
	if stater, ok := s.dir.(Stater); ok {
		st.Names, st.Entries = stater.Stats()
		s.metrics.SetEntries(st.Entries)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(st)
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

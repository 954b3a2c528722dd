// Package quic carries directory JSON-RPC over HTTP/3.
package quic

import (
	"errors"
	"net"
	"net/http"
	"time"

	q "github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

const idleTimeout = 30 * time.Second

func quicConfig() *q.Config {
	return &q.Config{MaxIdleTimeout: idleTimeout}
}

// Server serves an http.Handler over HTTP/3.
type Server struct {
	conn  net.PacketConn
	inner *http3.Server
}

// Listen binds a UDP socket on addr. Call Serve to start answering.
func Listen(addr, hostname string, h http.Handler) (*Server, error) {
	tlsConf, err := NewServerTLSConfig(hostname)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		conn: conn,
		inner: &http3.Server{
			Handler:    h,
			TLSConfig:  tlsConf,
			QUICConfig: quicConfig(),
		},
	}, nil
}

// Serve blocks until Close is called.
func (s *Server) Serve() error {
	err := s.inner.Serve(s.conn)
	if errors.Is(err, http.ErrServerClosed) || errors.Is(err, q.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }

func (s *Server) AddrString() string {
	if s.conn == nil {
		return ""
	}
	return s.conn.LocalAddr().String()
}

func (s *Server) Close() error {
	err := s.inner.Close()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

// NewTransport returns an http.RoundTripper speaking HTTP/3.
// Close it when done to release its UDP socket.
func NewTransport() *http3.Transport {
	return &http3.Transport{
		TLSClientConfig: NewClientTLSConfig(),
		QUICConfig:      quicConfig(),
	}
}

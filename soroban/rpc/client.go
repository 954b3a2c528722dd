// Package rpc speaks the directory JSON-RPC protocol: a Client usable as a
// directory.Directory and a Server exposing any directory.Directory.
package rpc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/TheusHen/soroban/soroban/confidential"
	"github.com/TheusHen/soroban/soroban/directory"
	"github.com/TheusHen/soroban/soroban/logging"
	"github.com/TheusHen/soroban/soroban/metrics"
	"github.com/TheusHen/soroban/soroban/protocol"
	"github.com/TheusHen/soroban/soroban/transport/quic"
)

const (
	// DefaultURL is the JSON-RPC endpoint of a local directory.
	DefaultURL = "http://localhost:4242/rpc"

	// UserAgent is sent with every call. It matches the other soroban
	// clients so requests do not stand out.
	UserAgent = "HotJava/1.1.2 FCS"

	DefaultTimeout = 30 * time.Second
)

// Client is a remote directory.Directory.
type Client struct {
	url     string
	http    *http.Client
	closer  io.Closer
	tor     *torDialer
	signer  confidential.Signer
	now     func() time.Time
	log     *log.Logger
	metrics *metrics.Metrics
}

type ClientOption func(*clientOptions)

type clientOptions struct {
	tor     string
	http3   bool
	timeout time.Duration
	signer  confidential.Signer
	log     *log.Logger
	metrics *metrics.Metrics
	rt      http.RoundTripper
}

// WithTor routes calls through the SOCKS5 proxy at addr.
func WithTor(addr string) ClientOption {
	return func(o *clientOptions) { o.tor = addr }
}

// WithHTTP3 dials the directory over QUIC.
func WithHTTP3() ClientOption {
	return func(o *clientOptions) { o.http3 = true }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithSigner signs every call, for directories that keep some names
// confidential or read-only.
func WithSigner(s confidential.Signer) ClientOption {
	return func(o *clientOptions) { o.signer = s }
}

func WithLogger(l *log.Logger) ClientOption {
	return func(o *clientOptions) { o.log = l }
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(o *clientOptions) { o.metrics = m }
}

// WithRoundTripper overrides the HTTP transport.
func WithRoundTripper(rt http.RoundTripper) ClientOption {
	return func(o *clientOptions) { o.rt = rt }
}

var _ directory.Directory = (*Client)(nil)

// NewClient returns a client for the directory at url.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if url == "" {
		url = DefaultURL
	}
	if o.tor != "" && o.http3 {
		return nil, fmt.Errorf("rpc: tor and http3 are mutually exclusive")
	}

	c := &Client{
		url:     url,
		signer:  o.signer,
		now:     time.Now,
		log:     logging.OrDiscard(o.log),
		metrics: o.metrics,
	}
	rt := o.rt
	switch {
	case rt != nil:
	case o.http3:
		tr := quic.NewTransport()
		c.closer = tr
		rt = tr
	case o.tor != "":
		d, err := newTorDialer(o.tor)
		if err != nil {
			return nil, err
		}
		c.tor = d
		rt = d.transport()
	default:
		rt = http.DefaultTransport
	}
	c.http = &http.Client{Transport: rt, Timeout: o.timeout}
	return c, nil
}

// Isolated returns a client that shares c's settings but reaches Tor over
// a new circuit. Without Tor it returns c. The returned client needs no
// separate Close.
func (c *Client) Isolated() (*Client, error) {
	if c.tor == nil {
		return c, nil
	}
	d, err := newTorDialer(c.tor.addr)
	if err != nil {
		return nil, err
	}
	iso := *c
	iso.tor = d
	iso.closer = nil
	iso.http = &http.Client{Transport: d.transport(), Timeout: c.http.Timeout}
	return &iso, nil
}

// Close releases transport resources.
func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *Client) Add(ctx context.Context, name, entry string, mode directory.Mode) error {
	var reply protocol.StatusReply
	args := protocol.AddArgs{Name: name, Entry: entry, Mode: string(mode)}
	if err := c.sign(&args.Auth, args.SignedMessage); err != nil {
		return &directory.CallError{Method: protocol.MethodAdd.String(), Err: err}
	}
	if err := c.call(ctx, protocol.MethodAdd, args, &reply); err != nil {
		return err
	}
	return checkStatus(protocol.MethodAdd, reply)
}

func (c *Client) List(ctx context.Context, name string) ([]string, error) {
	var reply protocol.ListReply
	args := protocol.ListArgs{Name: name, Entries: []string{}}
	if err := c.sign(&args.Auth, args.SignedMessage); err != nil {
		return nil, &directory.CallError{Method: protocol.MethodList.String(), Err: err}
	}
	if err := c.call(ctx, protocol.MethodList, args, &reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

func (c *Client) Remove(ctx context.Context, name, entry string) error {
	var reply protocol.StatusReply
	args := protocol.RemoveArgs{Name: name, Entry: entry}
	if err := c.sign(&args.Auth, args.SignedMessage); err != nil {
		return &directory.CallError{Method: protocol.MethodRemove.String(), Err: err}
	}
	if err := c.call(ctx, protocol.MethodRemove, args, &reply); err != nil {
		return err
	}
	return checkStatus(protocol.MethodRemove, reply)
}

// sign fills a with a signature of message, which is read after the
// timestamp is set.
func (c *Client) sign(a *protocol.Auth, message func() string) error {
	if c.signer == nil {
		return nil
	}
	a.PublicKey = c.signer.PublicKey()
	a.Algorithm = c.signer.Algorithm()
	a.Timestamp = c.now().UnixNano()
	sig, err := c.signer.Sign(message())
	if err != nil {
		return err
	}
	a.Signature = sig
	return nil
}

func checkStatus(m protocol.Method, reply protocol.StatusReply) error {
	if reply.Status != protocol.StatusSuccess {
		return &directory.CallError{Method: m.String(), Err: fmt.Errorf("status %q", reply.Status)}
	}
	return nil
}

func (c *Client) call(ctx context.Context, m protocol.Method, args, reply any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RPCCall(m.String(), err, time.Since(start))
		if err != nil {
			c.log.Debug("directory call failed", "method", m, "err", err)
			err = &directory.CallError{Method: m.String(), Err: err}
		}
	}()

	body, err := protocol.EncodeRequest(m, args)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusBadRequest:
		// Some servers answer JSON-RPC errors with 400.
		err := protocol.DecodeResponse(resp.Body, reply)
		if resp.StatusCode != http.StatusOK && err == nil {
			return fmt.Errorf("http status %d", resp.StatusCode)
		}
		return err
	default:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, protocol.MaxBodySize))
		return fmt.Errorf("http status %d", resp.StatusCode)
	}
}

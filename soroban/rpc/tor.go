package rpc

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net"
	"net/http"

	"golang.org/x/net/proxy"
)

// torDialer routes connections through a SOCKS5 proxy under one isolation
// tag. Tor keeps streams with different credentials on different circuits,
// so each torDialer gets its own circuit. Hostnames are resolved by the
// proxy.
type torDialer struct {
	addr   string
	user   string
	dialer proxy.ContextDialer
}

func newTorDialer(addr string) (*torDialer, error) {
	var tag [16]byte
	if _, err := rand.Read(tag[:]); err != nil {
		return nil, err
	}
	user := "soroban:" + hex.EncodeToString(tag[:])
	auth := &proxy.Auth{User: user, Password: string([]byte{0x00})}
	d, err := proxy.SOCKS5("tcp", addr, auth, &net.Dialer{})
	if err != nil {
		return nil, err
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("rpc: socks5 dialer does not support contexts")
	}
	return &torDialer{addr: addr, user: user, dialer: cd}, nil
}

func (d *torDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return d.dialer.DialContext(ctx, network, address)
}

func (d *torDialer) transport() *http.Transport {
	return &http.Transport{DialContext: d.DialContext, DisableKeepAlives: true}
}

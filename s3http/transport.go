// Package s3http defines the external collaborators spec §6 treats as
// opaque services: the HTTP/1.1+TLS transport, the async host-listener
// that resolves the bucket endpoint to VIP addresses, and a small event
// loop abstraction standing in for the caller-supplied bootstrap event
// loops. Only thin interfaces plus a reasonable net/http-based default
// are provided; a production embedding is expected to supply its own.
package s3http

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Channel is one reusable HTTP exchange path to a single resolved
// address, i.e. what spec §3 calls a VIP-Connection's live transport.
type Channel interface {
	// Do issues req over this channel and returns the raw response. The
	// caller is responsible for closing resp.Body.
	Do(req *http.Request) (*http.Response, error)
	// Close tears down the channel's underlying connection(s).
	Close() error
}

// Transport creates Channels bound to a single resolved address. One
// Transport instance is shared by every VIP-Connection on a given VIP,
// matching spec §3's "owns a connection manager pointing at that IP".
type Transport interface {
	// Dial establishes (or reuses pooled) connectivity to hostPort and
	// returns a Channel for issuing requests to it.
	Dial(ctx context.Context, hostPort string) (Channel, error)
}

// NewDefaultTransport returns a Transport backed by *http.Transport, with
// HTTP/2 enabled over TLS via golang.org/x/net/http2, matching how S3
// itself negotiates protocol.
func NewDefaultTransport(tlsConfig *tls.Config) Transport {
	if tlsConfig == nil {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12} //nolint:gosec // matched by caller override
	}
	return &defaultTransport{tlsConfig: tlsConfig}
}

type defaultTransport struct {
	tlsConfig *tls.Config
}

func (d *defaultTransport) Dial(_ context.Context, hostPort string) (Channel, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, hostPort)
		},
		DialTLSContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			rawConn, err := dialer.DialContext(ctx, network, hostPort)
			if err != nil {
				return nil, err
			}
			tlsConn := tls.Client(rawConn, d.tlsConfig)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				_ = rawConn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     90 * time.Second,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		// HTTP/2 is an enhancement; fall back to HTTP/1.1 if it cannot
		// be configured (e.g. custom DialTLSContext already set by a
		// wrapping transport).
		transport.TLSClientConfig = d.tlsConfig
	}
	return &httpChannel{client: &http.Client{Transport: transport}, transport: transport}, nil
}

type httpChannel struct {
	client    *http.Client
	transport *http.Transport
}

func (c *httpChannel) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req) //nolint:bodyclose // caller closes response body
}

func (c *httpChannel) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

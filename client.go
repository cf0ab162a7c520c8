// Package s3transfer implements a high-throughput S3 transfer
// orchestrator: a pool of VIP-bound connections driven by a single
// cooperative work loop, scheduling part-level HTTP requests on behalf
// of auto-ranged GET, auto-ranged PUT (multipart upload), and default
// passthrough meta-requests.
package s3transfer

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/s3transfer/s3transfer/internal/attrs"
	"github.com/s3transfer/s3transfer/internal/clock"
	"github.com/s3transfer/s3transfer/metarequest"
	"github.com/s3transfer/s3transfer/retrystrategy"
	"github.com/s3transfer/s3transfer/s3http"
	"github.com/s3transfer/s3transfer/signing"
	"github.com/s3transfer/s3transfer/vip"
)

// Client owns a bucket's VIP pool and the single work-loop goroutine
// that schedules sub-requests across it (spec §3-§5).
//
// Client's fields fall into the two categories spec §5 requires: fields
// touched only from the work loop's own goroutine ("threaded", listed
// under the loop comment below) and fields safe to touch from any
// goroutine (externalRefs and pendingRequestCount, guarded by atomic
// operations, plus the handful of pointers set once at construction and
// never mutated afterward).
type Client struct {
	opts          clientOptions
	signingCache  *signing.Cache
	retryStrategy retrystrategy.Strategy
	hostListener  s3http.HostListener
	transport     s3http.Transport
	signer        signing.Signer
	loop          s3http.EventLoop
	bodyLoops     s3http.EventLoopGroup

	idealVIPCount       int
	maxRequestsInFlight int
	maxPendingRequests  int

	listenerCloser io.Closer
	closedCh       chan struct{}

	externalRefs int32
	// pendingRequestCount counts Requests allocated but not yet
	// destroyed (their data delivered to the caller or discarded). Spec
	// places it in the synced category rather than threaded, since it
	// must be decremented from whichever goroutine actually destroys a
	// Request (the loop goroutine for PUT/default's immediate teardown,
	// a body event-loop goroutine for GET's ordered delivery), so it's
	// accessed atomically rather than confined to the loop goroutine.
	pendingRequestCount int32

	// --- threaded data: read/written only on the loop goroutine ---
	shuttingDown     bool
	closedDown       bool
	vips             []*vip.VIP
	idleConns        []*vip.Connection
	metaRequests     []*metaRequestEntry
	rrCursor         int
	requestsInFlight int
	nextMetaID       int64
}

// metaRequestEntry is the work loop's bookkeeping record for one
// in-flight meta-request.
type metaRequestEntry struct {
	id int64
	mr metarequest.MetaRequest
}

// NewClient builds a Client bound to a single bucket's endpoint,
// provisions its VIP pool sizing, and starts the work loop and host
// listener. The caller must supply WithBucket, WithSigner, and
// WithSigningConfig; every other option has a workable default.
func NewClient(opts ...ClientOption) (*Client, error) {
	o := defaultClientOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.bucket == "" {
		return nil, fmt.Errorf("s3transfer: WithBucket is required")
	}
	if o.signer == nil {
		return nil, fmt.Errorf("s3transfer: WithSigner is required")
	}
	if o.endpointHost == "" {
		region := o.signingConfig.Region
		if region == "" {
			o.endpointHost = fmt.Sprintf("%s.s3.amazonaws.com", o.bucket)
		} else {
			o.endpointHost = fmt.Sprintf("%s.s3.%s.amazonaws.com", o.bucket, region)
		}
	}

	transport := o.transport
	if transport == nil {
		tlsConfig := o.tlsConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12} //nolint:gosec // ServerName set below
		} else {
			tlsConfig = tlsConfig.Clone()
		}
		if tlsConfig.ServerName == "" {
			tlsConfig.ServerName = o.endpointHost
		}
		transport = s3http.NewDefaultTransport(tlsConfig)
	}

	hostListener := o.hostListener
	if hostListener == nil {
		clk := o.clock
		if clk == nil {
			clk = clock.NewRealClock()
		}
		hostListener = s3http.NewDNSHostListener(nil, defaultDNSHostAddressTTL, clk)
	}

	retryStrategy := o.retryStrategy
	if retryStrategy == nil {
		retryStrategy = retrystrategy.NewDefault(o.maxRetries, o.clock)
	}

	ideal := idealVIPCount(o.throughputTargetGbps)
	maxInFlight := ideal * o.numConnectionsPerVIP * maxRequestsMultiplier
	maxPending := o.maxPendingRequests
	if maxPending <= 0 {
		maxPending = maxInFlight * maxPendingRequestsMultiplier
	}
	c := &Client{
		opts:                o,
		signingCache:        signing.NewCache(o.signingConfig),
		retryStrategy:       retryStrategy,
		hostListener:        hostListener,
		transport:           transport,
		signer:              o.signer,
		loop:                s3http.NewSerialEventLoop(),
		bodyLoops:           s3http.NewEventLoopGroup(o.bodyEventLoops),
		idealVIPCount:       ideal,
		maxRequestsInFlight: maxInFlight,
		maxPendingRequests:  maxPending,
		closedCh:            make(chan struct{}),
		externalRefs:        1,
	}

	c.listenerCloser = hostListener.Resolve(context.Background(), o.endpointHost+":443", func(update s3http.HostUpdate) {
		c.loop.Schedule(func() { c.onHostUpdate(update) })
	})

	go func() {
		<-c.closedCh
		c.bodyLoops.Close()
		c.loop.Close()
	}()

	return c, nil
}

// Acquire adds an external reference to the client, mirroring spec §3's
// dual reference-counting model: the client keeps running (accepting new
// meta-requests) as long as at least one external reference is held.
func (c *Client) Acquire() *Client {
	atomic.AddInt32(&c.externalRefs, 1)
	return c
}

// Release drops an external reference. At zero, the client stops
// accepting new meta-requests and begins draining: existing
// meta-requests are cancelled, in-flight sub-requests are allowed to
// finish, and VIPs are torn down once idle.
func (c *Client) Release() {
	if atomic.AddInt32(&c.externalRefs, -1) == 0 {
		c.loop.Schedule(func() {
			c.shuttingDown = true
			c.tick()
		})
	}
}

// Closed returns a channel that is closed once the client has fully
// drained and torn down its VIP pool and host listener, for callers
// that want to wait out a graceful shutdown.
func (c *Client) Closed() <-chan struct{} {
	return c.closedCh
}

// MakeMetaRequest submits a new transfer and returns a handle to it once
// the work loop has admitted it (or an error if the client is shutting
// down). def.Bucket/Host/PartSize are filled in from the client's
// configuration unless overridden by opts.
func (c *Client) MakeMetaRequest(mrType metarequest.Type, key string, opts ...MetaRequestOption) (*MetaRequest, error) {
	if key == "" && mrType != metarequest.TypeDefault {
		return nil, fmt.Errorf("s3transfer: key must not be empty")
	}
	def := metarequest.Definition{
		Type:     mrType,
		Bucket:   c.opts.bucket,
		Key:      key,
		Host:     c.opts.endpointHost,
		PartSize: c.opts.partSize,
	}
	for _, opt := range opts {
		opt(&def)
	}
	if mrType != metarequest.TypeDefault {
		if def.PartSize < defaultPartSize || def.PartSize > c.opts.maxPartSize {
			return nil, fmt.Errorf("s3transfer: part size %d out of range [%d, %d]", def.PartSize, defaultPartSize, c.opts.maxPartSize)
		}
	}
	switch mrType {
	case metarequest.TypeGet:
		if def.Callbacks.OnBody == nil {
			return nil, fmt.Errorf("s3transfer: WithCallbacks must set OnBody for an auto-ranged GET")
		}
	case metarequest.TypePut:
		if def.InputBody == nil {
			return nil, fmt.Errorf("s3transfer: WithInputBody is required for an auto-ranged PUT")
		}
	}
	def.OnRequestDestroyed = func() {
		atomic.AddInt32(&c.pendingRequestCount, -1)
		c.loop.Schedule(c.tick)
	}

	type result struct {
		handle *MetaRequest
		err    error
	}
	resultCh := make(chan result, 1)
	c.loop.Schedule(func() {
		if c.shuttingDown {
			resultCh <- result{err: ErrShuttingDown}
			return
		}
		var mr metarequest.MetaRequest
		switch mrType {
		case metarequest.TypeGet:
			mr = metarequest.NewGet(def)
		case metarequest.TypePut:
			mr = metarequest.NewPut(def)
		default:
			mr = metarequest.NewDefault(def)
		}
		c.nextMetaID++
		entry := &metaRequestEntry{id: c.nextMetaID, mr: mr}
		c.metaRequests = append(c.metaRequests, entry)
		resultCh <- result{handle: &MetaRequest{client: c, entry: entry}}
		c.tick()
	})
	res := <-resultCh
	return res.handle, res.err
}

// onHostUpdate applies one host-listener delta to the VIP pool. Called
// only on the loop goroutine.
func (c *Client) onHostUpdate(update s3http.HostUpdate) {
	if update.Err != nil {
		return
	}
	for _, addr := range update.Removed {
		for i, v := range c.vips {
			if v.Address != addr {
				continue
			}
			v.MarkInactive()
			c.vips = append(c.vips[:i], c.vips[i+1:]...)
			v.Release()
			break
		}
	}
	for _, addr := range update.Added {
		if len(c.vips) >= c.idealVIPCount {
			break
		}
		manager := vip.NewDefaultConnectionManager(c.transport, addr, c.opts.numConnectionsPerVIP)
		v := vip.New(addr, manager, attrs.NewValues(), nil)
		conns := v.AddConnections(c.opts.numConnectionsPerVIP)
		c.vips = append(c.vips, v)
		c.idleConns = append(c.idleConns, conns...)
	}
	c.tick()
}

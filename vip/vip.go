// Package vip implements the VIP and VIP-Connection primitives from
// spec §3: one resolved endpoint address with a bounded pool of reusable
// HTTP connections, whose lifecycle is asynchronous and reference
// counted independently of the client's own shutdown.
package vip

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/s3transfer/s3transfer/internal/attrs"
	"github.com/s3transfer/s3transfer/request"
	"github.com/s3transfer/s3transfer/s3http"
)

// State is the lifecycle state of one VIP-Connection (spec §3).
type State int

const (
	StateIdle State = iota
	StateAcquiringHTTP
	StateSigning
	StateInFlight
	StateRetryWaiting
	StateRetired
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringHTTP:
		return "acquiring-http"
	case StateSigning:
		return "signing"
	case StateInFlight:
		return "in-flight"
	case StateRetryWaiting:
		return "retry-waiting"
	case StateRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// ConnectionManager is the consumed collaborator (spec §6) that enforces
// its own per-VIP concurrency and hands out live HTTP channels.
type ConnectionManager interface {
	Acquire(ctx context.Context) (s3http.Channel, error)
	Release(ch s3http.Channel)
	// Shutdown releases all channels and stops accepting new work. It
	// must be safe to call more than once.
	Shutdown()
}

// NewDefaultConnectionManager builds a ConnectionManager that lazily
// dials new channels via transport for hostPort, and pools already-open
// channels for reuse up to maxConns, mirroring the "connection managers
// are shared by all VIP-connections of one VIP" invariant of spec §5.
func NewDefaultConnectionManager(transport s3http.Transport, hostPort string, maxConns int) ConnectionManager {
	return &defaultConnManager{transport: transport, hostPort: hostPort, maxConns: maxConns}
}

type defaultConnManager struct {
	transport s3http.Transport
	hostPort  string
	maxConns  int

	mu       sync.Mutex
	idle     []s3http.Channel
	inflight int
	shutdown bool
}

func (m *defaultConnManager) Acquire(ctx context.Context) (s3http.Channel, error) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, context.Canceled
	}
	if n := len(m.idle); n > 0 {
		ch := m.idle[n-1]
		m.idle = m.idle[:n-1]
		m.inflight++
		m.mu.Unlock()
		return ch, nil
	}
	m.mu.Unlock()
	ch, err := m.transport.Dial(ctx, m.hostPort)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.inflight++
	m.mu.Unlock()
	return ch, nil
}

func (m *defaultConnManager) Release(ch s3http.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if m.shutdown || len(m.idle) >= m.maxConns {
		_ = ch.Close()
		return
	}
	m.idle = append(m.idle, ch)
}

func (m *defaultConnManager) Shutdown() {
	m.mu.Lock()
	m.shutdown = true
	idle := m.idle
	m.idle = nil
	m.mu.Unlock()
	for _, ch := range idle {
		_ = ch.Close()
	}
}

// VIP is one resolved endpoint address, owning a ConnectionManager and
// the Connections created against it.
type VIP struct {
	Address    string
	Attributes attrs.Values

	manager ConnectionManager

	mu          sync.Mutex
	active      bool
	connections []*Connection

	internalRefs int32
	onZeroRefs   func(*VIP)
}

// New creates a VIP bound to manager, active by default, holding one
// internal reference on behalf of the client's VIP list. onZeroRefs is
// invoked (at most once) when the internal ref count returns to zero,
// per spec §3's asynchronous-teardown model.
func New(address string, manager ConnectionManager, attributes attrs.Values, onZeroRefs func(*VIP)) *VIP {
	v := &VIP{
		Address:      address,
		Attributes:   attributes,
		manager:      manager,
		active:       true,
		internalRefs: 1,
		onZeroRefs:   onZeroRefs,
	}
	return v
}

// AddConnections creates n idle Connections bound to this VIP and
// returns them. Each holds one internal reference on the VIP.
func (v *VIP) AddConnections(n int) []*Connection {
	v.mu.Lock()
	defer v.mu.Unlock()
	conns := make([]*Connection, n)
	for i := range conns {
		v.retainLocked()
		conns[i] = &Connection{vip: v, state: StateIdle}
	}
	v.connections = append(v.connections, conns...)
	return conns
}

// MarkInactive stops the VIP from being handed out for new work. Its
// existing connections drain to retired as they finish their current
// exchange; see Connection.Finalize.
func (v *VIP) MarkInactive() {
	v.mu.Lock()
	v.active = false
	v.mu.Unlock()
}

// Active reports whether the VIP may still be scheduled onto.
func (v *VIP) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// Retain adds an internal reference to the VIP (e.g. for an in-flight
// Request bound to one of its connections).
func (v *VIP) Retain() {
	v.mu.Lock()
	v.retainLocked()
	v.mu.Unlock()
}

func (v *VIP) retainLocked() {
	atomic.AddInt32(&v.internalRefs, 1)
}

// Release drops an internal reference. At zero, the VIP's connection
// manager is shut down and onZeroRefs fires exactly once.
func (v *VIP) Release() {
	if atomic.AddInt32(&v.internalRefs, -1) == 0 {
		v.manager.Shutdown()
		if v.onZeroRefs != nil {
			v.onZeroRefs(v)
		}
	}
}

// Manager returns the VIP's connection manager, for acquiring channels.
func (v *VIP) Manager() ConnectionManager {
	return v.manager
}

// Connection is one reusable HTTP connection slot on a VIP (spec §3).
type Connection struct {
	vip *VIP

	mu           sync.Mutex
	state        State
	requestCount int
	current      *request.Request
}

// VIP returns the owning VIP.
func (c *Connection) VIP() *VIP {
	return c.vip
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bind transitions the connection to acquiring-http and records the
// Request now bound to it.
func (c *Connection) Bind(req *request.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateAcquiringHTTP
	c.current = req
}

// SetState updates the connection's lifecycle state.
func (c *Connection) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Current returns the Request currently bound to this connection, if
// any.
func (c *Connection) Current() *request.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Finalize unbinds the connection's current Request, bumps its request
// count, and reports whether the connection should be retired (either
// because it exceeded maxRequests, or because its VIP has since gone
// inactive) rather than returned to idle.
func (c *Connection) Finalize(maxRequests int) (retire bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
	c.requestCount++
	if !c.vip.Active() || (maxRequests > 0 && c.requestCount >= maxRequests) {
		c.state = StateRetired
		return true
	}
	c.state = StateIdle
	return false
}

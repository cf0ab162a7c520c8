package s3http

import (
	"context"
	"io"
	"net"
	"sort"
	"time"

	"github.com/s3transfer/s3transfer/internal/clock"
)

// HostUpdate reports a delta from the host-listener: addresses that have
// newly appeared, and addresses that have gone away, for the bucket's
// service endpoint. This is additive/subtractive rather than a
// replace-the-whole-list snapshot, matching spec §4.1's "adopts up to
// ideal_vip_count and ignores the rest" semantics, where the client only
// ever needs to know what changed.
type HostUpdate struct {
	Added   []string
	Removed []string
	Err     error
}

// HostListener is the consumed collaborator (spec §6) that pushes IP
// address changes for the bucket endpoint.
type HostListener interface {
	// Resolve begins continuous resolution of hostPort, invoking
	// callback on every change. The returned io.Closer stops resolution
	// and must not be followed by further callback invocations once
	// Close returns.
	Resolve(ctx context.Context, hostPort string, callback func(HostUpdate)) io.Closer
}

// NewDNSHostListener returns a HostListener that polls DNS via
// net.Resolver.LookupNetIP every interval, diffing the address set
// against its previous poll to synthesize Added/Removed. This is the
// default host-listener implementation described in spec §4.1: a
// single-shot lookup wrapped in a ticker loop.
func NewDNSHostListener(resolver *net.Resolver, ttl time.Duration, clk clock.Clock) HostListener {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &dnsHostListener{resolver: resolver, ttl: ttl, clock: clk}
}

type dnsHostListener struct {
	resolver *net.Resolver
	ttl      time.Duration
	clock    clock.Clock
}

func (d *dnsHostListener) Resolve(ctx context.Context, hostPort string, callback func(HostUpdate)) io.Closer {
	host, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		host, port = hostPort, "443"
	}
	ctx, cancel := context.WithCancel(ctx)
	task := &dnsListenerTask{cancel: cancel, done: make(chan struct{})}
	go task.run(ctx, d, host, port, callback)
	return task
}

type dnsListenerTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (t *dnsListenerTask) Close() error {
	t.cancel()
	<-t.done
	return nil
}

func (t *dnsListenerTask) run(ctx context.Context, d *dnsHostListener, host, port string, callback func(HostUpdate)) {
	defer close(t.done)
	timer := d.clock.NewTimer(0)
	defer timer.Stop()
	previous := map[string]struct{}{}
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.Chan():
			update, current := d.poll(ctx, host, port, previous)
			previous = current
			callback(update)
			timer.Reset(d.ttl)
		}
	}
}

func (d *dnsHostListener) poll(ctx context.Context, host, port string, previous map[string]struct{}) (HostUpdate, map[string]struct{}) {
	addrs, err := d.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return HostUpdate{Err: err}, previous
	}
	current := make(map[string]struct{}, len(addrs))
	for _, addr := range addrs {
		current[net.JoinHostPort(addr.String(), port)] = struct{}{}
	}
	var added, removed []string
	for hp := range current {
		if _, ok := previous[hp]; !ok {
			added = append(added, hp)
		}
	}
	for hp := range previous {
		if _, ok := current[hp]; !ok {
			removed = append(removed, hp)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return HostUpdate{Added: added, Removed: removed}, current
}

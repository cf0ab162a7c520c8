package s3transfer

import (
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/s3transfer/s3transfer/metarequest"
	"github.com/s3transfer/s3transfer/request"
	"github.com/s3transfer/s3transfer/vip"
)

// tick runs one pass of the scheduling algorithm from spec §4.1 steps
// 3-6. It must only ever be called on the loop goroutine. Pending VIP
// updates (step 1) and newly submitted meta-requests (step 2) are
// applied by their own Schedule callbacks before tick runs, so by the
// time tick executes, c.vips/c.idleConns/c.metaRequests already reflect
// them.
func (c *Client) tick() {
	if c.shuttingDown {
		for _, v := range c.vips {
			v.MarkInactive()
		}
		for _, e := range c.metaRequests {
			e.mr.Cancel(ErrShuttingDown)
		}
	}

	c.pruneFinished()

	for c.requestsInFlight < c.maxRequestsInFlight {
		// pending_request_count gates admission independent of
		// connection/in-flight count, so a slow OnBody consumer piling
		// up completed-but-undelivered parts in a meta-request's
		// ordered-delivery heap can't make the work loop allocate an
		// unbounded number of further Requests just because connections
		// keep freeing up.
		if atomic.LoadInt32(&c.pendingRequestCount) >= int32(c.maxPendingRequests) {
			break
		}
		conn := c.popIdleConn()
		if conn == nil {
			break
		}
		req, entry := c.nextSchedulable()
		if req == nil {
			c.idleConns = append(c.idleConns, conn)
			break
		}
		conn.Bind(req)
		c.requestsInFlight++
		atomic.AddInt32(&c.pendingRequestCount, 1)
		go c.runPipeline(entry, conn, req)
	}

	if c.shuttingDown && !c.closedDown && len(c.metaRequests) == 0 && c.requestsInFlight == 0 {
		c.finalizeShutdown()
	}
}

// nextSchedulable scans meta-requests round-robin, starting from
// rrCursor, for the first one with a request ready to go. It advances
// rrCursor past whatever it inspects, so repeated calls fairly rotate
// through the set rather than favoring the front of the slice.
func (c *Client) nextSchedulable() (*request.Request, *metaRequestEntry) {
	n := len(c.metaRequests)
	if n == 0 {
		return nil, nil
	}
	for tries := 0; tries < n; tries++ {
		idx := c.rrCursor
		c.rrCursor = (c.rrCursor + 1) % n
		entry := c.metaRequests[idx]
		req, status := entry.mr.NextRequest()
		if status == metarequest.StatusReady {
			return req, entry
		}
	}
	return nil, nil
}

// pruneFinished drops meta-requests that have fully completed (their
// finish callback has already fired), per spec §4.1 step 5.
func (c *Client) pruneFinished() {
	if len(c.metaRequests) == 0 {
		return
	}
	kept := c.metaRequests[:0]
	for _, e := range c.metaRequests {
		if !e.mr.Finished() {
			kept = append(kept, e)
		}
	}
	c.metaRequests = kept
	if len(c.metaRequests) == 0 {
		c.rrCursor = 0
	} else {
		c.rrCursor %= len(c.metaRequests)
	}
}

// popIdleConn removes and returns one idle connection bound to a still
// active VIP, dropping (and releasing) any it finds bound to a VIP that
// has since gone inactive.
func (c *Client) popIdleConn() *vip.Connection {
	for len(c.idleConns) > 0 {
		n := len(c.idleConns)
		conn := c.idleConns[n-1]
		c.idleConns = c.idleConns[:n-1]
		if conn.VIP().Active() {
			return conn
		}
		conn.VIP().Release()
	}
	return nil
}

// finalizeShutdown tears down the VIP pool and host listener once every
// meta-request has drained. The actual event-loop goroutines are closed
// by the reaper goroutine started in NewClient, since closing a loop
// from within its own running task would deadlock.
//
// VIPs are released concurrently via errgroup, since Release blocks on
// the VIP's connection manager shutting down every pooled connection
// (each a network syscall) and one client may hold many VIPs.
func (c *Client) finalizeShutdown() {
	c.closedDown = true

	// Every idle connection still holds the internal VIP ref it was
	// given in AddConnections. Connections that were actually scheduled
	// already released that ref on retirement (see onRequestComplete in
	// pipeline.go); idle ones never got the chance, so their ref is
	// released here instead, otherwise a VIP with unused connections
	// would never reach zero internal refs and its manager would never
	// shut down.
	for _, conn := range c.idleConns {
		conn.VIP().Release()
	}
	c.idleConns = nil

	var eg errgroup.Group
	for _, v := range c.vips {
		v := v
		eg.Go(func() error {
			v.Release()
			return nil
		})
	}
	_ = eg.Wait()
	c.vips = nil
	if c.listenerCloser != nil {
		_ = c.listenerCloser.Close()
	}
	c.signingCache.Close()
	close(c.closedCh)
}

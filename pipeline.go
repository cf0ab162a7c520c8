package s3transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/s3transfer/s3transfer/request"
	"github.com/s3transfer/s3transfer/retrystrategy"
	"github.com/s3transfer/s3transfer/vip"
)

// runPipeline drives one Request through sign -> acquire -> send ->
// classify -> retry-or-finish; each attempt signs the request before it
// acquires a channel from the VIP's connection manager. It runs on its
// own goroutine so that
// blocking network I/O never stalls the work loop. Completion is handed
// back to the loop goroutine via Schedule, since only it may touch
// threaded state (connection pools, in-flight counters, the
// meta-request list).
func (c *Client) runPipeline(entry *metaRequestEntry, conn *vip.Connection, req *request.Request) {
	ctx := context.Background()
	v := conn.VIP()

	token, _ := c.retryStrategy.AcquireToken(ctx, v.Address)
	result := c.attemptLoop(ctx, conn, req, token)
	c.retryStrategy.ReleaseToken(token)

	req.SetResult(result)
	c.loop.Schedule(func() { c.onRequestComplete(entry, conn, req) })
}

// attemptLoop issues req, retrying through c.retryStrategy until it
// succeeds, the strategy exhausts its budget, or the failure class isn't
// retryable at all.
func (c *Client) attemptLoop(ctx context.Context, conn *vip.Connection, req *request.Request, token retrystrategy.Token) request.Result {
	v := conn.VIP()
	authRefreshUsed := false

	for {
		req.BeginAttempt()

		conn.SetState(vip.StateSigning)
		cfg := c.signingCache.Config()
		httpReq, err := c.buildHTTPRequest(conn, req)
		if err != nil {
			return request.Result{Err: err, Class: retrystrategy.ClassInternal}
		}
		if signErr := c.signer.Sign(ctx, &cfg, httpSignable{httpReq}); signErr != nil {
			if !authRefreshUsed && cfg.Provider != nil {
				authRefreshUsed = true
				if refreshed, rerr := cfg.Provider.Refresh(ctx); rerr == nil && refreshed {
					if c.retryStrategy.ScheduleRetry(ctx, token, retrystrategy.ClassTransport) == nil {
						continue
					}
				}
			}
			return request.Result{Err: signErr, Class: retrystrategy.ClassAuth}
		}

		conn.SetState(vip.StateAcquiringHTTP)
		ch, err := v.Manager().Acquire(ctx)
		if err != nil {
			if c.retryStrategy.ScheduleRetry(ctx, token, retrystrategy.ClassTransport) == nil {
				continue
			}
			return request.Result{Err: err, Class: retrystrategy.ClassTransport}
		}

		conn.SetState(vip.StateInFlight)
		resp, doErr := ch.Do(httpReq)
		if doErr != nil {
			_ = ch.Close()
			if c.retryStrategy.ScheduleRetry(ctx, token, retrystrategy.ClassTransport) == nil {
				continue
			}
			return request.Result{Err: doErr, Class: retrystrategy.ClassTransport}
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			_ = ch.Close()
			if c.retryStrategy.ScheduleRetry(ctx, token, retrystrategy.ClassTransport) == nil {
				continue
			}
			return request.Result{Err: readErr, Class: retrystrategy.ClassTransport}
		}
		v.Manager().Release(ch)

		class := retrystrategy.Classify(resp.StatusCode, nil)
		result := request.Result{StatusCode: resp.StatusCode, Header: resp.Header, Body: body, Class: class}
		if class == retrystrategy.ClassNone {
			c.retryStrategy.RecordSuccess(token)
			return result
		}
		// A non-2xx response is still a completed HTTP exchange, not a
		// transport-level Go error, but callers branch on Result.Err to
		// tell success from failure, so a failing status must produce one.
		result.Err = fmt.Errorf("s3transfer: request failed with status %d", resp.StatusCode)
		conn.SetState(vip.StateRetryWaiting)
		if c.retryStrategy.ScheduleRetry(ctx, token, class) != nil {
			return result
		}
	}
}

// buildHTTPRequest translates a Request's wire-level Definition into a
// net/http request addressed at conn's resolved VIP, with the Host
// header set to the client's virtual-hosted bucket endpoint so TLS SNI
// and the S3 endpoint's routing agree (spec §6's "opaque HTTP
// transport" boundary).
func (c *Client) buildHTTPRequest(conn *vip.Connection, req *request.Request) (*http.Request, error) {
	u := url.URL{
		Scheme:   "https",
		Host:     conn.VIP().Address,
		Path:     req.Path,
		RawQuery: req.Query,
	}
	var body io.Reader
	if len(req.Body) > 0 {
		body = &byteReader{data: req.Body}
	}
	httpReq, err := http.NewRequest(req.Method, u.String(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Host = c.opts.endpointHost
	httpReq.ContentLength = int64(len(req.Body))
	for k, vals := range req.Header {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	return httpReq, nil
}

// byteReader is a minimal io.Reader over an in-memory byte slice,
// avoiding a bytes.Reader import for the one field this pipeline needs
// (Len is not used, since ContentLength is set explicitly above).
type byteReader struct {
	data []byte
	pos  int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// onRequestComplete applies a finished Request's result to its
// meta-request and recycles (or retires) its connection. Runs only on
// the loop goroutine.
func (c *Client) onRequestComplete(entry *metaRequestEntry, conn *vip.Connection, req *request.Request) {
	c.requestsInFlight--
	entry.mr.OnRequestFinished(req)
	c.bodyLoops.Next().Schedule(entry.mr.StreamReadyBodies)

	if conn.Finalize(c.opts.maxRequestsPerConnection) {
		if conn.VIP().Active() {
			// Retired at the recycle cap: a fresh slot on the same VIP
			// takes its place, so the VIP keeps its pool size.
			c.idleConns = append(c.idleConns, conn.VIP().AddConnections(1)...)
		}
		conn.VIP().Release()
	} else if conn.VIP().Active() {
		c.idleConns = append(c.idleConns, conn)
	} else {
		conn.VIP().Release()
	}

	c.tick()
}

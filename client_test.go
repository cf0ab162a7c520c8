package s3transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3transfer/s3transfer/metarequest"
	"github.com/s3transfer/s3transfer/s3http"
	"github.com/s3transfer/s3transfer/signing"
)

// fakeSigner is a no-op Signer: it never mutates the request, standing in
// for a real SigV4 implementation in tests that only exercise the
// orchestrator's own scheduling.
type fakeSigner struct{}

func (fakeSigner) Sign(context.Context, *signing.Config, signing.SignableRequest) error { return nil }

// fakeHostListener immediately reports one fixed VIP address and never
// updates again, avoiding any real DNS lookups in tests.
type fakeHostListener struct {
	addr string
}

func (f fakeHostListener) Resolve(_ context.Context, _ string, callback func(s3http.HostUpdate)) io.Closer {
	callback(s3http.HostUpdate{Added: []string{f.addr}})
	return nopCloser{}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fakeResponder maps a request's method+path+query to a canned response,
// so tests can drive the orchestrator against S3-shaped control-plane and
// data-plane responses without a real network.
type fakeResponder func(req *http.Request) *http.Response

type fakeTransport struct {
	mu        sync.Mutex
	responder fakeResponder
	requests  []*http.Request
}

func (f *fakeTransport) Dial(context.Context, string) (s3http.Channel, error) {
	return &fakeChannel{transport: f}, nil
}

type fakeChannel struct {
	transport *fakeTransport
}

func (c *fakeChannel) Do(req *http.Request) (*http.Response, error) {
	c.transport.mu.Lock()
	c.transport.requests = append(c.transport.requests, req)
	responder := c.transport.responder
	c.transport.mu.Unlock()
	return responder(req), nil
}

func (c *fakeChannel) Close() error { return nil }

func newTestClient(t *testing.T, responder fakeResponder, extra ...ClientOption) (*Client, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{responder: responder}
	opts := append([]ClientOption{
		WithBucket("my-bucket"),
		WithEndpointHost("my-bucket.s3.test-region.amazonaws.com"),
		WithSigner(fakeSigner{}),
		WithSigningConfig(signing.Config{Region: "test-region"}),
		WithTransport(transport),
		WithHostListener(fakeHostListener{addr: "10.0.0.1:443"}),
		WithConnectionsPerVIP(2),
		WithBodyEventLoops(1),
	}, extra...)
	client, err := NewClient(opts...)
	require.NoError(t, err)
	t.Cleanup(client.Release)
	return client, transport
}

func waitForFinish(t *testing.T, finished chan metarequest.FinishResult) metarequest.FinishResult {
	t.Helper()
	select {
	case r := <-finished:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for meta-request to finish")
		return metarequest.FinishResult{}
	}
}

func TestClient_DefaultPassthroughRoundTrip(t *testing.T) {
	t.Parallel()
	client, transport := newTestClient(t, func(req *http.Request) *http.Response {
		assert.Equal(t, http.MethodGet, req.Method)
		return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader([]byte("ok"))), Header: http.Header{}}
	})

	finished := make(chan metarequest.FinishResult, 1)
	handle, err := client.MakeMetaRequest(metarequest.TypeDefault, "", WithPassthroughRequest(http.MethodGet, "/health", nil), WithCallbacks(metarequest.Callbacks{
		OnFinish: func(r metarequest.FinishResult) { finished <- r },
	}))
	require.NoError(t, err)
	require.NotNil(t, handle)

	result := waitForFinish(t, finished)
	assert.True(t, result.Success)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Len(t, transport.requests, 1)
}

func TestClient_FailedStatusReachesOnFinishWithNonNilErr(t *testing.T) {
	t.Parallel()
	// 404 classifies as ClassServerPermanent, which is not retryable, so
	// this resolves after exactly one attempt with no backoff delay.
	client, _ := newTestClient(t, func(*http.Request) *http.Response {
		return &http.Response{StatusCode: http.StatusNotFound, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil))}
	})

	finished := make(chan metarequest.FinishResult, 1)
	_, err := client.MakeMetaRequest(metarequest.TypeDefault, "", WithPassthroughRequest(http.MethodGet, "/missing", nil), WithCallbacks(metarequest.Callbacks{
		OnFinish: func(r metarequest.FinishResult) { finished <- r },
	}))
	require.NoError(t, err)

	result := waitForFinish(t, finished)
	assert.False(t, result.Success)
	assert.Equal(t, http.StatusNotFound, result.ResponseStatus)
	assert.Error(t, result.Err, "a failed transfer must never reach OnFinish with a nil Err")
}

func TestClient_AutoRangedGetDeliversPartsInOrder(t *testing.T) {
	t.Parallel()
	const partSize = 8 << 20
	const total = int64(17 << 20)

	client, _ := newTestClient(t, func(req *http.Request) *http.Response {
		rangeHeader := req.Header.Get("Range")
		header := http.Header{}
		var start, end int64
		_, scanErr := fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		require.NoError(t, scanErr)
		body := make([]byte, end-start+1)
		if rangeHeader == "bytes=0-8388607" {
			header.Set("accept-ranges", "bytes")
			header.Set("Content-Range", fmt.Sprintf("bytes 0-8388607/%d", total))
		}
		return &http.Response{StatusCode: http.StatusPartialContent, Header: header, Body: io.NopCloser(bytes.NewReader(body))}
	})

	var mu sync.Mutex
	var deliveredOrder []int
	finished := make(chan metarequest.FinishResult, 1)
	_, err := client.MakeMetaRequest(metarequest.TypeGet, "big-object",
		WithPartSizeOverride(partSize),
		WithCallbacks(metarequest.Callbacks{
			OnBody: func(idx int, _ []byte) error {
				mu.Lock()
				deliveredOrder = append(deliveredOrder, idx)
				mu.Unlock()
				return nil
			},
			OnFinish: func(r metarequest.FinishResult) { finished <- r },
		}))
	require.NoError(t, err)

	result := waitForFinish(t, finished)
	assert.True(t, result.Success)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2}, deliveredOrder)
}

func TestClient_MakeMetaRequestRejectsPartSizeOutOfRange(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(*http.Request) *http.Response {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil))}
	})

	_, err := client.MakeMetaRequest(metarequest.TypeGet, "some-key", WithPartSizeOverride(1024))
	assert.Error(t, err)
}

func TestClient_MakeMetaRequestRejectsEmptyKeyForRangedTypes(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(*http.Request) *http.Response {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil))}
	})

	_, err := client.MakeMetaRequest(metarequest.TypeGet, "")
	assert.Error(t, err)
}

func TestClient_MakeMetaRequestRejectsGetWithoutOnBody(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(*http.Request) *http.Response {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil))}
	})

	_, err := client.MakeMetaRequest(metarequest.TypeGet, "some-key")
	assert.Error(t, err)
}

func TestClient_MakeMetaRequestRejectsPutWithoutInputBody(t *testing.T) {
	t.Parallel()
	client, _ := newTestClient(t, func(*http.Request) *http.Response {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil))}
	})

	_, err := client.MakeMetaRequest(metarequest.TypePut, "some-key", WithCallbacks(metarequest.Callbacks{
		OnFinish: func(metarequest.FinishResult) {},
	}))
	assert.Error(t, err)
}

func TestClient_ReleaseDrainsAndClosesClient(t *testing.T) {
	t.Parallel()
	transport := &fakeTransport{responder: func(*http.Request) *http.Response {
		return &http.Response{StatusCode: http.StatusOK, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil))}
	}}
	client, err := NewClient(
		WithBucket("my-bucket"),
		WithEndpointHost("my-bucket.s3.test-region.amazonaws.com"),
		WithSigner(fakeSigner{}),
		WithSigningConfig(signing.Config{Region: "test-region"}),
		WithTransport(transport),
		WithHostListener(fakeHostListener{addr: "10.0.0.1:443"}),
	)
	require.NoError(t, err)

	client.Release()
	select {
	case <-client.Closed():
	case <-time.After(5 * time.Second):
		t.Fatal("client did not finish shutting down")
	}
}

// waitForCondition polls cond until it returns true or the deadline
// passes, failing the test in the latter case. Used here in place of a
// fixed sleep since the exact number of scheduling passes the work loop
// takes to reach steady state isn't something a test should hardcode.
func waitForCondition(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

// TestClient_MaxPendingRequestsThrottlesSlowOnBodyConsumer proves that
// pending_request_count (spec §3/§4.1), not just requestsInFlight, gates
// scheduling: a GET whose OnBody callback blocks on part 0 must stop the
// work loop from binding further parts once maxPendingRequests undelivered
// Requests have accumulated, even though far more connections remain free.
func TestClient_MaxPendingRequestsThrottlesSlowOnBodyConsumer(t *testing.T) {
	t.Parallel()
	const partSize = defaultPartSize
	const numParts = 8
	const total = int64(partSize * numParts)
	const maxPending = 3

	unblockFirstPart := make(chan struct{})
	client, transport := newTestClient(t, func(req *http.Request) *http.Response {
		rangeHeader := req.Header.Get("Range")
		header := http.Header{}
		var start, end int64
		_, scanErr := fmt.Sscanf(rangeHeader, "bytes=%d-%d", &start, &end)
		require.NoError(t, scanErr)
		body := make([]byte, end-start+1)
		if rangeHeader == fmt.Sprintf("bytes=0-%d", partSize-1) {
			header.Set("accept-ranges", "bytes")
			header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", partSize-1, total))
		}
		return &http.Response{StatusCode: http.StatusPartialContent, Header: header, Body: io.NopCloser(bytes.NewReader(body))}
	},
		WithConnectionsPerVIP(10), // plenty of connections; maxPending is what must bind
		WithMaxPendingRequests(maxPending),
	)

	var mu sync.Mutex
	var deliveredOrder []int
	finished := make(chan metarequest.FinishResult, 1)
	_, err := client.MakeMetaRequest(metarequest.TypeGet, "big-object",
		WithCallbacks(metarequest.Callbacks{
			OnBody: func(idx int, _ []byte) error {
				if idx == 0 {
					<-unblockFirstPart
				}
				mu.Lock()
				deliveredOrder = append(deliveredOrder, idx)
				mu.Unlock()
				return nil
			},
			OnFinish: func(r metarequest.FinishResult) { finished <- r },
		}))
	require.NoError(t, err)

	waitForCondition(t, func() bool {
		return atomic.LoadInt32(&client.pendingRequestCount) == int32(maxPending)
	}, "pending_request_count never reached its cap")

	// Give the (deliberately stalled) work loop a moment to prove it stays
	// put rather than eventually scheduling more once connections free up.
	time.Sleep(20 * time.Millisecond)
	transport.mu.Lock()
	inFlightRequests := len(transport.requests)
	transport.mu.Unlock()
	assert.Equal(t, maxPending, inFlightRequests, "requestsInFlight has headroom, but pending_request_count must still cap admission")

	close(unblockFirstPart)
	result := waitForFinish(t, finished)
	assert.True(t, result.Success)

	mu.Lock()
	defer mu.Unlock()
	expected := make([]int, numParts)
	for i := range expected {
		expected[i] = i
	}
	assert.Equal(t, expected, deliveredOrder)
}

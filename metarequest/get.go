package metarequest

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/s3transfer/s3transfer/request"
)

// getRequest implements the auto-ranged GET state machine of spec §4.4:
// probe -> stream_parts -> finishing.
type getRequest struct {
	base

	mu              sync.Mutex
	probeIssued     bool
	probeDone       bool
	total           int64
	numParts        int
	nextPartToYield int
	outstanding     int
}

// NewGet constructs an auto-ranged GET meta-request.
func NewGet(def Definition) MetaRequest {
	return &getRequest{base: newBase(def)}
}

func (g *getRequest) NextRequest() (*request.Request, Status) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.probeIssued {
		g.probeIssued = true
		g.outstanding++
		end := g.def.PartSize - 1
		return request.New(request.Definition{
			Method:    http.MethodGet,
			Path:      "/" + g.def.Key,
			PartIndex: 0,
			Header:    rangeHeader(0, end),
		}), StatusReady
	}
	if !g.probeDone {
		return nil, StatusWaiting
	}
	if g.isCancelled() {
		if g.outstanding == 0 {
			return nil, StatusFinished
		}
		return nil, StatusWaiting
	}
	if g.nextPartToYield > 0 && g.nextPartToYield < g.numParts {
		idx := g.nextPartToYield
		g.nextPartToYield++
		start := int64(idx) * g.def.PartSize
		end := start + g.def.PartSize - 1
		if last := g.total - 1; end > last {
			end = last
		}
		g.outstanding++
		return request.New(request.Definition{
			Method:    http.MethodGet,
			Path:      "/" + g.def.Key,
			PartIndex: idx,
			Header:    rangeHeader(start, end),
		}), StatusReady
	}
	if g.outstanding > 0 {
		return nil, StatusWaiting
	}
	return nil, StatusFinished
}

func (g *getRequest) OnRequestFinished(req *request.Request) {
	res := req.Result()
	g.mu.Lock()
	g.outstanding--
	isProbe := req.PartIndex == 0 && !g.probeDone
	g.mu.Unlock()

	if res.Err != nil || res.StatusCode >= 400 {
		g.recordError(req.PartIndex, res.Err, res.Class, res.StatusCode)
		g.cancel(res.Err)
		g.destroyRequest()
		if isProbe {
			g.mu.Lock()
			g.probeDone = true
			g.numParts = 0
			g.mu.Unlock()
		}
		g.maybeFinish()
		return
	}

	if isProbe {
		total, numParts, zeroLength := parseProbe(res, g.def.PartSize)
		g.mu.Lock()
		g.total = total
		g.numParts = numParts
		g.nextPartToYield = 1
		g.probeDone = true
		g.mu.Unlock()
		if zeroLength {
			// Zero-length object: finish immediately with no body
			// callback (spec §4.4 edge policy).
			g.forceStreamCursor(1)
			g.destroyRequest()
		} else {
			g.enqueueBody(0, res.Body)
			if g.def.Callbacks.OnHeaders != nil {
				g.def.Callbacks.OnHeaders(res.StatusCode, res.Header)
			}
			// Delivery to OnBody happens off this goroutine, via
			// StreamReadyBodies on a body event loop (spec §5): this
			// method runs on the client's single work-loop goroutine, and
			// a slow OnBody callback must never be allowed to stall it.
		}
	} else {
		g.enqueueBody(req.PartIndex, res.Body)
	}
	g.maybeFinish()
}

func (g *getRequest) forceStreamCursor(n int) {
	g.streamMu.Lock()
	g.nextExpected = n
	g.streamMu.Unlock()
}

func (g *getRequest) maybeFinish() {
	g.mu.Lock()
	numParts := g.numParts
	outstanding := g.outstanding
	cancelled := g.cancelled
	probeDone := g.probeDone
	g.mu.Unlock()

	if cancelled && outstanding == 0 {
		g.discardBuffered()
		g.finishOnce(false)
		return
	}
	if probeDone && numParts > 0 && g.nextExpectedIndex() >= numParts && outstanding == 0 {
		g.finishOnce(true)
	}
}

func (g *getRequest) Cancel(err error) { g.base.cancel(err) }

// StreamReadyBodies drains contiguous completed parts to the caller's
// OnBody callback. It runs on a body event loop goroutine (spec §5),
// never on the work-loop goroutine, so a slow OnBody callback only ever
// stalls its own body loop. Since finishing depends on the delivery
// cursor reaching numParts (see maybeFinish), it re-checks completion
// once the drain settles rather than waiting for another
// OnRequestFinished call that may never come.
func (g *getRequest) StreamReadyBodies() {
	g.base.streamReadyBodies()
	g.maybeFinish()
}

func (g *getRequest) Finished() bool { return g.base.isFinished() }

// rangeHeader builds the "Range: bytes=start-end" header per spec §6.
func rangeHeader(start, end int64) http.Header {
	h := make(http.Header, 1)
	h.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))
	return h
}

// parseProbe interprets the probe response per spec §4.4: a 206 with a
// Content-Range header reveals the object's total size; anything else
// successful is treated as the entire (single-part) object. When
// accept-ranges is absent from a 206 response, the probe is still
// treated as single-part, a defensive fallback for servers that don't
// echo the header (see SPEC_FULL.md §4.4).
func parseProbe(res request.Result, partSize int64) (total int64, numParts int, zeroLength bool) {
	if res.StatusCode == http.StatusPartialContent && res.Header.Get("accept-ranges") != "" {
		if cr := res.Header.Get("Content-Range"); cr != "" {
			if t, ok := parseContentRangeTotal(cr); ok {
				if t == 0 {
					return 0, 1, true
				}
				if t <= partSize {
					return t, 1, false
				}
				parts := int((t + partSize - 1) / partSize)
				return t, parts, false
			}
		}
	}
	// 200 (or a 206 we couldn't trust): treat the probe body as the
	// whole object.
	n := int64(len(res.Body))
	if n == 0 {
		return 0, 1, true
	}
	return n, 1, false
}

// parseContentRangeTotal parses "bytes START-END/TOTAL" and returns TOTAL.
func parseContentRangeTotal(v string) (int64, bool) {
	v = strings.TrimPrefix(v, "bytes ")
	slash := strings.LastIndex(v, "/")
	if slash < 0 {
		return 0, false
	}
	total, err := strconv.ParseInt(v[slash+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

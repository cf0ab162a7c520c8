package metarequest

import (
	"sync"

	"github.com/s3transfer/s3transfer/request"
)

// defaultRequest is the passthrough variant (spec §4.6): it issues the
// caller's method/path/body verbatim as a single Request and reports
// the raw result back, with no ranging, no ordering, and no retries
// beyond what the shared retry strategy already applies per-request.
type defaultRequest struct {
	base

	mu      sync.Mutex
	issued  bool
	pending bool
}

// NewDefault constructs a default (passthrough) meta-request.
func NewDefault(def Definition) MetaRequest {
	return &defaultRequest{base: newBase(def)}
}

func (d *defaultRequest) NextRequest() (*request.Request, Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.issued {
		if d.pending {
			return nil, StatusWaiting
		}
		return nil, StatusFinished
	}
	d.issued = true
	d.pending = true
	return request.New(request.Definition{
		Method: d.def.Method,
		Path:   d.def.Path,
		Header: d.def.Header,
		Body:   d.def.Body,
	}), StatusReady
}

func (d *defaultRequest) OnRequestFinished(req *request.Request) {
	// Default delivers its body inline, synchronously, rather than
	// through the ordered-delivery heap, so its one Request is destroyed
	// as soon as this function returns.
	defer d.destroyRequest()

	res := req.Result()

	d.mu.Lock()
	d.pending = false
	d.mu.Unlock()

	if res.Err != nil || res.StatusCode >= 300 {
		d.recordError(0, res.Err, res.Class, res.StatusCode)
		if d.def.Callbacks.OnBody != nil {
			_ = d.def.Callbacks.OnBody(0, res.Body)
		}
		d.finishOnce(false)
		return
	}

	if d.def.Callbacks.OnHeaders != nil {
		d.def.Callbacks.OnHeaders(res.StatusCode, res.Header)
	}
	if d.def.Callbacks.OnBody != nil {
		_ = d.def.Callbacks.OnBody(0, res.Body)
	}
	if d.def.Callbacks.OnProgress != nil {
		d.def.Callbacks.OnProgress(int64(len(res.Body)))
	}
	d.finishOnce(true)
}

func (d *defaultRequest) Cancel(err error) { d.base.cancel(err) }

func (d *defaultRequest) StreamReadyBodies() {}

func (d *defaultRequest) Finished() bool { return d.base.isFinished() }

// Package metarequest implements the meta-request state machines from
// spec §3-4.6: the base lifecycle/streaming/error-aggregation machinery
// shared by all variants, plus the auto-ranged GET, auto-ranged PUT, and
// default (passthrough) variants.
package metarequest

import (
	"io"
	"net/http"

	"github.com/s3transfer/s3transfer/request"
	"github.com/s3transfer/s3transfer/retrystrategy"
)

// Status is returned by NextRequest to tell the work loop what to do
// next (spec §4.3).
type Status int

const (
	// StatusReady means the returned Request should be scheduled.
	StatusReady Status = iota
	// StatusWaiting means no Request is ready right now, but the
	// meta-request is not finished (e.g. waiting on an in-flight probe).
	StatusWaiting
	// StatusFinished means the meta-request has no more work, ever.
	StatusFinished
)

// Type identifies which wire pattern a meta-request follows.
type Type int

const (
	TypeGet Type = iota
	TypePut
	TypeDefault
)

// Diagnostic records one non-fatal sub-request failure for inclusion in
// the final FinishResult, per spec §7 ("subsequent errors are recorded
// as diagnostics").
type Diagnostic struct {
	PartIndex int
	Err       error
	Class     retrystrategy.ErrorClass
}

// FinishResult is delivered to Callbacks.OnFinish exactly once per
// meta-request (spec §4.3, §8).
type FinishResult struct {
	Success        bool
	Err            error
	ResponseStatus int
	Diagnostics    []Diagnostic
}

// Callbacks are the user-facing hooks exposed by spec §6.
type Callbacks struct {
	OnHeaders  func(statusCode int, header http.Header)
	OnBody     func(partIndex int, data []byte) error
	OnProgress func(bytesTransferred int64)
	OnFinish   func(result FinishResult)
}

// Definition is the immutable description of one user-level transfer.
type Definition struct {
	Type      Type
	Bucket    string
	Key       string
	Host      string
	PartSize  int64
	Header    http.Header
	Callbacks Callbacks

	// InputBody is read strictly sequentially by auto-ranged PUT.
	InputBody io.Reader
	// InputSize is the total number of bytes the caller reported for
	// InputBody, or negative if unknown. PUT does not consult it: it
	// always discovers EOF as it reads.
	InputSize int64

	// Method/Path are used by TypeDefault to pass a request through
	// verbatim.
	Method string
	Path   string
	Body   []byte

	// OnRequestDestroyed, if set, is called exactly once per sub-request
	// once its data has left this meta-request for good: delivered to
	// the caller's OnBody callback, or discarded (failure, cancel, or
	// shutdown before delivery). It may be called from a different
	// goroutine than the one that created the sub-request and must not
	// block. This backs the client's pending_request_count backpressure
	// accounting (spec §3, §8) and is not part of the user-facing
	// Callbacks surface.
	OnRequestDestroyed func()
}

// MetaRequest is the interface the work loop drives (spec §4.3).
type MetaRequest interface {
	// NextRequest returns the next sub-request to schedule, or a status
	// indicating there is none ready yet or none ever again. Must be
	// non-blocking and idempotent when returning StatusWaiting.
	NextRequest() (*request.Request, Status)
	// OnRequestFinished reports a completed sub-request's outcome.
	OnRequestFinished(req *request.Request)
	// Cancel marks the meta-request as cancelled with err; outstanding
	// requests are allowed to complete and no further parts are yielded.
	// A GET probe, PUT create request or default request that was not yet
	// issued is still issued, and a cancelled PUT issues its abort request
	// once the upload has been created.
	Cancel(err error)
	// StreamReadyBodies delivers any bodies now ready, in strict
	// ascending part order, on the caller's goroutine (spec §4.3, §5).
	StreamReadyBodies()
	// Finished reports whether the meta-request has fully completed
	// (finish callback already fired or about to fire with no more
	// work).
	Finished() bool
}

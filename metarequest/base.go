package metarequest

import (
	"sync"

	"github.com/s3transfer/s3transfer/retrystrategy"
)

// base holds the lifecycle, error-aggregation, and ordered-delivery
// machinery shared by every meta-request variant (spec §4.3).
type base struct {
	def Definition

	mu            sync.Mutex
	cancelled     bool
	cancelErr     error
	firstErr      error
	responseCode  int
	diagnostics   []Diagnostic
	finished      bool
	finishStarted bool

	streamMu     sync.Mutex
	ready        bodyHeap
	nextExpected int
}

func newBase(def Definition) base {
	return base{def: def}
}

// recordError records a sub-request's terminal failure. The first such
// error becomes the meta-request's reported error (spec §7); later ones
// are recorded as diagnostics only.
func (b *base) recordError(partIndex int, err error, class retrystrategy.ErrorClass, statusCode int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.firstErr == nil {
		b.firstErr = err
		b.responseCode = statusCode
	} else {
		b.diagnostics = append(b.diagnostics, Diagnostic{PartIndex: partIndex, Err: err, Class: class})
	}
}

// cancel marks the meta-request cancelled. It does not itself fire the
// finish callback; the variant's own bookkeeping decides when all
// in-flight work has drained and calls finish.
func (b *base) cancel(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelled {
		return
	}
	b.cancelled = true
	b.cancelErr = err
	if b.firstErr == nil {
		b.firstErr = err
	}
}

func (b *base) isCancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

func (b *base) isFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

// finishOnce fires the user finish callback exactly once (spec §4.3
// invariant), building the FinishResult from accumulated error state.
func (b *base) finishOnce(success bool) {
	b.mu.Lock()
	if b.finishStarted {
		b.mu.Unlock()
		return
	}
	b.finishStarted = true
	result := FinishResult{
		Success:        success && b.firstErr == nil,
		Err:            b.firstErr,
		ResponseStatus: b.responseCode,
		Diagnostics:    append([]Diagnostic(nil), b.diagnostics...),
	}
	b.mu.Unlock()

	if b.def.Callbacks.OnFinish != nil {
		b.def.Callbacks.OnFinish(result)
	}
	b.mu.Lock()
	b.finished = true
	b.mu.Unlock()
}

// enqueueBody buffers a completed part for in-order delivery.
func (b *base) enqueueBody(partIndex int, data []byte) {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	pushReady(&b.ready, partIndex, data)
}

// destroyRequest reports one sub-request's data as having left the
// meta-request for good, for the client's pending_request_count
// backpressure accounting (spec §3, §8). Safe to call from any
// goroutine.
func (b *base) destroyRequest() {
	if b.def.OnRequestDestroyed != nil {
		b.def.OnRequestDestroyed()
	}
}

// streamReadyBodies drains any contiguous run of ready bodies starting
// at the next-expected cursor, invoking the user's OnBody callback for
// each in ascending order (spec §4.3, §5). If OnBody returns an error,
// that is treated as the user rejecting the transfer and the
// meta-request is cancelled. Each delivered part is reported destroyed
// once handed off, since the meta-request holds no further reference to
// its data.
func (b *base) streamReadyBodies() {
	onBody := b.def.Callbacks.OnBody
	if onBody == nil {
		onBody = func(int, []byte) error { return nil }
	}
	wrapped := func(partIndex int, data []byte) error {
		err := onBody(partIndex, data)
		b.destroyRequest()
		return err
	}
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	err := drainReady(&b.ready, &b.nextExpected, wrapped)
	if err != nil {
		b.cancel(err)
	}
}

// discardBuffered reports every body still buffered in the ordered-
// delivery heap as destroyed without delivering it, for the shutdown/
// cancel path: those parts already completed their HTTP exchange but
// will never reach OnBody now, so pending_request_count must still drop
// to zero for each of them (spec §8's "returns to 0 at shutdown").
func (b *base) discardBuffered() {
	b.streamMu.Lock()
	n := len(b.ready)
	b.ready = b.ready[:0]
	b.streamMu.Unlock()
	for i := 0; i < n; i++ {
		b.destroyRequest()
	}
}

// nextExpectedIndex returns the next part index the stream is waiting
// on, for variants that need to know how much has been delivered.
func (b *base) nextExpectedIndex() int {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	return b.nextExpected
}

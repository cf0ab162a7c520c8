package metarequest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3transfer/s3transfer/retrystrategy"
)

func TestBase_FinishOnceFiresCallbackOnce(t *testing.T) {
	t.Parallel()
	calls := 0
	var lastResult FinishResult
	b := newBase(Definition{Callbacks: Callbacks{OnFinish: func(r FinishResult) {
		calls++
		lastResult = r
	}}})

	b.finishOnce(true)
	b.finishOnce(true)
	assert.Equal(t, 1, calls)
	assert.True(t, lastResult.Success)
	assert.True(t, b.isFinished())
}

func TestBase_RecordErrorKeepsFirstAsDiagnosticsAfter(t *testing.T) {
	t.Parallel()
	b := newBase(Definition{})
	errFirst := errors.New("part 3 failed")
	errSecond := errors.New("part 5 failed")

	b.recordError(3, errFirst, retrystrategy.ClassServerPermanent, 404)
	b.recordError(5, errSecond, retrystrategy.ClassServerPermanent, 404)

	var result FinishResult
	b.def.Callbacks.OnFinish = func(r FinishResult) { result = r }
	b.finishOnce(false)

	assert.ErrorIs(t, result.Err, errFirst)
	assert.False(t, result.Success)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, 5, result.Diagnostics[0].PartIndex)
}

func TestBase_CancelIsIdempotentAndSetsFirstErr(t *testing.T) {
	t.Parallel()
	b := newBase(Definition{})
	errA := errors.New("cancelled: shutting down")
	b.cancel(errA)
	b.cancel(errors.New("second cancel, ignored"))
	assert.True(t, b.isCancelled())

	var result FinishResult
	b.def.Callbacks.OnFinish = func(r FinishResult) { result = r }
	b.finishOnce(false)
	assert.ErrorIs(t, result.Err, errA)
}

func TestBase_StreamReadyBodiesDeliversInOrder(t *testing.T) {
	t.Parallel()
	var delivered []int
	b := newBase(Definition{Callbacks: Callbacks{OnBody: func(idx int, _ []byte) error {
		delivered = append(delivered, idx)
		return nil
	}}})

	b.enqueueBody(1, []byte("b"))
	b.enqueueBody(0, []byte("a"))
	b.streamReadyBodies()

	assert.Equal(t, []int{0, 1}, delivered)
	assert.Equal(t, 2, b.nextExpectedIndex())
}

func TestBase_StreamReadyBodiesCancelsOnCallbackError(t *testing.T) {
	t.Parallel()
	sentinel := errors.New("caller rejected part 0")
	b := newBase(Definition{Callbacks: Callbacks{OnBody: func(int, []byte) error {
		return sentinel
	}}})

	b.enqueueBody(0, []byte("a"))
	b.streamReadyBodies()
	assert.True(t, b.isCancelled())
}

func TestBase_StreamReadyBodiesReportsEachDeliveredPartDestroyed(t *testing.T) {
	t.Parallel()
	destroyed := 0
	b := newBase(Definition{
		Callbacks:          Callbacks{OnBody: func(int, []byte) error { return nil }},
		OnRequestDestroyed: func() { destroyed++ },
	})

	b.enqueueBody(1, []byte("b"))
	b.enqueueBody(0, []byte("a"))
	b.streamReadyBodies()

	assert.Equal(t, 2, destroyed)
}

func TestBase_StreamReadyBodiesReportsDestroyedEvenOnRejection(t *testing.T) {
	t.Parallel()
	destroyed := 0
	b := newBase(Definition{
		Callbacks:          Callbacks{OnBody: func(int, []byte) error { return errors.New("rejected") }},
		OnRequestDestroyed: func() { destroyed++ },
	})

	b.enqueueBody(0, []byte("a"))
	b.streamReadyBodies()

	assert.Equal(t, 1, destroyed, "a rejected part still leaves the meta-request, so it still counts as destroyed")
}

func TestBase_DiscardBufferedReportsEveryBufferedPartDestroyed(t *testing.T) {
	t.Parallel()
	destroyed := 0
	b := newBase(Definition{OnRequestDestroyed: func() { destroyed++ }})

	b.enqueueBody(3, []byte("d"))
	b.enqueueBody(4, []byte("e"))
	b.discardBuffered()

	assert.Equal(t, 2, destroyed)
	assert.Equal(t, 0, b.ready.Len())
}

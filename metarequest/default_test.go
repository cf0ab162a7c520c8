package metarequest

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3transfer/s3transfer/request"
)

func TestDefault_PassesThroughVerbatimAndFinishes(t *testing.T) {
	t.Parallel()
	var gotHeaders http.Header
	var gotStatus int
	var finished FinishResult
	d := NewDefault(Definition{
		Method: http.MethodHead,
		Path:   "/some-key",
		Callbacks: Callbacks{
			OnHeaders: func(status int, h http.Header) { gotStatus = status; gotHeaders = h },
			OnFinish:  func(r FinishResult) { finished = r },
		},
	})

	req, status := d.NextRequest()
	require.Equal(t, StatusReady, status)
	assert.Equal(t, http.MethodHead, req.Method)
	assert.Equal(t, "/some-key", req.Path)

	_, status = d.NextRequest()
	assert.Equal(t, StatusWaiting, status, "no second request until the first finishes")

	respHeader := http.Header{"Content-Length": []string{"42"}}
	req.SetResult(request.Result{StatusCode: http.StatusOK, Header: respHeader})
	d.OnRequestFinished(req)

	assert.Equal(t, http.StatusOK, gotStatus)
	assert.Equal(t, respHeader, gotHeaders)
	assert.True(t, finished.Success)
	assert.True(t, d.Finished())

	_, status = d.NextRequest()
	assert.Equal(t, StatusFinished, status)
}

func TestDefault_ServerErrorFinishesUnsuccessfully(t *testing.T) {
	t.Parallel()
	var finished FinishResult
	d := NewDefault(Definition{
		Method:    http.MethodDelete,
		Path:      "/some-key",
		Callbacks: Callbacks{OnFinish: func(r FinishResult) { finished = r }},
	})

	wantErr := errors.New("s3transfer: request failed with status 500")
	req, _ := d.NextRequest()
	req.SetResult(request.Result{StatusCode: http.StatusInternalServerError, Err: wantErr})
	d.OnRequestFinished(req)

	assert.False(t, finished.Success)
	assert.ErrorIs(t, finished.Err, wantErr, "a failed transfer must never reach OnFinish with a nil Err")
	assert.Equal(t, http.StatusInternalServerError, finished.ResponseStatus)
}

func TestDefault_ReportsRequestDestroyedOnceProcessed(t *testing.T) {
	t.Parallel()
	var destroyed int
	d := NewDefault(Definition{
		Method:             http.MethodGet,
		Path:               "/some-key",
		OnRequestDestroyed: func() { destroyed++ },
	})

	req, _ := d.NextRequest()
	req.SetResult(request.Result{StatusCode: http.StatusOK})
	d.OnRequestFinished(req)

	assert.Equal(t, 1, destroyed)
}

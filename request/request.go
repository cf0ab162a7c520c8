// Package request defines Request, the immutable-once-built descriptor
// of a single HTTP exchange within a meta-request (spec §3, "Request").
package request

import (
	"net/http"
	"sync"

	"github.com/s3transfer/s3transfer/retrystrategy"
)

// Definition is the caller-agnostic template for one sub-request: an
// HTTP method/path/headers/body, plus the bookkeeping a meta-request
// needs to place its result. PartIndex is the 0-based delivery-order
// cursor used by auto-ranged GET; PartNumber is the 1-based S3 wire
// part number used by auto-ranged PUT. A Request only ever uses one of
// the two, depending on its meta-request's variant.
type Definition struct {
	Method     string
	Path       string
	Query      string
	Header     http.Header
	Body       []byte
	PartIndex  int
	PartNumber int
}

// Result captures the outcome of one attempt (or the final attempt) of
// a Request.
type Result struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Err        error
	Class      retrystrategy.ErrorClass
	Attempts   int
}

// Request is one HTTP exchange: a part GET/PUT, or a control call like
// CreateMultipartUpload. It is created when a meta-request yields its
// next sub-request and destroyed once its body (if any) has been
// streamed to the caller or discarded.
type Request struct {
	Definition

	mu         sync.Mutex
	retryToken retrystrategy.Token
	attempt    int
	result     Result
}

// New wraps a Definition as a fresh Request with no attempts yet made.
func New(def Definition) *Request {
	return &Request{Definition: def}
}

// BeginAttempt increments the attempt counter and returns the new count
// (1-based).
func (r *Request) BeginAttempt() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt++
	return r.attempt
}

// SetRetryToken stores the retry-strategy token acquired for this
// request's partition, so it can be released on completion.
func (r *Request) SetRetryToken(token retrystrategy.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryToken = token
}

// RetryToken returns the previously stored retry token, if any.
func (r *Request) RetryToken() retrystrategy.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.retryToken
}

// SetResult stores the final (or latest) outcome of this request.
func (r *Request) SetResult(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.Attempts = r.attempt
	r.result = res
}

// Result returns the most recently stored outcome.
func (r *Request) Result() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

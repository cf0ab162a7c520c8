package s3transfer

import "net/http"

// httpSignable adapts *http.Request to signing.SignableRequest, so the
// pluggable Signer never needs to know about net/http directly (spec
// §6's collaborator interfaces are kept transport-agnostic).
type httpSignable struct {
	req *http.Request
}

func (s httpSignable) Method() string { return s.req.Method }

func (s httpSignable) URL() string { return s.req.URL.String() }

func (s httpSignable) Header() map[string][]string { return s.req.Header }

func (s httpSignable) SetHeader(key, value string) { s.req.Header.Set(key, value) }

func (s httpSignable) BodyLength() int64 { return s.req.ContentLength }

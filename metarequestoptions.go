package s3transfer

import (
	"io"
	"net/http"

	"github.com/s3transfer/s3transfer/metarequest"
)

// MetaRequestOption configures one call to Client.MakeMetaRequest, in
// the same functional-options style as ClientOption.
type MetaRequestOption func(*metarequest.Definition)

// WithCallbacks supplies the OnHeaders/OnBody/OnProgress/OnFinish hooks
// spec §6 defines for observing a meta-request's progress.
func WithCallbacks(cb metarequest.Callbacks) MetaRequestOption {
	return func(d *metarequest.Definition) { d.Callbacks = cb }
}

// WithInputBody supplies the source data for an auto-ranged PUT. size
// (-1 if the total length is unknown) is stored as the Definition's
// InputSize; the multipart upload does not use it and always discovers
// EOF as it reads.
func WithInputBody(r io.Reader, size int64) MetaRequestOption {
	return func(d *metarequest.Definition) { d.InputBody = r; d.InputSize = size }
}

// WithRequestHeader attaches extra headers to a TypeDefault meta-request's
// request. Auto-ranged GET and PUT sub-requests do not carry them.
func WithRequestHeader(h http.Header) MetaRequestOption {
	return func(d *metarequest.Definition) { d.Header = h }
}

// WithPartSizeOverride overrides the client's default part size for one
// meta-request.
func WithPartSizeOverride(bytes int64) MetaRequestOption {
	return func(d *metarequest.Definition) { d.PartSize = bytes }
}

// WithPassthroughRequest supplies the method, path, and body used by a
// TypeDefault meta-request, passed through to S3 verbatim.
func WithPassthroughRequest(method, path string, body []byte) MetaRequestOption {
	return func(d *metarequest.Definition) { d.Method = method; d.Path = path; d.Body = body }
}

// MetaRequest is the caller-facing handle returned by MakeMetaRequest.
type MetaRequest struct {
	client *Client
	entry  *metaRequestEntry
}

// Cancel marks the meta-request cancelled with err. Sub-requests already
// in flight are allowed to finish and no further parts are issued; see
// metarequest.MetaRequest.Cancel for the requests a variant still issues.
func (m *MetaRequest) Cancel(err error) {
	if err == nil {
		err = ErrMetaRequestCancelled
	}
	m.client.loop.Schedule(func() {
		m.entry.mr.Cancel(err)
		m.client.tick()
	})
}

// Finished reports whether the meta-request's finish callback has fired.
func (m *MetaRequest) Finished() bool {
	return m.entry.mr.Finished()
}

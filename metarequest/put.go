package metarequest

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	"github.com/s3transfer/s3transfer/request"
	"github.com/s3transfer/s3transfer/s3xml"
)

// putRequest implements the auto-ranged PUT / multipart-upload state
// machine of spec §4.5: create-mpu -> uploading -> (complete|abort) ->
// done.
type putRequest struct {
	base

	mu          sync.Mutex
	state       putState
	uploadID    string
	nextPart    int
	inputEOF    bool
	outstanding int
	etags       map[int]string
	abortIssued bool
	failed      bool
	readErr     error
	readMu      sync.Mutex
}

type putState int

const (
	putStateCreating putState = iota
	putStateUploading
	putStateCompleting
	putStateAborting
	putStateDone
)

// NewPut constructs an auto-ranged PUT meta-request.
func NewPut(def Definition) MetaRequest {
	return &putRequest{
		base:     newBase(def),
		state:    putStateCreating,
		nextPart: 1,
		etags:    make(map[int]string),
	}
}

func (p *putRequest) NextRequest() (*request.Request, Status) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case putStateCreating:
		if p.outstanding > 0 {
			// The create request is already in flight.
			return nil, StatusWaiting
		}
		p.outstanding++
		req := request.New(request.Definition{
			Method: http.MethodPost,
			Path:   "/" + p.def.Key,
			Query:  "uploads",
		})
		req.PartNumber = createKind
		return req, StatusReady

	case putStateUploading:
		if p.failed || p.isCancelled() {
			// A part already failed permanently (or the caller cancelled):
			// the upload is doomed to be aborted, so stop reading the input
			// and issuing new part uploads immediately rather than only
			// noticing once the stream naturally runs out.
			return p.drainOrTransitionLocked()
		}
		if !p.inputEOF {
			chunk, eof, err := p.readNextChunk()
			if err != nil {
				p.failed = true
				p.readErr = err
				p.recordError(-1, err, 0, 0)
				return p.drainOrTransitionLocked()
			}
			if eof && len(chunk) == 0 {
				p.inputEOF = true
			} else {
				partNum := p.nextPart
				p.nextPart++
				if eof {
					p.inputEOF = true
				}
				p.outstanding++
				req := request.New(request.Definition{
					Method:     http.MethodPut,
					Path:       "/" + p.def.Key,
					Query:      fmt.Sprintf("partNumber=%d&uploadId=%s", partNum, p.uploadID),
					Body:       chunk,
					PartNumber: partNum,
				})
				return req, StatusReady
			}
		}
		return p.drainOrTransitionLocked()

	case putStateCompleting, putStateAborting:
		return nil, StatusWaiting

	default:
		return nil, StatusFinished
	}
}

// createKind and completeKind/abortKind are sentinel PartNumbers used to
// tag control requests, since S3 part numbers are always >= 1.
const (
	createKind   = -1
	completeKind = -2
	abortKind    = -3
)

// drainOrTransitionLocked decides, once the input stream is exhausted,
// whether uploading is done (all parts acknowledged -> complete), needs
// to keep waiting on outstanding parts, or must abort due to failure.
// Caller holds p.mu.
func (p *putRequest) drainOrTransitionLocked() (*request.Request, Status) {
	if p.failed || p.isCancelled() {
		if p.outstanding > 0 {
			return nil, StatusWaiting
		}
		if !p.abortIssued {
			p.abortIssued = true
			p.state = putStateAborting
			req := request.New(request.Definition{
				Method: http.MethodDelete,
				Path:   "/" + p.def.Key,
				Query:  "uploadId=" + p.uploadID,
			})
			req.PartNumber = abortKind
			return req, StatusReady
		}
		return nil, StatusWaiting
	}
	if !p.inputEOF {
		return nil, StatusWaiting
	}
	if p.outstanding > 0 {
		return nil, StatusWaiting
	}
	p.state = putStateCompleting
	req := request.New(request.Definition{
		Method: http.MethodPost,
		Path:   "/" + p.def.Key,
		Query:  "uploadId=" + p.uploadID,
		Body:   p.buildCompletePayload(),
	})
	req.PartNumber = completeKind
	return req, StatusReady
}

// buildCompletePayload assembles the ascending-order part list. Caller
// holds p.mu.
func (p *putRequest) buildCompletePayload() []byte {
	nums := make([]int, 0, len(p.etags))
	for n := range p.etags {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	parts := make([]s3xml.PartETag, len(nums))
	for i, n := range nums {
		parts[i] = s3xml.PartETag{PartNumber: n, ETag: p.etags[n]}
	}
	body, err := s3xml.BuildCompleteMultipartUpload(parts)
	if err != nil {
		// Should not happen for well-formed ETags; fail safe with an
		// empty body so the server rejects the request rather than us
		// panicking mid-orchestration.
		return nil
	}
	return body
}

func (p *putRequest) readNextChunk() (chunk []byte, eof bool, err error) {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	buf := make([]byte, p.def.PartSize)
	n, err := io.ReadFull(p.def.InputBody, buf)
	switch {
	case err == nil:
		return buf, false, nil
	case err == io.ErrUnexpectedEOF || err == io.EOF: //nolint:errorlint // io sentinels
		if n == 0 {
			return nil, true, nil
		}
		return buf[:n], true, nil
	default:
		return nil, false, err
	}
}

func (p *putRequest) OnRequestFinished(req *request.Request) {
	// PUT never streams a response body back to the caller, so every
	// sub-request is fully destroyed the moment this function finishes
	// processing it (unlike GET, which holds a part's data in the
	// ordered-delivery heap until OnBody actually consumes it).
	defer p.destroyRequest()

	res := req.Result()
	p.mu.Lock()

	switch req.PartNumber {
	case createKind:
		p.outstanding--
		if res.Err != nil || res.StatusCode >= 300 {
			p.recordError(-1, res.Err, res.Class, res.StatusCode)
			p.failed = true
			p.state = putStateDone
			p.mu.Unlock()
			// No upload ID was ever allocated, so there is nothing to
			// abort: go straight to done.
			p.finishOnce(false)
			return
		}
		uploadID, extractErr := s3xml.ExtractTopLevelTag(res.Body, "UploadId")
		if extractErr != nil {
			p.recordError(-1, extractErr, 0, res.StatusCode)
			p.failed = true
			p.state = putStateDone
			p.mu.Unlock()
			p.finishOnce(false)
			return
		}
		p.uploadID = uploadID
		p.state = putStateUploading
		p.mu.Unlock()

	case completeKind:
		p.outstanding--
		if res.Err != nil || res.StatusCode >= 300 {
			p.recordError(-1, res.Err, res.Class, res.StatusCode)
			p.failed = true
		}
		p.state = putStateDone
		p.mu.Unlock()
		p.finishOnce(!p.failed)

	case abortKind:
		p.outstanding--
		// Abort's own result never overwrites the original error
		// (spec §4.5, §7): intentionally ignored here.
		p.state = putStateDone
		p.mu.Unlock()
		p.finishOnce(false)

	default:
		partNum := req.PartNumber
		p.outstanding--
		if res.Err != nil || res.StatusCode >= 300 {
			p.recordError(partNum, res.Err, res.Class, res.StatusCode)
			p.failed = true
			p.mu.Unlock()
			return
		}
		etag := res.Header.Get("ETag")
		p.etags[partNum] = etag
		if p.def.Callbacks.OnProgress != nil {
			p.def.Callbacks.OnProgress(int64(len(req.Body)))
		}
		p.mu.Unlock()
	}
}

func (p *putRequest) Cancel(err error) { p.base.cancel(err) }

func (p *putRequest) StreamReadyBodies() {} // PUT has no response body to stream

func (p *putRequest) Finished() bool { return p.base.isFinished() }

package s3xml

import "encoding/xml"

// PartETag names one completed part in ascending part-number order for
// the CompleteMultipartUpload request body.
type PartETag struct {
	PartNumber int
	ETag       string
}

type completeMultipartUpload struct {
	XMLName xml.Name   `xml:"CompleteMultipartUpload"`
	Parts   []xmlPart  `xml:"Part"`
}

type xmlPart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

// BuildCompleteMultipartUpload renders the request body for
// `POST /KEY?uploadId=U`. Parts must already be sorted ascending by
// PartNumber; this function does not sort them (the PUT meta-request
// sorts its part-number-keyed ETag map before calling it).
func BuildCompleteMultipartUpload(parts []PartETag) ([]byte, error) {
	payload := completeMultipartUpload{Parts: make([]xmlPart, len(parts))}
	for i, part := range parts {
		payload.Parts[i] = xmlPart{PartNumber: part.PartNumber, ETag: part.ETag}
	}
	body, err := xml.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// Package s3xml implements the minimal XML handling the orchestrator
// needs: pulling a single top-level tag's text out of an S3 control-plane
// response, and building the CompleteMultipartUpload request payload.
//
// This is deliberately narrow. It is not a general XML library: the S3
// control-plane responses it parses have one root element with a flat
// list of children, and that is the only shape it understands.
package s3xml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
)

// ErrTagNotFound is returned by ExtractTopLevelTag when no matching
// child element exists under the document's root.
var ErrTagNotFound = errors.New("s3xml: tag not found")

// ExtractTopLevelTag parses data as XML and returns the character data of
// the first immediate child of the root element whose local name matches
// tag. It stops parsing as soon as a match is found. Namespaces on the
// element names are ignored, matching only on the local (unprefixed)
// name, since S3 responses use a single, unprefixed namespace.
func ExtractTopLevelTag(data []byte, tag string) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	depth := 0
	for {
		tok, err := decoder.Token()
		if err != nil {
			if err == io.EOF { //nolint:errorlint // xml.Decoder returns io.EOF verbatim
				return "", ErrTagNotFound
			}
			return "", err
		}
		switch elem := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 && elem.Name.Local == tag {
				var text string
				if err := decoder.DecodeElement(&text, &elem); err != nil {
					return "", err
				}
				return text, nil
			}
			if depth == 2 {
				if err := decoder.Skip(); err != nil {
					return "", err
				}
				depth--
			}
		case xml.EndElement:
			depth--
		}
	}
}

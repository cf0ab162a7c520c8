package s3xml

import (
	"encoding/xml"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildCompleteMultipartUpload(t *testing.T) {
	t.Parallel()
	body, err := BuildCompleteMultipartUpload([]PartETag{
		{PartNumber: 1, ETag: `"etag-1"`},
		{PartNumber: 2, ETag: `"etag-2"`},
		{PartNumber: 3, ETag: `"etag-3"`},
	})
	require.NoError(t, err)
	assert.Contains(t, string(body), xml.Header)

	var decoded completeMultipartUpload
	require.NoError(t, xml.Unmarshal(body, &decoded))
	require.Len(t, decoded.Parts, 3)
	assert.Equal(t, 1, decoded.Parts[0].PartNumber)
	assert.Equal(t, `"etag-1"`, decoded.Parts[0].ETag)
	assert.Equal(t, 3, decoded.Parts[2].PartNumber)
}

func TestBuildCompleteMultipartUpload_Empty(t *testing.T) {
	t.Parallel()
	body, err := BuildCompleteMultipartUpload(nil)
	require.NoError(t, err)
	var decoded completeMultipartUpload
	require.NoError(t, xml.Unmarshal(body, &decoded))
	assert.Empty(t, decoded.Parts)
}

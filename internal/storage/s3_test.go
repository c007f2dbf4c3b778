package storage

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURL(t *testing.T) {
	payload := []byte("fake-jpeg-bytes")
	encoded := base64.StdEncoding.EncodeToString(payload)

	t.Run("data URL with content type", func(t *testing.T) {
		data, contentType, err := DecodeDataURL("data:image/png;base64," + encoded)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
		assert.Equal(t, "image/png", contentType)
	})

	t.Run("bare base64 defaults to jpeg", func(t *testing.T) {
		data, contentType, err := DecodeDataURL(encoded)
		require.NoError(t, err)
		assert.Equal(t, payload, data)
		assert.Equal(t, "image/jpeg", contentType)
	})

	t.Run("missing payload separator", func(t *testing.T) {
		_, _, err := DecodeDataURL("data:image/png;base64")
		assert.Error(t, err)
	})

	t.Run("non-base64 data URL", func(t *testing.T) {
		_, _, err := DecodeDataURL("data:image/png,rawdata")
		assert.Error(t, err)
	})

	t.Run("invalid base64 payload", func(t *testing.T) {
		_, _, err := DecodeDataURL("data:image/png;base64,!!!")
		assert.Error(t, err)
	})
}

func TestObjectURL(t *testing.T) {
	t.Run("explicit public URL", func(t *testing.T) {
		s := &S3ImageStore{bucket: "proofs", region: "eu-west-1", publicURL: "https://cdn.example.com"}
		assert.Equal(t, "https://cdn.example.com/movements/abc.jpg", s.objectURL("movements/abc.jpg"))
	})

	t.Run("virtual-hosted style", func(t *testing.T) {
		s := &S3ImageStore{bucket: "proofs", region: "eu-west-1"}
		assert.Equal(t, "https://proofs.s3.eu-west-1.amazonaws.com/movements/abc.jpg", s.objectURL("movements/abc.jpg"))
	})

	t.Run("path style", func(t *testing.T) {
		s := &S3ImageStore{bucket: "proofs", region: "eu-west-1", pathStyle: true}
		assert.Equal(t, "https://s3.eu-west-1.amazonaws.com/proofs/movements/abc.jpg", s.objectURL("movements/abc.jpg"))
	})
}

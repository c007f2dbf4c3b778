package storage

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	appconfig "example.com/distribution/services/stockout/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ImageStore persists proof-of-dispatch photos and returns a public URL
// for the stored object.
type ImageStore interface {
	UploadImage(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// S3ImageStore implements ImageStore against an S3-compatible backend
// (AWS S3 or MinIO).
type S3ImageStore struct {
	client    *s3.Client
	bucket    string
	region    string
	publicURL string
	pathStyle bool
}

// NewS3ImageStore creates an image store from the storage configuration.
func NewS3ImageStore(ctx context.Context, cfg appconfig.StorageConfig) (*S3ImageStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS configuration")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &S3ImageStore{
		client:    client,
		bucket:    cfg.Bucket,
		region:    region,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		pathStyle: cfg.PathStyle,
	}, nil
}

// UploadImage writes the image bytes under the given key and returns the
// URL the stored object is reachable at.
func (s *S3ImageStore) UploadImage(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	log.Info().Str("key", key).Int("size_bytes", len(data)).Msg("uploading image")

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", errors.Wrap(err, "failed to upload image to S3")
	}

	return s.objectURL(key), nil
}

func (s *S3ImageStore) objectURL(key string) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s", s.publicURL, key)
	}
	if s.pathStyle {
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", s.region, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// DecodeDataURL decodes a base64 data URL of the form
// "data:image/jpeg;base64,<payload>" into raw bytes and a content type.
// Bare base64 payloads without the prefix are accepted as image/jpeg.
func DecodeDataURL(raw string) ([]byte, string, error) {
	contentType := "image/jpeg"
	payload := raw

	if strings.HasPrefix(raw, "data:") {
		idx := strings.Index(raw, ",")
		if idx < 0 {
			return nil, "", errors.New("malformed data URL: missing payload separator")
		}
		header := raw[len("data:"):idx]
		payload = raw[idx+1:]

		if !strings.HasSuffix(header, ";base64") {
			return nil, "", errors.New("malformed data URL: expected base64 encoding")
		}
		if ct := strings.TrimSuffix(header, ";base64"); ct != "" {
			contentType = ct
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to decode base64 image payload")
	}
	return data, contentType, nil
}

package render

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArtifactStore persists render screenshots out of band; RenderedPage
// carries only the returned key, not the image bytes.
type ArtifactStore interface {
	Put(ctx context.Context, key string, png []byte) error
}

// S3ArtifactStore uploads screenshots to a single configured bucket.
type S3ArtifactStore struct {
	client *s3.Client
	bucket string
}

// NewS3ArtifactStore builds a store from the default AWS credential chain
// (environment, shared config, instance role), matching the region/bucket
// the operator configures.
func NewS3ArtifactStore(ctx context.Context, bucket, region string) (*S3ArtifactStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("render: load aws config: %w", err)
	}
	return &S3ArtifactStore{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
	}, nil
}

func (s *S3ArtifactStore) Put(ctx context.Context, key string, png []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(png),
		ContentType: aws.String("image/png"),
	})
	if err != nil {
		return fmt.Errorf("render: put screenshot %s: %w", key, err)
	}
	return nil
}

// ArtifactKey builds the object key convention: "business-id/timestamp.png".
func ArtifactKey(businessID string, unixMillis int64) string {
	return fmt.Sprintf("%s/%d.png", businessID, unixMillis)
}

// StoreScreenshot uploads a render's screenshot (if one was captured) and
// sets page.ScreenshotKey. A nil store or empty screenshot is a no-op —
// screenshot storage is best-effort and must never sink an otherwise
// successful render.
func StoreScreenshot(ctx context.Context, store ArtifactStore, page *RenderedPage, businessID string, unixMillis int64, png []byte) {
	if store == nil || len(png) == 0 {
		return
	}
	key := ArtifactKey(businessID, unixMillis)
	if err := store.Put(ctx, key, png); err != nil {
		return
	}
	page.ScreenshotKey = key
}

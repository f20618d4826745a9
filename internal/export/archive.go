package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"so101-builder/pkg/apperr"
)

// ArchiveConfig configures the S3-compatible bundle archive.
type ArchiveConfig struct {
	Bucket   string
	Region   string
	Endpoint string // optional custom endpoint (MinIO and friends)
}

// ArchiveStore uploads export bundles to S3.
type ArchiveStore struct {
	client *s3.Client
	bucket string
}

// ArchiveRef locates an archived bundle.
type ArchiveRef struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	ArchivedAt time.Time `json:"archived_at"`
}

// NewArchiveStore creates the archive store. A custom endpoint switches the
// client to path-style addressing, which MinIO-compatible stores require.
func NewArchiveStore(ctx context.Context, cfg ArchiveConfig) (*ArchiveStore, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &ArchiveStore{client: client, bucket: cfg.Bucket}, nil
}

func (a *ArchiveStore) put(ctx context.Context, key string, body []byte) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	return err
}

// Archive assembles the JSON bundle for a setup and uploads it under
// exports/<setup_id>/<timestamp>.json in the configured bucket.
func (s *Service) Archive(ctx context.Context, setupID uuid.UUID) (*ArchiveRef, error) {
	if s.archive == nil {
		return nil, apperr.Conflict("archive storage not configured")
	}

	bundle, err := s.JSON(ctx, setupID, "")
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(bundle)
	if err != nil {
		return nil, apperr.Internal(err, "marshaling bundle for setup %s", setupID)
	}

	archivedAt := s.now().UTC()
	key := fmt.Sprintf("exports/%s/%s.json", setupID, archivedAt.Format("20060102T150405Z"))
	if err := s.archive.put(ctx, key, body); err != nil {
		return nil, apperr.Upstream(err, "archiving setup %s", setupID)
	}

	s.log.Info().
		Str("setup_id", setupID.String()).
		Str("bucket", s.archive.bucket).
		Str("key", key).
		Msg("export bundle archived")

	return &ArchiveRef{Bucket: s.archive.bucket, Key: key, ArchivedAt: archivedAt}, nil
}

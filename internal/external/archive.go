package external

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"crixen/internal/types"
)

// S3API is the slice of the S3 client used by the archive store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ArchiveStore uploads ticket archive objects to S3 cold storage.
type ArchiveStore struct {
	client S3API
	bucket string
	logger *slog.Logger
}

// NewArchiveStore builds an ArchiveStore for the given bucket.
func NewArchiveStore(client S3API, bucket string, logger *slog.Logger) *ArchiveStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArchiveStore{client: client, bucket: bucket, logger: logger}
}

// Put uploads one archive object. Key layout is decided by the caller
// (tickets/<year>/<month>/<batch>.jsonl.gz).
func (s *ArchiveStore) Put(ctx context.Context, key string, data []byte) error {
	if s.bucket == "" {
		return types.NewAppError(types.ErrCodeConfigMissingCredential,
			"ticket archive bucket is not configured")
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(data),
		ContentType:     aws.String("application/jsonl"),
		ContentEncoding: aws.String("gzip"),
	})
	if err != nil {
		return types.WrapAppError(types.ErrCodeInternalServer,
			fmt.Sprintf("failed to upload archive object %s", key), err)
	}

	s.logger.InfoContext(ctx, "archive object uploaded",
		slog.String("bucket", s.bucket),
		slog.String("key", key),
		slog.Int("bytes", len(data)),
	)
	return nil
}

package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"codehub/internal/common/storage"
	"codehub/internal/submission/model"
)

const (
	defaultArchivePrefix = "submissions"
	archiveContentType   = "application/zstd"
)

// SourceArchiver keeps a copy of submitted source outside the database.
type SourceArchiver interface {
	Archive(ctx context.Context, submission *model.Submission) error
}

// ObjectSourceArchiver writes zstd compressed source to object storage under
// {prefix}/{problemID}/{submissionID}.zst.
type ObjectSourceArchiver struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
	encoder *zstd.Encoder
}

// NewObjectSourceArchiver creates an archiver for bucket.
func NewObjectSourceArchiver(objectStorage storage.ObjectStorage, bucket, prefix string) (*ObjectSourceArchiver, error) {
	if objectStorage == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	return &ObjectSourceArchiver{
		storage: objectStorage,
		bucket:  bucket,
		prefix:  prefix,
		encoder: encoder,
	}, nil
}

// ObjectKey returns where a submission's source is stored.
func (a *ObjectSourceArchiver) ObjectKey(problemID int64, submissionID string) string {
	return fmt.Sprintf("%s/%d/%s.zst", a.prefix, problemID, submissionID)
}

// Archive compresses and uploads the submission's source.
func (a *ObjectSourceArchiver) Archive(ctx context.Context, submission *model.Submission) error {
	payload := a.encoder.EncodeAll([]byte(submission.SourceCode), nil)
	key := a.ObjectKey(submission.ProblemID, submission.ID)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(payload), int64(len(payload)), archiveContentType); err != nil {
		return fmt.Errorf("archive source failed: %w", err)
	}
	return nil
}

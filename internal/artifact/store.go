// Package artifact stores the persisted index and catalog blobs on local disk or
// in an S3-compatible bucket.
package artifact

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hyperjump/edna/internal/config"
)

// FileStore is a minimal interface for blob storage. Paths are forward-slash
// separated and relative to the store root. Implementations are safe for concurrent use.
type FileStore interface {
	// Read opens the named blob. A missing blob yields an error wrapping os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)
	// Write opens the named blob for writing. Data is committed on Close.
	Write(ctx context.Context, path string) (io.WriteCloser, error)
	// Delete removes the named blob; deleting a missing blob is not an error.
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// New builds the store selected by cfg.Backend.
func New(cfg config.ArtifactConfig) (FileStore, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocal(cfg.Dir)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("s3 artifact store needs a bucket")
		}
		return NewS3(newS3Client(cfg), cfg.Bucket, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown artifact backend %q (supported: local, s3)", cfg.Backend)
	}
}

// newS3Client configures a client from cfg and the standard AWS_* credential variables.
// A custom endpoint switches to path-style addressing for MinIO and similar stores.
func newS3Client(cfg config.ArtifactConfig) *s3.Client {
	creds := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY")
		if id == "" || secret == "" {
			return aws.Credentials{}, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set")
		}
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "environment",
		}, nil
	})
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: aws.NewCredentialsCache(creds),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return s3.New(opts)
}

// ReadAll reads the whole named blob.
func ReadAll(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	rc, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// aborter is implemented by writers that can discard uncommitted data.
type aborter interface {
	Abort() error
}

// WriteWith opens path, passes the writer to write and commits on success.
// On failure the previous blob, if any, is left in place.
func WriteWith(ctx context.Context, fs FileStore, path string, write func(io.Writer) error) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := write(w); err != nil {
		if a, ok := w.(aborter); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("commit %s: %w", path, err)
	}
	return nil
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"cloud.google.com/go/storage"
)

// GCSArtifacts keeps result files in a Google Cloud Storage bucket
type GCSArtifacts struct {
	client *storage.Client
	bucket *storage.BucketHandle
	prefix string
}

// NewGCSArtifacts connects to bucket using application default credentials
func NewGCSArtifacts(ctx context.Context, bucketName string) (*GCSArtifacts, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSArtifacts{
		client: client,
		bucket: client.Bucket(bucketName),
		prefix: "results/",
	}, nil
}

// SaveArtifact streams r into the bucket
func (g *GCSArtifacts) SaveArtifact(ctx context.Context, name string, r io.Reader) error {
	// Finish the upload even if the job context is cancelled mid-way
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Minute)
	defer cancel()

	start := time.Now()
	w := g.bucket.Object(g.prefix + name).NewWriter(uploadCtx)
	w.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("failed to stream to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize GCS upload: %w", err)
	}

	log.Printf("Uploaded artifact %s to GCS in %s", name, time.Since(start))
	return nil
}

// OpenArtifact returns a reader for an object in the bucket
func (g *GCSArtifacts) OpenArtifact(ctx context.Context, name string) (io.ReadCloser, error) {
	rc, err := g.bucket.Object(g.prefix + name).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, name)
		}
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return rc, nil
}

// Close releases the storage client
func (g *GCSArtifacts) Close() error {
	return g.client.Close()
}

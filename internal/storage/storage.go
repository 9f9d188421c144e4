package storage

import "context"

// Object is a single blob written to a bucket.
type Object struct {
	Key         string
	ContentType string
	Body        []byte
	Metadata    map[string]string
}

// ObjectWriter is implemented by every object storage backend.
type ObjectWriter interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, obj Object) error
	Bucket() string
}

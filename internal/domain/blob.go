package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// TrailArchiver stores a completed attempt in cold storage.
type TrailArchiver interface {
	Archive(ctx context.Context, attempt TradeAttempt) error
}

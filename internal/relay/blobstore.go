package relay

import (
	"context"
	"io"
)

// ObjectMeta is stored alongside raw bytes for a blob.
type ObjectMeta struct {
	Filename   string
	UploadedAt int64
}

// ObjectInfo is returned by List.
type ObjectInfo struct {
	Key  string
	Size int64
}

// BlobStore is the opaque content-addressed bytes store behind the Edge
// Handler's upload/download path. Keys are always under "obj/".
type BlobStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, meta ObjectMeta) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, ObjectMeta, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

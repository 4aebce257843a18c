package relay

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// BuildBlobStoreFromDSN resolves a Blob Store from a DSN scheme:
// memory://, file:///path, s3://bucket?region=...&prefix=...&endpoint=...&path-style=1
func BuildBlobStoreFromDSN(ctx context.Context, dsn string) (BlobStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewMemoryBlobStore(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "", "file":
		return NewDiskBlobStore(dsnPath(parsed, dsn)), nil
	case "memory", "mem", "inmem":
		return NewMemoryBlobStore(), nil
	case "s3":
		q := parsed.Query()
		pathStyle, _ := strconv.ParseBool(q.Get("path-style"))
		return NewS3BlobStore(ctx, S3Options{
			Bucket:       parsed.Host,
			Region:       q.Get("region"),
			Prefix:       strings.TrimPrefix(q.Get("prefix"), "/"),
			Endpoint:     q.Get("endpoint"),
			UsePathStyle: pathStyle,
		})
	default:
		return nil, fmt.Errorf("unsupported blob store scheme: %s", parsed.Scheme)
	}
}

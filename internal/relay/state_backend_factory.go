package relay

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildStateBackendFromDSN resolves a backend from a DSN scheme:
// memory://, file:///path, bolt:///path, postgres://...
func BuildStateBackendFromDSN(dsn string) (StateBackend, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return NewInMemoryStateBackend(), nil
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(parsed.Scheme)) {
	case "", "file":
		return NewJSONFileStateBackend(dsnPath(parsed, dsn)), nil
	case "memory", "mem", "inmem":
		return NewInMemoryStateBackend(), nil
	case "bolt", "boltdb", "bbolt":
		return NewBoltStateBackend(dsnPath(parsed, dsn))
	case "postgres", "postgresql":
		return NewPostgresStateBackend(dsn)
	default:
		return nil, fmt.Errorf("unsupported state backend scheme: %s", parsed.Scheme)
	}
}

func dsnPath(parsed *url.URL, raw string) string {
	if parsed == nil || parsed.Scheme == "" {
		return raw
	}
	if parsed.Opaque != "" {
		return parsed.Opaque
	}
	if parsed.Host != "" {
		return parsed.Host + parsed.Path
	}
	return parsed.Path
}

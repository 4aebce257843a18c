// Package relayhttp implements the Edge Handler: stateless HTTP routing
// over the relay's State Actor and Blob Store.
package relayhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropzero/dropzero/internal/relay"
)

// Config configures the Edge Handler.
type Config struct {
	BasePath string
	MaxBytes int64 // MAX_MB * 1<<20
}

// Server is the stateless HTTP router in front of the State Actor and
// Blob Store. It performs no admission decisions of its own; all of
// that lives in relay.Actor.
type Server struct {
	actor *relay.Actor
	blobs relay.BlobStore
	cfg   Config
}

func NewServer(actor *relay.Actor, blobs relay.BlobStore, cfg Config) *Server {
	cfg.BasePath = strings.TrimSuffix(cfg.BasePath, "/")
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 << 20
	}
	return &Server{actor: actor, blobs: blobs, cfg: cfg}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// /metrics is process-local and exempt from BasePath routing, same as
	// it would be registered ahead of any other route on a real mux.
	if r.URL.Path == "/metrics" && r.Method == http.MethodGet {
		promhttp.Handler().ServeHTTP(w, r)
		return
	}

	path := r.URL.Path
	if s.cfg.BasePath != "" {
		if !strings.HasPrefix(path, s.cfg.BasePath) {
			emptyNotFound(w)
			return
		}
		path = strings.TrimPrefix(path, s.cfg.BasePath)
		if path == "" {
			path = "/"
		}
	}

	switch {
	case path == "/hc" && r.Method == http.MethodGet:
		s.handleHealth(w, r)
	case path == "/hp" && r.Method == http.MethodGet:
		s.handleHelp(w, r)
	case path == "/ud" && r.Method == http.MethodGet:
		s.handleUploadPage(w, r)
	case path == "/ud" && (r.Method == http.MethodPost || r.Method == http.MethodPut):
		s.handleUpload(w, r, "")
	case strings.HasPrefix(path, "/ud/") && r.Method == http.MethodPut && !strings.HasPrefix(path, "/ud/f/"):
		s.handleUpload(w, r, strings.TrimPrefix(path, "/ud/"))
	case strings.HasPrefix(path, "/ud/f/") && r.Method == http.MethodGet:
		s.handleDownload(w, r, strings.TrimPrefix(path, "/ud/f/"))
	default:
		emptyNotFound(w)
	}
}

func emptyNotFound(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNotFound)
}

func isNotFound(err error) bool {
	return errors.Is(err, relay.ErrNotFound)
}

// backgroundDelete runs finalize cleanup with a detached context; used
// after a response has already been written so a client disconnect
// can't cancel the token's removal.
func backgroundDelete(blobs relay.BlobStore, actor *relay.Actor, objectKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if objectKey != "" {
		_ = blobs.Delete(ctx, objectKey)
	}
	if token != "" {
		_ = actor.Finalize(token)
	}
}

func drainEvictions(ctx context.Context, blobs relay.BlobStore, actor *relay.Actor) {
	for _, key := range actor.DrainPendingDeletes() {
		_ = blobs.Delete(ctx, key)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func looksLikeBrowser(r *http.Request) bool {
	if r.URL.Query().Get("format") == "html" {
		return true
	}
	if r.URL.Query().Get("format") == "text" || r.URL.Query().Get("format") == "json" {
		return false
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host := r.RemoteAddr
	if idx := strings.LastIndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
}

package relayhttp

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dropzero/dropzero/internal/relay"
)

// handleDownload serves the one-shot GET. path is the "<token>/<filename>"
// segment after "/ud/f/", taken from r.URL.Path, which net/http has
// already percent-decoded.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, path string) {
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		emptyNotFound(w)
		return
	}
	token := path[:idx]
	filename := relay.SanitizeFilename(path[idx+1:])
	if filename == "" {
		emptyNotFound(w)
		return
	}

	claim, err := s.actor.Claim(token, filename)
	if err != nil {
		relay.DownloadsTotal.WithLabelValues("not_found").Inc()
		emptyNotFound(w)
		return
	}

	body, size, _, err := s.blobs.Get(r.Context(), claim.ObjectKey)
	if err != nil {
		relay.DownloadsTotal.WithLabelValues("store_error").Inc()
		go backgroundDelete(s.blobs, s.actor, claim.ObjectKey, token)
		emptyNotFound(w)
		return
	}
	defer body.Close()

	relay.DownloadsTotal.WithLabelValues("success").Inc()

	contentType := claim.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", contentDisposition(claim.Filename))
	if size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)

	go backgroundDelete(s.blobs, s.actor, claim.ObjectKey, token)
}

package relayhttp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropzero/dropzero/internal/relay"
)

const apiKeyHeader = "X-API-Key"

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, trailingName string) {
	ctx := r.Context()
	ip := clientIP(r)
	apiKey := apiKeyFromRequest(r)

	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	switch {
	case mediaType == "multipart/form-data" && r.Method == http.MethodPost:
		s.handleMultipartUpload(ctx, w, r, ip, apiKey)
	case r.Method == http.MethodPut:
		s.handleStreamedUpload(ctx, w, r, ip, apiKey, trailingName)
	default:
		s.handleRawTextUpload(ctx, w, r, ip, apiKey)
	}
}

func apiKeyFromRequest(r *http.Request) string {
	if v := r.URL.Query().Get("key"); v != "" {
		return v
	}
	if v := r.Header.Get(apiKeyHeader); v != "" {
		return v
	}
	return ""
}

func (s *Server) handleMultipartUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, ip, apiKey string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBytes+(1<<20))
	if err := r.ParseMultipartForm(s.cfg.MaxBytes + (1 << 20)); err != nil {
		s.writeUploadError(w, r, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	if apiKey == "" {
		apiKey = r.FormValue("key")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeUploadError(w, r, http.StatusBadRequest, "missing form field \"file\"")
		return
	}
	defer file.Close()

	size := header.Size
	if size > s.cfg.MaxBytes {
		s.writeUploadError(w, r, http.StatusRequestEntityTooLarge, "file exceeds maximum size")
		return
	}
	contentType := header.Header.Get("Content-Type")
	s.commitUpload(ctx, w, r, ip, apiKey, header.Filename, size, contentType, file)
}

func (s *Server) handleStreamedUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, ip, apiKey, trailingName string) {
	if r.ContentLength < 0 {
		s.writeUploadError(w, r, http.StatusLengthRequired, "Content-Length is required")
		return
	}
	size := r.ContentLength
	if size > s.cfg.MaxBytes {
		s.writeUploadError(w, r, http.StatusRequestEntityTooLarge, "file exceeds maximum size")
		return
	}

	filename := resolveStreamedFilename(r, trailingName)
	contentType := r.Header.Get("Content-Type")
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBytes)
	s.commitUpload(ctx, w, r, ip, apiKey, filename, size, contentType, r.Body)
}

func (s *Server) handleRawTextUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, ip, apiKey string) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeUploadError(w, r, http.StatusRequestEntityTooLarge, "request body exceeds maximum size")
		return
	}
	filename := fmt.Sprintf("%d.txt", time.Now().Unix())
	s.commitUpload(ctx, w, r, ip, apiKey, filename, int64(len(data)), "text/plain; charset=utf-8", strings.NewReader(string(data)))
}

func resolveStreamedFilename(r *http.Request, trailingName string) string {
	if v := r.URL.Query().Get("name"); v != "" {
		return v
	}
	if v := r.URL.Query().Get("filename"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Filename"); v != "" {
		return v
	}
	if v := r.Header.Get("X-File-Name"); v != "" {
		return v
	}
	if cd := r.Header.Get("Content-Disposition"); cd != "" {
		if name := filenameFromContentDisposition(cd); name != "" {
			return name
		}
	}
	if trailingName != "" {
		return trailingName
	}
	return randomFilename()
}

func filenameFromContentDisposition(cd string) string {
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	if v, ok := params["filename*"]; ok {
		return decodeRFC5987(v)
	}
	return params["filename"]
}

func decodeRFC5987(v string) string {
	parts := strings.SplitN(v, "'", 3)
	if len(parts) != 3 {
		return v
	}
	unescaped, err := decodePercent(parts[2])
	if err != nil {
		return parts[2]
	}
	return unescaped
}

func decodePercent(s string) (string, error) {
	return url.PathUnescape(s)
}

func randomFilename() string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	b := make([]byte, 8)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b) + ".bin"
}

func (s *Server) commitUpload(ctx context.Context, w http.ResponseWriter, r *http.Request, ip, apiKey, filename string, size int64, contentType string, body io.Reader) {
	reserved, err := s.actor.Reserve(ip, apiKey, filename, size, contentType)
	drainEvictions(ctx, s.blobs, s.actor)
	if err != nil {
		relay.UploadsTotal.WithLabelValues(reserveOutcomeLabel(err)).Inc()
		s.writeReserveError(w, r, err)
		return
	}

	meta := relay.ObjectMeta{Filename: filename, UploadedAt: time.Now().Unix()}
	if err := s.blobs.Put(ctx, reserved.ObjectKey, body, size, meta); err != nil {
		_ = s.actor.Abort(reserved.Token)
		drainEvictions(ctx, s.blobs, s.actor)
		relay.UploadsTotal.WithLabelValues("store_failed").Inc()
		s.writeUploadError(w, r, http.StatusInternalServerError, "failed to store upload")
		return
	}
	go func() {
		_ = s.actor.Commit(reserved.Token)
	}()
	relay.UploadsTotal.WithLabelValues("success").Inc()

	downloadURL := s.downloadURL(r, reserved.Token, filename)
	s.writeUploadSuccess(w, r, downloadURL)
}

func reserveOutcomeLabel(err error) string {
	switch {
	case errors.Is(err, relay.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, relay.ErrTooManyRequests):
		return "rate_limited"
	case errors.Is(err, relay.ErrNotFound):
		return "invalid_filename"
	default:
		return "error"
	}
}

func (s *Server) downloadURL(r *http.Request, token, filename string) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s/ud/f/%s/%s", scheme, r.Host, s.cfg.BasePath, token, pathEscape(filename))
}

func pathEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '/' || r == '?' || r == '#' || r == ' ' || r == '%':
			fmt.Fprintf(&b, "%%%02X", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *Server) writeReserveError(w http.ResponseWriter, r *http.Request, err error) {
	switch reserveOutcomeLabel(err) {
	case "unauthorized":
		s.writeUploadError(w, r, http.StatusUnauthorized, "invalid or missing API key")
	case "rate_limited":
		s.writeUploadError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
	case "invalid_filename":
		s.writeUploadError(w, r, http.StatusBadRequest, "invalid filename")
	default:
		s.writeUploadError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeUploadSuccess(w http.ResponseWriter, r *http.Request, downloadURL string) {
	if looksLikeBrowser(r) {
		renderUploadPage(w, http.StatusCreated, "", downloadURL)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusCreated)
	fmt.Fprintf(w, "OK\n%s\n", downloadURL)
}

func (s *Server) writeUploadError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if looksLikeBrowser(r) {
		renderUploadPage(w, status, message, "")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "ERROR\n%s\n", message)
}

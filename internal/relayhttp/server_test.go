package relayhttp

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dropzero/dropzero/internal/relay"
)

func newTestServer(t *testing.T, cfg relay.Config) *Server {
	t.Helper()
	actor, err := relay.NewActor(relay.NewInMemoryStateBackend(), cfg)
	if err != nil {
		t.Fatalf("NewActor: %v", err)
	}
	return NewServer(actor, relay.NewMemoryBlobStore(), Config{})
}

func doUploadRawText(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ud", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func extractDownloadPath(t *testing.T, body string) string {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) < 2 {
		t.Fatalf("unexpected upload response body: %q", body)
	}
	url := lines[1]
	idx := strings.Index(url, "/ud/f/")
	if idx < 0 {
		t.Fatalf("no download path in %q", url)
	}
	return url[idx:]
}

func TestUploadThenDownloadOnceThenNotFound(t *testing.T) {
	srv := newTestServer(t, relay.Config{})

	rec := doUploadRawText(t, srv, "hello world")
	if rec.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", rec.Code, rec.Body.String())
	}
	downloadPath := extractDownloadPath(t, rec.Body.String())

	var firstRec *httptest.ResponseRecorder
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, downloadPath, nil)
		firstRec = httptest.NewRecorder()
		srv.ServeHTTP(firstRec, req)
		if firstRec.Code == http.StatusOK {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if firstRec == nil || firstRec.Code != http.StatusOK {
		t.Fatalf("first download status = %v, want 200", firstRec)
	}
	if firstRec.Body.String() != "hello world" {
		t.Fatalf("downloaded body = %q", firstRec.Body.String())
	}

	req2 := httptest.NewRequest(http.MethodGet, downloadPath, nil)
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusNotFound {
		t.Fatalf("second download status = %d, want 404", rec2.Code)
	}
}

func TestDownloadUnknownTokenIsNotFound(t *testing.T) {
	srv := newTestServer(t, relay.Config{})
	req := httptest.NewRequest(http.MethodGet, "/ud/f/nosuchtoken/file.txt", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body on 404, got %q", rec.Body.String())
	}
}

func TestMultipartUploadRejectsOversizedFile(t *testing.T) {
	actor, err := relay.NewActor(relay.NewInMemoryStateBackend(), relay.Config{})
	if err != nil {
		t.Fatalf("NewActor: %v", err)
	}
	srv := NewServer(actor, relay.NewMemoryBlobStore(), Config{MaxBytes: 4})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "big.bin")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte("this is definitely too big"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ud", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413, body = %s", rec.Code, rec.Body.String())
	}
}

func TestUploadRateLimited(t *testing.T) {
	srv := newTestServer(t, relay.Config{RateLimitSec: 60})
	first := doUploadRawText(t, srv, "one")
	if first.Code != http.StatusCreated {
		t.Fatalf("first upload status = %d", first.Code)
	}
	second := doUploadRawText(t, srv, "two")
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second upload status = %d, want 429", second.Code)
	}
}

func TestUploadRequiresAPIKeyWhenConfigured(t *testing.T) {
	srv := newTestServer(t, relay.Config{APIKey: "shh"})

	req := httptest.NewRequest(http.MethodPost, "/ud", strings.NewReader("data"))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/ud?key=shh", strings.NewReader("data"))
	rec2 := httptest.NewRecorder()
	srv.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", rec2.Code, rec2.Body.String())
	}
}

func TestHealthEndpointReturnsJSON(t *testing.T) {
	srv := newTestServer(t, relay.Config{})
	req := httptest.NewRequest(http.MethodGet, "/hc", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestHelpEndpointReturnsPlainText(t *testing.T) {
	srv := newTestServer(t, relay.Config{})
	req := httptest.NewRequest(http.MethodGet, "/hp", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dropzero") {
		t.Fatalf("unexpected help body: %q", rec.Body.String())
	}
}

func doUploadMultipart(t *testing.T, srv *Server, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = fw.Write([]byte(content))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/ud", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestMetricsEndpointExposesRelayCounters(t *testing.T) {
	relay.RegisterMetrics()
	srv := newTestServer(t, relay.Config{})

	upload := doUploadRawText(t, srv, "metrics probe")
	if upload.Code != http.StatusCreated {
		t.Fatalf("upload status = %d", upload.Code)
	}
	downloadPath := extractDownloadPath(t, upload.Body.String())
	var downloadRec *httptest.ResponseRecorder
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, downloadPath, nil)
		downloadRec = httptest.NewRecorder()
		srv.ServeHTTP(downloadRec, req)
		if downloadRec.Code == http.StatusOK {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if downloadRec == nil || downloadRec.Code != http.StatusOK {
		t.Fatalf("download status = %v, want 200", downloadRec)
	}
	// Uploading the same filename twice forces an overwrite eviction so
	// relay_evictions_total has at least one recorded label value.
	if rec := doUploadMultipart(t, srv, "dup.bin", "first"); rec.Code != http.StatusCreated {
		t.Fatalf("first multipart upload status = %d", rec.Code)
	}
	if rec := doUploadMultipart(t, srv, "dup.bin", "second"); rec.Code != http.StatusCreated {
		t.Fatalf("second multipart upload status = %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "relay_uploads_total") {
		t.Fatalf("/metrics does not expose relay_uploads_total: %q", body)
	}
	if !strings.Contains(body, "relay_downloads_total") {
		t.Fatalf("/metrics does not expose relay_downloads_total: %q", body)
	}
	if !strings.Contains(body, "relay_evictions_total") {
		t.Fatalf("/metrics does not expose relay_evictions_total: %q", body)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	srv := newTestServer(t, relay.Config{})
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

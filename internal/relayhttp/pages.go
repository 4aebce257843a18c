package relayhttp

import (
	"fmt"
	"net/http"

	"github.com/dropzero/dropzero/internal/relay"
)

const uploadPageTemplate = `<!DOCTYPE html>
<html>
<head><title>dropzero</title></head>
<body>
<h1>dropzero</h1>
<p>One-shot file drop. Upload a file; the first download destroys it.</p>
%s
<form method="POST" enctype="multipart/form-data" action="">
  <input type="file" name="file" required>
  <button type="submit">Upload</button>
</form>
<p>Or from a shell: <code>curl -T file.txt %s/ud</code></p>
</body>
</html>
`

const helpText = `dropzero — one-shot file relay

Upload:
  curl -T file.txt <base>/ud
  curl -F file=@file.txt <base>/ud
  echo hello | curl --data-binary @- <base>/ud

Download (once):
  curl <base>/ud/f/<token>/<filename>

Health:
  curl <base>/hc
`

func renderUploadPage(w http.ResponseWriter, status int, errMsg, downloadURL string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	var body string
	switch {
	case errMsg != "":
		body = fmt.Sprintf("<p class=\"error\">%s</p>", htmlEscape(errMsg))
	case downloadURL != "":
		body = fmt.Sprintf("<p class=\"success\">Uploaded. Download URL: <a href=\"%s\">%s</a></p>", htmlEscape(downloadURL), htmlEscape(downloadURL))
	}
	fmt.Fprintf(w, uploadPageTemplate, body, "")
}

func htmlEscape(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			out = append(out, []byte("&amp;")...)
		case '<':
			out = append(out, []byte("&lt;")...)
		case '>':
			out = append(out, []byte("&gt;")...)
		case '"':
			out = append(out, []byte("&quot;")...)
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}

func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	if !looksLikeBrowser(r) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(helpText))
		return
	}
	renderUploadPage(w, http.StatusOK, "", "")
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	if looksLikeBrowser(r) {
		renderUploadPage(w, http.StatusOK, "", "")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(helpText))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	counters, err := s.actor.HealthCheck()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	relay.HealthChecksTotal.Inc()
	relay.PendingTokensGauge.Set(float64(counters.PendingTokens))
	relay.PendingBytesGauge.Set(float64(counters.PendingBytes))

	objects, err := s.blobs.List(r.Context(), "obj/")
	var storedObjects int
	var storedBytes int64
	if err == nil {
		storedObjects = len(objects)
		for _, o := range objects {
			storedBytes += o.Size
		}
	}

	resp := map[string]any{
		"status":        "ok",
		"hcCount":       counters.HCCount,
		"pendingTokens": counters.PendingTokens,
		"pendingBytes":  counters.PendingBytes,
		"storedObjects": storedObjects,
		"storedBytes":   storedBytes,
	}
	if looksLikeBrowser(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "<html><body><h1>dropzero health</h1><pre>%+v</pre></body></html>", resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

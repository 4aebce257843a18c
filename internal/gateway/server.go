package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Server handles the single POST / route that normalizes, validates,
// and dispatches inbound chat-webhook messages.
type Server struct {
	allowlist  *TokenAllowlist
	dispatcher *Dispatcher
}

func NewServer(allowlist *TokenAllowlist, dispatcher *Dispatcher) *Server {
	return &Server{allowlist: allowlist, dispatcher: dispatcher}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" || r.Method != http.MethodPost {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !s.allowlist.Authorize(r) {
		writeJSON(w, http.StatusUnauthorized, DispatchResult{OK: false, ErrMsg: "unauthorized"})
		return
	}

	msg, err := Normalize(r)
	if err != nil {
		s.writeNormalizeError(w, err)
		return
	}
	if err := Validate(msg); err != nil {
		s.writeNormalizeError(w, err)
		return
	}

	result := s.dispatcher.Dispatch(r.Context(), msg)
	status := http.StatusOK
	if !result.OK {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

func (s *Server) writeNormalizeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, ErrUnauthorized) {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, DispatchResult{OK: false, ErrMsg: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

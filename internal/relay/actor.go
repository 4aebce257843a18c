package relay

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"
)

// persistedState is the single document written through a StateBackend.
type persistedState struct {
	Tokens     map[string]TokenMeta `json:"tokens"`
	ByName     map[string]string    `json:"byName"`
	Queue      []string             `json:"queue"`
	LastUpload map[string]int64     `json:"lastUpload"`
	HCCount    uint64               `json:"hcCount"`
}

func newPersistedState() *persistedState {
	return &persistedState{
		Tokens:     map[string]TokenMeta{},
		ByName:     map[string]string{},
		Queue:      []string{},
		LastUpload: map[string]int64{},
	}
}

// Actor is the serialized state machine owning all relay metadata. Every
// operation runs under a single mutex: no two operations observe the
// state mid-flight, and each op that succeeds persists the full snapshot
// before releasing the lock. An op that returns early (an auth, rate-limit
// or filename error in Reserve, Commit on a token that is no longer
// reserved, a Claim that fails its checks) does not persist; the sweep its
// cleanupLocked made stays in memory until the next persisting op.
type Actor struct {
	mu      sync.Mutex
	state   *persistedState
	backend StateBackend

	apiKey       string
	rateLimitSec int64
	maxPending   int
	ttlSec       int64
	now          func() time.Time

	// pendingDeletes accumulates object keys evicted/expired/finalized
	// during an op; the caller (Edge Handler) drains it and deletes from
	// the Blob Store outside the actor's critical section.
	pendingDeletes []string
}

// Config configures admission control policy for the Actor.
type Config struct {
	APIKey       string
	RateLimitSec int64
	MaxPending   int
	TTLSec       int64
}

func NewActor(backend StateBackend, cfg Config) (*Actor, error) {
	if backend == nil {
		backend = NewInMemoryStateBackend()
	}
	a := &Actor{
		backend:      backend,
		apiKey:       cfg.APIKey,
		rateLimitSec: cfg.RateLimitSec,
		maxPending:   cfg.MaxPending,
		ttlSec:       cfg.TTLSec,
		now:          time.Now,
	}
	loaded, err := backend.Load()
	if err != nil {
		return nil, fmt.Errorf("relay: load state: %w", err)
	}
	if loaded == nil {
		loaded = newPersistedState()
	}
	if loaded.Tokens == nil {
		loaded.Tokens = map[string]TokenMeta{}
	}
	if loaded.ByName == nil {
		loaded.ByName = map[string]string{}
	}
	if loaded.LastUpload == nil {
		loaded.LastUpload = map[string]int64{}
	}
	a.state = loaded
	return a, nil
}

func (a *Actor) nowUnix() int64 { return a.now().Unix() }

func newToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf))
}

func objectKeyFor(token, filename string) string {
	ext := path.Ext(filename)
	return "obj/" + token + ext
}

// saveLocked persists the current in-memory state. Callers must hold mu.
// Mutation is only considered committed once this succeeds.
func (a *Actor) saveLocked() error {
	return a.backend.Save(a.state)
}

// snapshotLocked captures the state and pending-delete cursor before a
// mutation, so a failed persist can be rolled back with rollbackLocked
// instead of leaving the in-memory copy diverged from what's on disk.
// Callers must hold mu.
func (a *Actor) snapshotLocked() (*persistedState, int, error) {
	clone, err := cloneState(a.state)
	if err != nil {
		return nil, 0, err
	}
	return clone, len(a.pendingDeletes), nil
}

// rollbackLocked restores state captured by snapshotLocked after a failed
// persist. Callers must hold mu.
func (a *Actor) rollbackLocked(snapshot *persistedState, deletesLen int) {
	a.state = snapshot
	a.pendingDeletes = a.pendingDeletes[:deletesLen]
}

func (a *Actor) scheduleDelete(objectKey string) {
	if objectKey == "" {
		return
	}
	a.pendingDeletes = append(a.pendingDeletes, objectKey)
}

// DrainPendingDeletes returns and clears every object key scheduled for
// deletion since the previous drain, whichever operations scheduled them.
// The Edge Handler calls this after Reserve and after Abort on the upload
// path and deletes the returned keys from the Blob Store outside the
// actor's lock.
func (a *Actor) DrainPendingDeletes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.pendingDeletes
	a.pendingDeletes = nil
	return out
}

// cleanupLocked removes expired, stuck-reserved, and over-cap tokens.
// Runs at the start of every public operation. Callers must hold mu.
func (a *Actor) cleanupLocked() {
	now := a.nowUnix()
	for token, meta := range a.state.Tokens {
		expired := meta.ExpiresAt > 0 && meta.ExpiresAt < now
		stuck := meta.Status == StatusReserved && now-meta.CreatedAt > int64(stuckReservationGrace.Seconds())
		switch {
		case expired:
			a.removeTokenLocked(token, "expired")
		case stuck:
			a.removeTokenLocked(token, "stuck")
		}
	}
	a.enforceCapLocked()

	maxAge := a.rateLimitSec
	if maxAge < 86400 {
		maxAge = 86400
	}
	for ip, last := range a.state.LastUpload {
		if now-last > maxAge {
			delete(a.state.LastUpload, ip)
		}
	}
}

// enforceCapLocked evicts the oldest ready tokens, in queue order, until
// the ready count is at or below maxPending.
func (a *Actor) enforceCapLocked() {
	if a.maxPending <= 0 {
		return
	}
	readyCount := 0
	for _, t := range a.state.Queue {
		if meta, ok := a.state.Tokens[t]; ok && meta.Status == StatusReady {
			readyCount++
		}
	}
	if readyCount <= a.maxPending {
		return
	}
	for _, t := range a.state.Queue {
		if readyCount <= a.maxPending {
			break
		}
		meta, ok := a.state.Tokens[t]
		if !ok || meta.Status != StatusReady {
			continue
		}
		a.removeTokenLocked(t, "cap")
		readyCount--
	}
}

// removeTokenLocked deletes a token from all indexes and schedules its
// object for deletion. reason labels an EvictionsTotal increment; pass ""
// for a normal abort/finalize, which isn't an eviction. Callers must hold
// mu.
func (a *Actor) removeTokenLocked(token, reason string) {
	meta, ok := a.state.Tokens[token]
	if !ok {
		return
	}
	delete(a.state.Tokens, token)
	if bound, ok := a.state.ByName[meta.Filename]; ok && bound == token {
		delete(a.state.ByName, meta.Filename)
	}
	for i, t := range a.state.Queue {
		if t == token {
			a.state.Queue = append(a.state.Queue[:i], a.state.Queue[i+1:]...)
			break
		}
	}
	a.scheduleDelete(meta.ObjectKey)
	if reason != "" {
		EvictionsTotal.WithLabelValues(reason).Inc()
	}
}

// Reserve admits a new upload: checks auth, rate limit, and filename
// validity, evicts a prior live token bound to the same filename, and
// creates a new reserved TokenMeta.
func (a *Actor) Reserve(ip, apiKey, filename string, size int64, contentType string) (ReserveResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupLocked()

	if a.apiKey != "" && apiKey != a.apiKey {
		return ReserveResult{}, ErrUnauthorized
	}

	snapshot, deletesLen, err := a.snapshotLocked()
	if err != nil {
		return ReserveResult{}, fmt.Errorf("relay: snapshot state: %w", err)
	}

	if a.rateLimitSec > 0 {
		now := a.nowUnix()
		if last, ok := a.state.LastUpload[ip]; ok && now-last < a.rateLimitSec {
			return ReserveResult{}, ErrTooManyRequests
		}
		a.state.LastUpload[ip] = now
	}

	filename = SanitizeFilename(filename)
	if filename == "" {
		return ReserveResult{}, ErrNotFound
	}

	token := newToken()
	objectKey := objectKeyFor(token, filename)

	before := len(a.pendingDeletes)
	if prior, ok := a.state.ByName[filename]; ok {
		a.removeTokenLocked(prior, "overwritten")
	}

	now := a.nowUnix()
	var expiresAt int64
	if a.ttlSec > 0 {
		expiresAt = now + a.ttlSec
	}
	meta := TokenMeta{
		Token:       token,
		ObjectKey:   objectKey,
		Filename:    filename,
		ContentType: truncateContentType(contentType),
		Size:        size,
		CreatedAt:   now,
		ExpiresAt:   expiresAt,
		Status:      StatusReserved,
		UploaderIP:  ip,
	}
	a.state.Tokens[token] = meta
	a.state.ByName[filename] = token
	a.state.Queue = append(a.state.Queue, token)

	a.enforceCapLocked()

	if err := a.saveLocked(); err != nil {
		a.rollbackLocked(snapshot, deletesLen)
		return ReserveResult{}, fmt.Errorf("relay: persist reserve: %w", err)
	}
	return ReserveResult{Token: token, ObjectKey: objectKey, Evicted: append([]string(nil), a.pendingDeletes[before:]...)}, nil
}

// Commit flips a reserved token to ready. Idempotent.
func (a *Actor) Commit(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupLocked()

	meta, ok := a.state.Tokens[token]
	if !ok {
		return ErrNotFound
	}
	if meta.Status != StatusReserved {
		return nil
	}

	snapshot, deletesLen, err := a.snapshotLocked()
	if err != nil {
		return fmt.Errorf("relay: snapshot state: %w", err)
	}

	meta.Status = StatusReady
	a.state.Tokens[token] = meta
	a.enforceCapLocked()
	if err := a.saveLocked(); err != nil {
		a.rollbackLocked(snapshot, deletesLen)
		return fmt.Errorf("relay: persist commit: %w", err)
	}
	return nil
}

// Abort removes a reservation, idempotently.
func (a *Actor) Abort(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupLocked()

	snapshot, deletesLen, err := a.snapshotLocked()
	if err != nil {
		return fmt.Errorf("relay: snapshot state: %w", err)
	}

	a.removeTokenLocked(token, "")
	if err := a.saveLocked(); err != nil {
		a.rollbackLocked(snapshot, deletesLen)
		return fmt.Errorf("relay: persist abort: %w", err)
	}
	return nil
}

// Claim is the one-shot commit point: it flips a ready token to claimed
// and persists before returning. Any concurrent claim of the same token
// observes claimed (or the now-removed state) and fails with ErrNotFound.
func (a *Actor) Claim(token, filename string) (ClaimResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupLocked()

	meta, ok := a.state.Tokens[token]
	if !ok || meta.Status != StatusReady || meta.Filename != filename {
		return ClaimResult{}, ErrNotFound
	}
	if meta.ExpiresAt > 0 && meta.ExpiresAt <= a.nowUnix() {
		a.removeTokenLocked(token, "expired")
		_ = a.saveLocked()
		return ClaimResult{}, ErrNotFound
	}

	snapshot, deletesLen, err := a.snapshotLocked()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("relay: snapshot state: %w", err)
	}

	meta.Status = StatusClaimed
	a.state.Tokens[token] = meta
	if err := a.saveLocked(); err != nil {
		a.rollbackLocked(snapshot, deletesLen)
		return ClaimResult{}, fmt.Errorf("relay: persist claim: %w", err)
	}
	return ClaimResult{ObjectKey: meta.ObjectKey, Filename: meta.Filename, ContentType: meta.ContentType}, nil
}

// Finalize removes a claimed (or any) token after its download
// completes. Idempotent.
func (a *Actor) Finalize(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupLocked()

	snapshot, deletesLen, err := a.snapshotLocked()
	if err != nil {
		return fmt.Errorf("relay: snapshot state: %w", err)
	}

	a.removeTokenLocked(token, "")
	if err := a.saveLocked(); err != nil {
		a.rollbackLocked(snapshot, deletesLen)
		return fmt.Errorf("relay: persist finalize: %w", err)
	}
	return nil
}

// Cleanup runs the same sweep as the start of every op; exposed for the
// Scheduler's periodic tick.
func (a *Actor) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupLocked()
	return a.saveLocked()
}

// HealthCheck increments the health counter and reports pending counts.
func (a *Actor) HealthCheck() (HealthCounters, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupLocked()

	snapshot, deletesLen, err := a.snapshotLocked()
	if err != nil {
		return HealthCounters{}, fmt.Errorf("relay: snapshot state: %w", err)
	}

	a.state.HCCount++

	var pendingTokens int
	var pendingBytes int64
	for _, meta := range a.state.Tokens {
		if meta.Status == StatusClaimed {
			continue
		}
		pendingTokens++
		pendingBytes += meta.Size
	}
	if err := a.saveLocked(); err != nil {
		a.rollbackLocked(snapshot, deletesLen)
		return HealthCounters{}, fmt.Errorf("relay: persist health check: %w", err)
	}
	return HealthCounters{HCCount: a.state.HCCount, PendingTokens: pendingTokens, PendingBytes: pendingBytes}, nil
}

func truncateContentType(ct string) string {
	if len(ct) <= 200 {
		return ct
	}
	return ct[:200]
}

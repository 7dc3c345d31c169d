// Package session keeps track of authentication attempts per chat or user key and
// enforces that each key has at most one attempt in progress.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/ClaudeSessionAuth/sdk/auth"
	log "github.com/sirupsen/logrus"
)

const (
	defaultSessionTTL  = 10 * time.Minute
	maxKeyLength       = 128
	subscriberHeadroom = 16
)

var (
	// ErrSessionActive is returned by Start while the key has an unfinished attempt.
	ErrSessionActive = errors.New("session: authentication already in progress")
	// ErrSessionNotFound is returned when the key has no attempt, or none in progress.
	ErrSessionNotFound = errors.New("session: no authentication in progress")
	// ErrSessionStarting is returned when the attempt has not produced its handle yet.
	ErrSessionStarting = errors.New("session: authentication is still starting")
	// ErrNotAuthCode is returned by SubmitCode for text that cannot be a code.
	ErrNotAuthCode = errors.New("session: text does not look like an authorization code")
	// ErrInvalidKey is returned for empty or oversized keys.
	ErrInvalidKey = errors.New("session: invalid key")
)

// Starter begins an authentication attempt for a key.
type Starter func(ctx context.Context) (*auth.Handle, error)

// Snapshot is a copy of a session's progress.
type Snapshot struct {
	ID         string           `json:"id"`
	Key        string           `json:"key"`
	Active     bool             `json:"active"`
	State      *auth.AuthState  `json:"state,omitempty"`
	History    []auth.AuthState `json:"history"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
	FinishedAt time.Time        `json:"finished_at,omitzero"`
}

type entry struct {
	id         string
	key        string
	handle     *auth.Handle
	history    []auth.AuthState
	createdAt  time.Time
	updatedAt  time.Time
	finishedAt time.Time
	finished   bool

	subscribers map[int]chan auth.AuthState
	nextSub     int
}

func (e *entry) snapshot() Snapshot {
	s := Snapshot{
		ID:         e.id,
		Key:        e.key,
		Active:     !e.finished,
		History:    append([]auth.AuthState{}, e.history...),
		CreatedAt:  e.createdAt,
		UpdatedAt:  e.updatedAt,
		FinishedAt: e.finishedAt,
	}
	if n := len(e.history); n > 0 {
		last := e.history[n-1]
		s.State = &last
	}
	return s
}

// Registry maps keys to authentication sessions. Finished sessions stay queryable
// for the TTL and are purged on access.
type Registry struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*entry
}

// NewRegistry creates a registry keeping finished sessions for ttl.
func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Registry{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// SetTTL changes how long finished sessions are kept.
func (r *Registry) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	r.mu.Lock()
	r.ttl = ttl
	r.mu.Unlock()
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > maxKeyLength {
		return "", ErrInvalidKey
	}
	return key, nil
}

func (r *Registry) purgeExpiredLocked(now time.Time) {
	for key, e := range r.sessions {
		if e.finished && now.Sub(e.finishedAt) > r.ttl {
			delete(r.sessions, key)
		}
	}
}

// Start runs start for key unless an attempt is already in progress, replacing a
// finished session. The key is reserved while start runs.
func (r *Registry) Start(ctx context.Context, key string, start Starter) (Snapshot, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return Snapshot{}, err
	}
	now := r.now()

	r.mu.Lock()
	r.purgeExpiredLocked(now)
	if existing, ok := r.sessions[key]; ok && !existing.finished {
		r.mu.Unlock()
		return Snapshot{}, ErrSessionActive
	}
	e := &entry{
		id:          uuid.NewString(),
		key:         key,
		createdAt:   now,
		updatedAt:   now,
		subscribers: make(map[int]chan auth.AuthState),
	}
	r.sessions[key] = e
	r.mu.Unlock()

	handle, err := start(ctx)
	if err != nil {
		r.mu.Lock()
		if r.sessions[key] == e {
			delete(r.sessions, key)
		}
		r.mu.Unlock()
		return Snapshot{}, err
	}

	r.mu.Lock()
	e.handle = handle
	snap := e.snapshot()
	r.mu.Unlock()

	log.WithField("session", key).Infof("authentication session %s started", e.id)
	go r.watch(e)
	return snap, nil
}

// watch records every state of e's handle until the stream closes.
func (r *Registry) watch(e *entry) {
	for s := range e.handle.States {
		r.record(e, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !e.finished {
		r.finishLocked(e)
	}
}

func (r *Registry) record(e *entry, s auth.AuthState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.history = append(e.history, s)
	e.updatedAt = r.now()
	for id, ch := range e.subscribers {
		select {
		case ch <- s:
		default:
			log.WithField("session", e.key).Warnf("dropping slow subscriber %d", id)
			close(ch)
			delete(e.subscribers, id)
		}
	}
	if s.Terminal() {
		log.WithFields(log.Fields{"session": e.key, "state": s.Kind}).Info("authentication session finished")
		r.finishLocked(e)
	}
}

func (r *Registry) finishLocked(e *entry) {
	e.finished = true
	e.finishedAt = r.now()
	for id, ch := range e.subscribers {
		close(ch)
		delete(e.subscribers, id)
	}
}

// active returns the unfinished session for key.
func (r *Registry) active(key string) (*auth.Handle, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpiredLocked(r.now())
	e, ok := r.sessions[key]
	if !ok || e.finished {
		return nil, ErrSessionNotFound
	}
	if e.handle == nil {
		return nil, ErrSessionStarting
	}
	return e.handle, nil
}

// SubmitCode forwards an authorization code to key's attempt.
func (r *Registry) SubmitCode(key, code string) error {
	if !LooksLikeAuthCode(code) {
		return ErrNotAuthCode
	}
	handle, err := r.active(key)
	if err != nil {
		return err
	}
	if err = handle.SubmitCode(code); err != nil {
		if errors.Is(err, auth.ErrHandleClosed) {
			return ErrSessionNotFound
		}
		return err
	}
	return nil
}

// Cancel fires the cancellation trigger of key's attempt. It reports whether this call fired it.
func (r *Registry) Cancel(key string) (bool, error) {
	handle, err := r.active(key)
	if err != nil {
		return false, err
	}
	return handle.Cancel(), nil
}

// Get returns a snapshot of key's session.
func (r *Registry) Get(key string) (Snapshot, bool) {
	key, err := normalizeKey(key)
	if err != nil {
		return Snapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpiredLocked(r.now())
	e, ok := r.sessions[key]
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Remove forgets key's session, cancelling it first when it is still running.
// A session whose attempt is still starting cannot be removed.
func (r *Registry) Remove(key string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	r.mu.Lock()
	e, ok := r.sessions[key]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	if e.handle == nil && !e.finished {
		r.mu.Unlock()
		return ErrSessionStarting
	}
	delete(r.sessions, key)
	var running *auth.Handle
	if !e.finished {
		running = e.handle
	}
	r.mu.Unlock()
	if running != nil {
		running.Cancel()
	}
	return nil
}

// Subscribe returns the states of key's session: the history so far, then live
// states. The channel is closed after the terminal state. cancel stops delivery early.
func (r *Registry) Subscribe(key string) (<-chan auth.AuthState, func(), error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpiredLocked(r.now())
	e, ok := r.sessions[key]
	if !ok {
		return nil, nil, ErrSessionNotFound
	}

	ch := make(chan auth.AuthState, len(e.history)+subscriberHeadroom)
	for _, s := range e.history {
		ch <- s
	}
	if e.finished {
		close(ch)
		return ch, func() {}, nil
	}

	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = ch
	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if sub, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel, nil
}

// Shutdown cancels every attempt still in progress.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	var handles []*auth.Handle
	for _, e := range r.sessions {
		if e.handle != nil && !e.finished {
			handles = append(handles, e.handle)
		}
	}
	r.mu.Unlock()
	for _, h := range handles {
		h.Cancel()
	}
}

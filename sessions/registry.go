package sessions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
)

var (
	// ErrSessionNotFound is returned when no session has the requested id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is returned when delivering to a session whose stream
	// has ended.
	ErrSessionClosed = errors.New("session closed")
	// ErrDuplicateSession is returned when inserting an id that is already
	// present.
	ErrDuplicateSession = errors.New("duplicate session id")
)

// Session is a live transport session.
type Session interface {
	ID() string
	// Transport names the carrying transport, e.g. "sse".
	Transport() string
	CreatedAt() time.Time
	// Deliver hands a client message to the session. It returns
	// ErrSessionClosed once the session has ended.
	Deliver(ctx context.Context, msg jsonrpc.Message) error
}

// Registry is a concurrency-safe index of live sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Insert adds s. Ids must be unique.
func (r *Registry) Insert(s Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateSession, s.ID())
	}
	r.sessions[s.ID()] = s
	return nil
}

// Remove deletes the session with id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Lookup returns the session with id or ErrSessionNotFound.
func (r *Registry) Lookup(id string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// IDs returns the live session ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

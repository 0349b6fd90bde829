package sessions

import (
	"context"
	"sync"
	"time"
)

// Entry describes a session in a Directory.
type Entry struct {
	ID        string    `json:"id"`
	Transport string    `json:"transport"`
	Instance  string    `json:"instance"`
	UserID    string    `json:"user_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Directory is a shared, TTL-based record of open sessions.
type Directory interface {
	// Register records e for ttl. Registering an existing id replaces it.
	Register(ctx context.Context, e Entry, ttl time.Duration) error
	// Touch extends the TTL of id. It returns ErrSessionNotFound when the
	// entry is gone.
	Touch(ctx context.Context, id string, ttl time.Duration) error
	// Unregister removes id. Removing a missing id is not an error.
	Unregister(ctx context.Context, id string) error
	// Lookup returns the entry for id or ErrSessionNotFound.
	Lookup(ctx context.Context, id string) (*Entry, error)
	// Count returns the number of unexpired entries.
	Count(ctx context.Context) (int, error)
}

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// MemoryDirectory is an in-process Directory.
type MemoryDirectory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// MemoryOption configures a MemoryDirectory.
type MemoryOption func(*MemoryDirectory)

// WithClock overrides the clock used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(d *MemoryDirectory) { d.now = now }
}

// NewMemoryDirectory returns an empty MemoryDirectory.
func NewMemoryDirectory(opts ...MemoryOption) *MemoryDirectory {
	d := &MemoryDirectory{entries: make(map[string]memoryEntry), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// expireLocked drops entries past their deadline. Callers hold d.mu.
func (d *MemoryDirectory) expireLocked() {
	now := d.now()
	for id, e := range d.entries {
		if !now.Before(e.expiresAt) {
			delete(d.entries, id)
		}
	}
}

func (d *MemoryDirectory) Register(ctx context.Context, e Entry, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[e.ID] = memoryEntry{entry: e, expiresAt: d.now().Add(ttl)}
	return nil
}

func (d *MemoryDirectory) Touch(ctx context.Context, id string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireLocked()
	e, ok := d.entries[id]
	if !ok {
		return ErrSessionNotFound
	}
	e.expiresAt = d.now().Add(ttl)
	d.entries[id] = e
	return nil
}

func (d *MemoryDirectory) Unregister(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, id)
	return nil
}

func (d *MemoryDirectory) Lookup(ctx context.Context, id string) (*Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireLocked()
	e, ok := d.entries[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	out := e.entry
	return &out, nil
}

func (d *MemoryDirectory) Count(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.expireLocked()
	return len(d.entries), nil
}

var _ Directory = (*MemoryDirectory)(nil)

package storage

import (
	"context"
	"sync"
	"time"

	"texttones/internal/conversions"
)

// MemoryStore keeps aggregates in process memory. It is used when no database
// is configured; all data is lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	users map[string]conversions.UserAggregate
	now   func() time.Time
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[string]conversions.UserAggregate),
		now:   time.Now,
	}
}

// Record applies entry to the user's aggregate under the store lock.
func (m *MemoryStore) Record(ctx context.Context, userID string, entry conversions.ActivityEntry) (conversions.UserAggregate, error) {
	if err := ctx.Err(); err != nil {
		return conversions.UserAggregate{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.users[userID]
	if !ok {
		agg = conversions.UserAggregate{UserID: userID, CreatedAt: m.now().UTC()}
	}
	agg = conversions.ApplyEntry(agg, entry)
	m.users[userID] = agg
	return agg.Clone(), nil
}

// Fetch returns a copy of the user's aggregate.
func (m *MemoryStore) Fetch(ctx context.Context, userID string) (conversions.UserAggregate, error) {
	if err := ctx.Err(); err != nil {
		return conversions.UserAggregate{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	agg, ok := m.users[userID]
	if !ok {
		return conversions.UserAggregate{UserID: userID, RecentActivity: []conversions.ActivityEntry{}}, nil
	}
	return agg.Clone(), nil
}

// EnsureProfile creates the user's profile on first sign-in.
func (m *MemoryStore) EnsureProfile(ctx context.Context, p conversions.Principal) (conversions.UserAggregate, error) {
	if err := ctx.Err(); err != nil {
		return conversions.UserAggregate{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	profile := conversions.NewProfile(p, m.now())
	agg, ok := m.users[p.UserID]
	switch {
	case !ok:
		agg = profile
	case agg.Email == "":
		agg.Email = profile.Email
		agg.DisplayName = profile.DisplayName
		agg.PhotoURL = profile.PhotoURL
	}
	m.users[p.UserID] = agg
	return agg.Clone(), nil
}

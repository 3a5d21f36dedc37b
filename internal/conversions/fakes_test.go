package conversions

import (
	"context"
	"errors"
	"sync"
	"time"
)

type fakeSynthesizer struct {
	mu      sync.Mutex
	calls   []SynthesisRequest
	audio   []byte
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func (f *fakeSynthesizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]UserAggregate
	recordErr error
	fetchErr  error
	records   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]UserAggregate)}
}

func (f *fakeStore) Record(ctx context.Context, userID string, entry ActivityEntry) (UserAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records++
	if f.recordErr != nil {
		return UserAggregate{}, f.recordErr
	}
	agg, ok := f.users[userID]
	if !ok {
		agg = UserAggregate{UserID: userID}
	}
	agg = ApplyEntry(agg, entry)
	f.users[userID] = agg
	return agg.Clone(), nil
}

func (f *fakeStore) Fetch(ctx context.Context, userID string) (UserAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fetchErr != nil {
		return UserAggregate{}, f.fetchErr
	}
	agg, ok := f.users[userID]
	if !ok {
		return UserAggregate{UserID: userID, RecentActivity: []ActivityEntry{}}, nil
	}
	return agg.Clone(), nil
}

func (f *fakeStore) EnsureProfile(ctx context.Context, p Principal) (UserAggregate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if agg, ok := f.users[p.UserID]; ok {
		return agg.Clone(), nil
	}
	agg := NewProfile(p, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	f.users[p.UserID] = agg
	return agg.Clone(), nil
}

var errStoreDown = errors.New("store unreachable")

type countingRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *countingRecorder) ObserveSynthesis(time.Duration, int, error) {}

func (r *countingRecorder) ConversionFinished(outcome string) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()
}

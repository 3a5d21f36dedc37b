package conversions

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"texttones/internal/audio"
	"texttones/internal/voices"
)

// Service is the entry point used by transports: it owns the per-user
// pipelines and reads history from the activity store.
type Service struct {
	cfg      Config
	sessions *Sessions
	logger   zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		cfg:      cfg,
		sessions: NewSessions(cfg),
		logger:   cfg.Logger,
	}
}

// Catalog exposes the voice catalog.
func (s *Service) Catalog() *voices.Catalog {
	return s.cfg.Catalog
}

// SignIn creates the user's profile on first sign-in and returns the stored aggregate.
func (s *Service) SignIn(ctx context.Context, p Principal) (UserAggregate, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return UserAggregate{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	agg, err := s.cfg.Store.EnsureProfile(ctx, p)
	if err != nil {
		return UserAggregate{}, &PersistenceError{Op: "ensure profile", Err: err}
	}
	s.logger.Info().Str("user_id", p.UserID).Msg("user signed in")
	return agg, nil
}

// SignOut tears down the user's session, releasing its playback reference.
func (s *Service) SignOut(userID string) {
	s.sessions.Close(userID)
	s.logger.Info().Str("user_id", userID).Msg("user signed out")
}

// Convert runs a conversion in the user's session.
func (s *Service) Convert(ctx context.Context, userID string, req ConversionRequest) (Result, error) {
	return s.sessions.Get(userID).Convert(ctx, req)
}

// Status reports the user's pipeline status.
func (s *Service) Status(userID string) Status {
	p, ok := s.sessions.Lookup(userID)
	if !ok {
		return Status{}
	}
	return p.Status()
}

// Activity returns the user's aggregate, zero-valued when nothing was recorded yet.
func (s *Service) Activity(ctx context.Context, userID string) (UserAggregate, error) {
	agg, err := s.cfg.Store.Fetch(ctx, userID)
	if err != nil {
		return UserAggregate{}, &PersistenceError{Op: "fetch activity", Err: err}
	}
	return agg, nil
}

// ActivityAudio decodes the audio stored with the index-th most recent entry.
func (s *Service) ActivityAudio(ctx context.Context, userID string, index int) (ActivityEntry, []byte, error) {
	agg, err := s.Activity(ctx, userID)
	if err != nil {
		return ActivityEntry{}, nil, err
	}
	if index < 0 || index >= len(agg.RecentActivity) {
		return ActivityEntry{}, nil, fmt.Errorf("activity %d: %w", index, ErrNotFound)
	}

	entry := agg.RecentActivity[index]
	data, err := entry.DecodeAudio()
	if err != nil {
		return ActivityEntry{}, nil, fmt.Errorf("activity %d: %w", index, err)
	}
	return entry, data, nil
}

// CurrentPlayback returns the reference held by the user's session.
func (s *Service) CurrentPlayback(userID string) (Playback, bool) {
	p, ok := s.sessions.Lookup(userID)
	if !ok {
		return Playback{}, false
	}
	return p.Current()
}

// OpenPlayback returns the audio behind h when it is the user's current reference.
func (s *Service) OpenPlayback(userID string, h audio.Handle) (Playback, []byte, error) {
	current, ok := s.CurrentPlayback(userID)
	if !ok || current.Handle != h {
		return Playback{}, nil, fmt.Errorf("playback %s: %w", h, ErrNotFound)
	}
	data, ok := s.cfg.Playback.Open(h)
	if !ok {
		return Playback{}, nil, fmt.Errorf("playback %s: %w", h, ErrNotFound)
	}
	return current, data, nil
}

// Close tears down every session.
func (s *Service) Close() {
	s.sessions.CloseAll()
}

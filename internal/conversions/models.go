package conversions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"texttones/internal/audio"
)

// HistoryLimit bounds the number of activity entries kept per user.
const HistoryLimit = 10

var (
	// ErrValidation signals a request rejected before synthesis.
	ErrValidation = errors.New("invalid conversion request")

	// ErrBusy signals that the session already has a conversion in flight.
	ErrBusy = errors.New("conversion already in progress")

	// ErrClosed signals use of a pipeline after teardown.
	ErrClosed = errors.New("conversion session closed")

	// ErrNotFound signals a missing activity entry or playback reference.
	ErrNotFound = errors.New("not found")
)

// SynthesisError reports a failed call to the speech service.
type SynthesisError struct {
	Reason string
	Err    error
}

func (e *SynthesisError) Error() string {
	return "synthesis failed: " + e.Reason
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

// PersistenceError reports that audio was produced but history could not be
// read or written.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failed: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Principal is the authenticated user as supplied by the identity provider.
type Principal struct {
	UserID      string
	Email       string
	DisplayName string
	PhotoURL    string
}

// ConversionRequest is a single user submission.
type ConversionRequest struct {
	Text         string
	LanguageCode string
	VoiceID      string
}

// SynthesisRequest is what the pipeline hands to the speech service.
type SynthesisRequest struct {
	Text         string
	LanguageCode string
	VoiceID      string
}

// ActivityEntry records one successful conversion.
type ActivityEntry struct {
	Text                    string    `json:"text"`
	Voice                   string    `json:"voice"`
	Language                string    `json:"language"`
	DurationEstimateSeconds int       `json:"durationEstimateSeconds"`
	Audio                   string    `json:"audio"`
	Timestamp               time.Time `json:"timestamp"`
}

// DecodeAudio returns the raw bytes stored with the entry.
func (e ActivityEntry) DecodeAudio() ([]byte, error) {
	return audio.DecodeDurable(e.Audio)
}

// DataURL makes the stored audio playable inline.
func (e ActivityEntry) DataURL() string {
	return audio.DataURL(e.Audio)
}

// UserAggregate is the per-user profile, counters and recent history.
type UserAggregate struct {
	UserID                    string
	Email                     string
	DisplayName               string
	PhotoURL                  string
	CreatedAt                 time.Time
	TotalConversions          int
	TotalCharacters           int
	TotalAudioDurationSeconds int
	RecentActivity            []ActivityEntry
}

// ApplyEntry folds entry into agg: the entry becomes the newest, history is
// trimmed to HistoryLimit and the counters grow. agg is not modified.
func ApplyEntry(agg UserAggregate, entry ActivityEntry) UserAggregate {
	recent := make([]ActivityEntry, 0, min(len(agg.RecentActivity)+1, HistoryLimit))
	recent = append(recent, entry)
	for _, prev := range agg.RecentActivity {
		if len(recent) == HistoryLimit {
			break
		}
		recent = append(recent, prev)
	}

	agg.RecentActivity = recent
	agg.TotalConversions++
	agg.TotalCharacters += utf8.RuneCountInString(entry.Text)
	agg.TotalAudioDurationSeconds += entry.DurationEstimateSeconds
	return agg
}

// NewProfile builds the empty aggregate created on first sign-in.
func NewProfile(p Principal, now time.Time) UserAggregate {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name, _, _ = strings.Cut(p.Email, "@")
	}
	return UserAggregate{
		UserID:         p.UserID,
		Email:          p.Email,
		DisplayName:    name,
		PhotoURL:       p.PhotoURL,
		CreatedAt:      now.UTC(),
		RecentActivity: []ActivityEntry{},
	}
}

// Clone returns a deep copy safe to hand to readers.
func (a UserAggregate) Clone() UserAggregate {
	a.RecentActivity = slices.Clone(a.RecentActivity)
	if a.RecentActivity == nil {
		a.RecentActivity = []ActivityEntry{}
	}
	return a
}

// Synthesizer turns text into audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) ([]byte, error)
}

// ActivityStore persists per-user aggregates. Record must apply ApplyEntry
// atomically and in call order for a given user. Fetch returns a zero
// aggregate for unknown users.
type ActivityStore interface {
	Record(ctx context.Context, userID string, entry ActivityEntry) (UserAggregate, error)
	Fetch(ctx context.Context, userID string) (UserAggregate, error)
	EnsureProfile(ctx context.Context, p Principal) (UserAggregate, error)
}

// PlaybackStore hands out transient playback references.
type PlaybackStore interface {
	Acquire(data []byte) audio.Handle
	Open(h audio.Handle) ([]byte, bool)
	Release(h audio.Handle) bool
}

// Recorder receives pipeline measurements.
type Recorder interface {
	ObserveSynthesis(elapsed time.Duration, audioBytes int, err error)
	ConversionFinished(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSynthesis(time.Duration, int, error) {}
func (nopRecorder) ConversionFinished(string)                  {}

package conversions

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"texttones/internal/audio"
	"texttones/internal/voices"
)

// Phase is the pipeline's position in a conversion.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSynthesizing
	PhaseEncoding
	PhasePersisting
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSynthesizing:
		return "synthesizing"
	case PhaseEncoding:
		return "encoding"
	case PhasePersisting:
		return "persisting"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Outcome values reported to Recorder.ConversionFinished.
const (
	OutcomeSuccess          = "success"
	OutcomeSynthesisError   = "synthesis_error"
	OutcomePersistenceError = "persistence_error"
)

// Status describes the pipeline. Err is nil after a successful conversion and
// holds the failure otherwise. Done is false until the first conversion ends.
type Status struct {
	Phase Phase
	Done  bool
	Err   error
}

// Playback describes the transient reference currently held by a pipeline.
type Playback struct {
	Handle    audio.Handle
	Language  string
	Voice     string
	CreatedAt time.Time
}

// Filename is the download name of the artifact.
func (p Playback) Filename() string {
	return DownloadFilename(p.Language, p.Voice, p.CreatedAt)
}

// Result is what a conversion produced. Playback is set whenever synthesis
// succeeded, even if the history could not be saved. Aggregate is only
// meaningful when Saved is true.
type Result struct {
	Playback  Playback
	Entry     ActivityEntry
	Aggregate UserAggregate
	Saved     bool
}

// Config wires a pipeline to its collaborators.
type Config struct {
	Catalog     *voices.Catalog
	Synthesizer Synthesizer
	Store       ActivityStore
	Playback    PlaybackStore
	Recorder    Recorder
	Logger      zerolog.Logger
	Now         func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Catalog == nil {
		c.Catalog = voices.Default()
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Pipeline runs conversions for one user session. It allows one conversion
// in flight and holds at most one playback reference.
type Pipeline struct {
	cfg    Config
	userID string
	logger zerolog.Logger

	mu      sync.Mutex
	phase   Phase
	status  Status
	current Playback
	closed  bool
}

// NewPipeline constructs a pipeline for userID.
func NewPipeline(cfg Config, userID string) *Pipeline {
	cfg = cfg.withDefaults()
	return &Pipeline{
		cfg:    cfg,
		userID: userID,
		logger: cfg.Logger.With().Str("user_id", userID).Logger(),
	}
}

// Convert validates req, synthesizes it, stores a playback reference and
// records the conversion in the user's history.
//
// Validation failures return ErrValidation (or a voices error) and a second
// call while one is running returns ErrBusy. Neither touches the network.
// A *SynthesisError means no audio was produced. A *PersistenceError comes
// with a Result whose Playback is valid.
func (p *Pipeline) Convert(ctx context.Context, req ConversionRequest) (Result, error) {
	if err := p.validate(req); err != nil {
		return Result{}, err
	}
	if err := p.enter(); err != nil {
		return Result{}, err
	}

	// The speech service bills per call, so it is always run to completion.
	ctx = context.WithoutCancel(ctx)

	start := p.cfg.Now()
	data, err := p.cfg.Synthesizer.Synthesize(ctx, SynthesisRequest{
		Text:         req.Text,
		LanguageCode: req.LanguageCode,
		VoiceID:      req.VoiceID,
	})
	p.cfg.Recorder.ObserveSynthesis(p.cfg.Now().Sub(start), len(data), err)
	if err != nil {
		serr := &SynthesisError{Reason: err.Error(), Err: err}
		p.logger.Error().Err(err).
			Str("language", req.LanguageCode).
			Str("voice", req.VoiceID).
			Msg("synthesis failed")
		p.finish(serr, OutcomeSynthesisError)
		return Result{}, serr
	}

	p.setPhase(PhaseEncoding)
	now := p.cfg.Now().UTC()
	playback := p.swapPlayback(data, req, now)
	entry := ActivityEntry{
		Text:                    req.Text,
		Voice:                   req.VoiceID,
		Language:                req.LanguageCode,
		DurationEstimateSeconds: EstimateDuration(req.Text),
		Audio:                   audio.EncodeDurable(data),
		Timestamp:               now,
	}
	result := Result{Playback: playback, Entry: entry}

	p.setPhase(PhasePersisting)
	agg, err := p.cfg.Store.Record(ctx, p.userID, entry)
	if err != nil {
		perr := &PersistenceError{Op: "record activity", Err: err}
		p.logger.Error().Err(err).Msg("activity not recorded")
		p.finish(perr, OutcomePersistenceError)
		return result, perr
	}

	result.Aggregate = agg
	result.Saved = true
	p.logger.Info().
		Str("language", req.LanguageCode).
		Str("voice", req.VoiceID).
		Int("audio_bytes", len(data)).
		Int("total_conversions", agg.TotalConversions).
		Msg("conversion recorded")
	p.finish(nil, OutcomeSuccess)
	return result, nil
}

func (p *Pipeline) validate(req ConversionRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrValidation)
	}
	if err := p.cfg.Catalog.Validate(req.LanguageCode, req.VoiceID); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

func (p *Pipeline) enter() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.phase != PhaseIdle {
		return ErrBusy
	}
	p.phase = PhaseSynthesizing
	p.status.Phase = PhaseSynthesizing
	return nil
}

func (p *Pipeline) setPhase(phase Phase) {
	p.mu.Lock()
	p.phase = phase
	p.status.Phase = phase
	p.mu.Unlock()
}

func (p *Pipeline) finish(err error, outcome string) {
	p.mu.Lock()
	p.phase = PhaseIdle
	p.status = Status{Phase: PhaseIdle, Done: true, Err: err}
	p.mu.Unlock()

	p.cfg.Recorder.ConversionFinished(outcome)
}

// swapPlayback releases the held reference and acquires one for data. After
// Close no reference is acquired.
func (p *Pipeline) swapPlayback(data []byte, req ConversionRequest, at time.Time) Playback {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current.Handle != "" {
		p.cfg.Playback.Release(p.current.Handle)
		p.current = Playback{}
	}
	if p.closed {
		return Playback{}
	}

	p.current = Playback{
		Handle:    p.cfg.Playback.Acquire(data),
		Language:  req.LanguageCode,
		Voice:     req.VoiceID,
		CreatedAt: at,
	}
	return p.current
}

// Status reports the current phase and the outcome of the last conversion.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Current returns the held playback reference.
func (p *Pipeline) Current() (Playback, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, p.current.Handle != ""
}

// Close releases the held playback reference. It is safe to call more than
// once and while a conversion is running.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.current.Handle != "" {
		p.cfg.Playback.Release(p.current.Handle)
		p.current = Playback{}
	}
}

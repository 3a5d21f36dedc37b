package conversions

import "sync"

// Sessions keeps one pipeline per signed-in user.
type Sessions struct {
	cfg Config

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

// NewSessions constructs an empty session registry.
func NewSessions(cfg Config) *Sessions {
	return &Sessions{
		cfg:       cfg.withDefaults(),
		pipelines: make(map[string]*Pipeline),
	}
}

// Get returns the user's pipeline, creating it on first use.
func (s *Sessions) Get(userID string) *Pipeline {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[userID]
	if !ok {
		p = NewPipeline(s.cfg, userID)
		s.pipelines[userID] = p
	}
	return p
}

// Lookup returns the user's pipeline without creating one.
func (s *Sessions) Lookup(userID string) (*Pipeline, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[userID]
	return p, ok
}

// Close tears down the user's pipeline.
func (s *Sessions) Close(userID string) {
	s.mu.Lock()
	p, ok := s.pipelines[userID]
	delete(s.pipelines, userID)
	s.mu.Unlock()

	if ok {
		p.Close()
	}
}

// CloseAll tears down every pipeline.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	pipelines := s.pipelines
	s.pipelines = make(map[string]*Pipeline)
	s.mu.Unlock()

	for _, p := range pipelines {
		p.Close()
	}
}

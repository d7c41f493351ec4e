package pipeline

import (
	"context"
	"sync"
	"time"
)

// maxHistory caps the turns kept per session.
const maxHistory = 20

// Turn is one attempt made in a session, successful or not.
type Turn struct {
	Prompt    string    `json:"prompt"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session remembers the latest generation for one user. A new successful generation
// replaces the previous one; failures leave it in place.
type Session struct {
	ID string

	pipeline *Pipeline

	mu          sync.Mutex
	latest      *Result
	history     []Turn
	generations int
}

func NewSession(id string, p *Pipeline) *Session {
	return &Session{ID: id, pipeline: p}
}

func (s *Session) Generate(ctx context.Context, prompt string) (Result, error) {
	res, err := s.pipeline.Run(ctx, prompt)

	s.mu.Lock()
	defer s.mu.Unlock()
	turn := Turn{Prompt: prompt, CreatedAt: time.Now()}
	if err != nil {
		turn.Error = err.Error()
	} else {
		s.latest = &res
		s.generations++
		turn.Result = &res
	}
	s.appendTurn(turn)
	return res, err
}

func (s *Session) appendTurn(t Turn) {
	s.history = append(s.history, t)
	if over := len(s.history) - maxHistory; over > 0 {
		s.history = append([]Turn(nil), s.history[over:]...)
	}
}

// Latest returns the most recent successful generation.
func (s *Session) Latest() (Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return Result{}, false
	}
	return *s.latest, true
}

// Generations counts successful generations over the session's life.
func (s *Session) Generations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations
}

// History returns a copy of the recorded turns, oldest first.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

package controller

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrSessionNotFound = errors.New("session not found")

// Sessions keeps one Controller per browsing session.
type Sessions struct {
	newController func() *Controller
	logger        *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewSessions(catalog Catalog, logger *zap.Logger, pageSize int) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		newController: func() *Controller { return New(catalog, logger, pageSize) },
		logger:        logger,
		sessions:      make(map[string]*Controller),
	}
}

// Create registers a new session and starts its initial load.
func (s *Sessions) Create() (string, *Controller) {
	id := uuid.NewString()
	c := s.newController()

	s.mu.Lock()
	s.sessions[id] = c
	s.mu.Unlock()

	c.Start()
	s.logger.Info("session created", zap.String("session_id", id))
	return id, c
}

func (s *Sessions) Get(id string) (*Controller, error) {
	s.mu.RLock()
	c, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	c.Touch()
	return c, nil
}

func (s *Sessions) Delete(id string) error {
	s.mu.Lock()
	c, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	c.Close()
	return nil
}

func (s *Sessions) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep closes sessions idle for longer than maxIdle and returns how many
// were removed.
func (s *Sessions) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	s.mu.Lock()
	var expired []*Controller
	for id, c := range s.sessions {
		if c.LastSeen().Before(cutoff) {
			expired = append(expired, c)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	if len(expired) > 0 {
		s.logger.Info("expired idle sessions", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// CloseAll cancels every session; used on shutdown.
func (s *Sessions) CloseAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.sessions {
		c.Close()
		delete(s.sessions, id)
	}
}

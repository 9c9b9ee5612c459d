// Package session keeps one view controller per client so that several
// browser tabs can filter and zoom independently over the same profiles.
//
// A view.Controller is single-writer. The store serialises every event for a
// session behind that session's mutex so each one runs to completion before
// the next starts.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/circadia/internal/models"
	"github.com/rewired-gh/circadia/internal/view"
)

// ErrNotFound is returned for unknown or expired session IDs
var ErrNotFound = errors.New("session not found")

type entry struct {
	mu       sync.Mutex
	ctrl     *view.Controller
	lastUsed time.Time
}

// Store provides thread-safe access to per-session controllers
type Store struct {
	profiles      []models.Profile
	defaultMetric models.Metric
	padding       float64

	sessions map[string]*entry
	mu       sync.RWMutex

	// Configuration
	maxSessions int
	idleTimeout time.Duration
	now         func() time.Time
}

// New creates a Store. profiles are shared read-only by every session.
func New(profiles []models.Profile, defaultMetric models.Metric, padding float64, maxSessions int, idleTimeout time.Duration) *Store {
	return &Store{
		profiles:      profiles,
		defaultMetric: defaultMetric,
		padding:       padding,
		sessions:      make(map[string]*entry),
		maxSessions:   maxSessions,
		idleTimeout:   idleTimeout,
		now:           time.Now,
	}
}

// Profiles returns the shared profile set
func (s *Store) Profiles() []models.Profile {
	return s.profiles
}

// Create starts a session in the default view state and returns its ID.
func (s *Store) Create() string {
	id := uuid.New().String()
	e := &entry{
		ctrl:     view.NewController(s.profiles, s.defaultMetric, s.padding),
		lastUsed: s.now(),
	}

	s.mu.Lock()
	s.sessions[id] = e
	s.mu.Unlock()
	return id
}

// With runs fn against the session's controller while holding its lock.
func (s *Store) With(id string, fn func(c *view.Controller) error) error {
	s.mu.RLock()
	e, exists := s.sessions[id]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastUsed = s.now()
	return fn(e.ctrl)
}

// Delete ends a session
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[id]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.sessions, id)
	return nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Rotate drops sessions idle longer than the idle timeout, then the least
// recently used ones above the session limit. Returns how many were removed.
func (s *Store) Rotate() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0

	type sessionWithTime struct {
		id       string
		lastUsed time.Time
	}
	var live []sessionWithTime
	for id, e := range s.sessions {
		e.mu.Lock()
		last := e.lastUsed
		e.mu.Unlock()

		if s.idleTimeout > 0 && now.Sub(last) > s.idleTimeout {
			delete(s.sessions, id)
			removed++
			continue
		}
		live = append(live, sessionWithTime{id: id, lastUsed: last})
	}

	if s.maxSessions <= 0 || len(live) <= s.maxSessions {
		return removed
	}

	// Sort by last used (oldest first)
	sort.Slice(live, func(i, j int) bool {
		return live[i].lastUsed.Before(live[j].lastUsed)
	})

	toRemove := len(live) - s.maxSessions
	for i := 0; i < toRemove; i++ {
		delete(s.sessions, live[i].id)
		removed++
	}
	return removed
}

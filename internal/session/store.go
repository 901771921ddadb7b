// Package session keeps one studio per owner (browser session, chat).
package session

import (
	"sync"
	"time"

	"ai-portrait-studio/internal/studio"
)

type Options struct {
	// New builds the studio for an owner the first time it is seen.
	New func(key string) *studio.Studio
}

type Store struct {
	mu      sync.Mutex
	studios map[string]*entry
	newFn   func(string) *studio.Studio
}

type entry struct {
	studio       *studio.Studio
	lastActivity time.Time
}

func NewStore(opts Options) *Store {
	newFn := opts.New
	if newFn == nil {
		newFn = func(string) *studio.Studio { return studio.New(studio.Options{}) }
	}

	return &Store{
		studios: make(map[string]*entry),
		newFn:   newFn,
	}
}

// Get returns the studio for key, creating it on first use.
func (s *Store) Get(key string) *studio.Studio {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.studios[key]
	if !ok {
		e = &entry{studio: s.newFn(key)}
		s.studios[key] = e
	}
	e.lastActivity = time.Now()
	return e.studio
}

func (s *Store) Lookup(key string) (*studio.Studio, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.studios[key]
	if !ok {
		return nil, false
	}
	e.lastActivity = time.Now()
	return e.studio, true
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.studios, key)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.studios)
}

// Sweep drops studios untouched for longer than idle and returns their keys.
// Generations still running for a dropped studio finish against it unseen.
func (s *Store) Sweep(now time.Time, idle time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var evicted []string
	for key, e := range s.studios {
		last := e.lastActivity
		if active := e.studio.LastActivity(); active.After(last) {
			last = active
		}
		if now.Sub(last) > idle {
			delete(s.studios, key)
			evicted = append(evicted, key)
		}
	}
	return evicted
}

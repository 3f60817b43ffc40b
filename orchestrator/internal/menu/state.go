package menu

import "sync"

// State is the process-wide menu state: the rebuilding guard and the one
// source whose context reports are trusted. A generation counter moves on
// every rebuild boundary and every change of active source, so a report
// admitted under one generation cannot be applied under another.
type State struct {
	mu         sync.Mutex
	rebuilding bool
	active     string
	gen        uint64
}

// Ticket is handed out by Admit and re-checked by Machine.Apply.
type Ticket struct {
	Source string
	Gen    uint64
}

// NewState returns a State with no active source.
func NewState() *State { return &State{} }

// SetActive records source as the trusted one. It reports whether the
// trusted source changed.
func (s *State) SetActive(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == source {
		return false
	}
	s.active = source
	s.gen++
	return true
}

// Active returns the trusted source, "" if none.
func (s *State) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Rebuilding reports whether a rebuild is in flight.
func (s *State) Rebuilding() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuilding
}

// Admit returns a ticket for a report from source, or false when the report
// must be dropped: a rebuild is in flight or source is not the active one.
func (s *State) Admit(source string) (Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rebuilding || source == "" || source != s.active {
		return Ticket{}, false
	}
	return Ticket{Source: source, Gen: s.gen}, true
}

// Valid reports whether t is still current.
func (s *State) Valid(t Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.rebuilding && t.Source == s.active && t.Gen == s.gen
}

func (s *State) beginRebuild() {
	s.mu.Lock()
	s.rebuilding = true
	s.gen++
	s.mu.Unlock()
}

func (s *State) endRebuild() {
	s.mu.Lock()
	s.rebuilding = false
	s.gen++
	s.mu.Unlock()
}

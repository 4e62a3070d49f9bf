// Package history is a browser-style session history of view paths.
package history

import "sync"

// Stack keeps visited view paths with a cursor on the current one. Pushing
// while the cursor is not at the top discards the forward entries, as
// pushState does.
type Stack struct {
	mu      sync.Mutex
	entries []string
	pos     int
}

// NewStack creates an empty history.
func NewStack() *Stack {
	return &Stack{pos: -1}
}

// Push records viewPath as the new current entry.
func (s *Stack) Push(viewPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries[:s.pos+1], viewPath)
	s.pos = len(s.entries) - 1
}

// Replace overwrites the current entry, or pushes when the history is empty.
func (s *Stack) Replace(viewPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos < 0 {
		s.entries = append(s.entries, viewPath)
		s.pos = 0
		return
	}
	s.entries[s.pos] = viewPath
}

// Back moves the cursor one entry back and returns the entry it lands on.
// It returns false at the oldest entry.
func (s *Stack) Back() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos <= 0 {
		return "", false
	}
	s.pos--
	return s.entries[s.pos], true
}

// Forward moves the cursor one entry forward. It returns false at the
// newest entry.
func (s *Stack) Forward() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.entries)-1 {
		return "", false
	}
	s.pos++
	return s.entries[s.pos], true
}

// Current returns the entry under the cursor.
func (s *Stack) Current() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos < 0 {
		return "", false
	}
	return s.entries[s.pos], true
}

// Len returns the number of entries, including forward ones.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of the history, oldest first.
func (s *Stack) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.entries...)
}

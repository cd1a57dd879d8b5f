package ui

import (
	"context"
	"strings"
	"sync"
	"time"
)

// SearchFilter debounces keystrokes in the browser's search field so the
// item tree is rebuilt once typing pauses, not on every key.
type SearchFilter struct {
	mu       sync.RWMutex
	pending  string
	active   string
	timer    *time.Timer
	ctx      context.Context
	onChange func(query string)
}

const searchDebounce = 250 * time.Millisecond

func NewSearchFilter(ctx context.Context, onChange func(query string)) *SearchFilter {
	return &SearchFilter{ctx: ctx, onChange: onChange}
}

// SetQuery records the latest text and restarts the debounce timer.
func (s *SearchFilter) SetQuery(query string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = strings.ToLower(strings.TrimSpace(query))
	if s.ctx != nil && s.ctx.Err() != nil {
		return
	}
	if s.timer == nil {
		s.timer = time.AfterFunc(searchDebounce, s.fire)
	} else {
		s.timer.Reset(searchDebounce)
	}
}

// ActiveQuery is the query the tree currently reflects.
func (s *SearchFilter) ActiveQuery() string {
	if s == nil {
		return ""
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

func (s *SearchFilter) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
}

func (s *SearchFilter) fire() {
	if s.ctx != nil && s.ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	if s.active == s.pending {
		s.mu.Unlock()
		return
	}
	s.active = s.pending
	query, cb := s.active, s.onChange
	s.mu.Unlock()
	if cb != nil {
		cb(query)
	}
}

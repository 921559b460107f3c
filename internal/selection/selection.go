// Package selection tracks which node the user has selected and which one
// the pointer is hovering. The two axes are independent.
package selection

import "sync"

// Hover is a hovered node and the pointer position reported with it.
type Hover struct {
	ID      string  `json:"id"`
	ScreenX float64 `json:"x"`
	ScreenY float64 `json:"y"`
}

// Snapshot is a consistent read of both axes.
type Snapshot struct {
	Selected string `json:"selected,omitempty"`
	Hover    *Hover `json:"hover,omitempty"`
}

// State holds selection and hover. Ids are not checked against any loaded
// analysis. Safe for concurrent use.
type State struct {
	mu       sync.RWMutex
	selected string
	hover    *Hover
}

// New creates an empty state.
func New() *State {
	return &State{}
}

// Select sets the selected node id.
func (s *State) Select(id string) {
	s.mu.Lock()
	s.selected = id
	s.mu.Unlock()
}

// ClearSelection drops the selection.
func (s *State) ClearSelection() {
	s.mu.Lock()
	s.selected = ""
	s.mu.Unlock()
}

// Hover records the hovered node.
func (s *State) Hover(h Hover) {
	s.mu.Lock()
	s.hover = &h
	s.mu.Unlock()
}

// ClearHover drops the hover.
func (s *State) ClearHover() {
	s.mu.Lock()
	s.hover = nil
	s.mu.Unlock()
}

// Selected returns the selected id, if any.
func (s *State) Selected() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected, s.selected != ""
}

// Hovered returns the current hover, if any.
func (s *State) Hovered() (Hover, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hover == nil {
		return Hover{}, false
	}
	return *s.hover, true
}

// Snapshot returns both axes under one lock.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{Selected: s.selected}
	if s.hover != nil {
		h := *s.hover
		snap.Hover = &h
	}
	return snap
}

// Reset clears both axes.
func (s *State) Reset() {
	s.mu.Lock()
	s.selected = ""
	s.hover = nil
	s.mu.Unlock()
}

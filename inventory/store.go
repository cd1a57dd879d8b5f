package inventory

import (
	"sort"
	"sync"
)

// Snapshot is the result of scanning one source for one character.
type Snapshot struct {
	CharacterName string  `yaml:"character" json:"character" plist:"character"`
	SourceLabel   string  `yaml:"source" json:"source" plist:"source"`
	Items         []*Item `yaml:"items,omitempty" json:"items,omitempty" plist:"items,omitempty"`
}

// Count returns the number of items in every tree of the snapshot.
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, it := range s.Items {
		n += it.Count()
	}
	return n
}

func (s *Snapshot) clone() *Snapshot {
	return &Snapshot{
		CharacterName: s.CharacterName,
		SourceLabel:   s.SourceLabel,
		Items:         cloneItems(s.Items),
	}
}

// Store owns every snapshot. The scanner and the persistence codec write to
// it; everything else reads copies through the accessor methods.
type Store struct {
	mu        sync.RWMutex
	snapshots []*Snapshot
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Len returns the number of snapshots held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshots)
}

// RemoveCharacter drops every snapshot recorded for name and returns how many
// were removed.
func (s *Store) RemoveCharacter(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.snapshots[:0]
	removed := 0
	for _, snap := range s.snapshots {
		if snap.CharacterName == name {
			removed++
			continue
		}
		kept = append(kept, snap)
	}
	for i := len(kept); i < len(s.snapshots); i++ {
		s.snapshots[i] = nil
	}
	s.snapshots = kept
	return removed
}

// Append opens a new empty snapshot and adds it to the store immediately.
func (s *Store) Append(character, source string) *Snapshot {
	snap := &Snapshot{CharacterName: character, SourceLabel: source}
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
	return snap
}

// AppendRoot adds it as a new root of snap.
func (s *Store) AppendRoot(snap *Snapshot, it *Item) *Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.parent = nil
	snap.Items = append(snap.Items, it)
	return it
}

// AppendChild adds child under parent.
func (s *Store) AppendChild(parent, child *Item) *Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return parent.AddChild(child)
}

// Replace swaps the full snapshot list, typically after a load. Back-references
// must already be in place.
func (s *Store) Replace(snaps []*Snapshot) {
	s.mu.Lock()
	s.snapshots = snaps
	s.mu.Unlock()
}

// Forward returns a deep copy of every snapshot with no back-references set.
// This is the shape persisted by the codec.
func (s *Store) Forward() []*Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Snapshot, len(s.snapshots))
	for i, snap := range s.snapshots {
		out[i] = snap.clone()
	}
	return out
}

// Snapshots returns a deep copy of every snapshot with back-references
// restored, safe to browse while a scan keeps writing.
func (s *Store) Snapshots() []*Snapshot {
	out := s.Forward()
	for _, snap := range out {
		RestoreBackRefs(snap.Items, nil)
	}
	return out
}

// Characters lists distinct character names in sorted order.
func (s *Store) Characters() []string {
	s.mu.RLock()
	seen := make(map[string]struct{}, len(s.snapshots))
	names := make([]string, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		if _, ok := seen[snap.CharacterName]; ok {
			continue
		}
		seen[snap.CharacterName] = struct{}{}
		names = append(names, snap.CharacterName)
	}
	s.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Inventory returns copies of every snapshot recorded for character, in scan
// order.
func (s *Store) Inventory(character string) []*Snapshot {
	var out []*Snapshot
	for _, snap := range s.Snapshots() {
		if snap.CharacterName == character {
			out = append(out, snap)
		}
	}
	return out
}

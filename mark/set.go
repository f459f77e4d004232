package mark

import (
	"fmt"
	"slices"
)

// Set is the ordered mark collection for one document identity. Insertion
// order is preserved; it has no semantic meaning beyond display and debug.
//
// A Set is owned by exactly one session scheduler and is not safe for
// concurrent use: gestures, restoration cleanup, and sync arrival all
// serialize through the owning scheduler, and anything that crosses a
// goroutine boundary works on a Snapshot.
type Set struct {
	identity string
	marks    []*Mark
}

// NewSet creates an empty Set for a document identity.
func NewSet(identity string) *Set {
	return &Set{identity: identity}
}

// Identity returns the document identity the Set is keyed by.
func (s *Set) Identity() string { return s.identity }

// Len returns the number of marks.
func (s *Set) Len() int { return len(s.marks) }

// Append validates and adds a mark at the end. A duplicate ID is rejected so
// an interleaved restoration pass can never double-insert.
func (s *Set) Append(m *Mark) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if s.byID(m.ID) >= 0 {
		return fmt.Errorf("%w: duplicate id %s", ErrInvalid, m.ID)
	}
	s.marks = append(s.marks, m)
	return nil
}

// Get returns the mark with the given ID, or nil.
func (s *Set) Get(id string) *Mark {
	if i := s.byID(id); i >= 0 {
		return s.marks[i]
	}
	return nil
}

// Remove deletes the mark with the given ID and reports whether it existed.
func (s *Set) Remove(id string) bool {
	i := s.byID(id)
	if i < 0 {
		return false
	}
	s.marks = slices.Delete(s.marks, i, i+1)
	return true
}

// RemoveAll deletes every mark whose ID is in ids and returns how many were
// removed. Restoration cleanup flushes its dead-mark queue through here once
// per pass.
func (s *Set) RemoveAll(ids []string) int {
	removed := 0
	for _, id := range ids {
		if s.Remove(id) {
			removed++
		}
	}
	return removed
}

// Clear empties the Set.
func (s *Set) Clear() { s.marks = nil }

// Replace swaps in a new ordered sequence, validating every entry first.
// Hydration from the persistence gateway and sync arrival both land here; on
// any invalid entry the Set is left untouched.
func (s *Set) Replace(marks []*Mark) error {
	for _, m := range marks {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	s.marks = slices.Clone(marks)
	return nil
}

// Snapshot returns a copy of the ordered sequence. Mark pointers are shared;
// marks are treated as immutable once stored. Restoration passes and
// persistence writes operate on snapshots so in-flight work never observes a
// half-mutated Set.
func (s *Set) Snapshot() []*Mark {
	return slices.Clone(s.marks)
}

// Summary counts marks by kind for the control surface.
func (s *Set) Summary() Summary {
	var sum Summary
	for _, m := range s.marks {
		switch m.Kind {
		case KindPoint:
			sum.PointMarks++
		case KindRegion:
			sum.RegionMarks++
		case KindText:
			sum.TextMarks++
		}
	}
	sum.Total = len(s.marks)
	return sum
}

func (s *Set) byID(id string) int {
	for i, m := range s.marks {
		if m.ID == id {
			return i
		}
	}
	return -1
}

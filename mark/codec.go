package mark

import (
	"encoding/json"
	"fmt"
)

// Marshal serialises an ordered mark sequence to JSON.
func Marshal(marks []*Mark) ([]byte, error) {
	if marks == nil {
		marks = []*Mark{}
	}
	return json.Marshal(marks)
}

// Unmarshal deserialises a mark sequence and validates every entry. One bad
// record rejects the whole payload; a persistence tier never hands the engine
// a partially-invalid set.
func Unmarshal(data []byte) ([]*Mark, error) {
	var marks []*Mark
	if err := json.Unmarshal(data, &marks); err != nil {
		return nil, fmt.Errorf("mark: decode: %w", err)
	}
	for _, m := range marks {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return marks, nil
}

// EqualSets reports whether two sequences contain the same marks by ID,
// order-insensitive. Persistence round-trip checks and the gateway's
// reconciliation use this, not deep equality: a mark is immutable once
// created, so identity comparison is enough.
func EqualSets(a, b []*Mark) bool {
	if len(a) != len(b) {
		return false
	}
	ids := make(map[string]bool, len(a))
	for _, m := range a {
		ids[m.ID] = true
	}
	for _, m := range b {
		if !ids[m.ID] {
			return false
		}
	}
	return true
}

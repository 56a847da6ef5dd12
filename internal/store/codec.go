package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// document is the on-disk and on-wire layout of the state.
type document struct {
	RecentlyPosted RecentSelections `json:"recently_posted"`
}

// Decode parses a state document. Empty or whitespace-only input is a valid
// empty state.
func Decode(b []byte) (RecentSelections, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return RecentSelections{}, nil
	}

	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStateCorruption, err)
	}
	if err := validate(doc.RecentlyPosted); err != nil {
		return nil, err
	}
	if doc.RecentlyPosted == nil {
		return RecentSelections{}, nil
	}
	return doc.RecentlyPosted, nil
}

// Encode renders records as an indented state document.
func Encode(records RecentSelections) ([]byte, error) {
	if records == nil {
		records = RecentSelections{}
	}
	b, err := json.MarshalIndent(document{RecentlyPosted: records}, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func validate(records RecentSelections) error {
	for i, r := range records {
		if r.LocationID == "" {
			return fmt.Errorf("%w: entry %d has no location_id", ErrStateCorruption, i)
		}
		if r.Timestamp.IsZero() {
			return fmt.Errorf("%w: entry %d has no timestamp", ErrStateCorruption, i)
		}
	}
	return nil
}

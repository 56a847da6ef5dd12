package store

import "time"

// DefaultWindow is how long a posted location stays excluded from selection.
const DefaultWindow = 24 * time.Hour

// SelectionRecord notes that a location was posted at Timestamp (UTC).
type SelectionRecord struct {
	LocationID string    `json:"location_id" bson:"location_id"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

// RecentSelections is the persisted record list. Insertion order is kept
// but carries no meaning.
type RecentSelections []SelectionRecord

// CleanupOld returns the records younger than window at now. A record
// exactly window old is dropped. The input is not modified.
func CleanupOld(records RecentSelections, now time.Time, window time.Duration) RecentSelections {
	kept := make(RecentSelections, 0, len(records))
	for _, r := range records {
		if now.Sub(r.Timestamp) < window {
			kept = append(kept, r)
		}
	}
	return kept
}

// Add returns a copy of records with one more entry for locationID at now.
// It does not deduplicate.
func Add(records RecentSelections, locationID string, now time.Time) RecentSelections {
	out := make(RecentSelections, 0, len(records)+1)
	out = append(out, records...)
	return append(out, SelectionRecord{
		LocationID: locationID,
		Timestamp:  now.UTC(),
	})
}

// ExcludedIDs projects records to the set of location ids they reference.
func ExcludedIDs(records RecentSelections) map[string]struct{} {
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids[r.LocationID] = struct{}{}
	}
	return ids
}

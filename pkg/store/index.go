package store

import (
	"time"
)

// IndexEntry is a lightweight projection of a stored activity, kept in a
// single ordered sequence (insertion order = fetch order) so existence
// checks and queries never need to open per-activity files.
type IndexEntry struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	StartDate  string  `json:"start_date"`
	Distance   float64 `json:"distance"`
	MovingTime int64   `json:"moving_time"`
	Filename   string  `json:"filename"`
	FileIndex  int     `json:"file_index"`
}

// Start parses the entry's start timestamp. A zero time is returned for
// entries whose timestamp cannot be parsed.
func (e IndexEntry) Start() time.Time {
	t, err := time.Parse(time.RFC3339, e.StartDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

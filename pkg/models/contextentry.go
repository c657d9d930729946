package models

import "time"

// ContextEntry is a short piece of persisted knowledge attached to a
// session, surviving compaction (spec §3). Entries are deduplicated by
// (Content, Source).
type ContextEntry struct {
	Content   string    `json:"content"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Key returns the deduplication key for this entry.
func (c ContextEntry) Key() [2]string {
	return [2]string{c.Content, c.Source}
}

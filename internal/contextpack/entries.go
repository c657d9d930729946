package contextpack

import (
	"time"

	"github.com/atelierai/agentcore/pkg/models"
)

// MergeEntries appends fresh into existing, deduplicating by
// (content, source) per spec §3 ("ContextEntry... Deduplicated by
// (content, source)"). Existing entries keep their original position and
// timestamp; only genuinely new entries are appended.
func MergeEntries(existing []models.ContextEntry, fresh ...models.ContextEntry) []models.ContextEntry {
	seen := make(map[[2]string]struct{}, len(existing))
	for _, e := range existing {
		seen[e.Key()] = struct{}{}
	}
	out := existing
	for _, e := range fresh {
		key := e.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, e)
	}
	return out
}

// KeyFactSource is the fixed ContextEntry.Source for compactor-derived
// facts (spec §4.6: "deduplicated by (content, source='compaction')").
const KeyFactSource = "compaction"

// KeyFactEntries converts a compactor run's key_facts into ContextEntry
// values tagged source="compaction" (spec §4.6).
func KeyFactEntries(facts []string, at time.Time) []models.ContextEntry {
	entries := make([]models.ContextEntry, 0, len(facts))
	for _, f := range facts {
		entries = append(entries, models.ContextEntry{Content: f, Source: KeyFactSource, Timestamp: at})
	}
	return entries
}

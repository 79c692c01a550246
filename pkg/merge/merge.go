// Package merge combines freshly captured timeline rows with rows restored
// from a resume snapshot, removing duplicates and keeping the result in
// newest-first order.
package merge

import (
	"fmt"
	"sort"
	"time"

	"xscraper/pkg/timeline"
)

// Info summarizes one merge. It is produced once per call and never
// updated afterwards.
type Info struct {
	PreviousCount     int `json:"previous_count"`
	NewCount          int `json:"new_count"`
	DuplicatesRemoved int `json:"duplicates_removed"`
	FinalCount        int `json:"final_count"`
}

// Merge combines newly captured rows with previously stored ones. With no
// previous rows there is nothing to merge: the new rows come back sorted
// and Info is nil.
//
// On a key collision the duplicate counter increments and the RICHER row
// wins, richness being the raw count of populated top-level fields. Ties
// keep the new-side row. Richer-wins is a deliberate heuristic; a
// re-fetched row with one extra transient field replaces a stored copy,
// and that is accepted rather than merged field by field.
//
// Neither input slice is mutated.
func Merge(newItems, previousItems []timeline.Item) ([]timeline.Item, *Info) {
	if len(previousItems) == 0 {
		return SortByDate(newItems), nil
	}

	keys := make([]string, 0, len(newItems)+len(previousItems))
	byKey := make(map[string]timeline.Item, len(newItems)+len(previousItems))
	duplicates := 0

	insert := func(item timeline.Item, key string) {
		existing, ok := byKey[key]
		if !ok {
			keys = append(keys, key)
			byKey[key] = item
			return
		}
		duplicates++
		if populatedFields(item) > populatedFields(existing) {
			byKey[key] = item
		}
	}

	// New rows first so ties resolve in their favor.
	for i, item := range newItems {
		insert(item, identityKey(item, "new", i))
	}
	for i, item := range previousItems {
		insert(item, identityKey(item, "prev", i))
	}

	merged := make([]timeline.Item, 0, len(keys))
	for _, key := range keys {
		merged = append(merged, byKey[key])
	}
	merged = SortByDate(merged)

	return merged, &Info{
		PreviousCount:     len(previousItems),
		NewCount:          len(newItems),
		DuplicatesRemoved: duplicates,
		FinalCount:        len(merged),
	}
}

// SortByDate returns a fresh slice ordered newest first by parsed
// created_at. Rows whose date cannot be parsed sort as the epoch, which
// places them last.
func SortByDate(items []timeline.Item) []timeline.Item {
	sorted := make([]timeline.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ParseCreatedAt(sorted[i].CreatedAt()).After(ParseCreatedAt(sorted[j].CreatedAt()))
	})
	return sorted
}

// ParseCreatedAt parses the provider's classic timestamp format
// ("Mon Jan 02 15:04:05 -0700 2006"), falling back to RFC 3339. Anything
// else returns the epoch.
func ParseCreatedAt(s string) time.Time {
	if t, err := time.Parse(time.RubyDate, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Unix(0, 0).UTC()
}

// identityKey returns "id:<id>" for rows that carry an id. Rows without
// one get a key synthesized from their origin, position, and content, so
// distinct id-less rows never collapse into each other.
func identityKey(item timeline.Item, source string, index int) string {
	if id := item.ID(); id != "" {
		return "id:" + id
	}
	return fmt.Sprintf("%s:%d:%s:%s", source, index, item.CreatedAt(), item.Text())
}

// populatedFields measures richness for duplicate resolution.
func populatedFields(item timeline.Item) int {
	return len(item)
}

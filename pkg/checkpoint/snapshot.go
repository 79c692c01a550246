package checkpoint

import (
	"encoding/json"

	"xscraper/pkg/timeline"
)

// Snapshot is one durable record of export progress: the rows collected so
// far plus enough provenance to continue a later session.
type Snapshot struct {
	Username string          `json:"username"`
	SavedAt  int64           `json:"saved_at"`
	Meta     *Meta           `json:"meta"`
	Tweets   []timeline.Item `json:"tweets"`
}

// Meta carries open-ended progress details alongside the rows. All fields
// are optional; older snapshots may carry none.
type Meta struct {
	SessionID         string `json:"session_id,omitempty"`
	Cursor            string `json:"cursor,omitempty"`
	ScrollCount       int    `json:"scroll_count,omitempty"`
	CapturedResponses int    `json:"captured_responses,omitempty"`
}

// Manifest describes how many chunks a serialized snapshot was split into.
type Manifest struct {
	Version    int `json:"version"`
	ChunkCount int `json:"chunkCount"`
}

// Valid reports whether the manifest describes a readable chunked layout.
func (m Manifest) Valid() bool {
	return m.Version == SchemaVersion && m.ChunkCount > 0
}

// Normalize returns the canonical stored form of a handle: lowercase, no
// leading "@", no surrounding junk. Stored usernames and identity
// comparisons always use this form.
func Normalize(username string) string {
	return timeline.NormalizeUsername(username)
}

// decodeSnapshot parses a stored document and applies structural
// normalization: a usable snapshot names a user and carries at least one
// tweet. Anything else is treated as a cache miss.
func decodeSnapshot(doc string) *Snapshot {
	var snap Snapshot
	if err := json.Unmarshal([]byte(doc), &snap); err != nil {
		return nil
	}
	snap.Username = Normalize(snap.Username)
	if snap.Username == "" || len(snap.Tweets) == 0 {
		return nil
	}
	return &snap
}

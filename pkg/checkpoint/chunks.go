package checkpoint

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// SchemaVersion is the manifest version of the chunked layout.
	SchemaVersion = 2

	// DefaultChunkSize is how many bytes of serialized snapshot go into
	// one chunk. Tunable; both tiers use the same codec so the value only
	// has to be consistent within one write.
	DefaultChunkSize = 524288

	manifestKey = "manifest"
	legacyKey   = "snapshot"
)

func chunkKey(i int) string {
	return fmt.Sprintf("chunk:%06d", i)
}

// splitChunks slices a serialized document into size-byte pieces. An empty
// document still yields one chunk so the manifest stays valid.
func splitChunks(doc string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if doc == "" {
		return []string{""}
	}
	chunks := make([]string, 0, (len(doc)+size-1)/size)
	for start := 0; start < len(doc); start += size {
		end := start + size
		if end > len(doc) {
			end = len(doc)
		}
		chunks = append(chunks, doc[start:end])
	}
	return chunks
}

// readTier runs the restore protocol against one storage tier: a valid
// manifest followed by every chunk in order, or the legacy single-document
// key when no manifest exists. A present-but-corrupt manifest or any
// missing chunk fails the whole tier closed; partial documents are never
// returned.
func readTier(get func(key string) (string, bool)) (string, bool) {
	if raw, ok := get(manifestKey); ok {
		var m Manifest
		if err := json.Unmarshal([]byte(raw), &m); err != nil || !m.Valid() {
			return "", false
		}
		var doc strings.Builder
		for i := 0; i < m.ChunkCount; i++ {
			chunk, ok := get(chunkKey(i))
			if !ok {
				return "", false
			}
			doc.WriteString(chunk)
		}
		return doc.String(), true
	}

	// Version-1 layout: the whole snapshot under one key.
	return get(legacyKey)
}

package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xscraper/pkg/timeline"
)

// memBlockStore is an in-memory stand-in for the primary tier. Each
// transaction stages a full copy and swaps it in on commit.
type memBlockStore struct {
	data      map[string]string
	beginErr  error
	putErr    error
	commitErr error
}

func newMemBlockStore() *memBlockStore {
	return &memBlockStore{data: map[string]string{}}
}

func (s *memBlockStore) Begin(ctx context.Context, writable bool) (BlockTx, error) {
	if s.beginErr != nil {
		return nil, s.beginErr
	}
	staged := make(map[string]string, len(s.data))
	for k, v := range s.data {
		staged[k] = v
	}
	return &memBlockTx{store: s, staged: staged}, nil
}

type memBlockTx struct {
	store  *memBlockStore
	staged map[string]string
}

func (tx *memBlockTx) Get(key string) (string, bool, error) {
	v, ok := tx.staged[key]
	return v, ok, nil
}

func (tx *memBlockTx) Put(key, value string) error {
	if tx.store.putErr != nil {
		return tx.store.putErr
	}
	tx.staged[key] = value
	return nil
}

func (tx *memBlockTx) Clear() error {
	tx.staged = map[string]string{}
	return nil
}

func (tx *memBlockTx) Commit() error {
	if tx.store.commitErr != nil {
		return tx.store.commitErr
	}
	tx.store.data = tx.staged
	return nil
}

func (tx *memBlockTx) Rollback() error { return nil }

// memKVStore is an in-memory stand-in for the fallback tier.
type memKVStore struct {
	data    map[string]string
	setFail bool
}

func newMemKVStore() *memKVStore {
	return &memKVStore{data: map[string]string{}}
}

func (s *memKVStore) Get(key string) (string, bool) {
	v, ok := s.data[key]
	return v, ok
}

func (s *memKVStore) Set(key, value string) bool {
	if s.setFail {
		return false
	}
	s.data[key] = value
	return true
}

func (s *memKVStore) Remove(key string) {
	delete(s.data, key)
}

func testSnapshot(username string, tweets int) *Snapshot {
	items := make([]timeline.Item, 0, tweets)
	for i := 0; i < tweets; i++ {
		items = append(items, timeline.Item{
			"id":         fmt.Sprintf("%d", 1000+i),
			"type":       "Tweet",
			"created_at": "Mon Jun 03 10:00:00 +0000 2024",
			"text":       fmt.Sprintf("tweet number %d", i),
		})
	}
	return &Snapshot{
		Username: username,
		Meta:     &Meta{SessionID: "session-1", Cursor: "cursor-abc", ScrollCount: 12, CapturedResponses: 4},
		Tweets:   items,
	}
}

// seedKV writes a snapshot's manifest and chunks straight into a KV map,
// bypassing the cache.
func seedKV(kv *memKVStore, snap *Snapshot, chunkSize int) {
	doc, _ := json.Marshal(snap)
	chunks := splitChunks(string(doc), chunkSize)
	manifest, _ := json.Marshal(Manifest{Version: SchemaVersion, ChunkCount: len(chunks)})
	kv.data[manifestKey] = string(manifest)
	for i, chunk := range chunks {
		kv.data[chunkKey(i)] = chunk
	}
}

func TestSaveAndRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	cache := New(primary, newMemKVStore())

	snap := testSnapshot("@Kepler", 3)
	require.True(t, cache.Save(ctx, snap))

	restored := cache.Restore(ctx, "kepler", time.Hour)
	require.NotNil(t, restored)

	assert.Equal(t, "kepler", restored.Username)
	assert.Equal(t, snap.SavedAt, restored.SavedAt)
	require.NotNil(t, restored.Meta)
	assert.Equal(t, "cursor-abc", restored.Meta.Cursor)
	assert.Equal(t, 12, restored.Meta.ScrollCount)
	require.Len(t, restored.Tweets, 3)
	assert.Equal(t, "1000", restored.Tweets[0].ID())
	assert.Equal(t, "tweet number 2", restored.Tweets[2].Text())
}

func TestSaveStampsSavedAt(t *testing.T) {
	ctx := context.Background()
	cache := New(newMemBlockStore(), nil)
	stamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return stamp }

	snap := testSnapshot("kepler", 1)
	require.True(t, cache.Save(ctx, snap))
	assert.Equal(t, stamp.UnixMilli(), snap.SavedAt)
}

func TestMultiChunkRoundTrip(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	cache := New(primary, newMemKVStore())
	cache.chunkSize = 256

	// Large enough to need several chunks.
	snap := testSnapshot("kepler", 2)
	snap.Tweets[0]["text"] = strings.Repeat("long tweet body ", 200)

	require.True(t, cache.Save(ctx, snap))

	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(primary.data[manifestKey]), &m))
	assert.Equal(t, SchemaVersion, m.Version)
	assert.Greater(t, m.ChunkCount, 1)
	for i := 0; i < m.ChunkCount; i++ {
		_, ok := primary.data[chunkKey(i)]
		assert.True(t, ok, "chunk %d missing", i)
	}

	restored := cache.Restore(ctx, "kepler", time.Hour)
	require.NotNil(t, restored)
	assert.Equal(t, snap.Tweets[0].Text(), restored.Tweets[0].Text())
	assert.Len(t, restored.Tweets, 2)
}

func TestSaveFallsBackWhenPrimaryUnavailable(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	primary.beginErr = fmt.Errorf("database locked")
	fallback := newMemKVStore()
	cache := New(primary, fallback)

	require.True(t, cache.Save(ctx, testSnapshot("kepler", 2)))

	_, ok := fallback.data[manifestKey]
	assert.True(t, ok, "fallback manifest not written")

	// Restore degrades the same way.
	restored := cache.Restore(ctx, "kepler", time.Hour)
	require.NotNil(t, restored)
	assert.Len(t, restored.Tweets, 2)
}

func TestSaveFallsBackWhenCommitFails(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	primary.commitErr = fmt.Errorf("disk full")
	fallback := newMemKVStore()
	cache := New(primary, fallback)

	require.True(t, cache.Save(ctx, testSnapshot("kepler", 1)))
	_, ok := fallback.data[manifestKey]
	assert.True(t, ok)
}

func TestSaveReportsFalseWhenBothTiersFail(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	primary.beginErr = fmt.Errorf("database locked")
	fallback := newMemKVStore()
	fallback.setFail = true
	cache := New(primary, fallback)

	assert.False(t, cache.Save(ctx, testSnapshot("kepler", 1)))
}

func TestSaveNilSnapshot(t *testing.T) {
	cache := New(newMemBlockStore(), newMemKVStore())
	assert.False(t, cache.Save(context.Background(), nil))
}

func TestRestorePrefersPrimary(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	fallback := newMemKVStore()
	cache := New(primary, fallback)

	require.True(t, cache.Save(ctx, testSnapshot("kepler", 5)))
	seedKV(fallback, testSnapshot("kepler", 1), DefaultChunkSize)

	restored := cache.Restore(ctx, "kepler", time.Hour)
	require.NotNil(t, restored)
	assert.Len(t, restored.Tweets, 5)
}

func TestRestoreFailsClosedOnMissingChunk(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	fallback := newMemKVStore()
	cache := New(primary, fallback)
	cache.chunkSize = 128

	require.True(t, cache.Save(ctx, testSnapshot("kepler", 4)))
	// Break the primary copy: drop one interior chunk.
	delete(primary.data, chunkKey(1))

	// Fallback holds a good copy; the broken primary must not win.
	seedKV(fallback, testSnapshot("kepler", 2), 128)

	restored := cache.Restore(ctx, "kepler", time.Hour)
	require.NotNil(t, restored)
	assert.Len(t, restored.Tweets, 2)
}

func TestRestoreCorruptManifestFailsClosed(t *testing.T) {
	ctx := context.Background()
	fallback := newMemKVStore()
	cache := New(nil, fallback)

	// A present-but-corrupt manifest must not fall through to the legacy
	// key in the same tier.
	doc, _ := json.Marshal(testSnapshot("kepler", 2))
	fallback.data[manifestKey] = "not json"
	fallback.data[legacyKey] = string(doc)

	assert.Nil(t, cache.Restore(ctx, "kepler", time.Hour))
}

func TestRestoreWrongManifestVersion(t *testing.T) {
	ctx := context.Background()
	fallback := newMemKVStore()
	cache := New(nil, fallback)

	manifest, _ := json.Marshal(Manifest{Version: 1, ChunkCount: 1})
	fallback.data[manifestKey] = string(manifest)
	fallback.data[chunkKey(0)] = "{}"

	assert.Nil(t, cache.Restore(ctx, "kepler", time.Hour))
}

func TestRestoreLegacyDocument(t *testing.T) {
	ctx := context.Background()
	fallback := newMemKVStore()
	cache := New(nil, fallback)

	snap := testSnapshot("kepler", 2)
	snap.SavedAt = time.Now().UnixMilli()
	doc, _ := json.Marshal(snap)
	fallback.data[legacyKey] = string(doc)

	restored := cache.Restore(ctx, "kepler", time.Hour)
	require.NotNil(t, restored)
	assert.Len(t, restored.Tweets, 2)
}

func TestRestoreExpiredSnapshotEvictsBothTiers(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	fallback := newMemKVStore()
	cache := New(primary, fallback)

	snap := testSnapshot("kepler", 2)
	require.True(t, cache.Save(ctx, snap))
	seedKV(fallback, snap, DefaultChunkSize)

	// Jump past the TTL.
	cache.now = func() time.Time {
		return time.UnixMilli(snap.SavedAt).Add(24*time.Hour + time.Minute)
	}

	assert.Nil(t, cache.Restore(ctx, "kepler", 24*time.Hour))

	// Eviction happened: even a restore with no TTL finds nothing.
	assert.Nil(t, cache.Restore(ctx, "kepler", 0))
	assert.Empty(t, primary.data)
	assert.Empty(t, fallback.data)
}

func TestRestoreIdentityMismatchKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	cache := New(newMemBlockStore(), newMemKVStore())

	require.True(t, cache.Save(ctx, testSnapshot("kepler", 2)))

	assert.Nil(t, cache.Restore(ctx, "galileo", time.Hour))

	// The other account's progress is still there.
	restored := cache.Restore(ctx, "@Kepler", time.Hour)
	require.NotNil(t, restored)
	assert.Len(t, restored.Tweets, 2)
}

func TestRestoreRejectsStructurallyEmptySnapshots(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		doc  string
	}{
		{name: "no tweets", doc: `{"username":"kepler","saved_at":1,"meta":null,"tweets":[]}`},
		{name: "no username", doc: `{"username":"","saved_at":1,"meta":null,"tweets":[{"id":"1"}]}`},
		{name: "not a snapshot", doc: `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fallback := newMemKVStore()
			fallback.data[legacyKey] = tt.doc
			cache := New(nil, fallback)

			assert.Nil(t, cache.Restore(ctx, "kepler", 0))
		})
	}
}

func TestFallbackWriteRemovesStaleTrailingChunks(t *testing.T) {
	ctx := context.Background()
	fallback := newMemKVStore()
	cache := New(nil, fallback)
	cache.chunkSize = 128

	big := testSnapshot("kepler", 1)
	big.Tweets[0]["text"] = strings.Repeat("wide load ", 100)
	require.True(t, cache.Save(ctx, big))

	var before Manifest
	require.NoError(t, json.Unmarshal([]byte(fallback.data[manifestKey]), &before))
	require.Greater(t, before.ChunkCount, 1)

	small := testSnapshot("kepler", 1)
	require.True(t, cache.Save(ctx, small))

	var after Manifest
	require.NoError(t, json.Unmarshal([]byte(fallback.data[manifestKey]), &after))
	for i := after.ChunkCount; i < before.ChunkCount; i++ {
		_, ok := fallback.data[chunkKey(i)]
		assert.False(t, ok, "stale chunk %d survived", i)
	}

	restored := cache.Restore(ctx, "kepler", time.Hour)
	require.NotNil(t, restored)
	assert.Equal(t, small.Tweets[0].Text(), restored.Tweets[0].Text())
}

func TestClearRemovesBothTiers(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	fallback := newMemKVStore()
	cache := New(primary, fallback)

	require.True(t, cache.Save(ctx, testSnapshot("kepler", 2)))
	seedKV(fallback, testSnapshot("kepler", 2), DefaultChunkSize)
	fallback.data[legacyKey] = `{"username":"kepler","tweets":[{"id":"1"}]}`

	cache.Clear(ctx)

	assert.Empty(t, primary.data)
	assert.Empty(t, fallback.data)
	assert.Nil(t, cache.Restore(ctx, "kepler", 0))
}

func TestClearSurvivesPrimaryFailure(t *testing.T) {
	ctx := context.Background()
	primary := newMemBlockStore()
	fallback := newMemKVStore()
	cache := New(primary, fallback)

	require.True(t, cache.Save(ctx, testSnapshot("kepler", 1)))
	seedKV(fallback, testSnapshot("kepler", 1), DefaultChunkSize)

	primary.beginErr = fmt.Errorf("database locked")
	cache.Clear(ctx)

	// Fallback cleanup proceeded regardless.
	assert.Empty(t, fallback.data)
}

func TestManifestValid(t *testing.T) {
	tests := []struct {
		name     string
		manifest Manifest
		expected bool
	}{
		{name: "valid", manifest: Manifest{Version: 2, ChunkCount: 3}, expected: true},
		{name: "wrong version", manifest: Manifest{Version: 1, ChunkCount: 3}, expected: false},
		{name: "zero chunks", manifest: Manifest{Version: 2, ChunkCount: 0}, expected: false},
		{name: "negative chunks", manifest: Manifest{Version: 2, ChunkCount: -1}, expected: false},
		{name: "empty", manifest: Manifest{}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.manifest.Valid())
		})
	}
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		size   int
		counts int
	}{
		{name: "empty still yields a chunk", doc: "", size: 4, counts: 1},
		{name: "exact fit", doc: "abcd", size: 4, counts: 1},
		{name: "one over", doc: "abcde", size: 4, counts: 2},
		{name: "many", doc: strings.Repeat("x", 10), size: 3, counts: 4},
		{name: "zero size uses default", doc: "abc", size: 0, counts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := splitChunks(tt.doc, tt.size)
			assert.Len(t, chunks, tt.counts)
			assert.Equal(t, tt.doc, strings.Join(chunks, ""))
		})
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "kepler", Normalize("@Kepler"))
	assert.Equal(t, "kepler", Normalize("  KEPLER/ "))
	assert.Equal(t, "", Normalize("@"))
}

package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"xscraper/pkg/logger"
)

// Cache persists export progress across sessions. Writes go to the primary
// block store in one transaction and fall back to the key-value tier when
// the primary is unavailable; reads try the tiers in the same order.
// Storage problems never reach the caller: every operation degrades to a
// false or nil sentinel and a logged warning.
type Cache struct {
	primary   BlockStore
	fallback  KVStore
	chunkSize int
	logger    logger.Logger
	now       func() time.Time
}

// New builds a cache over a primary block store and a fallback key-value
// store. Either tier may be nil; operations skip a missing tier.
func New(primary BlockStore, fallback KVStore) *Cache {
	return &Cache{
		primary:   primary,
		fallback:  fallback,
		chunkSize: DefaultChunkSize,
		logger:    logger.GetLogger(),
		now:       time.Now,
	}
}

// Save serializes snap, splits it into chunks, and writes manifest plus
// chunks to the primary tier in one transaction. Any primary failure falls
// through to the fallback tier. It reports whether either tier accepted
// the write. A zero SavedAt is stamped with the current time.
func (c *Cache) Save(ctx context.Context, snap *Snapshot) bool {
	if snap == nil {
		return false
	}
	snap.Username = Normalize(snap.Username)
	if snap.SavedAt == 0 {
		snap.SavedAt = c.now().UnixMilli()
	}

	doc, err := json.Marshal(snap)
	if err != nil {
		c.logger.ErrorWithFields("Snapshot serialization failed", map[string]interface{}{
			"username": snap.Username,
			"error":    err.Error(),
		})
		return false
	}

	chunks := splitChunks(string(doc), c.chunkSize)

	if c.saveToPrimary(ctx, chunks) {
		c.logger.DebugWithFields("Snapshot saved", map[string]interface{}{
			"username": snap.Username,
			"tier":     "primary",
			"chunks":   len(chunks),
			"tweets":   len(snap.Tweets),
		})
		return true
	}

	if c.saveToFallback(chunks) {
		c.logger.DebugWithFields("Snapshot saved", map[string]interface{}{
			"username": snap.Username,
			"tier":     "fallback",
			"chunks":   len(chunks),
			"tweets":   len(snap.Tweets),
		})
		return true
	}

	c.logger.WarnWithFields("Snapshot not persisted, both tiers failed", map[string]interface{}{
		"username": snap.Username,
	})
	return false
}

// Restore loads the stored snapshot for username. It returns nil when no
// usable snapshot exists: nothing stored, corrupt data, an expired record
// (which is also evicted from both tiers), or a snapshot belonging to a
// different account (left in place so that account can still resume).
// A maxAge of zero disables expiry.
func (c *Cache) Restore(ctx context.Context, username string, maxAge time.Duration) *Snapshot {
	doc, ok := c.readPrimary(ctx)
	if !ok {
		doc, ok = c.readFallback()
	}
	if !ok {
		return nil
	}

	snap := decodeSnapshot(doc)
	if snap == nil {
		c.logger.Warn("Stored snapshot is not usable, ignoring")
		return nil
	}

	if maxAge > 0 {
		age := c.now().UnixMilli() - snap.SavedAt
		if age > maxAge.Milliseconds() {
			c.logger.InfoWithFields("Resume snapshot expired, clearing", map[string]interface{}{
				"username": snap.Username,
				"age":      (time.Duration(age) * time.Millisecond).String(),
				"max_age":  maxAge.String(),
			})
			c.Clear(ctx)
			return nil
		}
	}

	if target := Normalize(username); target != "" && snap.Username != target {
		c.logger.InfoWithFields("Resume snapshot belongs to another account, skipping", map[string]interface{}{
			"stored":    snap.Username,
			"requested": target,
		})
		return nil
	}

	c.logger.InfoWithFields("Resume snapshot restored", map[string]interface{}{
		"username": snap.Username,
		"tweets":   len(snap.Tweets),
	})
	return snap
}

// Clear removes the stored snapshot from both tiers. Removal is best
// effort: a failing primary never blocks fallback cleanup.
func (c *Cache) Clear(ctx context.Context) {
	c.clearPrimary(ctx)
	c.clearFallback()
}

func (c *Cache) saveToPrimary(ctx context.Context, chunks []string) bool {
	if c.primary == nil {
		return false
	}
	tx, err := c.primary.Begin(ctx, true)
	if err != nil {
		c.logger.WarnWithFields("Primary store unavailable", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}

	manifest, _ := json.Marshal(Manifest{Version: SchemaVersion, ChunkCount: len(chunks)})

	err = func() error {
		if err := tx.Clear(); err != nil {
			return err
		}
		if err := tx.Put(manifestKey, string(manifest)); err != nil {
			return err
		}
		for i, chunk := range chunks {
			if err := tx.Put(chunkKey(i), chunk); err != nil {
				return err
			}
		}
		return tx.Commit()
	}()
	if err != nil {
		tx.Rollback()
		c.logger.WarnWithFields("Primary snapshot write failed", map[string]interface{}{
			"error": err.Error(),
		})
		return false
	}
	return true
}

func (c *Cache) saveToFallback(chunks []string) bool {
	if c.fallback == nil {
		return false
	}

	manifest, _ := json.Marshal(Manifest{Version: SchemaVersion, ChunkCount: len(chunks)})
	if !c.fallback.Set(manifestKey, string(manifest)) {
		return false
	}
	for i, chunk := range chunks {
		if !c.fallback.Set(chunkKey(i), chunk) {
			return false
		}
	}

	// A previous write may have been larger; stale trailing chunks would
	// otherwise survive and corrupt a future read of a longer manifest.
	for i := len(chunks); ; i++ {
		if _, ok := c.fallback.Get(chunkKey(i)); !ok {
			break
		}
		c.fallback.Remove(chunkKey(i))
	}
	return true
}

func (c *Cache) readPrimary(ctx context.Context) (string, bool) {
	if c.primary == nil {
		return "", false
	}
	tx, err := c.primary.Begin(ctx, false)
	if err != nil {
		c.logger.WarnWithFields("Primary store unavailable, trying fallback", map[string]interface{}{
			"error": err.Error(),
		})
		return "", false
	}
	defer tx.Rollback()

	return readTier(func(key string) (string, bool) {
		value, ok, err := tx.Get(key)
		if err != nil || !ok {
			return "", false
		}
		return value, true
	})
}

func (c *Cache) readFallback() (string, bool) {
	if c.fallback == nil {
		return "", false
	}
	return readTier(c.fallback.Get)
}

func (c *Cache) clearPrimary(ctx context.Context) {
	if c.primary == nil {
		return
	}
	tx, err := c.primary.Begin(ctx, true)
	if err != nil {
		c.logger.WarnWithFields("Primary store unavailable for clear", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err := tx.Clear(); err != nil {
		tx.Rollback()
		c.logger.WarnWithFields("Primary clear failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if err := tx.Commit(); err != nil {
		c.logger.WarnWithFields("Primary clear commit failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

func (c *Cache) clearFallback() {
	if c.fallback == nil {
		return
	}

	// The manifest tells us how many chunk keys exist; sweep past it in
	// case an older, larger write left extras behind.
	count := 0
	if raw, ok := c.fallback.Get(manifestKey); ok {
		var m Manifest
		if err := json.Unmarshal([]byte(raw), &m); err == nil && m.Valid() {
			count = m.ChunkCount
		}
	}
	c.fallback.Remove(manifestKey)
	c.fallback.Remove(legacyKey)
	for i := 0; i < count; i++ {
		c.fallback.Remove(chunkKey(i))
	}
	for i := count; ; i++ {
		if _, ok := c.fallback.Get(chunkKey(i)); !ok {
			break
		}
		c.fallback.Remove(chunkKey(i))
	}
}

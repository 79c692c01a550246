package checkpoint

import "context"

// BlockStore is the primary storage tier: a store with atomic multi-key
// transactions. One transaction covers the whole snapshot write (clear,
// manifest, every chunk, commit), so readers never observe a half-written
// snapshot.
type BlockStore interface {
	Begin(ctx context.Context, writable bool) (BlockTx, error)
}

// BlockTx is one primary-tier transaction.
type BlockTx interface {
	Get(key string) (string, bool, error)
	Put(key, value string) error
	// Clear removes every key in the store's snapshot namespace.
	Clear() error
	Commit() error
	Rollback() error
}

// KVStore is the fallback tier: plain single-key operations with no
// transactional guarantees. Set reports failure as false (quota, I/O)
// rather than an error.
type KVStore interface {
	Get(key string) (string, bool)
	Set(key, value string) bool
	Remove(key string)
}

// Package checkpoint persists export progress so an interrupted session
// can resume without losing collected rows.
//
// A snapshot is serialized to JSON, split into fixed-size chunks, and
// written under a manifest describing the chunk count. The primary tier is
// a transactional block store, so a snapshot is either fully written or
// not there at all; when the primary is unavailable the same manifest and
// chunk layout goes to a plain key-value fallback. Restore walks the tiers
// in the same order and also understands the version-1 layout that stored
// the whole snapshot under a single key.
//
// Storage never raises: Save reports false when both tiers reject the
// write, Restore returns nil for anything unusable (missing, corrupt,
// expired, or belonging to a different account), and Clear is best
// effort across both tiers.
package checkpoint

package store

import (
	"encoding/hex"
	"os"
	"path/filepath"

	"xscraper/pkg/checkpoint"
	"xscraper/pkg/logger"
)

// FileKV is the directory-backed fallback tier: one file per key, with
// hex-encoded filenames so keys like "chunk:000001" stay filesystem-safe
// on every platform.
type FileKV struct {
	dir    string
	logger logger.Logger
}

var _ checkpoint.KVStore = (*FileKV)(nil)

// NewFileKV opens or creates the key-value directory.
func NewFileKV(dir string) (*FileKV, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	return &FileKV{dir: dir, logger: logger.GetLogger()}, nil
}

func (s *FileKV) path(key string) string {
	return filepath.Join(s.dir, hex.EncodeToString([]byte(key))+".kv")
}

// Get reads a key. Any read problem reports as a missing key.
func (s *FileKV) Get(key string) (string, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

// Set writes a key atomically through a temp file and rename. Failure is
// reported as false, never an error.
func (s *FileKV) Set(key, value string) bool {
	path := s.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0600); err != nil {
		s.logger.WarnWithFields("Fallback write failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		s.logger.WarnWithFields("Fallback rename failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
		return false
	}
	return true
}

// Remove deletes a key. Missing keys are not an error.
func (s *FileKV) Remove(key string) {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		s.logger.WarnWithFields("Fallback removal failed", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

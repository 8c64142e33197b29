// Package datastore is a small file-backed JSON key-value store with atomic
// writes and periodic autosave. Values are stored as raw JSON so callers keep
// their own typed records.
package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// Config holds datastore options.
type Config struct {
	FilePath         string
	AutoSaveInterval time.Duration
}

// DefaultConfig returns the default configuration for a file path.
func DefaultConfig(filePath string) *Config {
	return &Config{
		FilePath:         filePath,
		AutoSaveInterval: 10 * time.Second,
	}
}

// DataStore is safe for concurrent use.
type DataStore struct {
	mu           sync.RWMutex
	data         map[string]json.RawMessage
	file         string
	lastChecksum string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	closeMu sync.Mutex
	closed  bool
}

// New creates a DataStore with default configuration.
func New(filePath string) (*DataStore, error) {
	return NewWithConfig(DefaultConfig(filePath))
}

// NewWithConfig creates a DataStore, loading existing data if the file exists.
func NewWithConfig(config *Config) (*DataStore, error) {
	if config == nil || config.FilePath == "" {
		return nil, errors.New("datastore: file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0o755); err != nil {
		return nil, errors.Wrap(err, "create datastore directory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	ds := &DataStore{
		data:   make(map[string]json.RawMessage),
		file:   config.FilePath,
		ctx:    ctx,
		cancel: cancel,
	}

	if _, err := os.Stat(config.FilePath); err == nil {
		if err := ds.loadFromFile(); err != nil {
			cancel()
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		cancel()
		return nil, errors.Wrap(err, "stat datastore file")
	}

	if config.AutoSaveInterval > 0 {
		ds.wg.Add(1)
		go ds.autoSave(config.AutoSaveInterval)
	}

	return ds, nil
}

// Put marshals value and stores it under key.
func (ds *DataStore) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrapf(err, "marshal value for key %q", key)
	}

	ds.mu.Lock()
	ds.data[key] = raw
	ds.mu.Unlock()
	return nil
}

// Get unmarshals the value stored under key into out.
func (ds *DataStore) Get(key string, out any) (bool, error) {
	ds.mu.RLock()
	raw, exists := ds.data[key]
	ds.mu.RUnlock()

	if !exists {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, errors.Wrapf(err, "unmarshal value for key %q", key)
	}
	return true, nil
}

// Delete removes a key. Deleting an absent key is a no-op.
func (ds *DataStore) Delete(key string) {
	ds.mu.Lock()
	delete(ds.data, key)
	ds.mu.Unlock()
}

// Keys returns all stored keys.
func (ds *DataStore) Keys() []string {
	ds.mu.RLock()
	defer ds.mu.RUnlock()

	keys := make([]string, 0, len(ds.data))
	for k := range ds.data {
		keys = append(keys, k)
	}
	return keys
}

// Flush writes the current data to disk immediately.
func (ds *DataStore) Flush() error {
	return ds.saveToFile()
}

// Close stops the autosave loop and flushes pending data.
func (ds *DataStore) Close() error {
	ds.closeMu.Lock()
	if ds.closed {
		ds.closeMu.Unlock()
		return nil
	}
	ds.closed = true
	ds.closeMu.Unlock()

	ds.cancel()
	ds.wg.Wait()
	return ds.saveToFile()
}

func (ds *DataStore) saveToFile() error {
	ds.mu.RLock()
	data, err := json.MarshalIndent(ds.data, "", "  ")
	ds.mu.RUnlock()
	if err != nil {
		return errors.Wrap(err, "marshal datastore")
	}

	checksum := checksum(data)

	ds.mu.Lock()
	defer ds.mu.Unlock()

	// Skip write when nothing changed since the last save.
	if checksum == ds.lastChecksum {
		return nil
	}
	if err := ds.writeFileAtomic(data); err != nil {
		return err
	}
	ds.lastChecksum = checksum
	return nil
}

func (ds *DataStore) loadFromFile() error {
	raw, err := os.ReadFile(ds.file)
	if err != nil {
		return errors.Wrap(err, "read datastore file")
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(raw, &data); err != nil {
		return errors.Wrap(err, "datastore file is not valid JSON")
	}

	ds.mu.Lock()
	ds.data = data
	ds.lastChecksum = checksum(raw)
	ds.mu.Unlock()
	return nil
}

// writeFileAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated store behind.
func (ds *DataStore) writeFileAtomic(data []byte) error {
	tmp := ds.file + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write temp file")
	}

	f, err := os.OpenFile(tmp, os.O_RDWR, 0o644)
	if err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "open temp file for sync")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "sync temp file")
	}
	f.Close()

	if err := os.Rename(tmp, ds.file); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "rename temp file")
	}
	return nil
}

func (ds *DataStore) autoSave(interval time.Duration) {
	defer ds.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ds.ctx.Done():
			return
		case <-ticker.C:
			_ = ds.saveToFile()
		}
	}
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

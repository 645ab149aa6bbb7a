package cache

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"io"
	"time"

	"todosync/internal/utils"
)

// compressionLevel balances speed against ratio for task payloads.
const compressionLevel = 6

// payloadVersion namespaces compressed entries so the encoding can change
// without crashing old readers: after a version bump, old-versioned keys are
// permanent misses until they expire naturally.
const payloadVersion = "v1"

// Compressed wraps a Store with a JSON+zlib codec for large payloads such as
// task collection snapshots. Writes are best-effort: Set reports success as a
// boolean and never fails the calling workflow. Reads are fail-closed: a
// missing key, a corrupt payload, or an incompatible version all read as a
// plain miss.
type Compressed struct {
	store Store
}

// NewCompressed creates a compressed view over a store.
func NewCompressed(store Store) *Compressed {
	return &Compressed{store: store}
}

// versionedKey prefixes a key with the payload version.
func versionedKey(key string) string {
	return payloadVersion + ":" + key
}

// compress encodes a value as compact JSON and deflates it.
func compress(value interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, compressionLevel)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(jsonData); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	if len(jsonData) > 0 {
		ratio := (1 - float64(buf.Len())/float64(len(jsonData))) * 100
		utils.Debugf("compression: %dB -> %dB (saved %.1f%%)", len(jsonData), buf.Len(), ratio)
	}

	return buf.Bytes(), nil
}

// decompress inflates a payload and decodes the JSON into out.
func decompress(data []byte, out interface{}) error {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	jsonData, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// Set compresses and stores a value under the version-namespaced key.
// Returns true on success; failures are logged and reported as false so cache
// writes never fail the caller.
func (c *Compressed) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	data, err := compress(value)
	if err != nil {
		utils.Errorf("failed to compress cache entry %s: %v", key, err)
		return false
	}
	if err := c.store.Set(ctx, versionedKey(key), data, ttl); err != nil {
		utils.Errorf("failed to write compressed cache entry %s: %v", key, err)
		return false
	}
	return true
}

// Get reads, decompresses and decodes a value into out. Returns false on a
// miss or on any decode failure (corruption is treated as a miss, never
// surfaced to the caller).
func (c *Compressed) Get(ctx context.Context, key string, out interface{}) bool {
	data, found, err := c.store.Get(ctx, versionedKey(key))
	if err != nil {
		utils.Errorf("failed to read compressed cache entry %s: %v", key, err)
		return false
	}
	if !found {
		return false
	}
	if err := decompress(data, out); err != nil {
		utils.Warnf("corrupt compressed cache entry %s, treating as miss: %v", key, err)
		return false
	}
	return true
}

// Delete removes a compressed entry.
func (c *Compressed) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, versionedKey(key))
}

// InvalidatePattern deletes all compressed entries whose unversioned key
// matches the glob pattern.
func (c *Compressed) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	return c.store.InvalidatePattern(ctx, versionedKey(pattern))
}

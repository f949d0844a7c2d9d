package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
)

const indexFile = "index.json"

// Disk is the persistent level. Values are compressed with zstd and the
// index survives restarts in a JSON sidecar.
type Disk struct {
	basePath string
	capacity int64

	encoder *zstd.Encoder
	decoder *zstd.Decoder

	mu    sync.Mutex
	index map[string]*diskEntry
	size  int64
	stats Stats
}

type diskEntry struct {
	Key        string    `json:"key"`
	File       string    `json:"file"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	StoredAt   time.Time `json:"stored_at"`
	LastAccess time.Time `json:"last_access"`
}

// NewDisk opens or creates a disk cache at basePath. A compression level
// of zero stores values raw.
func NewDisk(basePath string, capacity int64, compressionLevel int) (*Disk, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	d := &Disk{
		basePath: basePath,
		capacity: capacity,
		index:    make(map[string]*diskEntry),
		stats:    Stats{Capacity: capacity},
	}

	if compressionLevel > 0 {
		var err error
		d.encoder, err = zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		d.decoder, err = zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
	}

	if err := d.loadIndex(); err != nil {
		// A damaged index only costs cached audio, start fresh.
		log.Warn("cache index unreadable, starting empty", "path", basePath, "err", err)
		d.index = make(map[string]*diskEntry)
		d.size = 0
	}
	return d, nil
}

// Get reads and decompresses a value.
func (d *Disk) Get(key string) ([]byte, bool) {
	d.mu.Lock()
	entry, ok := d.index[key]
	if !ok {
		d.stats.Misses++
		d.mu.Unlock()
		return nil, false
	}
	entry.LastAccess = time.Now()
	d.stats.Hits++
	compressed := entry.Compressed
	path := filepath.Join(d.basePath, entry.File)
	d.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("cache file unreadable, dropping entry", "key", key, "err", err)
		d.Delete(key)
		return nil, false
	}

	if compressed && d.decoder != nil {
		out, err := d.decoder.DecodeAll(data, nil)
		if err != nil {
			log.Warn("cache entry corrupt, dropping", "key", key, "err", err)
			d.Delete(key)
			return nil, false
		}
		return out, true
	}
	return data, true
}

// Put compresses and writes a value, evicting least recently accessed
// entries to stay under capacity.
func (d *Disk) Put(key string, value []byte) error {
	data := value
	compressed := false
	if d.encoder != nil && len(value) > 1024 {
		data = d.encoder.EncodeAll(value, nil)
		compressed = true
	}

	size := int64(len(data))
	if size > d.capacity {
		return ErrItemTooLarge
	}

	file := fileName(key)
	if err := os.WriteFile(filepath.Join(d.basePath, file), data, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if old, ok := d.index[key]; ok {
		d.size -= old.Size
	}
	now := time.Now()
	d.index[key] = &diskEntry{
		Key:        key,
		File:       file,
		Size:       size,
		Compressed: compressed,
		StoredAt:   now,
		LastAccess: now,
	}
	d.size += size

	for d.size > d.capacity {
		d.evictColdestLocked()
	}
	return d.saveIndexLocked()
}

// Delete removes one entry and its file.
func (d *Disk) Delete(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removeLocked(key)
	if err := d.saveIndexLocked(); err != nil {
		log.Debug("cache index save", "err", err)
	}
}

// Prune drops entries stored longer ago than maxAge. Returns the number
// removed.
func (d *Disk) Prune(maxAge time.Duration) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for key, entry := range d.index {
		if entry.StoredAt.Before(cutoff) {
			d.removeLocked(key)
			pruned++
		}
	}
	if pruned > 0 {
		if err := d.saveIndexLocked(); err != nil {
			log.Debug("cache index save", "err", err)
		}
	}
	return pruned
}

// Stats returns a snapshot of the counters.
func (d *Disk) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	stats := d.stats
	stats.Size = d.size
	stats.ItemCount = len(d.index)
	return stats
}

// Close flushes the index and releases the compressor.
func (d *Disk) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := d.saveIndexLocked()
	if d.encoder != nil {
		d.encoder.Close()
	}
	if d.decoder != nil {
		d.decoder.Close()
	}
	return err
}

func (d *Disk) evictColdestLocked() {
	entries := make([]*diskEntry, 0, len(d.index))
	for _, e := range d.index {
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastAccess.Before(entries[j].LastAccess)
	})
	d.removeLocked(entries[0].Key)
	d.stats.Evictions++
}

func (d *Disk) removeLocked(key string) {
	entry, ok := d.index[key]
	if !ok {
		return
	}
	if err := os.Remove(filepath.Join(d.basePath, entry.File)); err != nil && !os.IsNotExist(err) {
		log.Debug("cache file remove", "key", key, "err", err)
	}
	d.size -= entry.Size
	delete(d.index, key)
}

func (d *Disk) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(d.basePath, indexFile))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var entries []*diskEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	for _, e := range entries {
		// Drop index entries whose files disappeared.
		if _, err := os.Stat(filepath.Join(d.basePath, e.File)); err != nil {
			continue
		}
		d.index[e.Key] = e
		d.size += e.Size
	}
	return nil
}

func (d *Disk) saveIndexLocked() error {
	entries := make([]*diskEntry, 0, len(d.index))
	for _, e := range d.index {
		entries = append(entries, e)
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}

	path := filepath.Join(d.basePath, indexFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func fileName(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:]) + ".zst"
}

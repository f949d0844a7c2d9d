package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
)

// Manager layers the memory cache over the disk cache. Disk hits are
// promoted to memory; writes land in both levels.
type Manager struct {
	memory *Memory
	disk   *Disk
	ttl    time.Duration
}

// Options configures a Manager.
type Options struct {
	MemoryCapacity int64
	DiskCapacity   int64
	DiskPath       string
	Compression    int
	TTL            time.Duration
}

// NewManager opens both cache levels and prunes expired disk entries.
func NewManager(opts Options) (*Manager, error) {
	disk, err := NewDisk(opts.DiskPath, opts.DiskCapacity, opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("open disk cache: %w", err)
	}

	m := &Manager{
		memory: NewMemory(opts.MemoryCapacity),
		disk:   disk,
		ttl:    opts.TTL,
	}
	if opts.TTL > 0 {
		if pruned := disk.Prune(opts.TTL); pruned > 0 {
			log.Debug("pruned expired cache entries", "count", pruned)
		}
	}
	return m, nil
}

// Get checks memory first, then disk. A disk hit is promoted.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.memory.Get(key); ok {
		return data, true
	}
	data, ok := m.disk.Get(key)
	if !ok {
		return nil, false
	}
	if err := m.memory.Put(key, data); err != nil {
		log.Debug("cache promotion skipped", "key", key, "err", err)
	}
	return data, true
}

// Put writes to both levels. A disk failure downgrades to memory-only
// instead of failing the caller.
func (m *Manager) Put(key string, value []byte) {
	if err := m.memory.Put(key, value); err != nil {
		log.Debug("memory cache put skipped", "key", key, "err", err)
	}
	if err := m.disk.Put(key, value); err != nil {
		log.Warn("disk cache put failed", "key", key, "err", err)
	}
}

// PutDiskOnly writes to the disk level, bypassing memory. Used when
// spilling evicted lookahead pages that may never be replayed.
func (m *Manager) PutDiskOnly(key string, value []byte) {
	if err := m.disk.Put(key, value); err != nil {
		log.Warn("disk cache put failed", "key", key, "err", err)
	}
}

// Stats returns per-level counters.
func (m *Manager) Stats() (memory, disk Stats) {
	return m.memory.Stats(), m.disk.Stats()
}

// Close flushes the disk index.
func (m *Manager) Close() error {
	m.memory.Clear()
	return m.disk.Close()
}

// Key derives a cache key from everything that shapes the audio: the
// text, the engine, and the prosody parameters that change the output.
func Key(text, engine string, speed, energy float64, speakerID int) string {
	data := fmt.Sprintf("%s|%s|%.3f|%.3f|%d", text, engine, speed, energy, speakerID)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

package cache

import (
	"bytes"
	"testing"
	"time"
)

func TestMemory_LRUEviction(t *testing.T) {
	c := NewMemory(30)

	if err := c.Put("a", make([]byte, 10)); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := c.Put("b", make([]byte, 10)); err != nil {
		t.Fatalf("put b: %v", err)
	}
	if err := c.Put("c", make([]byte, 10)); err != nil {
		t.Fatalf("put c: %v", err)
	}

	// Touch a so b becomes the eviction candidate.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing before eviction")
	}
	if err := c.Put("d", make([]byte, 10)); err != nil {
		t.Fatalf("put d: %v", err)
	}

	if _, ok := c.Get("b"); ok {
		t.Error("b survived eviction, want LRU out first")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, ok := c.Get(key); !ok {
			t.Errorf("%s evicted unexpectedly", key)
		}
	}
}

func TestMemory_TooLarge(t *testing.T) {
	c := NewMemory(10)
	if err := c.Put("big", make([]byte, 11)); err != ErrItemTooLarge {
		t.Errorf("got %v, want ErrItemTooLarge", err)
	}
}

func TestMemory_UpdateExisting(t *testing.T) {
	c := NewMemory(100)
	if err := c.Put("k", []byte("one")); err != nil {
		t.Fatal(err)
	}
	if err := c.Put("k", []byte("two")); err != nil {
		t.Fatal(err)
	}
	got, ok := c.Get("k")
	if !ok || string(got) != "two" {
		t.Errorf("got %q, %v", got, ok)
	}
	if s := c.Stats(); s.ItemCount != 1 {
		t.Errorf("item count = %d, want 1", s.ItemCount)
	}
}

func TestDisk_RoundTripCompressed(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 1<<20, 3)
	if err != nil {
		t.Fatalf("new disk: %v", err)
	}
	defer d.Close()

	// Compressible payload above the compression threshold.
	value := bytes.Repeat([]byte("voxbook audio frame "), 200)
	if err := d.Put("clip", value); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := d.Get("clip")
	if !ok {
		t.Fatal("entry missing")
	}
	if !bytes.Equal(got, value) {
		t.Error("round trip corrupted the value")
	}
}

func TestDisk_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	d, err := NewDisk(dir, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	value := bytes.Repeat([]byte("persistent"), 300)
	if err := d.Put("kept", value); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}

	d2, err := NewDisk(dir, 1<<20, 3)
	if err != nil {
		t.Fatal(err)
	}
	defer d2.Close()

	got, ok := d2.Get("kept")
	if !ok {
		t.Fatal("entry lost across reopen")
	}
	if !bytes.Equal(got, value) {
		t.Error("value corrupted across reopen")
	}
}

func TestDisk_Prune(t *testing.T) {
	d, err := NewDisk(t.TempDir(), 1<<20, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.Put("old", []byte("data")); err != nil {
		t.Fatal(err)
	}
	// Nothing is older than an hour yet.
	if pruned := d.Prune(time.Hour); pruned != 0 {
		t.Errorf("pruned %d fresh entries", pruned)
	}
	// Everything is older than zero.
	if pruned := d.Prune(0); pruned != 1 {
		t.Errorf("pruned %d, want 1", pruned)
	}
	if _, ok := d.Get("old"); ok {
		t.Error("pruned entry still readable")
	}
}

func TestManager_PromotesDiskHits(t *testing.T) {
	m, err := NewManager(Options{
		MemoryCapacity: 1 << 20,
		DiskCapacity:   1 << 20,
		DiskPath:       t.TempDir(),
		Compression:    3,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	value := bytes.Repeat([]byte("clip"), 500)
	m.Put("k", value)

	// Clear memory so the next read must come from disk.
	m.memory.Clear()

	got, ok := m.Get("k")
	if !ok || !bytes.Equal(got, value) {
		t.Fatal("disk read failed")
	}
	if memStats := m.memory.Stats(); memStats.ItemCount != 1 {
		t.Errorf("disk hit not promoted to memory: %d items", memStats.ItemCount)
	}
}

func TestKey_SensitiveToParams(t *testing.T) {
	base := Key("hello", "piper", 1.0, 1.0, 0)
	if Key("hello", "piper", 1.0, 1.0, 0) != base {
		t.Error("key not deterministic")
	}
	variants := []string{
		Key("hello!", "piper", 1.0, 1.0, 0),
		Key("hello", "mock", 1.0, 1.0, 0),
		Key("hello", "piper", 1.2, 1.0, 0),
		Key("hello", "piper", 1.0, 0.9, 0),
		Key("hello", "piper", 1.0, 1.0, 1),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d collides with base key", i)
		}
	}
}

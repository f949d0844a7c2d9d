// Package audio provides the playback sinks: a production sink backed by
// oto and a mock sink for tests and headless runs.
package audio

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// trackingReader wraps a PCM buffer and counts the bytes the audio
// device has pulled, which is the ground truth for elapsed time.
type trackingReader struct {
	mu     sync.Mutex
	reader *bytes.Reader
	read   int64 // atomic
}

func newTrackingReader(data []byte) *trackingReader {
	return &trackingReader{reader: bytes.NewReader(data)}
}

func (t *trackingReader) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, err := t.reader.Read(p)
	if n > 0 {
		atomic.AddInt64(&t.read, int64(n))
	}
	return n, err
}

func (t *trackingReader) BytesRead() int64 {
	return atomic.LoadInt64(&t.read)
}

func (t *trackingReader) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reader.Len()
}

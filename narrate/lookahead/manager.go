// Package lookahead pre-synthesizes upcoming pages so page turns start
// playing without a synthesis stall. Buffered pages are bounded; stale
// and overflow pages are evicted by index.
package lookahead

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/voxbook/voxbook/narrate"
)

// ProduceFunc synthesizes a whole page into ordered audio buffers. It
// runs on a background goroutine per requested page.
type ProduceFunc func(ctx context.Context, page int) ([]*narrate.AudioBuffer, error)

// Manager tracks which pages are buffered ahead of the one playing.
type Manager struct {
	ahead    int // pages to keep ready past the current one
	maxPages int
	produce  ProduceFunc
	events   *narrate.Broadcaster

	// OnEvict, when set, observes every page leaving the buffer so the
	// caller can release any underlying resources.
	OnEvict func(page int)

	mu            sync.Mutex
	buffers       map[int][]*narrate.AudioBuffer
	requested     map[int]bool
	progressFired map[int]bool
	current       int
	total         int // page count of the work, 0 while unknown
	generation    int
	cancel        context.CancelFunc
	ctx           context.Context
}

// NewManager builds a lookahead manager over a page producer. Events
// published on the broadcaster announce evictions.
func NewManager(cfg narrate.Config, produce ProduceFunc, events *narrate.Broadcaster) *Manager {
	ahead := cfg.BufferAhead
	if ahead < 0 {
		ahead = 0
	}
	maxPages := cfg.MaxBufferedPages
	if maxPages < 1 {
		maxPages = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ahead:         ahead,
		maxPages:      maxPages,
		produce:       produce,
		events:        events,
		buffers:       make(map[int][]*narrate.AudioBuffer),
		requested:     make(map[int]bool),
		progressFired: make(map[int]bool),
		current:       -1,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// OnPlaybackStarted records the page now playing and requests the pages
// ahead of it. totalPages bounds the request window so nothing past the
// end of the work is produced.
func (m *Manager) OnPlaybackStarted(page, totalPages int) {
	m.mu.Lock()
	m.current = page
	m.total = totalPages
	m.evictLocked()
	m.requestAheadLocked()
	m.mu.Unlock()
}

// OnPlaybackProgress requests lookahead once per page when playback
// passes the halfway mark. Earlier calls and repeat calls past the mark
// do nothing.
func (m *Manager) OnPlaybackProgress(page int, fraction float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if page != m.current || fraction < 0.5 || m.progressFired[page] {
		return
	}
	m.progressFired[page] = true
	m.requestAheadLocked()
}

// WatchProgress polls an elapsed-time clock while a page plays and
// reports the playback fraction, so the halfway lookahead trigger fires
// during playback rather than after it. base is the clock reading when
// the page started and total its expected duration. It returns when the
// context ends or the fraction reaches one.
func (m *Manager) WatchProgress(ctx context.Context, page int, base, total time.Duration, elapsed func() time.Duration, every time.Duration) {
	if total <= 0 {
		return
	}
	if every <= 0 {
		every = 200 * time.Millisecond
	}
	tick := time.NewTicker(every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		fraction := float64(elapsed()-base) / float64(total)
		m.OnPlaybackProgress(page, fraction)
		if fraction >= 1 {
			return
		}
	}
}

// OnPageJump moves the window to an arbitrary page. In-flight production
// is cancelled, request bookkeeping for pages far from the new position
// is dropped, and the new window is evicted and re-requested. A cancelled
// producer that finishes anyway still lands if its page is in the window.
func (m *Manager) OnPageJump(page, totalPages int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.current = page
	m.total = totalPages
	for p := range m.requested {
		if p < page-1 || p > page+m.ahead+1 {
			delete(m.requested, p)
		}
	}
	m.evictLocked()
	m.requestAheadLocked()
}

// AddToBuffer stores a synthesized page. Pages no longer inside the
// window are dropped on arrival rather than stored and evicted.
func (m *Manager) AddToBuffer(page int, bufs []*narrate.AudioBuffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requested, page)
	if m.current >= 0 && (page < m.current-1 || page > m.current+m.ahead) {
		log.Debug("discarding stale page synthesis", "page", page, "current", m.current)
		return
	}
	m.buffers[page] = bufs
	m.evictLocked()
}

// GetFromBuffer removes and returns a buffered page.
func (m *Manager) GetFromBuffer(page int) ([]*narrate.AudioBuffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bufs, ok := m.buffers[page]
	if ok {
		delete(m.buffers, page)
	}
	return bufs, ok
}

// IsInBuffer reports whether a page is ready without removing it.
func (m *Manager) IsInBuffer(page int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buffers[page]
	return ok
}

// BufferedPages returns the sorted indexes currently buffered.
func (m *Manager) BufferedPages() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pages := make([]int, 0, len(m.buffers))
	for page := range m.buffers {
		pages = append(pages, page)
	}
	sort.Ints(pages)
	return pages
}

// Reset drops all buffered pages and cancels in-flight production.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.generation++
	m.buffers = make(map[int][]*narrate.AudioBuffer)
	m.requested = make(map[int]bool)
	m.progressFired = make(map[int]bool)
	m.current = -1
}

// Close releases the manager, cancelling any outstanding production.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancel()
}

// requestAheadLocked starts production for each unbuffered page in
// (current, current+ahead], clamped to the last page of the work.
func (m *Manager) requestAheadLocked() {
	if m.produce == nil || m.current < 0 {
		return
	}
	last := m.current + m.ahead
	if m.total > 0 && last > m.total-1 {
		last = m.total - 1
	}
	for page := m.current + 1; page <= last; page++ {
		if _, ok := m.buffers[page]; ok {
			continue
		}
		if m.requested[page] {
			continue
		}
		m.requested[page] = true
		go m.producePage(m.ctx, m.generation, page)
	}
}

func (m *Manager) producePage(ctx context.Context, gen, page int) {
	bufs, err := m.produce(ctx, page)
	if err != nil {
		m.mu.Lock()
		if gen == m.generation {
			delete(m.requested, page)
		}
		m.mu.Unlock()
		if ctx.Err() == nil {
			log.Warn("page pre-synthesis failed", "page", page, "err", err)
		}
		return
	}

	m.mu.Lock()
	stale := gen != m.generation
	m.mu.Unlock()
	if stale {
		return
	}
	m.AddToBuffer(page, bufs)
}

// evictLocked removes pages behind the window, then trims to the size
// bound starting from the lowest index.
func (m *Manager) evictLocked() {
	if m.current >= 0 {
		for page := range m.buffers {
			if page < m.current-1 {
				m.evictPageLocked(page)
			}
		}
	}
	for len(m.buffers) > m.maxPages {
		lowest := -1
		for page := range m.buffers {
			if lowest < 0 || page < lowest {
				lowest = page
			}
		}
		m.evictPageLocked(lowest)
	}
}

func (m *Manager) evictPageLocked(page int) {
	delete(m.buffers, page)
	delete(m.progressFired, page)
	if m.OnEvict != nil {
		m.OnEvict(page)
	}
	if m.events != nil {
		m.events.Publish(narrate.PageBufferClearedMsg{Page: page})
	}
	log.Debug("evicted buffered page", "page", page)
}

package narrate

import (
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Events published by the pipeline and queue engine for the UI sync layer.
// Every event type doubles as a Bubble Tea message.

// ActiveSegmentMsg indicates the segment currently being spoken. Index is
// -1 when nothing is active (playback finished or stopped).
type ActiveSegmentMsg struct {
	Index    int
	Text     string
	Speaker  string
	IsDialog bool
	Duration time.Duration
}

// PlaybackStateMsg indicates a change in run state or progress.
type PlaybackStateMsg struct {
	State     RunState
	Position  time.Duration // elapsed playback time
	Completed int           // segments played so far
	Total     int           // planned segments; 0 while still producing
	Err       error         // set when the run stopped on an error
}

// PageBufferClearedMsg indicates a page's buffered audio was evicted so the
// host can release any underlying resources.
type PageBufferClearedMsg struct {
	Page int
}

// Event is any message published by a narration component.
type Event interface{}

// Broadcaster fans narration events out to subscribers over channels. The
// most recent event is cached and replayed to late subscribers. Publishing
// never blocks: a subscriber that falls behind loses intermediate events,
// keeping the pipeline's consumer stage real-time.
type Broadcaster struct {
	mu     sync.Mutex
	subs   []chan Event
	last   Event
	closed bool
}

// NewBroadcaster creates an event broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe returns a channel of events. The last published event, if any,
// is delivered first.
func (b *Broadcaster) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	if b.closed {
		close(ch)
		return ch
	}
	if b.last != nil {
		ch <- b.last
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish delivers an event to all subscribers without blocking.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.last = ev
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop. The cached last value keeps
			// state-style consumers eventually consistent.
		}
	}
}

// Last returns the most recently published event, or nil.
func (b *Broadcaster) Last() Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// Close closes all subscriber channels. Further publishes are dropped.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// WaitForEvent creates a Bubble Tea command that blocks on the next event
// from ch. Re-issue the command after each message to keep receiving.
func WaitForEvent(ch <-chan Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return ev
	}
}

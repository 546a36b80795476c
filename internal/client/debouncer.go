package client

import (
	"context"
	"sync"
	"time"
)

// DebounceWindow is how long non-write activity on the current file is
// suppressed after the last forwarded event.
const DebounceWindow = 2 * time.Minute

// EventKind tags an EditorEvent.
type EventKind int

const (
	FileOpened EventKind = iota
	ContentChanged
	FileSaved
)

func (k EventKind) String() string {
	switch k {
	case FileOpened:
		return "opened"
	case ContentChanged:
		return "changed"
	case FileSaved:
		return "saved"
	default:
		return "unknown"
	}
}

// EditorEvent is one document notification from the editor. Language is
// known only on open; Line and Character only on change.
type EditorEvent struct {
	Kind      EventKind
	URI       string
	Language  string
	Line      *int64
	Character *int64
}

// IsWrite reports whether the event persisted the file.
func (e EditorEvent) IsWrite() bool {
	return e.Kind == FileSaved
}

func (e EditorEvent) params() CaptureParams {
	p := CaptureParams{
		URI:        e.URI,
		IsWrite:    e.IsWrite(),
		LineNumber: e.Line,
		CursorPos:  e.Character,
	}
	if e.Language != "" {
		lang := e.Language
		p.Language = &lang
	}
	return p
}

// EventSender delivers capture events upstream.
type EventSender interface {
	Capture(ctx context.Context, p CaptureParams) error
}

type currentFile struct {
	uri        string
	lastSentAt time.Time
}

// Debouncer decides which editor events are forwarded. An event is dropped
// when it targets the current file, is not a write and arrives within the
// window of the last forwarded event.
type Debouncer struct {
	sender EventSender
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	current currentFile
}

func NewDebouncer(sender EventSender) *Debouncer {
	return &Debouncer{sender: sender, window: DebounceWindow, now: time.Now}
}

// Observe forwards ev unless it is suppressed. It reports whether the event
// was sent. The current file is stamped before sending, whether or not the
// send then succeeds.
func (d *Debouncer) Observe(ctx context.Context, ev EditorEvent) (bool, error) {
	if !d.admit(ev) {
		return false, nil
	}
	return true, d.sender.Capture(ctx, ev.params())
}

func (d *Debouncer) admit(ev EditorEvent) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if ev.URI == d.current.uri && now.Sub(d.current.lastSentAt) < d.window && !ev.IsWrite() {
		return false
	}
	d.current = currentFile{uri: ev.URI, lastSentAt: now}
	return true
}

// Package audit emits fire-and-forget usage events. The core never blocks
// on the audit sink being available; sink failures are logged and swallowed.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gitid/internal/logging"

	"github.com/google/uuid"
)

// EventType enumerates the audit events the core emits.
type EventType string

const (
	EventSuggestionAccepted EventType = "suggestion_accepted"
	EventSuggestionRejected EventType = "suggestion_rejected"
	EventPolicyBlock        EventType = "policy_block"
	EventPolicyWarn         EventType = "policy_warn"
	EventAutoFixApplied     EventType = "auto_fix_applied"
)

// Event is one audit record. Decisions themselves are never persisted as
// authoritative state; events are the only trace they leave.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	ProjectID string    `json:"project_id,omitempty"`
	AccountID string    `json:"account_id,omitempty"`
	PolicyID  string    `json:"policy_id,omitempty"`
	PatternID string    `json:"pattern_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives audit events. Record must never return an error to the
// resolution path; implementations deal with their own failures.
type Sink interface {
	Record(e Event)
}

// Reader is implemented by sinks that can replay events, used for the
// pattern accuracy window.
type Reader interface {
	Events() []Event
}

// NewEvent stamps an event with an ID and the current time.
func NewEvent(t EventType) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC(),
	}
}

// FileSink appends events as JSON lines to a file. Write failures are
// logged once per call and otherwise ignored.
type FileSink struct {
	mu     sync.Mutex
	path   string
	logger *logging.AppLogger
}

// NewFileSink creates a sink appending to the given file, creating parent
// directories as needed.
func NewFileSink(path string, logger *logging.AppLogger) *FileSink {
	return &FileSink{path: path, logger: logger}
}

// Record appends the event to the log file.
func (s *FileSink) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logFailure(err)
		return
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		s.logFailure(err)
		return
	}
	defer f.Close()

	line, err := json.Marshal(e)
	if err != nil {
		s.logFailure(err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		s.logFailure(err)
	}
}

// Events replays all events from the log file. Unparseable lines are
// skipped; a partial trail is better than none.
func (s *FileSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}

	var events []Event
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events
}

func (s *FileSink) logFailure(err error) {
	if s.logger != nil {
		s.logger.Warn("Audit event dropped", "path", s.path, "error", err)
	}
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}

// MemorySink keeps events in memory. Used by tests and by the accuracy
// window when no file trail is configured.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record stores the event.
func (s *MemorySink) Record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of all recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// NopSink drops everything. Useful when audit is disabled.
type NopSink struct{}

// Record discards the event.
func (NopSink) Record(Event) {}

// Accuracy computes accepted/(accepted+rejected) over the events of the
// sliding window ending now. Returns ok=false when the window holds no
// accept or reject events at all.
func Accuracy(r Reader, projectID string, window time.Duration, now time.Time) (float64, bool) {
	if r == nil {
		return 0, false
	}

	cutoff := now.Add(-window)
	accepted, rejected := 0, 0
	for _, e := range r.Events() {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if projectID != "" && e.ProjectID != projectID {
			continue
		}
		switch e.Type {
		case EventSuggestionAccepted:
			accepted++
		case EventSuggestionRejected:
			rejected++
		}
	}

	total := accepted + rejected
	if total == 0 {
		return 0, false
	}
	return float64(accepted) / float64(total), true
}

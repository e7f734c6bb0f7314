package logbuffer

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log line
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogBuffer keeps the most recent log lines in a fixed ring. It is an
// io.Writer meant to sit behind zerolog next to the regular outputs.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// New creates a buffer holding up to size entries
func New(size int) *LogBuffer {
	if size <= 0 {
		size = 1
	}
	return &LogBuffer{entries: make([]Entry, size)}
}

// Write implements io.Writer. Each call is expected to carry one zerolog
// JSON line; anything else is kept verbatim as the message.
func (b *LogBuffer) Write(p []byte) (int, error) {
	entry := parse(p)

	b.mu.Lock()
	b.entries[b.next] = entry
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()

	return len(p), nil
}

// Entries returns every buffered entry, oldest first
func (b *LogBuffer) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.full {
		return append([]Entry(nil), b.entries[:b.next]...)
	}
	out := make([]Entry, 0, len(b.entries))
	out = append(out, b.entries[b.next:]...)
	return append(out, b.entries[:b.next]...)
}

// Recent returns at most n of the newest entries, oldest first
func (b *LogBuffer) Recent(n int) []Entry {
	entries := b.Entries()
	if n < 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// Len returns the number of buffered entries
func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}

func parse(p []byte) Entry {
	line := strings.TrimRight(string(p), "\r\n")

	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Entry{Timestamp: time.Now(), Level: "info", Message: line}
	}

	entry := Entry{Timestamp: time.Now(), Level: "info"}
	if v, ok := fields["level"].(string); ok {
		entry.Level = v
	}
	if v, ok := fields["message"].(string); ok {
		entry.Message = v
	}
	if v, ok := fields["time"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			entry.Timestamp = ts
		}
	}
	delete(fields, "level")
	delete(fields, "message")
	delete(fields, "time")
	if len(fields) > 0 {
		entry.Fields = fields
	}
	return entry
}

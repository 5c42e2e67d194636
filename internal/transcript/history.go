// Package transcript keeps a bounded in-memory record of the conversation
// as transcript lines arrive. The store is capped, so a long-running
// session never grows without bound; once full, the oldest lines fall off.
package transcript

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Entry is one transcript line with its arrival time.
type Entry struct {
	Role string
	Text string
	At   time.Time
}

// History is a fixed-capacity conversation record. Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	seq     uint64
	entries *lru.Cache[uint64, Entry]
}

// NewHistory creates a History holding at most size lines.
func NewHistory(size int) (*History, error) {
	entries, err := lru.New[uint64, Entry](size)
	if err != nil {
		return nil, err
	}

	return &History{entries: entries}, nil
}

// Append records a transcript line and returns the stored entry.
func (h *History) Append(role, text string) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry := Entry{Role: role, Text: text, At: time.Now()}
	h.entries.Add(h.seq, entry)
	h.seq++
	return entry
}

// Lines returns the retained entries, oldest first.
func (h *History) Lines() []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()

	keys := h.entries.Keys()
	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if entry, ok := h.entries.Peek(k); ok {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.entries.Len()
}

// Purge discards all entries.
func (h *History) Purge() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries.Purge()
}

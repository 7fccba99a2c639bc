package session

import (
	"strings"
	"sync"
)

// OutputLog is an ordered, append-only sequence of display fragments.
type OutputLog struct {
	mu        sync.RWMutex
	fragments []string
	size      int
}

// NewOutputLog creates an empty log.
func NewOutputLog() *OutputLog {
	return &OutputLog{}
}

// Append adds a fragment at the end of the log.
func (l *OutputLog) Append(fragment string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fragments = append(l.fragments, fragment)
	l.size += len(fragment)
}

// Reset discards all content. Slices previously returned by Lines are
// not affected.
func (l *OutputLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.fragments = nil
	l.size = 0
}

// Snapshot returns the concatenation of all fragments in arrival order.
func (l *OutputLog) Snapshot() string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var b strings.Builder
	b.Grow(l.size)
	for _, f := range l.fragments {
		b.WriteString(f)
	}
	return b.String()
}

// Lines returns a copy of the fragments in arrival order.
func (l *OutputLog) Lines() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]string, len(l.fragments))
	copy(result, l.fragments)
	return result
}

// Len returns the number of fragments.
func (l *OutputLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.fragments)
}

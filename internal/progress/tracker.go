// Package progress records the state of every tool in a bulk run.
package progress

import (
	"sort"
	"sync"
	"time"
)

// Status is the state of one tool in a run.
type Status string

const (
	Pending    Status = "pending"
	InProgress Status = "in_progress"
	Success    Status = "success"
	Failed     Status = "failed"
	Skipped    Status = "skipped"
)

// Done reports whether s is a terminal state.
func (s Status) Done() bool {
	return s == Success || s == Failed || s == Skipped
}

// Entry is the current state of one tool.
type Entry struct {
	Tool      string    `json:"tool"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Observer is called after every update. Observers run while the tracker
// lock is held and must not block or call back into the tracker.
type Observer func(Entry)

// Tracker is the one piece of mutable state shared by the engine's workers.
type Tracker struct {
	mu        sync.Mutex
	entries   map[string]Entry
	order     []string
	observers []Observer
	now       func() time.Time
}

// NewTracker creates a tracker with every tool pending.
func NewTracker(tools ...string) *Tracker {
	t := &Tracker{
		entries: make(map[string]Entry, len(tools)),
		now:     time.Now,
	}
	for _, tool := range tools {
		t.add(tool)
	}
	return t
}

func (t *Tracker) add(tool string) {
	if _, ok := t.entries[tool]; ok {
		return
	}
	t.entries[tool] = Entry{Tool: tool, Status: Pending, Timestamp: t.now()}
	t.order = append(t.order, tool)
}

// Subscribe registers an observer.
func (t *Tracker) Subscribe(o Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Update sets the status of tool, registering it if needed, and notifies
// observers.
func (t *Tracker) Update(tool string, status Status, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.add(tool)
	e := Entry{Tool: tool, Status: status, Message: message, Timestamp: t.now()}
	t.entries[tool] = e

	for _, o := range t.observers {
		o(e)
	}
}

// Get returns the entry for tool.
func (t *Tracker) Get(tool string) (Entry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[tool]
	return e, ok
}

// Snapshot returns a copy of all entries in registration order.
func (t *Tracker) Snapshot() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Entry, 0, len(t.order))
	for _, tool := range t.order {
		out = append(out, t.entries[tool])
	}
	return out
}

// Summary counts tools per status.
type Summary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Success    int `json:"success"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
}

// Completed is the number of tools in a terminal state.
func (s Summary) Completed() int {
	return s.Success + s.Failed + s.Skipped
}

// Summary returns the current counts.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{Total: len(t.entries)}
	for _, e := range t.entries {
		switch e.Status {
		case Pending:
			s.Pending++
		case InProgress:
			s.InProgress++
		case Success:
			s.Success++
		case Failed:
			s.Failed++
		case Skipped:
			s.Skipped++
		}
	}
	return s
}

// WithStatus returns the sorted names of tools currently in status.
func (t *Tracker) WithStatus(status Status) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var names []string
	for name, e := range t.entries {
		if e.Status == status {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

package task

import (
	"fmt"
	"sync"
	"time"
)

// Manager owns every Task for the process. A single mutex guards the map;
// every accessor returns defensive copies so callers never see tearing,
// mirroring the plugin state store's mutex+map+copy-out discipline
// elsewhere in this codebase.
type Manager struct {
	mu        sync.Mutex
	tasks     map[string]*Task
	counter   map[Action]int
	retention time.Duration
	subs      map[string][]chan string
}

// NewManager builds an empty Manager. retention is how long a terminal task
// is kept before the garbage-collection sweep removes it (default 30m).
func NewManager(retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &Manager{
		tasks:     map[string]*Task{},
		counter:   map[Action]int{},
		retention: retention,
		subs:      map[string][]chan string{},
	}
}

// Create allocates "{action}_{monotonic-counter}" as an id and seeds a Task
// in the running state.
func (m *Manager) Create(action Action, pluginID string, params Params) *Task {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter[action]++
	id := fmt.Sprintf("%s_%d", action, m.counter[action])
	now := time.Now()
	t := &Task{
		ID:         id,
		Action:     action,
		PluginID:   pluginID,
		Status:     StatusRunning,
		Progress:   0,
		StartTime:  now,
		AccessTime: now,
		Params:     params,
	}
	m.tasks[id] = t
	return t.snapshot()
}

// Update applies field updates to the task identified by id. If Message is
// non-empty and differs from the previous last entry in AllMessages, it is
// appended (and, if keyword-matched, also appended to ErrorMessages).
// Status transitions are monotonic: once terminal, further Update calls may
// still append messages but never change Status or clear EndTime.
type Update struct {
	Message    *string
	Progress   *float64
	Status     *Status
	PluginID   *string
}

// Apply merges u into the task identified by id. It is a no-op if id is
// unknown (the worker may race a GC sweep; callers are expected to hold
// their own task id and not retry blindly).
func (m *Manager) Apply(id string, u Update) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return
	}

	if u.Message != nil && *u.Message != "" {
		last := ""
		if n := len(t.AllMessages); n > 0 {
			last = t.AllMessages[n-1]
		}
		if *u.Message != last {
			t.AllMessages = append(t.AllMessages, *u.Message)
			if isErrorMessage(*u.Message) {
				t.ErrorMessages = append(t.ErrorMessages, *u.Message)
			}
		}
		t.Message = *u.Message
	}
	if u.Progress != nil {
		t.Progress = *u.Progress
	}
	if u.Status != nil && t.Status == StatusRunning {
		t.Status = *u.Status
		if *u.Status != StatusRunning {
			now := time.Now()
			t.EndTime = &now
			t.Progress = 1.0
		}
	}

	m.broadcast(id, t)
}

// broadcast fans the task's latest message out to any ProgressSink
// subscribers (see §12 of SPEC_FULL.md); it must be called with mu held and
// must never block on a slow subscriber, so sends are non-blocking.
func (m *Manager) broadcast(id string, t *Task) {
	if len(t.AllMessages) == 0 {
		return
	}
	msg := t.AllMessages[len(t.AllMessages)-1]
	for _, ch := range m.subs[id] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Subscribe registers a channel that receives every future message appended
// to task id. The caller must drain it; the channel is never closed by the
// Manager (callers unsubscribe by discarding their reference — small,
// bounded buffer, so a stalled subscriber just misses messages, not blocks
// the task worker).
func (m *Manager) Subscribe(id string) <-chan string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan string, 16)
	m.subs[id] = append(m.subs[id], ch)
	return ch
}

// Get returns a snapshot of the task identified by id, refreshing its
// AccessTime, after running the garbage-collection sweep.
func (m *Manager) Get(id string) (*Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcLocked()

	t, ok := m.tasks[id]
	if !ok {
		return nil, false
	}
	t.AccessTime = time.Now()
	return t.snapshot(), true
}

// GetAll returns a snapshot of every task, after running the
// garbage-collection sweep.
func (m *Manager) GetAll() map[string]*Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gcLocked()

	out := make(map[string]*Task, len(m.tasks))
	now := time.Now()
	for id, t := range m.tasks {
		t.AccessTime = now
		out[id] = t.snapshot()
	}
	return out
}

// gcLocked removes terminal tasks whose AccessTime is older than retention.
// Caller must hold mu.
func (m *Manager) gcLocked() {
	cutoff := time.Now().Add(-m.retention)
	for id, t := range m.tasks {
		if t.Status == StatusRunning {
			continue
		}
		if t.AccessTime.Before(cutoff) {
			delete(m.tasks, id)
			delete(m.subs, id)
		}
	}
}

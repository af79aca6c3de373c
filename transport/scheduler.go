package transport

import (
	"sync"
	"time"

	"github.com/puppy86/CS-Node/packet"
)

const (
	initialTimeout = 2 * time.Millisecond
	maxTimeout     = 1024 * time.Millisecond
)

// TaskID identifies a scheduled retransmission task.
type TaskID uint64

// Task is a retransmission job: the fragment list, the byte length of
// the final fragment, the receiver set, whether it's a broadcast, and
// its current backoff state (spec §3 "Task").
type Task struct {
	ID               TaskID
	Fragments        []packet.Handle
	LastFragmentSize int
	Receivers        []Endpoint
	Broadcast        bool

	nextLaunch time.Time
	timeout    time.Duration
}

// release returns every fragment handle to the packet pool's free stack
// (spec §4.1, §5). Called once a task is dropped, whether by Remove or
// Clear, so retransmission buffers are recycled instead of leaking for
// the life of the node.
func (t *Task) release() {
	for _, h := range t.Fragments {
		h.Release()
	}
}

// TaskManager holds the retransmission queue and drives exponential
// backoff (spec §4.4). Spec §9 calls out that the source disables
// locking around the scheduler as a requirement defect; TaskManager
// guards every mutation (and Run itself) with a mutex instead, since
// Run's callback must see a stable task list.
type TaskManager struct {
	mu      sync.Mutex
	nextID  TaskID
	tasks   []*Task
	byID    map[TaskID]int // index into tasks, maintained by Add/Remove
	now     func() time.Time
}

// NewTaskManager creates an empty scheduler. now defaults to time.Now if
// nil; tests may override it for deterministic timing.
func NewTaskManager(now func() time.Time) *TaskManager {
	if now == nil {
		now = time.Now
	}
	return &TaskManager{byID: make(map[TaskID]int), now: now}
}

// Add enqueues a new task with the initial 2ms timeout and returns its id.
func (m *TaskManager) Add(fragments []packet.Handle, lastFragmentSize int, receivers []Endpoint, broadcast bool) TaskID {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := m.nextID
	t := &Task{
		ID:               id,
		Fragments:        fragments,
		LastFragmentSize: lastFragmentSize,
		Receivers:        receivers,
		Broadcast:        broadcast,
		nextLaunch:       m.now(),
		timeout:          initialTimeout,
	}
	m.tasks = append(m.tasks, t)
	m.byID[id] = len(m.tasks) - 1
	return id
}

// Remove drops a task by id. It's a no-op if the id is unknown.
func (m *TaskManager) Remove(id TaskID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(id)
}

func (m *TaskManager) removeLocked(id TaskID) {
	idx, ok := m.byID[id]
	if !ok {
		return
	}
	m.tasks[idx].release()
	last := len(m.tasks) - 1
	m.tasks[idx] = m.tasks[last]
	m.byID[m.tasks[idx].ID] = idx
	m.tasks = m.tasks[:last]
	delete(m.byID, id)
}

// Clear drops every pending task (spec §5: round transitions call
// remove_all_tasks to abandon stale retransmissions), releasing each
// task's fragment handles back to the packet pool's free stack.
func (m *TaskManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		t.release()
	}
	m.tasks = nil
	m.byID = make(map[TaskID]int)
}

// Len returns the number of pending tasks.
func (m *TaskManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Run visits every task whose next_launch has arrived, invokes f with
// it, then advances the task's schedule: next_launch += timeout, and
// timeout *= 4 capped at 1024ms, resetting to the 2ms initial value the
// firing *after* the cap is hit (spec §4.4, testable property in §8).
func (m *TaskManager) Run(f func(*Task)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, t := range m.tasks {
		if t.nextLaunch.After(now) {
			continue
		}
		f(t)
		t.nextLaunch = t.nextLaunch.Add(t.timeout)
		if t.timeout >= maxTimeout {
			t.timeout = initialTimeout
		} else {
			t.timeout *= 4
			if t.timeout > maxTimeout {
				t.timeout = maxTimeout
			}
		}
	}
}

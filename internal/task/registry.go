package task

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// taskIDLength keeps ids short enough to type into a cancel command.
const taskIDLength = 12

// CancelOutcome is the result of a cancellation request against the registry.
type CancelOutcome int

const (
	CancelOK CancelOutcome = iota
	CancelDenied
	CancelNotFound
)

// Registry is the process-wide task map: the single source of truth for
// what is currently running and the target of cancellation lookups.
// Constructed once at process start and passed by reference, never ambient.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Create generates a fresh task id, constructs a Task in Pending and
// inserts it. The cancel function is fired when the owner requests
// cancellation.
func (r *Registry) Create(owner int64, kind SourceKind, cancel context.CancelFunc) *Task {
	t := &Task{
		ID:        newTaskID(),
		Owner:     owner,
		Kind:      kind,
		StartedAt: time.Now(),
		state:     StatePending,
		cancel:    cancel,
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	return t
}

// Get looks a task up by id. Absence means the task never existed, already
// finished, or was evicted.
func (r *Registry) Get(taskID string) (*Task, bool) {
	r.mu.RLock()
	t, ok := r.tasks[taskID]
	r.mu.RUnlock()

	return t, ok
}

// MarkCancelled requests cooperative cancellation of a task. Only the
// owner may cancel; the call returns immediately and the task observes the
// flag at its next suspension point.
func (r *Registry) MarkCancelled(taskID string, requester int64) CancelOutcome {
	t, ok := r.Get(taskID)
	if !ok {
		return CancelNotFound
	}

	if t.Owner != requester {
		return CancelDenied
	}

	t.RequestCancel()

	return CancelOK
}

// Remove evicts a task. Idempotent: removing an absent id is a no-op.
func (r *Registry) Remove(taskID string) {
	r.mu.Lock()
	delete(r.tasks, taskID)
	r.mu.Unlock()
}

// Len returns the number of live tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tasks)
}

// Owns reports whether any live task owns the given staging entry name.
// Staging entries are named after the task id.
func (r *Registry) Owns(name string) bool {
	_, ok := r.Get(name)

	return ok
}

// View is a read-only projection of a task for the status API.
type View struct {
	ID        string     `json:"id"`
	Owner     int64      `json:"owner"`
	Kind      SourceKind `json:"kind"`
	State     State      `json:"state"`
	StartedAt time.Time  `json:"started_at"`
	FileCount int        `json:"file_count"`
}

// Snapshot returns a point-in-time view of every live task.
func (r *Registry) Snapshot() []View {
	r.mu.RLock()
	defer r.mu.RUnlock()

	views := make([]View, 0, len(r.tasks))
	for _, t := range r.tasks {
		views = append(views, View{
			ID:        t.ID,
			Owner:     t.Owner,
			Kind:      t.Kind,
			State:     t.State(),
			StartedAt: t.StartedAt,
			FileCount: len(t.Files()),
		})
	}

	return views
}

func newTaskID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:taskIDLength]
}

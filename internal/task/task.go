package task

import (
	"context"
	"sync"
	"time"
)

// State is the lifecycle position of a task.
type State string

const (
	StatePending         State = "pending"
	StateAcquiring       State = "acquiring"
	StateAcquisitionDone State = "acquisition_done"
	StateRelaying        State = "relaying"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
	StateCancelled       State = "cancelled"
)

// IsTerminal reports whether no further transition can happen.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// SourceKind distinguishes the two acquisition variants.
type SourceKind string

const (
	SourceDirect SourceKind = "direct"
	SourceSwarm  SourceKind = "swarm"
)

// Task is the unit of orchestration: one user request, one acquisition,
// one or more output files, one cancellation signal, one status message.
type Task struct {
	ID        string
	Owner     int64
	Kind      SourceKind
	StartedAt time.Time

	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	files     []string
	cancelled bool
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.state
}

// SetState moves the task to the given state.
func (t *Task) SetState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = s
}

// SetFiles records the acquisition output. Populated at most once, by the
// acquisition stage; relay only reads it afterwards.
func (t *Task) SetFiles(paths []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.files != nil {
		return
	}

	t.files = append([]string(nil), paths...)
}

// Files returns a copy of the recorded file paths.
func (t *Task) Files() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]string(nil), t.files...)
}

// RequestCancel flips the cooperative cancellation flag and fires the
// task's cancel function. The transition is monotonic: once cancelled, a
// task never resurrects.
func (t *Task) RequestCancel() {
	t.mu.Lock()
	already := t.cancelled
	t.cancelled = true
	t.mu.Unlock()

	if !already && t.cancel != nil {
		t.cancel()
	}
}

// CancelRequested reports whether cancellation has been requested.
func (t *Task) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cancelled
}

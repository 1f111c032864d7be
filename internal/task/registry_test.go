package task_test

import (
	"sync"
	"testing"

	"github.com/mirrorleech/mirror_relay/internal/task"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	reg := task.NewRegistry()

	created := reg.Create(42, task.SourceDirect, nil)
	assert.Len(t, created.ID, 12)
	assert.Equal(t, task.StatePending, created.State())

	got, ok := reg.Get(created.ID)
	assert.True(t, ok)
	assert.Same(t, created, got)
}

func TestRegistry_RemoveIsIdempotent(t *testing.T) {
	reg := task.NewRegistry()

	created := reg.Create(42, task.SourceSwarm, nil)

	reg.Remove(created.ID)
	_, ok := reg.Get(created.ID)
	assert.False(t, ok)

	// Second remove must not panic or error.
	reg.Remove(created.ID)
	assert.Zero(t, reg.Len())
}

func TestRegistry_MarkCancelled(t *testing.T) {
	reg := task.NewRegistry()

	cancelFired := false
	created := reg.Create(42, task.SourceDirect, func() { cancelFired = true })

	tests := []struct {
		name      string
		id        string
		requester int64
		want      task.CancelOutcome
	}{
		{"unknown task", "nope", 42, task.CancelNotFound},
		{"wrong owner", created.ID, 7, task.CancelDenied},
		{"owner", created.ID, 42, task.CancelOK},
		{"owner again", created.ID, 42, task.CancelOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.MarkCancelled(tt.id, tt.requester))
		})
	}

	assert.True(t, cancelFired)
	assert.True(t, created.CancelRequested())
}

func TestTask_SetFilesPopulatesOnce(t *testing.T) {
	reg := task.NewRegistry()
	created := reg.Create(1, task.SourceSwarm, nil)

	created.SetFiles([]string{"/tmp/a", "/tmp/b"})
	created.SetFiles([]string{"/tmp/overwrite"})

	assert.Equal(t, []string{"/tmp/a", "/tmp/b"}, created.Files())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := task.NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			created := reg.Create(1, task.SourceDirect, nil)
			_, _ = reg.Get(created.ID)
			reg.Remove(created.ID)
		}()
	}
	wg.Wait()

	assert.Zero(t, reg.Len())
}

func TestState_IsTerminal(t *testing.T) {
	assert.True(t, task.StateCompleted.IsTerminal())
	assert.True(t, task.StateFailed.IsTerminal())
	assert.True(t, task.StateCancelled.IsTerminal())
	assert.False(t, task.StateAcquiring.IsTerminal())
	assert.False(t, task.StateRelaying.IsTerminal())
}

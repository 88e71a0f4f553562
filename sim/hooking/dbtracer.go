package hooking

import (
	"log"
	"sync"

	"github.com/tebeka/atexit"
)

// TracerBackend stores completed tasks.
type TracerBackend interface {
	// Write stores a task.
	Write(t TaskRecord)

	// Flush writes buffered tasks to the storage.
	Flush()
}

// DBTracer collects everything reported about a task and hands the task to a
// backend when it ends.
type DBTracer struct {
	timeTeller   TimeTeller
	backend      TracerBackend
	lock         sync.Mutex
	tracingTasks map[string]TaskRecord
}

// NewDBTracer creates a new DBTracer. The tasks still in flight when the
// program exits are written with the exit time as their end time.
func NewDBTracer(
	timeTeller TimeTeller,
	backend TracerBackend,
) *DBTracer {
	t := &DBTracer{
		timeTeller:   timeTeller,
		backend:      backend,
		tracingTasks: make(map[string]TaskRecord),
	}

	atexit.Register(func() { t.Terminate() })

	return t
}

// Func dispatches the hook to the task methods.
func (t *DBTracer) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		ts := ctx.Item.(TaskStart)
		if ts.Where == "" && ctx.Domain != nil {
			ts.Where = ctx.Domain.Name()
		}

		t.StartTask(ts)
	case HookPosTaskStep:
		t.StepTask(ctx.Item.(TaskStep))
	case HookPosTaskTag:
		t.TagTask(ctx.Item.(TaskTag))
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(TaskEnd))
	}
}

// StartTask marks the start of a task.
func (t *DBTracer) StartTask(ts TaskStart) {
	startingTaskMustBeValid(ts)

	now := t.timeTeller.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	t.tracingTasks[ts.ID] = newTaskRecord(ts, now)
}

func startingTaskMustBeValid(ts TaskStart) {
	switch {
	case ts.ID == "":
		log.Panic("task ID must be set")
	case ts.Kind == "":
		log.Panic("task kind must be set")
	case ts.What == "":
		log.Panic("task what must be set")
	case ts.Where == "":
		log.Panic("task where must be set")
	}
}

// StepTask records a step of a task.
func (t *DBTracer) StepTask(ts TaskStep) {
	now := t.timeTeller.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	task, ok := t.tracingTasks[ts.TaskID]
	if !ok {
		return
	}

	task.Steps = append(task.Steps, StepRecord{
		ID:     ts.StepID,
		Time:   now,
		Kind:   ts.Kind,
		What:   ts.What,
		Detail: ts.Detail,
	})

	t.tracingTasks[ts.TaskID] = task
}

// TagTask records a tag of a task.
func (t *DBTracer) TagTask(tt TaskTag) {
	t.lock.Lock()
	defer t.lock.Unlock()

	task, ok := t.tracingTasks[tt.TaskID]
	if !ok {
		return
	}

	task.Tags = append(task.Tags, TagRecord{What: tt.What, Detail: tt.Detail})

	t.tracingTasks[tt.TaskID] = task
}

// EndTask writes the task to the backend.
func (t *DBTracer) EndTask(te TaskEnd) {
	now := t.timeTeller.Now()

	t.lock.Lock()

	task, ok := t.tracingTasks[te.ID]
	if !ok {
		t.lock.Unlock()
		return
	}

	delete(t.tracingTasks, te.ID)
	t.lock.Unlock()

	task.EndTime = now
	t.backend.Write(task)
}

// Terminate writes the tasks still in flight and flushes the backend.
func (t *DBTracer) Terminate() {
	now := t.timeTeller.Now()

	t.lock.Lock()
	defer t.lock.Unlock()

	for _, task := range t.tracingTasks {
		task.EndTime = now
		t.backend.Write(task)
	}

	t.tracingTasks = make(map[string]TaskRecord)

	t.backend.Flush()
}

package hooking

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
)

// TaskPrinter prints a task.
type TaskPrinter interface {
	Print(task TaskRecord)
}

type writerTaskPrinter struct {
	w io.Writer
}

func (p writerTaskPrinter) Print(task TaskRecord) {
	fmt.Fprintf(p.w, "%s %s-%s@%s\n", task.ID, task.Kind, task.What, task.Where)
}

// NewWriterTaskPrinter creates a TaskPrinter that writes one line per task.
func NewWriterTaskPrinter(w io.Writer) TaskPrinter {
	return writerTaskPrinter{w: w}
}

// BackTraceTracer keeps the tasks that have started but not ended. When a
// translation panics, the tasks still in flight tell where it was.
type BackTraceTracer struct {
	printer      TaskPrinter
	tracingTasks map[string]TaskRecord
	lock         sync.Mutex
}

// NewBackTraceTracer creates a new BackTraceTracer. A nil printer prints to
// the standard error.
func NewBackTraceTracer(printer TaskPrinter) *BackTraceTracer {
	t := &BackTraceTracer{
		printer:      printer,
		tracingTasks: make(map[string]TaskRecord),
	}

	if t.printer == nil {
		t.printer = NewWriterTaskPrinter(os.Stderr)
	}

	return t
}

// Func tracks the start and the end of tasks.
func (t *BackTraceTracer) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		ts := ctx.Item.(TaskStart)
		if ts.Where == "" && ctx.Domain != nil {
			ts.Where = ctx.Domain.Name()
		}

		t.StartTask(ts)
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(TaskEnd))
	}
}

// StartTask marks a task as in flight.
func (t *BackTraceTracer) StartTask(ts TaskStart) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.tracingTasks[ts.ID] = newTaskRecord(ts, 0)
}

// EndTask removes a task from the in-flight set.
func (t *BackTraceTracer) EndTask(te TaskEnd) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.tracingTasks, te.ID)
}

// NumInFlight returns the number of tasks that have not ended.
func (t *BackTraceTracer) NumInFlight() int {
	t.lock.Lock()
	defer t.lock.Unlock()

	return len(t.tracingTasks)
}

// DumpBackTrace prints the task and its in-flight ancestors, innermost first.
func (t *BackTraceTracer) DumpBackTrace(taskID string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	currTask, ok := t.tracingTasks[taskID]

	for ok {
		t.printer.Print(currTask)

		currTask, ok = t.tracingTasks[currTask.ParentID]
	}
}

// DumpInFlight prints every in-flight task ordered by ID.
func (t *BackTraceTracer) DumpInFlight() {
	t.lock.Lock()
	defer t.lock.Unlock()

	ids := make([]string, 0, len(t.tracingTasks))
	for id := range t.tracingTasks {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		t.printer.Print(t.tracingTasks[id])
	}
}

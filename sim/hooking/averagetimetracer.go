package hooking

import (
	"sync"
)

// TotalAvgTimeTracer collects the total and the average time spent in the
// tasks that pass its filter. Overlapping tasks add up.
type TotalAvgTimeTracer struct {
	timeTeller    TimeTeller
	filter        TaskFilter
	lock          sync.Mutex
	inflightTasks map[string]float64
	totalTime     float64
	taskCount     uint64
}

// NewAverageTimeTracer creates a new TotalAvgTimeTracer. A nil filter accepts
// every task.
func NewAverageTimeTracer(
	timeTeller TimeTeller,
	filter TaskFilter,
) *TotalAvgTimeTracer {
	if filter == nil {
		filter = AllTasks
	}

	return &TotalAvgTimeTracer{
		timeTeller:    timeTeller,
		filter:        filter,
		inflightTasks: make(map[string]float64),
	}
}

// Func records the start and the end of a task.
func (t *TotalAvgTimeTracer) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		t.StartTask(ctx.Item.(TaskStart))
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(TaskEnd))
	}
}

// TotalTime returns the time spent in all the completed tasks.
func (t *TotalAvgTimeTracer) TotalTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.totalTime
}

// AverageTime returns the average time of a completed task, or zero if no
// task has completed.
func (t *TotalAvgTimeTracer) AverageTime() float64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	if t.taskCount == 0 {
		return 0
	}

	return t.totalTime / float64(t.taskCount)
}

// TotalCount returns the number of completed tasks.
func (t *TotalAvgTimeTracer) TotalCount() uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.taskCount
}

// StartTask records the task start time.
func (t *TotalAvgTimeTracer) StartTask(ts TaskStart) {
	if !t.filter(ts) {
		return
	}

	now := t.timeTeller.Now()

	t.lock.Lock()
	t.inflightTasks[ts.ID] = now
	t.lock.Unlock()
}

// EndTask records the end of the task.
func (t *TotalAvgTimeTracer) EndTask(te TaskEnd) {
	t.lock.Lock()
	defer t.lock.Unlock()

	start, ok := t.inflightTasks[te.ID]
	if !ok {
		return
	}

	t.totalTime += t.timeTeller.Now() - start
	t.taskCount++

	delete(t.inflightTasks, te.ID)
}

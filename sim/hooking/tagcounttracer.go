package hooking

import (
	"sort"
	"sync"
)

// TagCountTracer counts the tags reported on the tasks that pass its filter.
// Translators tag faulting translations with the fault kind, so the counts
// are a fault histogram.
type TagCountTracer struct {
	filter TaskFilter
	lock   sync.Mutex

	inflightTasks map[string]bool
	tagCount      map[string]uint64
}

// NewTagCountTracer creates a new TagCountTracer. A nil filter accepts every
// task.
func NewTagCountTracer(filter TaskFilter) *TagCountTracer {
	if filter == nil {
		filter = AllTasks
	}

	return &TagCountTracer{
		filter:        filter,
		inflightTasks: make(map[string]bool),
		tagCount:      make(map[string]uint64),
	}
}

// Func dispatches the hook to the task methods.
func (t *TagCountTracer) Func(ctx HookCtx) {
	switch ctx.Pos {
	case HookPosTaskStart:
		t.StartTask(ctx.Item.(TaskStart))
	case HookPosTaskTag:
		t.TagTask(ctx.Item.(TaskTag))
	case HookPosTaskEnd:
		t.EndTask(ctx.Item.(TaskEnd))
	}
}

// StartTask starts tracking a task if it passes the filter.
func (t *TagCountTracer) StartTask(ts TaskStart) {
	if !t.filter(ts) {
		return
	}

	t.lock.Lock()
	defer t.lock.Unlock()

	t.inflightTasks[ts.ID] = true
}

// TagTask counts a tag of a tracked task.
func (t *TagCountTracer) TagTask(tt TaskTag) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.inflightTasks[tt.TaskID] {
		return
	}

	t.tagCount[tt.What]++
}

// EndTask stops tracking a task.
func (t *TagCountTracer) EndTask(te TaskEnd) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.inflightTasks, te.ID)
}

// GetTagNames returns the names of the tags counted so far, sorted.
func (t *TagCountTracer) GetTagNames() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	names := make([]string, 0, len(t.tagCount))
	for name := range t.tagCount {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// GetTagCount returns how many times a tag has been reported.
func (t *TagCountTracer) GetTagCount(tagName string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.tagCount[tagName]
}

// Counts returns a copy of all the tag counts.
func (t *TagCountTracer) Counts() map[string]uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	counts := make(map[string]uint64, len(t.tagCount))
	for name, n := range t.tagCount {
		counts[name] = n
	}

	return counts
}

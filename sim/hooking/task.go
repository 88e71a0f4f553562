package hooking

import "time"

// The hook positions of task reporting.
var (
	HookPosTaskStart = &HookPos{Name: "HookPosTaskStart"}
	HookPosTaskTag   = &HookPos{Name: "HookPosTaskTag"}
	HookPosTaskStep  = &HookPos{Name: "HookPosTaskStep"}
	HookPosTaskEnd   = &HookPos{Name: "HookPosTaskEnd"}
)

// TaskStart is the item of a HookPosTaskStart hook.
type TaskStart struct {
	ID       string
	ParentID string
	Kind     string
	What     string
	Where    string
}

// TaskTag is the item of a HookPosTaskTag hook. A tag marks an outcome of the
// task, such as a fault.
type TaskTag struct {
	TaskID string
	What   string
	Detail string
}

// TaskStep is the item of a HookPosTaskStep hook.
type TaskStep struct {
	TaskID string
	StepID string
	Kind   string
	What   string
	Detail string
}

// TaskEnd is the item of a HookPosTaskEnd hook.
type TaskEnd struct {
	ID string
}

// StepRecord is a step of a recorded task.
type StepRecord struct {
	ID     string  `json:"id"`
	Time   float64 `json:"time"`
	Kind   string  `json:"kind"`
	What   string  `json:"what"`
	Detail string  `json:"detail"`
}

// TagRecord is a tag of a recorded task.
type TagRecord struct {
	What   string `json:"what"`
	Detail string `json:"detail"`
}

// TaskRecord is a task with everything reported about it.
type TaskRecord struct {
	ID        string       `json:"id"`
	ParentID  string       `json:"parent_id"`
	Kind      string       `json:"kind"`
	What      string       `json:"what"`
	Where     string       `json:"where"`
	StartTime float64      `json:"start_time"`
	EndTime   float64      `json:"end_time"`
	Steps     []StepRecord `json:"steps"`
	Tags      []TagRecord  `json:"tags"`
}

func newTaskRecord(ts TaskStart, now float64) TaskRecord {
	return TaskRecord{
		ID:        ts.ID,
		ParentID:  ts.ParentID,
		Kind:      ts.Kind,
		What:      ts.What,
		Where:     ts.Where,
		StartTime: now,
	}
}

// TaskFilter selects the tasks a tracer is interested in.
type TaskFilter func(t TaskStart) bool

// AllTasks is a TaskFilter that accepts every task.
func AllTasks(TaskStart) bool { return true }

// A TimeTeller tells the current time in seconds.
type TimeTeller interface {
	Now() float64
}

// WallClock is a TimeTeller that counts seconds since its creation.
type WallClock struct {
	start time.Time
}

// NewWallClock creates a WallClock that starts at zero.
func NewWallClock() *WallClock {
	return &WallClock{start: time.Now()}
}

// Now returns the seconds elapsed since the clock was created.
func (c *WallClock) Now() float64 {
	return time.Since(c.start).Seconds()
}

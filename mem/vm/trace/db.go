package trace

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/sarchlab/vmsa/datarecording"
	"github.com/sarchlab/vmsa/mem/vm/mmu"
	"github.com/sarchlab/vmsa/sim/hooking"
)

// The tables of a trace database.
const (
	TaskTable        = "trace_tasks"
	StepTable        = "trace_steps"
	TagTable         = "trace_tags"
	TranslationTable = "translations"
)

// TaskEntry is a row of the task table.
type TaskEntry struct {
	ID        string
	ParentID  string
	Kind      string
	What      string
	Location  string
	StartTime float64
	EndTime   float64
}

// StepEntry is a row of the step table.
type StepEntry struct {
	ID     string
	TaskID string
	Time   float64
	What   string
	Detail string
}

// TagEntry is a row of the tag table.
type TagEntry struct {
	ID     string
	TaskID string
	What   string
	Detail string
}

// TranslationEntry is a row of the translation table. Addresses are stored as
// hexadecimal strings since SQLite integers are signed.
type TranslationEntry struct {
	ID       string
	Location string
	AccType  string
	EL       string
	Regime   string
	VA       string
	PASpace  string
	PA       string
	Fault    string
	Level    int
	Stage    int
	Write    bool
}

// MapTables maps the trace tables of a reader to their entry types.
func MapTables(r datarecording.DataReader) {
	r.MapTable(TaskTable, TaskEntry{})
	r.MapTable(StepTable, StepEntry{})
	r.MapTable(TagTable, TagEntry{})
	r.MapTable(TranslationTable, TranslationEntry{})
}

// A dbBackend writes completed tasks to a data recorder.
type dbBackend struct {
	recorder datarecording.DataRecorder
}

// NewDBBackend creates a backend for hooking.DBTracer that stores tasks,
// steps and tags in flat tables.
func NewDBBackend(recorder datarecording.DataRecorder) hooking.TracerBackend {
	recorder.CreateTable(TaskTable, TaskEntry{})
	recorder.CreateTable(StepTable, StepEntry{})
	recorder.CreateTable(TagTable, TagEntry{})

	return &dbBackend{recorder: recorder}
}

func (b *dbBackend) Write(task hooking.TaskRecord) {
	b.recorder.InsertData(TaskTable, TaskEntry{
		ID:        task.ID,
		ParentID:  task.ParentID,
		Kind:      task.Kind,
		What:      task.What,
		Location:  task.Where,
		StartTime: task.StartTime,
		EndTime:   task.EndTime,
	})

	for _, step := range task.Steps {
		b.recorder.InsertData(StepTable, StepEntry{
			ID:     step.ID,
			TaskID: task.ID,
			Time:   step.Time,
			What:   step.What,
			Detail: step.Detail,
		})
	}

	for i, tag := range task.Tags {
		b.recorder.InsertData(TagTable, TagEntry{
			ID:     task.ID + "_tag_" + strconv.Itoa(i),
			TaskID: task.ID,
			What:   tag.What,
			Detail: tag.Detail,
		})
	}
}

func (b *dbBackend) Flush() {
	b.recorder.Flush()
}

// NewDBTracer creates a hook that records every translation task into the
// trace tables of recorder.
func NewDBTracer(
	recorder datarecording.DataRecorder,
	timeTeller hooking.TimeTeller,
) *hooking.DBTracer {
	return hooking.NewDBTracer(timeTeller, NewDBBackend(recorder))
}

// A TranslationRecorder is a hook that stores the outcome of every
// translation in the translation table.
type TranslationRecorder struct {
	lock     sync.Mutex
	recorder datarecording.DataRecorder
	where    map[string]string
}

// NewTranslationRecorder creates a TranslationRecorder.
func NewTranslationRecorder(
	recorder datarecording.DataRecorder,
) *TranslationRecorder {
	recorder.CreateTable(TranslationTable, TranslationEntry{})

	return &TranslationRecorder{
		recorder: recorder,
		where:    make(map[string]string),
	}
}

// Func records the translation when its task ends.
func (r *TranslationRecorder) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case hooking.HookPosTaskStart:
		task := ctx.Item.(hooking.TaskStart)

		r.lock.Lock()
		r.where[task.ID] = task.Where
		r.lock.Unlock()
	case hooking.HookPosTaskEnd:
		task := ctx.Item.(hooking.TaskEnd)

		r.lock.Lock()
		where := r.where[task.ID]
		delete(r.where, task.ID)
		r.lock.Unlock()

		detail, ok := ctx.Detail.(mmu.TranslationDetail)
		if !ok {
			return
		}

		r.recorder.InsertData(TranslationTable, translationEntry(
			task.ID, where, detail))
	}
}

func hex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func translationEntry(
	id, where string,
	detail mmu.TranslationDetail,
) TranslationEntry {
	e := TranslationEntry{
		ID:       id,
		Location: where,
		AccType:  detail.AccDesc.AccType.String(),
		EL:       detail.AccDesc.EL.String(),
		Regime:   detail.Regime.String(),
		VA:       hex(detail.VA),
		Write:    detail.AccDesc.Write,
	}

	result := detail.Result
	if result.IsFault() {
		e.Fault = result.Fault.StatusCode.String()
		e.Level = result.Fault.Level
		e.Stage = 1

		if result.Fault.SecondStage {
			e.Stage = 2
		}

		return e
	}

	e.PASpace = result.PAddress.PASpace.String()
	e.PA = hex(result.PAddress.Address)

	return e
}

// Package trace provides hooks that record the translations performed by a
// Translator, either as log lines or as rows of a trace database.
package trace

import (
	"log"

	"github.com/sarchlab/vmsa/mem/vm/mmu"
	"github.com/sarchlab/vmsa/sim/hooking"
)

// A logTracer prints the translation tasks of a translator.
type logTracer struct {
	timeTeller hooking.TimeTeller
	logger     *log.Logger
}

// NewLogTracer creates a hook that prints every translation task, its steps
// and its fault tags to logger.
func NewLogTracer(
	logger *log.Logger,
	timeTeller hooking.TimeTeller,
) hooking.Hook {
	return &logTracer{timeTeller: timeTeller, logger: logger}
}

func (t *logTracer) Func(ctx hooking.HookCtx) {
	now := t.timeTeller.Now()

	switch ctx.Pos {
	case hooking.HookPosTaskStart:
		t.start(now, ctx)
	case hooking.HookPosTaskStep:
		step := ctx.Item.(hooking.TaskStep)
		t.logger.Printf("step, %.9f, %s, %s, %s\n",
			now, step.TaskID, step.What, step.Detail)
	case hooking.HookPosTaskTag:
		tag := ctx.Item.(hooking.TaskTag)
		t.logger.Printf("tag, %.9f, %s, %s\n", now, tag.TaskID, tag.Detail)
	case hooking.HookPosTaskEnd:
		t.end(now, ctx)
	}
}

func (t *logTracer) start(now float64, ctx hooking.HookCtx) {
	task := ctx.Item.(hooking.TaskStart)

	detail, ok := ctx.Detail.(mmu.TranslationDetail)
	if !ok {
		t.logger.Printf("start, %.9f, %s, %s, %s\n",
			now, task.Where, task.ID, task.What)
		return
	}

	t.logger.Printf("start, %.9f, %s, %s, %s, %s, %s, 0x%x\n",
		now, task.Where, task.ID, task.What,
		detail.AccDesc.EL, detail.Regime, detail.VA)
}

func (t *logTracer) end(now float64, ctx hooking.HookCtx) {
	task := ctx.Item.(hooking.TaskEnd)

	detail, ok := ctx.Detail.(mmu.TranslationDetail)
	switch {
	case !ok:
		t.logger.Printf("end, %.9f, %s\n", now, task.ID)
	case detail.Result.IsFault():
		t.logger.Printf("end, %.9f, %s, fault, %s\n",
			now, task.ID, detail.Result.Fault)
	default:
		t.logger.Printf("end, %.9f, %s, %s\n",
			now, task.ID, detail.Result.PAddress)
	}
}

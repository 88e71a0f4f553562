package hooking

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubTaskPrinter struct {
	printed []TaskRecord
}

func (p *stubTaskPrinter) Print(task TaskRecord) {
	p.printed = append(p.printed, task)
}

var _ = Describe("BackTraceTracer", func() {
	var (
		printer *stubTaskPrinter
		t       *BackTraceTracer
	)

	BeforeEach(func() {
		printer = &stubTaskPrinter{}
		t = NewBackTraceTracer(printer)
	})

	It("should trace a single task", func() {
		t.StartTask(TaskStart{ID: "1"})

		Expect(t.NumInFlight()).To(Equal(1))
		Expect(t.tracingTasks["1"].ParentID).To(Equal(""))
	})

	It("should trace nested tasks", func() {
		t.StartTask(TaskStart{ID: "1"})
		t.StartTask(TaskStart{ID: "2", ParentID: "1"})
		t.StartTask(TaskStart{ID: "3", ParentID: "2"})

		Expect(t.NumInFlight()).To(Equal(3))
		Expect(t.tracingTasks["3"].ParentID).To(Equal("2"))
	})

	It("should forget ended tasks", func() {
		t.StartTask(TaskStart{ID: "1"})
		t.StartTask(TaskStart{ID: "2", ParentID: "1"})
		t.EndTask(TaskEnd{ID: "2"})

		Expect(t.NumInFlight()).To(Equal(1))
		Expect(t.tracingTasks).NotTo(HaveKey("2"))
	})

	It("should dump the back trace innermost first", func() {
		t.StartTask(TaskStart{ID: "1"})
		t.StartTask(TaskStart{ID: "2", ParentID: "1"})
		t.StartTask(TaskStart{ID: "3", ParentID: "2"})

		t.DumpBackTrace("3")

		Expect(printer.printed).To(HaveLen(3))
		Expect(printer.printed[0].ID).To(Equal("3"))
		Expect(printer.printed[1].ID).To(Equal("2"))
		Expect(printer.printed[2].ID).To(Equal("1"))
	})

	It("should stop at a parent that already ended", func() {
		t.StartTask(TaskStart{ID: "1"})
		t.StartTask(TaskStart{ID: "2", ParentID: "1"})
		t.EndTask(TaskEnd{ID: "1"})

		t.DumpBackTrace("2")

		Expect(printer.printed).To(HaveLen(1))
	})

	It("should take the location from the domain", func() {
		domain := &stubDomain{name: "PE0.MMU"}

		t.Func(HookCtx{
			Domain: domain,
			Pos:    HookPosTaskStart,
			Item:   TaskStart{ID: "1", Kind: "translation", What: "READ"},
		})

		t.DumpInFlight()

		Expect(printer.printed).To(HaveLen(1))
		Expect(printer.printed[0].Where).To(Equal("PE0.MMU"))
	})

	It("should print one line per task", func() {
		buf := new(bytes.Buffer)
		p := NewWriterTaskPrinter(buf)

		p.Print(TaskRecord{
			ID: "7", Kind: "translation", What: "READ", Where: "MMU",
		})

		Expect(buf.String()).To(Equal("7 translation-READ@MMU\n"))
	})
})

package hooking

import (
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type stubDomain struct {
	HookableBase
	name string
}

func (d *stubDomain) Name() string { return d.name }

type manualClock struct {
	now float64
}

func (c *manualClock) Now() float64 { return c.now }

type stubBackend struct {
	written []TaskRecord
	flushed int
}

func (b *stubBackend) Write(t TaskRecord) { b.written = append(b.written, t) }
func (b *stubBackend) Flush()             { b.flushed++ }

type countingHook struct {
	calls atomic.Int64
}

func (h *countingHook) Func(HookCtx) { h.calls.Add(1) }

func start(id string) HookCtx {
	return HookCtx{
		Pos: HookPosTaskStart,
		Item: TaskStart{
			ID: id, Kind: "translation", What: "READ", Where: "MMU",
		},
	}
}

func end(id string) HookCtx {
	return HookCtx{Pos: HookPosTaskEnd, Item: TaskEnd{ID: id}}
}

func tag(id, what string) HookCtx {
	return HookCtx{Pos: HookPosTaskTag, Item: TaskTag{TaskID: id, What: what}}
}

var _ = Describe("HookableBase", func() {
	It("should invoke hooks in order", func() {
		d := &stubDomain{name: "d"}
		a := NewTagCountTracer(nil)
		b := NewTagCountTracer(nil)

		d.AcceptHook(a)
		d.AcceptHook(b)

		Expect(d.NumHooks()).To(Equal(2))
		Expect(d.Hooks()).To(Equal([]Hook{a, b}))
	})

	It("should panic on a duplicated hook", func() {
		d := &stubDomain{name: "d"}
		h := NewTagCountTracer(nil)
		d.AcceptHook(h)

		Expect(func() { d.AcceptHook(h) }).To(Panic())
	})

	It("should accept hooks while other goroutines invoke them", func() {
		d := &stubDomain{name: "d"}
		first := &countingHook{}
		d.AcceptHook(first)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				for j := 0; j < 100; j++ {
					d.InvokeHook(end("1"))
				}
			}()
		}

		second := &countingHook{}
		d.AcceptHook(second)
		wg.Wait()

		Expect(first.calls.Load()).To(Equal(int64(800)))
		Expect(second.calls.Load()).To(BeNumerically("<=", 800))
		Expect(d.NumHooks()).To(Equal(2))
	})
})

var _ = Describe("TagCountTracer", func() {
	It("should count tags of filtered tasks only", func() {
		t := NewTagCountTracer(func(ts TaskStart) bool {
			return ts.ID != "skip"
		})

		t.Func(start("1"))
		t.Func(start("skip"))
		t.Func(tag("1", "Permission"))
		t.Func(tag("skip", "Permission"))
		t.Func(end("1"))
		t.Func(tag("1", "Translation"))

		Expect(t.GetTagNames()).To(Equal([]string{"Permission"}))
		Expect(t.GetTagCount("Permission")).To(Equal(uint64(1)))
		Expect(t.Counts()).To(HaveLen(1))
	})
})

var _ = Describe("TotalAvgTimeTracer", func() {
	It("should average completed tasks", func() {
		clock := &manualClock{}
		t := NewAverageTimeTracer(clock, nil)

		Expect(t.AverageTime()).To(BeZero())

		t.Func(start("1"))
		clock.now = 2
		t.Func(start("2"))
		t.Func(end("1"))
		clock.now = 6
		t.Func(end("2"))
		t.Func(end("3"))

		Expect(t.TotalCount()).To(Equal(uint64(2)))
		Expect(t.TotalTime()).To(BeNumerically("~", 6.0))
		Expect(t.AverageTime()).To(BeNumerically("~", 3.0))
	})
})

var _ = Describe("DBTracer", func() {
	var (
		clock   *manualClock
		backend *stubBackend
		t       *DBTracer
	)

	BeforeEach(func() {
		clock = &manualClock{}
		backend = &stubBackend{}
		t = NewDBTracer(clock, backend)
	})

	It("should write a task with its steps and tags when it ends", func() {
		t.Func(start("1"))
		clock.now = 1
		t.Func(HookCtx{
			Pos:  HookPosTaskStep,
			Item: TaskStep{TaskID: "1", StepID: "s", What: "s1-lookup"},
		})
		t.Func(tag("1", "Translation"))
		clock.now = 3
		t.Func(end("1"))

		Expect(backend.written).To(HaveLen(1))

		task := backend.written[0]
		Expect(task.StartTime).To(BeZero())
		Expect(task.EndTime).To(Equal(3.0))
		Expect(task.Steps).To(HaveLen(1))
		Expect(task.Steps[0].Time).To(Equal(1.0))
		Expect(task.Tags).To(ConsistOf(TagRecord{What: "Translation"}))
	})

	It("should panic on a task without a location", func() {
		Expect(func() {
			t.StartTask(TaskStart{ID: "1", Kind: "k", What: "w"})
		}).To(Panic())
	})

	It("should write in-flight tasks on termination", func() {
		t.Func(start("1"))
		clock.now = 5

		t.Terminate()

		Expect(backend.written).To(HaveLen(1))
		Expect(backend.written[0].EndTime).To(Equal(5.0))
		Expect(backend.flushed).To(Equal(1))
	})
})

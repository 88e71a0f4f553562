package monitoring

import (
	"encoding/json"
	"sync"
	"time"
)

// A ProgressBar tracks how many accesses of a batch have been translated.
type ProgressBar struct {
	sync.Mutex

	ID        string
	Name      string
	StartTime time.Time
	Total     uint64

	inFlight uint64
	finished uint64
	faulted  uint64
}

type progressRsp struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Total     uint64    `json:"total"`
	InFlight  uint64    `json:"in_flight"`
	Finished  uint64    `json:"finished"`
	Faulted   uint64    `json:"faulted"`
}

// StartTranslation marks one access as being translated.
func (b *ProgressBar) StartTranslation() {
	b.Lock()
	defer b.Unlock()

	b.inFlight++
}

// FinishTranslation marks an access started with StartTranslation as done.
func (b *ProgressBar) FinishTranslation(faulted bool) {
	b.Lock()
	defer b.Unlock()

	if b.inFlight > 0 {
		b.inFlight--
	}

	b.finished++

	if faulted {
		b.faulted++
	}
}

// Finished returns the number of accesses translated so far and how many of
// them faulted.
func (b *ProgressBar) Finished() (finished, faulted uint64) {
	b.Lock()
	defer b.Unlock()

	return b.finished, b.faulted
}

// MarshalJSON encodes a consistent snapshot of the bar.
func (b *ProgressBar) MarshalJSON() ([]byte, error) {
	b.Lock()
	rsp := progressRsp{
		ID:        b.ID,
		Name:      b.Name,
		StartTime: b.StartTime,
		Total:     b.Total,
		InFlight:  b.inFlight,
		Finished:  b.finished,
		Faulted:   b.faulted,
	}
	b.Unlock()

	return json.Marshal(rsp)
}

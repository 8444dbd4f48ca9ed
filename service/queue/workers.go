package queue

import (
	"fmt"

	"github.com/viant/exq/model/params"
	"github.com/viant/exq/service/worker"
)

// workerID addresses a pool slot. The generation makes ids of removed
// workers stale once the slot is reused.
type workerID struct {
	index      uint32
	generation uint32
}

func (w workerID) String() string {
	return fmt.Sprintf("%dv%d", w.index, w.generation)
}

type workerData struct {
	// idle is nil while the worker is busy with a job.
	idle       *worker.Idle
	handle     worker.Handle
	paramsHash params.Hash
}

type slot struct {
	generation uint32
	occupied   bool
	data       workerData
}

// workers is the pool of running workers. running plus spawnInFlight never
// exceeds capacity.
type workers struct {
	slots         []slot
	free          []uint32
	running       int
	spawnInFlight int
	capacity      int
}

func newWorkers(capacity int) *workers {
	return &workers{capacity: capacity, slots: make([]slot, 0, capacity)}
}

func (w *workers) canAffordOneMore() bool {
	return w.spawnInFlight+w.running < w.capacity
}

func (w *workers) insert(data workerData) workerID {
	var index uint32
	if n := len(w.free); n > 0 {
		index = w.free[n-1]
		w.free = w.free[:n-1]
	} else {
		w.slots = append(w.slots, slot{})
		index = uint32(len(w.slots) - 1)
	}
	s := &w.slots[index]
	s.generation++
	s.occupied = true
	s.data = data
	w.running++
	return workerID{index: index, generation: s.generation}
}

// get returns the worker data; the pointer is valid until the next insert.
func (w *workers) get(id workerID) (*workerData, bool) {
	if int(id.index) >= len(w.slots) {
		return nil, false
	}
	s := &w.slots[id.index]
	if !s.occupied || s.generation != id.generation {
		return nil, false
	}
	return &s.data, true
}

func (w *workers) remove(id workerID) (workerData, bool) {
	data, ok := w.get(id)
	if !ok {
		return workerData{}, false
	}
	ret := *data
	s := &w.slots[id.index]
	s.occupied = false
	s.data = workerData{}
	w.free = append(w.free, id.index)
	w.running--
	return ret, true
}

func (w *workers) each(fn func(id workerID, data *workerData)) {
	for i := range w.slots {
		s := &w.slots[i]
		if !s.occupied {
			continue
		}
		fn(workerID{index: uint32(i), generation: s.generation}, &s.data)
	}
}

// findAvailable returns an idle worker spawned for hash.
func (w *workers) findAvailable(hash params.Hash) (workerID, bool) {
	for i := range w.slots {
		s := &w.slots[i]
		if s.occupied && s.data.idle != nil && s.data.paramsHash == hash {
			return workerID{index: uint32(i), generation: s.generation}, true
		}
	}
	return workerID{}, false
}

// findIdle returns any idle worker.
func (w *workers) findIdle() (workerID, bool) {
	for i := range w.slots {
		s := &w.slots[i]
		if s.occupied && s.data.idle != nil {
			return workerID{index: uint32(i), generation: s.generation}, true
		}
	}
	return workerID{}, false
}

// claimIdle takes the idle token, marking the worker busy.
func (w *workers) claimIdle(id workerID) (*worker.Idle, bool) {
	data, ok := w.get(id)
	if !ok || data.idle == nil {
		return nil, false
	}
	ret := data.idle
	data.idle = nil
	return ret, true
}

func (w *workers) idleCount() int {
	ret := 0
	w.each(func(_ workerID, data *workerData) {
		if data.idle != nil {
			ret++
		}
	})
	return ret
}

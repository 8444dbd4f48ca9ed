package queue

import (
	"github.com/viant/exq/model/priority"
)

// unscheduled holds jobs that are not yet assigned to a worker, one FIFO per
// priority, together with the per-priority dispatch counters of the current
// fairness window.
type unscheduled struct {
	queues   [priority.Count][]*job
	counter  [priority.Count]int
	fairness Fairness
}

func newUnscheduled(fairness Fairness) *unscheduled {
	return &unscheduled{fairness: fairness}
}

func (u *unscheduled) add(j *job, p priority.Priority) {
	u.queues[p] = append(u.queues[p], j)
}

func (u *unscheduled) pending(p priority.Priority) []*job {
	return u.queues[p]
}

func (u *unscheduled) hasPending(p priority.Priority) bool {
	return len(u.queues[p]) > 0
}

func (u *unscheduled) size() int {
	total := 0
	for _, q := range u.queues {
		total += len(q)
	}
	return total
}

func (u *unscheduled) sizes() [priority.Count]int {
	var ret [priority.Count]int
	for i, q := range u.queues {
		ret[i] = len(q)
	}
	return ret
}

// take removes and returns the job at index of the p queue, keeping the
// order of the remaining jobs.
func (u *unscheduled) take(p priority.Priority, index int) *job {
	q := u.queues[p]
	if index < 0 || index >= len(q) {
		return nil
	}
	ret := q[index]
	copy(q[index:], q[index+1:])
	q[len(q)-1] = nil
	u.queues[p] = q[:len(q)-1]
	return ret
}

// selectNextPriority returns the most urgent priority with pending jobs that
// has not used up its share. A priority is only held back while a less
// urgent one has pending jobs to take its place. With nothing pending the
// least urgent priority is returned.
func (u *unscheduled) selectNextPriority() priority.Priority {
	for _, p := range priority.All {
		if !u.hasPending(p) {
			continue
		}
		if !u.isFulfilled(p) || !u.hasPendingAfter(p) {
			return p
		}
	}
	return priority.Backing
}

// hasPendingAfter reports whether any priority less urgent than p has jobs.
func (u *unscheduled) hasPendingAfter(p priority.Priority) bool {
	for q := int(p) + 1; q < priority.Count; q++ {
		if len(u.queues[q]) > 0 {
			return true
		}
	}
	return false
}

// isFulfilled reports whether p has reached its threshold among the
// dispatches of p and every less urgent priority in the current window.
func (u *unscheduled) isFulfilled(p priority.Priority) bool {
	threshold, ok := u.fairness.Thresholds[p]
	if !ok {
		return false
	}
	total := 0
	for q := int(p); q < priority.Count; q++ {
		total += u.counter[q]
	}
	if total == 0 {
		return false
	}
	// count the job about to be dispatched
	return (u.counter[p]+1)*100/total >= threshold
}

// log records a dispatch for p and starts a new window once it is full.
func (u *unscheduled) log(p priority.Priority) {
	u.counter[p]++
	total := 0
	for _, c := range u.counter {
		total += c
	}
	if total >= u.fairness.Window {
		u.resetCounter()
	}
}

func (u *unscheduled) resetCounter() {
	u.counter = [priority.Count]int{}
}

// drain removes every pending job.
func (u *unscheduled) drain() []*job {
	var ret []*job
	for i := range u.queues {
		ret = append(ret, u.queues[i]...)
		u.queues[i] = nil
	}
	return ret
}

package scheduler

import "time"

type task struct {
	id    TaskID
	fn    func()
	at    time.Time
	index int
}

// taskQueue implements heap.Interface ordered by due time.
type taskQueue []*task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	return q[i].at.Before(q[j].at)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil // avoid memory leak
	t.index = -1
	*q = old[0 : n-1]
	return t
}

func (q taskQueue) peek() *task {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

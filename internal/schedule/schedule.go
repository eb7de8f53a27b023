// Package schedule хранит отложенные продолжения, привязанные к монотонным
// часам тика. Очередь не потокобезопасна: ей владеет горутина тика.
package schedule

import (
	"container/heap"
	"time"
)

// TaskID идентифицирует запланированную задачу для отмены
type TaskID uint64

type task struct {
	id    TaskID
	due   time.Duration
	seq   uint64
	fn    func(now time.Duration)
	index int
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}
func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *taskHeap) Push(x interface{}) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// Queue упорядочивает задачи по сроку, при равенстве по порядку постановки.
type Queue struct {
	now   time.Duration
	tasks taskHeap
	byID  map[TaskID]*task
	seq   uint64
}

// New создаёт пустую очередь с часами на нуле
func New() *Queue {
	return &Queue{byID: make(map[TaskID]*task)}
}

// Now возвращает текущее время часов очереди
func (q *Queue) Now() time.Duration { return q.now }

// Len возвращает число ожидающих задач
func (q *Queue) Len() int { return len(q.tasks) }

// After планирует fn через delay от текущего момента. Отрицательная задержка
// считается нулевой: задача выполнится на ближайшем Advance.
func (q *Queue) After(delay time.Duration, fn func(now time.Duration)) TaskID {
	if delay < 0 {
		delay = 0
	}
	q.seq++
	t := &task{id: TaskID(q.seq), due: q.now + delay, seq: q.seq, fn: fn}
	heap.Push(&q.tasks, t)
	q.byID[t.id] = t
	return t.id
}

// Cancel снимает задачу; false если она уже выполнена или не существует
func (q *Queue) Cancel(id TaskID) bool {
	t, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.tasks, t.index)
	delete(q.byID, id)
	return true
}

// Advance сдвигает часы на dt и выполняет все созревшие задачи. Задачи,
// поставленные изнутри продолжения со сроком не позже нового момента,
// выполняются в этом же вызове. Возвращает число выполненных задач.
func (q *Queue) Advance(dt time.Duration) int {
	if dt > 0 {
		q.now += dt
	}
	ran := 0
	for len(q.tasks) > 0 && q.tasks[0].due <= q.now {
		t := heap.Pop(&q.tasks).(*task)
		delete(q.byID, t.id)
		t.fn(q.now)
		ran++
	}
	return ran
}

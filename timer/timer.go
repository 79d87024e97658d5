// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager runs callbacks after a delay, optionally repeating. Due tasks
// are checked every tick, so precision is one tick.
type TimerManager struct {
	queue    TimerQueue
	mutex    sync.Mutex
	nextId   int64
	tick     time.Duration
	done     chan struct{}
	stopOnce sync.Once
}

func NewTimerManager(tick time.Duration) *TimerManager {
	if tick <= 0 {
		tick = 100 * time.Millisecond
	}
	manager := &TimerManager{
		queue:  make(TimerQueue, 0),
		nextId: 1,
		tick:   tick,
		done:   make(chan struct{}),
	}
	heap.Init(&manager.queue)
	go manager.process()
	return manager
}

func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  time.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return task.Id
}

// RemoveTimer cancels a pending task and reports whether it was still queued.
func (m *TimerManager) RemoveTimer(timerId int64) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.Id == timerId {
			heap.Remove(&m.queue, i)
			return true
		}
	}
	return false
}

// Pending returns the number of queued tasks.
func (m *TimerManager) Pending() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// Stop 停止定时器，未触发的任务被丢弃
func (m *TimerManager) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *TimerManager) process() {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, task := range m.due(time.Now()) {
				go task.Callback()
			}
		case <-m.done:
			return
		}
	}
}

func (m *TimerManager) due(now time.Time) []*TimerTask {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var ready []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}

		heap.Pop(&m.queue)
		ready = append(ready, task)

		if task.Interval > 0 {
			task.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, task)
		}
	}
	return ready
}

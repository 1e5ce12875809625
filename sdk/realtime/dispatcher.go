package realtime

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/mbeoliero/kit/log"
)

// dispatcher runs jobs one at a time on a single goroutine. The queue is
// unbounded so a job may post further jobs without blocking.
type dispatcher struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
	exited chan struct{}
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go d.run()
	return d
}

// post queues fn. It reports false once the dispatcher is closed.
func (d *dispatcher) post(fn func()) bool {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return false
	}
	d.queue = append(d.queue, fn)
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return true
}

func (d *dispatcher) run() {
	defer close(d.exited)
	for {
		select {
		case <-d.wake:
			d.drain()
		case <-d.done:
			d.drain()
			return
		}
	}
}

func (d *dispatcher) drain() {
	for {
		d.mu.Lock()
		jobs := d.queue
		d.queue = nil
		d.mu.Unlock()
		if len(jobs) == 0 {
			return
		}
		for _, job := range jobs {
			d.exec(job)
		}
	}
}

func (d *dispatcher) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			log.CtxError(context.Background(), "realtime handler panic: %v, stack=%s", r, debug.Stack())
		}
	}()
	job()
}

// close stops the dispatcher after the jobs already queued have run
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()
	close(d.done)
}

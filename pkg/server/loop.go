package server

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// eventLoop runs queued tasks serially on a single goroutine. Sessions are
// pinned to one loop, so session-local state touched only from loop tasks
// needs no locking.
//
// The queue is unbounded: Execute never blocks the caller, which keeps
// cross-loop scheduling (broadcasts, gathers) free of lock-step deadlocks.
type eventLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool
	done    chan struct{}
}

func newEventLoop() *eventLoop {
	l := &eventLoop{done: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *eventLoop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		task()
	}
}

// Execute enqueues task for serial execution. Tasks submitted after Stop are
// dropped.
func (l *eventLoop) Execute(task func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()
	l.cond.Signal()
}

// Stop drains remaining tasks and terminates the loop goroutine.
func (l *eventLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.cond.Signal()
	<-l.done
}

// loopGroup is a fixed pool of event loops; connections are assigned
// round-robin, mirroring a multi-threaded event loop group.
type loopGroup struct {
	loops []*eventLoop
	next  atomic.Uint32
}

func newLoopGroup(n int) *loopGroup {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	g := &loopGroup{loops: make([]*eventLoop, n)}
	for i := range g.loops {
		g.loops[i] = newEventLoop()
	}
	return g
}

// Next returns the loop for the next accepted connection.
func (g *loopGroup) Next() *eventLoop {
	n := g.next.Add(1) - 1
	return g.loops[int(n)%len(g.loops)]
}

// Shutdown stops every loop after its queued tasks have run.
func (g *loopGroup) Shutdown() {
	for _, l := range g.loops {
		l.Stop()
	}
}

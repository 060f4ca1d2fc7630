package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"pkt.systems/pslog"

	"github.com/nickyhof/QueryGate/query"
)

const (
	DefaultThreads   = 8
	DefaultQueueSize = 100
)

var (
	ErrQueueFull  = errors.New("task queue full")
	ErrPoolClosed = errors.New("task queue closed")
)

// FullPolicy decides what Submit does when the queue is full.
type FullPolicy int

const (
	Block FullPolicy = iota
	Reject
)

func ParseFullPolicy(s string) (FullPolicy, error) {
	switch s {
	case "block":
		return Block, nil
	case "reject":
		return Reject, nil
	}
	return Block, fmt.Errorf("unknown queue policy %q: use block or reject", s)
}

// Task is an accepted connection waiting for a worker.
type Task struct {
	Conn     net.Conn
	Accepted time.Time
}

// Handler serves one task with the slot of the worker that received it.
type Handler func(slot *query.Slot, task Task)

// Pool is a fixed set of workers fed from a bounded queue. A task is owned
// by exactly one worker once received.
type Pool struct {
	tasks   chan Task
	done    chan struct{}
	workers int
	full    FullPolicy
	logger  pslog.Logger

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
}

func NewPool(workers, queueSize int, full FullPolicy, logger pslog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultThreads
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	return &Pool{
		tasks:   make(chan Task, queueSize),
		done:    make(chan struct{}),
		workers: workers,
		full:    full,
		logger:  logger.With("sys", "server.pool"),
	}
}

// Start launches the workers. Each worker owns one slot for its lifetime.
func (p *Pool) Start(handle Handler) {
	for i := range p.workers {
		p.wg.Add(1)
		go p.work(query.NewSlot(i), handle)
	}
}

func (p *Pool) work(slot *query.Slot, handle Handler) {
	defer p.wg.Done()
	slot.Server = true
	for task := range p.tasks {
		p.run(slot, handle, task)
	}
}

// run serves one task. A panic closes that connection only.
func (p *Pool) run(slot *query.Slot, handle Handler, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("server.worker.panic", "slot", slot.Index, "panic", fmt.Sprint(r))
			task.Conn.Close()
		}
	}()
	handle(slot, task)
}

// Submit queues a task. With the Block policy it waits for room until ctx
// is done or the pool closes; with Reject it fails at once with
// ErrQueueFull.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	if p.full == Reject {
		select {
		case p.tasks <- task:
			return nil
		default:
			return ErrQueueFull
		}
	}
	select {
	case p.tasks <- task:
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len is the number of queued tasks.
func (p *Pool) Len() int {
	return len(p.tasks)
}

func (p *Pool) Cap() int {
	return cap(p.tasks)
}

// Close stops accepting tasks, lets the workers drain the queue and waits
// for them.
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
	})
	p.wg.Wait()
}

// SlotPool hands out slots to per-connection goroutines.
type SlotPool struct {
	slots chan *query.Slot
}

func NewSlotPool(n int) *SlotPool {
	if n <= 0 {
		n = DefaultThreads
	}
	sp := &SlotPool{slots: make(chan *query.Slot, n)}
	for i := range n {
		slot := query.NewSlot(i)
		slot.Server = true
		sp.slots <- slot
	}
	return sp
}

// TryAcquire returns a free slot, or false when all are in use.
func (sp *SlotPool) TryAcquire() (*query.Slot, bool) {
	select {
	case slot := <-sp.slots:
		return slot, true
	default:
		return nil, false
	}
}

func (sp *SlotPool) Release(slot *query.Slot) {
	sp.slots <- slot
}

// Free is the number of idle slots.
func (sp *SlotPool) Free() int {
	return len(sp.slots)
}

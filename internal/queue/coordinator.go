package queue

import (
	"context"
	"sync"
	"time"
)

const (
	defaultMailboxSize   = 16
	defaultSubmitTimeout = 5 * time.Second
)

type task struct {
	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

type mailbox struct {
	tasks chan task
}

// Coordinator serializes mutations per barber id: one worker goroutine and
// one bounded mailbox per barber, so read-modify-write cycles for the same
// barber never interleave while distinct barbers proceed concurrently.
type Coordinator struct {
	mu      sync.Mutex
	boxes   map[string]*mailbox
	quit    chan struct{}
	wg      sync.WaitGroup
	mailbox int
	timeout time.Duration
}

type CoordinatorOptions struct {
	MailboxSize   int
	SubmitTimeout time.Duration
}

func NewCoordinator(options CoordinatorOptions) *Coordinator {
	size := options.MailboxSize
	if size <= 0 {
		size = defaultMailboxSize
	}
	timeout := options.SubmitTimeout
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	return &Coordinator{
		boxes:   make(map[string]*mailbox),
		quit:    make(chan struct{}),
		mailbox: size,
		timeout: timeout,
	}
}

// Submit queues fn on the barber's worker and waits for it to finish. A full
// mailbox that does not drain within the submit timeout yields
// ErrCoordinatorBusy. Once fn is running, caller cancellation does not roll
// it back; the worker always runs a task it has accepted.
func (c *Coordinator) Submit(ctx context.Context, barberID string, fn func(context.Context) error) error {
	box, err := c.box(barberID)
	if err != nil {
		return err
	}

	t := task{ctx: ctx, fn: fn, done: make(chan error, 1)}
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case box.tasks <- t:
	case <-timer.C:
		return ErrCoordinatorBusy
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		return ErrCoordinatorBusy
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.quit:
		// The worker may have finished the task just before quitting.
		select {
		case err := <-t.done:
			return err
		default:
			return ErrCoordinatorBusy
		}
	}
}

func (c *Coordinator) box(barberID string) (*mailbox, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.quit:
		return nil, ErrCoordinatorBusy
	default:
	}
	box, ok := c.boxes[barberID]
	if !ok {
		box = &mailbox{tasks: make(chan task, c.mailbox)}
		c.boxes[barberID] = box
		c.wg.Add(1)
		go c.run(box)
	}
	return box, nil
}

func (c *Coordinator) run(box *mailbox) {
	defer c.wg.Done()
	for {
		select {
		case t := <-box.tasks:
			if err := t.ctx.Err(); err != nil {
				t.done <- err
				continue
			}
			t.done <- t.fn(t.ctx)
		case <-c.quit:
			c.drain(box)
			return
		}
	}
}

// drain fails every task still sitting in the mailbox so its submitter is
// released.
func (c *Coordinator) drain(box *mailbox) {
	for {
		select {
		case t := <-box.tasks:
			t.done <- ErrCoordinatorBusy
		default:
			return
		}
	}
}

// Close stops accepting work and waits for every worker to exit. Queued
// tasks that have not started fail with ErrCoordinatorBusy.
func (c *Coordinator) Close() {
	c.mu.Lock()
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

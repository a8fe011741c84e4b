package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoordinatorSerializesPerBarber(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{})
	defer c.Close()

	var inFlight int32
	var maxInFlight int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := c.Submit(context.Background(), "barber-1", func(ctx context.Context) error {
				current := atomic.AddInt32(&inFlight, 1)
				for {
					observed := atomic.LoadInt32(&maxInFlight)
					if current <= observed || atomic.CompareAndSwapInt32(&maxInFlight, observed, current) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestCoordinatorDistinctBarbersRunConcurrently(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{})
	defer c.Close()

	barrier := make(chan struct{})
	var wg sync.WaitGroup
	var both int32

	for _, barberID := range []string{"barber-a", "barber-b"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			err := c.Submit(context.Background(), id, func(ctx context.Context) error {
				if atomic.AddInt32(&both, 1) == 2 {
					close(barrier)
				}
				select {
				case <-barrier:
					return nil
				case <-time.After(2 * time.Second):
					return errors.New("peer never entered its slot")
				}
			})
			require.NoError(t, err)
		}(barberID)
	}
	wg.Wait()
}

func TestCoordinatorBusyWhenMailboxFull(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{MailboxSize: 1, SubmitTimeout: 50 * time.Millisecond})
	defer c.Close()

	release := make(chan struct{})
	running := make(chan struct{})

	go func() {
		_ = c.Submit(context.Background(), "barber-1", func(ctx context.Context) error {
			close(running)
			<-release
			return nil
		})
	}()
	<-running

	// Fill the single mailbox slot.
	go func() {
		_ = c.Submit(context.Background(), "barber-1", func(ctx context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)

	err := c.Submit(context.Background(), "barber-1", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCoordinatorBusy)

	close(release)
}

func TestCoordinatorPropagatesTaskError(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{})
	defer c.Close()

	want := errors.New("boom")
	err := c.Submit(context.Background(), "barber-1", func(ctx context.Context) error {
		return want
	})
	assert.ErrorIs(t, err, want)
}

func TestCoordinatorHonorsCanceledContext(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{})
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Submit(ctx, "barber-1", func(ctx context.Context) error {
		t.Fatal("task ran despite canceled context")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCoordinatorCloseReleasesQueuedSubmit(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{MailboxSize: 1})

	release := make(chan struct{})
	running := make(chan struct{})
	go func() {
		_ = c.Submit(context.Background(), "barber-1", func(ctx context.Context) error {
			close(running)
			<-release
			return nil
		})
	}()
	<-running

	// Queue a second task behind the blocked worker, then shut down while
	// it is still waiting in the mailbox.
	queued := make(chan error, 1)
	go func() {
		queued <- c.Submit(context.Background(), "barber-1", func(ctx context.Context) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		c.Close()
		close(closed)
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	select {
	case err := <-queued:
		if err != nil {
			assert.ErrorIs(t, err, ErrCoordinatorBusy)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued submit never returned after close")
	}
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("close never returned")
	}
}

func TestCoordinatorClosedRejectsSubmit(t *testing.T) {
	c := NewCoordinator(CoordinatorOptions{})
	c.Close()

	err := c.Submit(context.Background(), "barber-1", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCoordinatorBusy)
}

// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package stream provides a bounded channel that carries query results from
// producer goroutines to a consumer.
//
// Producers block in Put while the channel is full and the consumer blocks
// in Take while it is empty. Cancel wakes every blocked party at once and
// makes all later calls fail with ErrCancelled.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrCancelled is returned by Put and Take once the channel has been
	// cancelled.
	ErrCancelled = errors.New("stream cancelled")
	// ErrClosed is returned when a producer is added or a value is put after
	// the producers have finished.
	ErrClosed = errors.New("stream closed")
)

// Options configure a Channel.
type Options struct {
	// Logger receives producer failures. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Metrics is the set the channel counters are registered in. If nil,
	// the default set of the metrics package is used.
	Metrics *metrics.Set
}

// Channel is a bounded FIFO queue of values of type T fed by producer
// goroutines.
type Channel[T any] struct {
	id     uuid.UUID
	logger *slog.Logger

	items chan T

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	mu     sync.Mutex
	sealed bool

	cancelled  chan struct{}
	cancelOnce sync.Once

	// finished is closed once every producer has returned. err holds the
	// first producer error and is written before finished is closed.
	finished chan struct{}
	err      error

	done     chan struct{}
	doneOnce sync.Once

	produced *metrics.Counter
	consumed *metrics.Counter
	cancels  *metrics.Counter
	failures *metrics.Counter
}

// New returns a channel holding at most capacity values. Producers run with
// a context derived from ctx that is cancelled by Cancel.
func New[T any](ctx context.Context, capacity int, opts Options) (*Channel[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("stream capacity must be at least 1, got %d", capacity)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	counter := metrics.GetOrCreateCounter
	if opts.Metrics != nil {
		counter = opts.Metrics.GetOrCreateCounter
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	c := &Channel[T]{
		id:        uuid.New(),
		items:     make(chan T, capacity),
		ctx:       ctx,
		cancel:    cancel,
		group:     group,
		cancelled: make(chan struct{}),
		finished:  make(chan struct{}),
		done:      make(chan struct{}),
		produced:  counter("sqlcpo_stream_rows_produced_total"),
		consumed:  counter("sqlcpo_stream_rows_consumed_total"),
		cancels:   counter("sqlcpo_stream_cancelled_total"),
		failures:  counter("sqlcpo_stream_producer_failures_total"),
	}
	c.logger = logger.With("stream", c.id.String())
	return c, nil
}

// ID returns the identifier of the channel used in log records.
func (c *Channel[T]) ID() uuid.UUID {
	return c.id
}

// Go starts a producer. The producer gets the channel context and a put
// function; it should stop when either returns an error. A producer error is
// logged and becomes the terminal error of the channel.
func (c *Channel[T]) Go(producer func(ctx context.Context, put func(T) error) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isCancelled() {
		return ErrCancelled
	}
	if c.sealed {
		return ErrClosed
	}
	c.group.Go(func() error {
		err := producer(c.ctx, func(v T) error { return c.Put(c.ctx, v) })
		// Siblings of a failed producer stop with the cancelled group context.
		stopped := errors.Is(err, context.Canceled) && c.ctx.Err() != nil
		if err != nil && !c.isCancelled() && !stopped {
			c.failures.Inc()
			c.logger.Error("stream producer failed", "error", err)
		}
		return err
	})
	return nil
}

// Seal marks the end of the producer list. Once the registered producers
// have returned, the channel drains and then reports completion.
func (c *Channel[T]) Seal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sealed {
		return
	}
	c.sealed = true
	go func() {
		err := c.group.Wait()
		c.cancel()
		if err != nil && !c.isCancelled() {
			c.err = err
		}
		close(c.finished)
		if c.isCancelled() || len(c.items) == 0 {
			c.markDone()
		}
	}()
}

// Put adds v to the channel, blocking while it is full.
func (c *Channel[T]) Put(ctx context.Context, v T) error {
	// A cancelled channel also finishes, cancellation wins.
	if c.isCancelled() {
		return ErrCancelled
	}
	select {
	case <-c.finished:
		return ErrClosed
	default:
	}
	select {
	case c.items <- v:
		c.produced.Inc()
		return nil
	case <-c.cancelled:
		return ErrCancelled
	case <-ctx.Done():
		if c.isCancelled() {
			return ErrCancelled
		}
		return ctx.Err()
	}
}

// Take removes the oldest value, blocking while the channel is empty. Once
// the producers have finished and the channel is drained it returns the
// producer error, or io.EOF if they all succeeded.
func (c *Channel[T]) Take(ctx context.Context) (T, error) {
	var zero T
	if c.isCancelled() {
		return zero, ErrCancelled
	}
	select {
	case v := <-c.items:
		c.took()
		return v, nil
	case <-c.cancelled:
		return zero, ErrCancelled
	case <-c.finished:
		if c.isCancelled() {
			return zero, ErrCancelled
		}
		// Values put before the producers finished are still queued.
		select {
		case v := <-c.items:
			c.took()
			return v, nil
		default:
		}
		c.markDone()
		if c.err != nil {
			return zero, c.err
		}
		return zero, io.EOF
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (c *Channel[T]) took() {
	c.consumed.Inc()
	select {
	case <-c.finished:
		if len(c.items) == 0 {
			c.markDone()
		}
	default:
	}
}

// Cancel stops the channel. Blocked producers and consumers wake up with
// ErrCancelled and the producer context is cancelled. Cancel may be called
// more than once.
func (c *Channel[T]) Cancel() {
	c.cancelOnce.Do(func() {
		c.cancels.Inc()
		close(c.cancelled)
		c.cancel()
		c.mu.Lock()
		sealed := c.sealed
		c.mu.Unlock()
		if !sealed {
			// Nothing else will wait for the producers.
			c.Seal()
		}
	})
}

func (c *Channel[T]) isCancelled() bool {
	select {
	case <-c.cancelled:
		return true
	default:
		return false
	}
}

func (c *Channel[T]) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

// Size returns the number of queued values.
func (c *Channel[T]) Size() int {
	return len(c.items)
}

// Cap returns the capacity of the channel.
func (c *Channel[T]) Cap() int {
	return cap(c.items)
}

// Done returns a channel that is closed once the producers have finished
// and the queue has been drained, or once the cancelled producers have
// returned.
func (c *Channel[T]) Done() <-chan struct{} {
	return c.done
}

// Err returns the terminal error of the channel. It is nil while producers
// are running and after they all succeeded, ErrCancelled after Cancel, and
// the first producer error otherwise.
func (c *Channel[T]) Err() error {
	if c.isCancelled() {
		return ErrCancelled
	}
	select {
	case <-c.finished:
		return c.err
	default:
		return nil
	}
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/metric"
	"github.com/Alturino/storefront/internal/constants"
)

type SyncState string

const (
	SyncStateSynced  SyncState = "synced"
	SyncStatePending SyncState = "pending"
	SyncStateFailed  SyncState = "failed"
)

type SyncPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MergeGuestCart  bool
}

func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		MaxRetries:      5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
	}
}

var errSuperseded = errors.New("snapshot superseded by a newer one")

type writeFunc func(c context.Context, record Record) error

// writer is the remote persistence queue. It only ever keeps the newest
// snapshot, writes one snapshot at a time in mutation order and retries a
// failing write with exponential backoff until a newer snapshot replaces it
// or the retries run out.
type writer struct {
	write  writeFunc
	policy SyncPolicy
	logger zerolog.Logger

	mu       sync.Mutex
	pending  *Record
	inflight bool
	failed   bool
	closed   bool
	lastErr  error
	idle     chan struct{}
	onChange func()

	wake   chan struct{}
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

func newWriter(c context.Context, write writeFunc, policy SyncPolicy, onChange func()) *writer {
	ctx, cancel := context.WithCancel(context.WithoutCancel(c))
	idle := make(chan struct{})
	close(idle)
	w := &writer{
		write:    write,
		policy:   policy,
		logger:   zerolog.Ctx(c).With().Str(constants.KEY_TAG, "engine writer").Logger(),
		idle:     idle,
		onChange: onChange,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go w.run()
	return w
}

func (w *writer) enqueue(record Record) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn().Int(constants.KEY_CART_ITEMS_COUNT, len(record.Items)).Msg("dropping snapshot on closed writer")
		return
	}
	if w.pending == nil && !w.inflight {
		w.idle = make(chan struct{})
	}
	w.pending = &record
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// busy reports whether a snapshot is waiting or being written.
func (w *writer) busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil || w.inflight
}

func (w *writer) state() SyncState {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.pending != nil || w.inflight:
		return SyncStatePending
	case w.failed:
		return SyncStateFailed
	default:
		return SyncStateSynced
	}
}

func (w *writer) err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *writer) flush(c context.Context) error {
	w.mu.Lock()
	idle := w.idle
	w.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-c.Done():
		return c.Err()
	}
}

// close lets the queue drain until c is done, then stops the worker.
func (w *writer) close(c context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	err := w.flush(c)
	w.cancel()
	<-w.done
	if err != nil {
		return fmt.Errorf("failed draining cart writes with error=%w", err)
	}
	return nil
}

// markIdle must be called with mu held.
func (w *writer) markIdle() {
	select {
	case <-w.idle:
	default:
		close(w.idle)
	}
}

func (w *writer) run() {
	defer close(w.done)
	defer func() {
		w.mu.Lock()
		w.markIdle()
		w.mu.Unlock()
	}()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.wake:
		}

		for {
			w.mu.Lock()
			if w.pending == nil {
				w.inflight = false
				w.markIdle()
				w.mu.Unlock()
				w.notify()
				break
			}
			record := *w.pending
			w.pending = nil
			w.inflight = true
			w.mu.Unlock()
			w.notify()

			err := w.writeWithRetry(record)

			w.mu.Lock()
			switch {
			case errors.Is(err, errSuperseded):
			case err != nil:
				w.failed = true
				w.lastErr = err
			default:
				w.failed = false
				w.lastErr = nil
			}
			w.mu.Unlock()

			if w.ctx.Err() != nil {
				w.mu.Lock()
				w.inflight = false
				w.pending = nil
				w.mu.Unlock()
				return
			}
		}
	}
}

func (w *writer) notify() {
	if w.onChange != nil {
		w.onChange()
	}
}

func (w *writer) superseded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != nil
}

func (w *writer) writeWithRetry(record Record) error {
	logger := w.logger.With().
		Str(constants.KEY_PROCESS, "writing cart snapshot").
		Int(constants.KEY_CART_ITEMS_COUNT, len(record.Items)).
		Logger()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = w.policy.InitialInterval
	exp.MaxInterval = w.policy.MaxInterval
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, w.policy.MaxRetries), w.ctx)

	attempt := 0
	operation := func() error {
		if attempt > 0 && w.superseded() {
			return backoff.Permanent(errSuperseded)
		}
		attempt++
		err := w.write(w.ctx, record)
		if err != nil {
			metric.PersistAttempts.WithLabelValues("retry").Inc()
			return err
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Warn().
			Err(err).
			Int(constants.KEY_ATTEMPT, attempt).
			Dur("retryIn", next).
			Msg("failed writing cart snapshot, retrying")
	}

	logger.Debug().Msg("writing cart snapshot")
	err := backoff.RetryNotify(operation, b, notify)
	switch {
	case errors.Is(err, errSuperseded):
		metric.PersistAttempts.WithLabelValues("superseded").Inc()
		logger.Debug().Int(constants.KEY_ATTEMPT, attempt).Msg("skipped cart snapshot superseded by newer one")
		return err
	case err != nil:
		metric.PersistAttempts.WithLabelValues("failed").Inc()
		err = fmt.Errorf("failed writing cart snapshot after %d attempts with error=%w", attempt, err)
		logger.Error().Err(err).Int(constants.KEY_ATTEMPT, attempt).Msg(err.Error())
		return err
	}
	metric.PersistAttempts.WithLabelValues("success").Inc()
	logger.Debug().Int(constants.KEY_ATTEMPT, attempt).Msg("wrote cart snapshot")
	return nil
}

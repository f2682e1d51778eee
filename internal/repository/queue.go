package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const writeQueueBufferSize = 64

var writeRetryBackoffs = []time.Duration{
	80 * time.Millisecond,
	160 * time.Millisecond,
	320 * time.Millisecond,
}

type backoffSleeper func(ctx context.Context, d time.Duration) error

type queuedWrite struct {
	requestCtx context.Context
	timeout    time.Duration
	run        func(context.Context) error
	result     chan error
	diag       *commandDiagnosticState
}

// writeQueue serializes mutating git commands for one repository so that
// concurrent panel requests never race on .git/index.lock.
type writeQueue struct {
	items       chan queuedWrite
	diagnostics *commandDiagnostics

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	closed         atomic.Bool
	startOnce      sync.Once
	workerWG       sync.WaitGroup
}

func newWriteQueue(diagnostics *commandDiagnostics) *writeQueue {
	ctx, cancel := context.WithCancel(context.Background())
	return &writeQueue{
		items:          make(chan queuedWrite, writeQueueBufferSize),
		diagnostics:    diagnostics,
		shutdownCtx:    ctx,
		shutdownCancel: cancel,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submit enqueues run and blocks until the worker finished it or ctx ended.
func (q *writeQueue) submit(ctx context.Context, diag *commandDiagnosticState, timeout time.Duration, run func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if q.closed.Load() {
		q.diagnostics.publish(diag, CommandStatusFailed, ErrClosed)
		return ErrClosed
	}
	q.startOnce.Do(func() {
		q.workerWG.Add(1)
		go q.runWorker()
	})

	command := queuedWrite{
		requestCtx: ctx,
		timeout:    timeout,
		run:        run,
		result:     make(chan error, 1),
		diag:       diag,
	}

	err := q.enqueue(command)
	if err != nil {
		q.diagnostics.publish(diag, CommandStatusFailed, err)
		return err
	}
	q.diagnostics.publish(diag, CommandStatusSucceeded, nil)
	return nil
}

func (q *writeQueue) enqueue(command queuedWrite) error {
	q.diagnostics.publish(command.diag, CommandStatusQueued, nil)
	select {
	case q.items <- command:
	case <-command.requestCtx.Done():
		return queueErrorFromContext(command.requestCtx.Err())
	case <-q.shutdownCtx.Done():
		return ErrClosed
	}

	select {
	case err := <-command.result:
		return err
	case <-command.requestCtx.Done():
		return queueErrorFromContext(command.requestCtx.Err())
	case <-q.shutdownCtx.Done():
		return ErrClosed
	}
}

func (q *writeQueue) runWorker() {
	defer q.workerWG.Done()

	for {
		select {
		case <-q.shutdownCtx.Done():
			return
		case command := <-q.items:
			if command.requestCtx.Err() != nil {
				command.result <- queueErrorFromContext(command.requestCtx.Err())
				continue
			}

			q.diagnostics.publish(command.diag, CommandStatusStarted, nil)
			commandCtx, cancel := buildQueueCommandContext(q.shutdownCtx, command.requestCtx, command.timeout)
			runErr := command.run(commandCtx)
			if runErr == nil && commandCtx.Err() != nil {
				runErr = queueErrorFromContext(commandCtx.Err())
			}
			cancel()

			command.result <- runErr
		}
	}
}

func buildQueueCommandContext(base context.Context, requestCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, requestCancel := context.WithCancel(base)
	stop := context.AfterFunc(requestCtx, requestCancel)

	if timeout <= 0 {
		return ctx, func() {
			stop()
			requestCancel()
		}
	}

	withTimeout, timeoutCancel := context.WithTimeout(ctx, timeout)
	return withTimeout, func() {
		timeoutCancel()
		stop()
		requestCancel()
	}
}

// close stops the worker. Commands still waiting fail with ErrClosed.
func (q *writeQueue) close(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !q.closed.CompareAndSwap(false, true) {
		return nil
	}
	q.shutdownCancel()

	workersDone := make(chan struct{})
	go func() {
		q.workerWG.Wait()
		close(workersDone)
	}()

	select {
	case <-workersDone:
		return nil
	case <-ctx.Done():
		return queueErrorFromContext(ctx.Err())
	}
}

func remainingTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	if fallback <= 0 {
		fallback = defaultWriteTimeout
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}

	remaining := time.Until(deadline)
	if remaining <= 0 {
		return time.Millisecond
	}
	if remaining < fallback {
		return remaining
	}
	return fallback
}

func queueErrorFromContext(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrCanceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrCanceled, err)
	}
	return err
}

func isTransientIndexLockError(stderr string, runErr error) bool {
	combined := strings.ToLower(strings.TrimSpace(stderr))
	if runErr != nil {
		combined += " | " + strings.ToLower(runErr.Error())
	}
	return strings.Contains(combined, "index.lock")
}

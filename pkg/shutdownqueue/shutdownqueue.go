// Package shutdownqueue is a process-wide LIFO queue of cleanup tasks.
//
// Components register their teardown (HTTP server, round engine loop, DB
// pool) via Add as they start up; main drains the queue once at exit:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
//	defer cancel()
//	defer shutdownqueue.Shutdown(ctx)
//
// Tasks run once, in reverse order of registration, with panic recovery.
// Shutdown is idempotent and aggregates task errors via errors.Join.
package shutdownqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Task is a shutdown function. It should honor ctx and return an error
// if it can't finish in time.
type Task func(ctx context.Context) error

var q = struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
}{}

// Add registers a task to run on Shutdown, in LIFO order. Safe from any
// goroutine. Nil tasks and tasks added after shutdown started are dropped.
func Add(t Task) {
	if t == nil {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.tasks = append(q.tasks, t)
}

// Shutdown drains all registered tasks in LIFO order. Subsequent calls are
// no-ops. If ctx expires mid-drain, Shutdown stops early and the returned
// error includes the context error alongside any task errors.
func Shutdown(ctx context.Context) error {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return nil
	}

	q.closed = true
	tasks := q.tasks
	q.tasks = nil

	q.mu.Unlock()

	var errs []error

	for i := len(tasks) - 1; i >= 0; i-- {
		select {
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("shutdown canceled: %w", ctx.Err()))

			return errors.Join(errs...)
		default:
		}

		runTask(tasks[i], ctx, &errs)
	}

	return errors.Join(errs...)
}

func runTask(t Task, ctx context.Context, errs *[]error) {
	defer func() {
		r := recover()
		if r != nil {
			*errs = append(*errs, fmt.Errorf("panic in shutdown task: %v", r))
		}
	}()

	err := t(ctx)
	if err != nil {
		*errs = append(*errs, err)
	}
}

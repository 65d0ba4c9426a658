package async

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo runs fn in a goroutine bounded by timeout. Panics are recovered and
// errors are logged rather than propagated. The returned channel receives
// fn's result (or the recovered panic) and is then closed.
//
// Example:
//
//	async.SafeGo(context.WithoutCancel(r.Context()), log, 10*time.Second, "facet projection", func(ctx context.Context) error {
//		return projector.ProjectProject(ctx, projectID)
//	})
func SafeGo(parentCtx context.Context, log *logrus.Logger, timeout time.Duration, taskName string, fn func(context.Context) error) <-chan error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	done := make(chan error, 1)

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		err := run(ctx, fn)
		if err != nil {
			log.WithError(err).WithField("task", taskName).Warn("Background task failed")
		}
		done <- err
	}()

	return done
}

func run(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}

// Batch applies fn to every item with at most workers running at once. Each
// call gets its own timeout. Errors are returned in no particular order.
//
// Example:
//
//	errs := async.Batch(ctx, projectIDs, 8, 30*time.Second, func(ctx context.Context, id loaderfields.ProjectID) error {
//		return projector.ProjectProject(ctx, id)
//	})
func Batch[T any](ctx context.Context, items []T, workers int, timeout time.Duration, fn func(context.Context, T) error) []error {
	if workers < 1 {
		workers = 1
	}

	var (
		mu   sync.Mutex
		errs []error
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, workers)

	for _, item := range items {
		if ctx.Err() != nil {
			mu.Lock()
			errs = append(errs, ctx.Err())
			mu.Unlock()
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer func() { <-sem }()

			taskCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if err := run(taskCtx, func(c context.Context) error { return fn(c, item) }); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(item)
	}

	wg.Wait()
	return errs
}

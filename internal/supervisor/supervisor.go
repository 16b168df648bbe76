// Package supervisor runs the long-lived listener and poller tasks side by
// side.
package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

// Task is a long-running unit of work. Run should only return once ctx is
// cancelled or there is nothing left to do.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Run starts every task in its own goroutine and waits for all of them.
// A task that returns or panics is logged; the others keep running.
func Run(ctx context.Context, log logrus.FieldLogger, tasks ...Task) {
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)
		go func(task Task) {
			defer wg.Done()

			entry := log.WithField("task", task.Name())
			if err := runTask(ctx, task); err != nil {
				entry.WithError(err).Error("Task failed")
				return
			}
			entry.Info("Task finished")
		}(task)
	}

	log.WithField("tasks", len(tasks)).Info("All tasks started")
	wg.Wait()
}

func runTask(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return task.Run(ctx)
}

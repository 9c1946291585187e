package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/coursehub/core"
	"github.com/trezcool/coursehub/core/enrollment"
)

// Recorder counts notification task outcomes.
type Recorder interface {
	RecordNotification(event, result string)
}

// Dispatcher runs notification tasks in their own goroutine, detached from the request that queued them.
// Each task gets a fresh context bounded by the configured timeout. Errors and panics are logged, never returned.
type Dispatcher struct {
	timeout  time.Duration
	logger   core.Logger
	recorder Recorder
	wg       sync.WaitGroup
}

var _ enrollment.Dispatcher = (*Dispatcher)(nil) // interface compliance check

func NewDispatcher(conf *core.Config, logger core.Logger, recorder Recorder) *Dispatcher {
	timeout := conf.Notify.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		timeout:  timeout,
		logger:   logger,
		recorder: recorder,
	}
}

func (d *Dispatcher) Dispatch(name string, task func(ctx context.Context) error) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(name, task)
	}()
}

func (d *Dispatcher) run(name string, task func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error(fmt.Sprintf("notification %s panicked: %v", name, r))
			d.record(name, ResultPanicked)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := task(ctx); err != nil {
		d.logger.Error(fmt.Sprintf("notification %s failed: %v", name, err), err)
		d.record(name, ResultFailed)
	}
}

func (d *Dispatcher) record(name, result string) {
	if d.recorder != nil {
		d.recorder.RecordNotification(name, result)
	}
}

// Wait blocks until every dispatched task returned, or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

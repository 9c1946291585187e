package enrollment

import "context"

type syncDispatcher struct{}

func (syncDispatcher) Dispatch(_ string, task func(ctx context.Context) error) {
	_ = task(context.Background())
}

// NewServiceMock returns a Service that runs its notification tasks synchronously.
func NewServiceMock(deps Deps) Service {
	deps.Dispatcher = syncDispatcher{}
	return NewService(deps)
}

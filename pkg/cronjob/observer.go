package cronjob

import "context"

// Observer is anything implementing one or more of JobStartObserver,
// JobCompleteObserver and JobErrorObserver. Each lifecycle hook is its own
// interface so observers opt in only to the events they care about.
type Observer any

// JobStartObserver is called before the handler runs.
// A non-nil error aborts the invocation: the handler is skipped and the
// invocation is reported as failed.
type JobStartObserver interface {
	OnJobStart(ctx context.Context, jc JobContext) error
}

// JobCompleteObserver is called after the handler returns successfully.
type JobCompleteObserver interface {
	OnJobComplete(ctx context.Context, jc JobContext) error
}

// JobErrorObserver is called after the handler fails. When a start observer
// fails instead, only the observers registered before it are called.
type JobErrorObserver interface {
	OnJobError(ctx context.Context, jc JobContext) error
}

// Hooks adapts plain functions to the observer interfaces. Nil slots are skipped.
type Hooks struct {
	OnStart    func(ctx context.Context, jc JobContext) error
	OnComplete func(ctx context.Context, jc JobContext) error
	OnError    func(ctx context.Context, jc JobContext) error
}

func (h Hooks) OnJobStart(ctx context.Context, jc JobContext) error {
	if h.OnStart == nil {
		return nil
	}
	return h.OnStart(ctx, jc)
}

func (h Hooks) OnJobComplete(ctx context.Context, jc JobContext) error {
	if h.OnComplete == nil {
		return nil
	}
	return h.OnComplete(ctx, jc)
}

func (h Hooks) OnJobError(ctx context.Context, jc JobContext) error {
	if h.OnError == nil {
		return nil
	}
	return h.OnError(ctx, jc)
}

package eventbus

import (
	"context"
	"time"

	"cronhook/pkg/cronjob"
)

// JobEvent is the Data of job.* events.
type JobEvent struct {
	Job          string        `json:"job"`
	InvocationID string        `json:"invocation_id"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Observer republishes engine lifecycle hooks on a bus.
type Observer struct {
	Bus Bus
}

func NewObserver(bus Bus) *Observer { return &Observer{Bus: bus} }

func (o *Observer) OnJobStart(_ context.Context, jc cronjob.JobContext) error {
	o.Bus.Publish(Event{Type: TypeJobStart, Data: jobEvent(jc)})
	return nil
}

func (o *Observer) OnJobComplete(_ context.Context, jc cronjob.JobContext) error {
	o.Bus.Publish(Event{Type: TypeJobComplete, Data: jobEvent(jc)})
	return nil
}

func (o *Observer) OnJobError(_ context.Context, jc cronjob.JobContext) error {
	o.Bus.Publish(Event{Type: TypeJobError, Data: jobEvent(jc)})
	return nil
}

func jobEvent(jc cronjob.JobContext) JobEvent {
	ev := JobEvent{
		Job:          jc.JobName,
		InvocationID: jc.InvocationID,
		StartedAt:    jc.StartedAt,
		Duration:     jc.Duration,
	}
	if jc.Err != nil {
		ev.Error = jc.Err.Error()
	}
	return ev
}

package cronjob

import (
	"maps"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// JobContext is the per-invocation record passed to handlers and observers.
//
// It is a value: NewJobContext fills the base fields, Complete and Fail return
// new values with Duration and exactly one of Result or Err set.
type JobContext struct {
	JobName      string
	InvocationID string
	StartedAt    time.Time
	Headers      http.Header
	Metadata     map[string]any

	Duration time.Duration
	Result   any
	Err      error

	done bool
}

// NewJobContext builds the base context for one invocation.
func NewJobContext(jobName string, headers http.Header, metadata map[string]any) JobContext {
	return newJobContextAt(jobName, headers, metadata, time.Now())
}

func newJobContextAt(jobName string, headers http.Header, metadata map[string]any, at time.Time) JobContext {
	jc := JobContext{
		JobName:      jobName,
		InvocationID: uuid.NewString(),
		StartedAt:    at,
		Headers:      headers.Clone(),
	}
	if jc.Headers == nil {
		jc.Headers = http.Header{}
	}
	if metadata != nil {
		jc.Metadata = maps.Clone(metadata)
	}
	return jc
}

// Complete returns a copy of base marked successful.
func Complete(base JobContext, result any, start time.Time) JobContext {
	return completeAt(base, result, start, time.Now())
}

// Fail returns a copy of base marked failed.
func Fail(base JobContext, err error, start time.Time) JobContext {
	return failAt(base, err, start, time.Now())
}

func completeAt(base JobContext, result any, start, now time.Time) JobContext {
	out := base
	out.Duration = now.Sub(start)
	out.Result = result
	out.Err = nil
	out.done = true
	return out
}

func failAt(base JobContext, err error, start, now time.Time) JobContext {
	out := base
	out.Duration = now.Sub(start)
	out.Result = nil
	out.Err = err
	out.done = true
	return out
}

// Completed reports whether the invocation finished successfully.
func (jc JobContext) Completed() bool { return jc.done && jc.Err == nil }

// Failed reports whether the invocation finished with an error.
func (jc JobContext) Failed() bool { return jc.done && jc.Err != nil }

// DurationMillis is the elapsed time in whole milliseconds.
func (jc JobContext) DurationMillis() int64 { return jc.Duration.Milliseconds() }

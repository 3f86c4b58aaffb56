package cronjob

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	logx "cronhook/pkg/logx"
)

// tracerName is the instrumentation scope for dispatch spans.
const tracerName = "cronhook/pkg/cronjob"

// Request is the platform-independent trigger request.
type Request struct {
	JobName  string
	Headers  http.Header
	Body     []byte
	Metadata map[string]any
}

// ResponseBody is serialized as the JSON trigger response.
type ResponseBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the platform-independent trigger response.
type Response struct {
	Status  int
	Body    ResponseBody
	Headers http.Header
}

// Config is fixed for the lifetime of an Engine.
type Config struct {
	Secret    string
	Observers []Observer
}

type Option func(*Engine)

func WithLogger(log logx.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithObserver appends an observer after those in Config.Observers.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithClock overrides time.Now for start times and durations.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine validates trigger requests and runs the matching job handler.
type Engine struct {
	reg       *Registry
	secret    string
	observers []Observer

	log    logx.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func NewEngine(reg *Registry, cfg Config, opts ...Option) *Engine {
	if reg == nil {
		reg = NewRegistry()
	}
	e := &Engine{
		reg:       reg,
		secret:    cfg.Secret,
		observers: append([]Observer(nil), cfg.Observers...),
		log:       logx.Nop(),
		tracer:    otel.Tracer(tracerName),
		now:       time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	if e.log.IsZero() {
		e.log = logx.Nop()
	}
	e.log = e.log.With(logx.String("comp", "engine"))
	return e
}

// Registry returns the registry the engine dispatches against.
func (e *Engine) Registry() *Registry { return e.reg }

// HandleRequest runs one trigger to completion. It never panics and never
// returns an error: every failure path is turned into a Response.
func (e *Engine) HandleRequest(ctx context.Context, req Request) (resp Response) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := e.tracer.Start(ctx, "cronjob.dispatch",
		trace.WithAttributes(attribute.String("cronjob.job", req.JobName)),
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer func() {
		span.SetAttributes(attribute.Int("cronjob.status", resp.Status))
		if resp.Status >= http.StatusBadRequest {
			span.SetStatus(codes.Error, resp.Body.Error)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if strings.TrimSpace(e.secret) == "" {
		e.log.Error("rejecting trigger: no secret configured", logx.String("job", req.JobName))
		return ErrorResponse(NewError(KindMissingConfig, "Cron secret is not configured"))
	}
	if err := ValidateSecret(req.Headers, e.secret); err != nil {
		e.log.Warn("rejecting trigger", logx.String("job", req.JobName), logx.String("kind", string(KindOf(err))))
		return ErrorResponse(err)
	}

	def, ok := e.reg.Get(req.JobName)
	if !ok {
		e.log.Warn("unknown job", logx.String("job", req.JobName))
		return ErrorResponse(NewError(KindJobNotFound, "Job %q not found", req.JobName))
	}

	start := e.now()
	jc := newJobContextAt(req.JobName, req.Headers, req.Metadata, start)
	span.SetAttributes(attribute.String("cronjob.invocation_id", jc.InvocationID))
	log := e.log.With(logx.String("job", jc.JobName), logx.String("invocation", jc.InvocationID))

	if n, err := e.notifyStart(ctx, jc); err != nil {
		failed := failAt(jc, fmt.Errorf("start observer: %w", err), start, e.now())
		log.Error("start observer failed; handler skipped", logx.Err(err))
		span.RecordError(err)
		e.notifyError(ctx, e.observers[:n], failed, log)
		return handlerFailure(failed.Err)
	}

	result, err := runHandler(ctx, def.Handler, jc, log)
	if err != nil {
		failed := failAt(jc, err, start, e.now())
		log.Warn("job failed", logx.Err(err), logx.Duration("took", failed.Duration))
		span.RecordError(err)
		e.notifyError(ctx, e.observers, failed, log)
		return handlerFailure(err)
	}

	done := completeAt(jc, result, start, e.now())
	log.Info("job executed", logx.Duration("took", done.Duration))
	e.notifyComplete(ctx, done, log)

	return Response{
		Status: http.StatusOK,
		Body: ResponseBody{
			Success: true,
			Message: fmt.Sprintf("Job %q executed successfully", jc.JobName),
			Result:  result,
		},
	}
}

func runHandler(ctx context.Context, h Handler, jc JobContext, log logx.Logger) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job handler panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic in job %s: %v", jc.JobName, r)
		}
	}()
	return h(ctx, jc)
}

// notifyStart runs start hooks in order. On failure it returns the index of
// the failing observer; only observers before it have seen the start.
func (e *Engine) notifyStart(ctx context.Context, jc JobContext) (int, error) {
	for i, o := range e.observers {
		so, ok := o.(JobStartObserver)
		if !ok {
			continue
		}
		if err := safeCall(func() error { return so.OnJobStart(ctx, jc) }); err != nil {
			return i, err
		}
	}
	return len(e.observers), nil
}

func (e *Engine) notifyComplete(ctx context.Context, jc JobContext, log logx.Logger) {
	for _, o := range e.observers {
		co, ok := o.(JobCompleteObserver)
		if !ok {
			continue
		}
		if err := safeCall(func() error { return co.OnJobComplete(ctx, jc) }); err != nil {
			log.Warn("complete observer failed", logx.Err(err))
		}
	}
}

func (e *Engine) notifyError(ctx context.Context, observers []Observer, jc JobContext, log logx.Logger) {
	for _, o := range observers {
		eo, ok := o.(JobErrorObserver)
		if !ok {
			continue
		}
		if err := safeCall(func() error { return eo.OnJobError(ctx, jc) }); err != nil {
			log.Warn("error observer failed", logx.Err(err))
		}
	}
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return fn()
}

// ErrorResponse maps a structured error to its own status. Adapters use it
// for failures that happen before the engine is reached.
func ErrorResponse(err error) Response {
	return Response{
		Status: StatusOf(err),
		Body:   ResponseBody{Success: false, Error: errorMessage(err)},
	}
}

// handlerFailure always answers 500, whatever status err might carry.
func handlerFailure(err error) Response {
	return Response{
		Status: http.StatusInternalServerError,
		Body:   ResponseBody{Success: false, Error: errorMessage(err)},
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

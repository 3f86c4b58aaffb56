package cronjob

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"
)

// Handler runs one job invocation. The returned value becomes the response
// result; a non-nil error always surfaces as a 500.
type Handler func(ctx context.Context, jc JobContext) (any, error)

// Schedule lists the cron expressions a job runs at. Each entry produces its
// own trigger in the generated workflow.
type Schedule []string

// Every is shorthand for a Schedule literal.
func Every(exprs ...string) Schedule { return Schedule(exprs) }

// Definition describes a registered job.
//
// Timeout and Retry are advisory: the engine never enforces them, the
// workflow generator turns them into timeout-minutes and curl retries.
type Definition struct {
	Schedule    Schedule
	Handler     Handler
	Description string
	Timeout     time.Duration
	Retry       *bool
}

// RetryEnabled returns Retry, defaulting to true.
func (d Definition) RetryEnabled() bool {
	if d.Retry == nil {
		return true
	}
	return *d.Retry
}

// Bool returns a pointer to v, for Definition.Retry.
func Bool(v bool) *bool { return &v }

func (d Definition) clone() Definition {
	out := d
	out.Schedule = slices.Clone(d.Schedule)
	if d.Retry != nil {
		out.Retry = Bool(*d.Retry)
	}
	return out
}

// Entry is a named definition as returned by Registry.List.
type Entry struct {
	Name       string
	Definition Definition
}

// Registry is an insertion-ordered set of job definitions.
//
// Jobs are normally registered once at startup, but the registry is guarded
// so registration may overlap with dispatch.
type Registry struct {
	mu    sync.RWMutex
	order []string
	defs  map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register validates def and stores it under name.
// A duplicate name or a malformed schedule leaves the registry untouched.
func (r *Registry) Register(name string, def Definition) error {
	if strings.TrimSpace(name) == "" {
		return NewError(KindInvalidJob, "Job name is required")
	}
	if !ValidJobName(name) {
		return NewError(KindInvalidJob, "Invalid job name %q: use letters, digits, '_' and '-', starting with a letter or '_'", name)
	}
	if def.Handler == nil {
		return NewError(KindInvalidJob, "Job %q has no handler", name)
	}

	if err := validateSchedule(name, def.Schedule); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[name]; exists {
		return NewError(KindDuplicateJob, "Job %q is already registered", name)
	}
	r.defs[name] = def.clone()
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register for static setup code; it panics on error.
func (r *Registry) MustRegister(name string, def Definition) {
	if err := r.Register(name, def); err != nil {
		panic(err)
	}
}

// Get returns a copy of the named definition.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	if !ok {
		return Definition{}, false
	}
	return d.clone(), true
}

// List returns copies of all definitions in registration order.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Entry{Name: name, Definition: r.defs[name].clone()})
	}
	return out
}

// Names returns job names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// validateSchedule checks every entry has 5 or 6 whitespace-separated fields
// and appears once. Field values are not range-checked.
func validateSchedule(job string, s Schedule) error {
	if len(s) == 0 {
		return NewError(KindInvalidCronExpression, "Job %q has no schedule", job)
	}
	seen := make(map[string]bool, len(s))
	for _, expr := range s {
		if !ValidCronShape(expr) {
			return NewError(KindInvalidCronExpression, "Invalid cron expression %q for job %q", expr, job)
		}
		norm := NormalizeCron(expr)
		if seen[norm] {
			return NewError(KindInvalidCronExpression, "Duplicate cron expression %q for job %q", expr, job)
		}
		seen[norm] = true
	}
	return nil
}

// NormalizeCron collapses whitespace so equal expressions compare equal.
func NormalizeCron(expr string) string { return strings.Join(strings.Fields(expr), " ") }

var jobNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*$`)

// ValidJobName reports whether name can be both a URL path segment and a
// GitHub Actions job id.
func ValidJobName(name string) bool { return jobNamePattern.MatchString(name) }

// ValidCronShape reports whether expr has 5 or 6 whitespace-separated fields.
func ValidCronShape(expr string) bool {
	n := len(strings.Fields(expr))
	return n == 5 || n == 6
}

package cli

import (
	"fmt"
	"os"
	"strings"

	"cronhook/internal/eventbus"
	"cronhook/internal/notify/telegram"
	"cronhook/internal/observability"
	"cronhook/pkg/cronjob"
	"cronhook/pkg/logx"
)

// stack is the engine plus the observers wired to it for serve and dev.
type stack struct {
	eng      *cronjob.Engine
	bus      eventbus.Bus
	metrics  *observability.Metrics
	notifier *telegram.Notifier
}

func (r *runner) buildStack() (*stack, error) {
	cfg := r.cfg
	st := &stack{bus: eventbus.New()}

	observers := []cronjob.Observer{eventbus.NewObserver(st.bus)}
	if cfg.Metrics.Enabled {
		st.metrics = observability.NewMetrics(observability.WithRuntimeCollectors())
		observers = append(observers, st.metrics)
	}
	if tc := cfg.Notify.Telegram; tc.Enabled {
		token := strings.TrimSpace(os.Getenv(tc.TokenEnv))
		sender, err := telegram.NewBotSender(token)
		if err != nil {
			return nil, fmt.Errorf("notify.telegram (%s): %w", tc.TokenEnv, err)
		}
		dedup, _ := tc.Dedup()
		st.notifier = telegram.New(telegram.Config{
			ChatID:      tc.ChatID,
			ThreadID:    tc.ThreadID,
			RatePerSec:  tc.RatePerSec,
			DedupWindow: dedup,
		}, sender, r.log)
		observers = append(observers, st.notifier)
	}
	observers = append(observers, r.opts.Observers...)

	st.eng = r.engine(observers)
	return st, nil
}

func (r *runner) engine(observers []cronjob.Observer) *cronjob.Engine {
	secret := r.cfg.Secret()
	if secret == "" {
		r.log.Warn("shared secret is not set; every trigger will fail", logx.String("env", r.cfg.SecretEnv))
	}
	opts := []cronjob.Option{cronjob.WithLogger(r.log)}
	if r.opts.Tracer != nil {
		opts = append(opts, cronjob.WithTracer(r.opts.Tracer))
	}
	return cronjob.NewEngine(r.reg, cronjob.Config{Secret: secret, Observers: observers}, opts...)
}

// logEvents mirrors lifecycle events at debug level.
func (r *runner) logEvents(e eventbus.Event) {
	log := r.log.With(logx.String("comp", "events"), logx.String("type", e.Type))
	switch d := e.Data.(type) {
	case eventbus.JobEvent:
		log.Debug("event", logx.String("job", d.Job), logx.String("invocation_id", d.InvocationID), logx.Duration("took", d.Duration))
	default:
		log.Debug("event", logx.Any("data", d))
	}
}

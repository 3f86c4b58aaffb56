package cli

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cronhook/internal/config"
	"cronhook/internal/devloop"
	"cronhook/internal/eventbus"
	rtsup "cronhook/internal/runtime/supervisor"
	"cronhook/internal/server"
	"cronhook/pkg/logx"
)

func (r *runner) serveCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trigger endpoint until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.setup(); err != nil {
				return err
			}
			defer r.close()
			if addr != "" {
				r.cfg.Server.Addr = addr
			}
			return r.run(cmd.Context(), runOptions{server: true})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func (r *runner) devCommand() *cobra.Command {
	var (
		addr     string
		target   string
		noServer bool
		noWatch  bool
	)
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Serve and fire every job on its schedule locally",
		Long: `Serve the trigger endpoint and replay the workflow schedule locally.

Each (job, schedule) pair is fired over HTTP with the shared secret, the
same way the generated workflow does. Schedules are evaluated in UTC.
Logging changes in the project file apply without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.setup(); err != nil {
				return err
			}
			defer r.close()
			if addr != "" {
				r.cfg.Server.Addr = addr
			}
			switch {
			case target != "":
				r.cfg.Dev.Target = target
			case !noServer && r.cfg.Dev.Target == config.DefaultDevTarget:
				r.cfg.Dev.Target = localTarget(r.cfg.Server.Addr)
			}
			return r.run(cmd.Context(), runOptions{server: !noServer, dev: true, watch: !noWatch})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&target, "target", "", "base URL to fire at (overrides dev.target)")
	cmd.Flags().BoolVar(&noServer, "no-server", false, "only fire; the app is served elsewhere")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the project file")
	return cmd
}

type runOptions struct {
	server bool
	dev    bool
	watch  bool
}

func (r *runner) run(ctx context.Context, ro runOptions) error {
	st, err := r.buildStack()
	if err != nil {
		return err
	}
	timeouts, err := r.cfg.Server.Timeouts()
	if err != nil {
		return err
	}

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "supervisor"))),
		rtsup.WithCancelOnError(true),
	)
	stop := func() error {
		sctx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown+5*time.Second)
		defer cancel()
		return sup.Stop(sctx)
	}

	if ro.server {
		opts := []server.Option{server.WithLogger(r.log), server.WithSupervisor(sup)}
		if st.metrics != nil {
			opts = append(opts, server.WithMetrics(st.metrics.Handler()))
		}
		srv, err := server.New(r.cfg, st.eng, opts...)
		if err != nil {
			_ = stop()
			return err
		}
		sup.Go("http", srv.Run)
	}
	if st.notifier != nil {
		sup.GoRestart("notify.telegram", st.notifier.Run, rtsup.WithBackoff(time.Second, 30*time.Second))
	}
	sup.Go("events", func(ctx context.Context) error {
		eventbus.Consume(ctx, st.bus, 64, r.logEvents)
		return nil
	})

	if ro.dev {
		loop, err := devloop.New(r.reg.List(), devloop.Config{
			Target:         r.cfg.Dev.Target,
			PathPrefix:     r.cfg.PathPrefix,
			Secret:         r.cfg.Secret(),
			RatePerSec:     r.cfg.Dev.RatePerSec,
			Burst:          r.cfg.Dev.Burst,
			RequestTimeout: r.devRequestTimeout(),
		}, devloop.WithLogger(r.log), devloop.WithBus(st.bus))
		if err != nil {
			_ = stop()
			return err
		}
		for _, u := range loop.Next(time.Now()) {
			r.log.Info("next fire", logx.String("job", u.Job), logx.String("schedule", u.Schedule), logx.Time("at", u.Next))
		}
		sup.Go("devloop", loop.Run)
	}
	if ro.watch {
		r.mgr.SetValidator(func(_ context.Context, cfg *config.Config) error {
			if cfg.Secret() == "" {
				return fmt.Errorf("secret_env %s is not set", cfg.SecretEnv)
			}
			return nil
		})
		updates := r.mgr.Subscribe(4)
		sup.Go("config.apply", func(ctx context.Context) error {
			defer r.mgr.Unsubscribe(updates)
			r.applyReloads(ctx, updates, st.bus)
			return nil
		})
		sup.GoRestart("config.watch", r.mgr.Watch, rtsup.WithBackoff(time.Second, 30*time.Second), rtsup.WithMaxRestarts(5))
	}

	<-sup.Context().Done()
	return stop()
}

func (r *runner) devRequestTimeout() time.Duration {
	d, _ := config.ParseDurationField("dev.request_timeout", r.cfg.Dev.RequestTimeout)
	return d
}

// applyReloads applies logging changes live and reports the rest.
func (r *runner) applyReloads(ctx context.Context, updates <-chan *config.Config, bus eventbus.Bus) {
	cur := r.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-updates:
			if !ok {
				return
			}
			changed, fields := config.SummarizeChange(cur, next)
			if len(changed) == 0 {
				continue
			}
			r.logs.Apply(r.loggingFor(next))
			if config.RestartRequired(changed) {
				r.log.Warn("config changed; restart to apply", fields...)
			} else {
				r.log.Info("config applied", fields...)
			}
			bus.Publish(eventbus.Event{Type: eventbus.TypeConfig, Data: changed})
			cur = next
		}
	}
}

// localTarget turns a listen address into a URL the dev loop can reach.
func localTarget(addr string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return config.DefaultDevTarget
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

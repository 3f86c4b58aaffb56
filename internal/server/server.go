// Package server is the HTTP front of a cronhook app: the trigger endpoint
// plus health, metrics and optional profiling routes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cronhook/internal/config"
	rtsup "cronhook/internal/runtime/supervisor"
	"cronhook/pkg/adapter/httpadapter"
	"cronhook/pkg/cronjob"
	"cronhook/pkg/logx"
)

type Option func(*Server)

func WithLogger(log logx.Logger) Option { return func(s *Server) { s.log = log } }

// WithMetrics serves h at the configured metrics path when metrics are enabled.
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }

// WithSupervisor adds the supervisor's loop stats to /healthz.
func WithSupervisor(sup *rtsup.Supervisor) Option { return func(s *Server) { s.sup = sup } }

type Server struct {
	cfg      *config.Config
	timeouts config.Timeouts
	eng      *cronjob.Engine
	log      logx.Logger
	metrics  http.Handler
	sup      *rtsup.Supervisor
	started  time.Time
	router   http.Handler
}

func New(cfg *config.Config, eng *cronjob.Engine, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if eng == nil {
		return nil, errors.New("server: engine is nil")
	}
	t, err := cfg.Server.Timeouts()
	if err != nil {
		return nil, err
	}
	s := &Server{cfg: cfg, timeouts: t, eng: eng, log: logx.Nop(), started: time.Now()}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With(logx.String("comp", "http"))
	s.router = s.routes()
	return s, nil
}

// Handler returns the full router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	if s.cfg.Metrics.Enabled && s.metrics != nil {
		r.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics)
	}
	if s.cfg.Server.Pprof {
		r.Mount("/debug", middleware.Profiler())
	}
	httpadapter.Mount(r, s.eng, s.cfg.PathPrefix)
	return r
}

type health struct {
	Status string            `json:"status"`
	Jobs   int               `json:"jobs"`
	Uptime string            `json:"uptime"`
	Loops  []rtsup.LoopStats `json:"loops,omitempty"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	h := health{
		Status: "ok",
		Jobs:   s.eng.Registry().Len(),
		Uptime: time.Since(s.started).Round(time.Second).String(),
	}
	if s.sup != nil {
		h.Loops = s.sup.Snapshot()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []logx.Field{
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", status),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())),
		}
		switch {
		case status >= 500:
			s.log.Error("request", fields...)
		case status >= 400:
			s.log.Warn("request", fields...)
		case r.URL.Path == "/healthz":
			s.log.Debug("request", fields...)
		default:
			s.log.Info("request", fields...)
		}
	})
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	addr := strings.TrimSpace(s.cfg.Server.Addr)
	if addr == "" {
		addr = config.DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully so
// in-flight jobs can finish within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: s.timeouts.Read,
		ReadTimeout:       s.timeouts.Read,
		WriteTimeout:      s.timeouts.Write,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.log.Info("listening",
		logx.String("addr", ln.Addr().String()),
		logx.String("prefix", s.cfg.PathPrefix),
		logx.Int("jobs", s.eng.Registry().Len()),
		logx.Bool("pprof", s.cfg.Server.Pprof),
	)
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		s.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		s.log.Debug("sd_notify ready sent")
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	s.log.Info("shutting down", logx.Duration("timeout", s.timeouts.Shutdown))
	sctx, cancel := context.WithTimeout(context.Background(), s.timeouts.Shutdown)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		_ = srv.Close()
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

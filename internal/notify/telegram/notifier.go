// Package telegram reports failed cron invocations to a Telegram chat.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"cronhook/pkg/cronjob"
	"cronhook/pkg/logx"
)

// Sender delivers one text message.
type Sender interface {
	Send(ctx context.Context, chatID int64, threadID int, text string) error
}

type botSender struct {
	bot *tele.Bot
}

// NewBotSender builds a send-only bot. It does not poll for updates.
func NewBotSender(token string) (Sender, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &botSender{bot: b}, nil
}

func (s *botSender) Send(_ context.Context, chatID int64, threadID int, text string) error {
	_, err := s.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ThreadID:              threadID,
		DisableWebPagePreview: true,
	})
	return err
}

type Config struct {
	ChatID      int64
	ThreadID    int
	RatePerSec  float64
	QueueSize   int
	DedupWindow time.Duration // repeated failures of one job inside the window are suppressed
}

type failure struct {
	job          string
	invocationID string
	duration     time.Duration
	err          string
}

// Notifier is an engine observer that queues a message per failed
// invocation. OnJobError never blocks the request; Run does the sending.
type Notifier struct {
	cfg     Config
	sender  Sender
	log     logx.Logger
	limiter *rate.Limiter
	queue   chan failure

	dmu      sync.Mutex
	lastSent map[string]time.Time

	dropped atomic.Uint64
	now     func() time.Time
}

func New(cfg Config, sender Sender, log logx.Logger) *Notifier {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Notifier{
		cfg:      cfg,
		sender:   sender,
		log:      log.With(logx.String("comp", "notify.telegram")),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		queue:    make(chan failure, cfg.QueueSize),
		lastSent: map[string]time.Time{},
		now:      time.Now,
	}
}

func (n *Notifier) OnJobError(_ context.Context, jc cronjob.JobContext) error {
	f := failure{
		job:          jc.JobName,
		invocationID: jc.InvocationID,
		duration:     jc.Duration,
	}
	if jc.Err != nil {
		f.err = jc.Err.Error()
	}
	select {
	case n.queue <- f:
	default:
		n.dropped.Add(1)
		n.log.Warn("failure notification dropped (queue full)", logx.String("job", jc.JobName))
	}
	return nil
}

// Dropped counts notifications lost to a full queue.
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }

// Run sends queued notifications until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-n.queue:
			if n.suppressed(f.job) {
				continue
			}
			if err := n.limiter.Wait(ctx); err != nil {
				return nil
			}
			if err := n.sender.Send(ctx, n.cfg.ChatID, n.cfg.ThreadID, Format(f.job, f.invocationID, f.duration, f.err)); err != nil {
				n.log.Warn("failure notification not sent", logx.String("job", f.job), logx.Err(err))
			}
		}
	}
}

func (n *Notifier) suppressed(job string) bool {
	if n.cfg.DedupWindow == 0 {
		return false
	}
	now := n.now()
	n.dmu.Lock()
	defer n.dmu.Unlock()
	if last, ok := n.lastSent[job]; ok && now.Sub(last) < n.cfg.DedupWindow {
		return true
	}
	n.lastSent[job] = now
	return false
}

// Format renders the failure message.
func Format(job, invocationID string, d time.Duration, errText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cron job %q failed\n", job)
	if invocationID != "" {
		fmt.Fprintf(&b, "invocation: %s\n", invocationID)
	}
	fmt.Fprintf(&b, "duration: %s\n", d.Round(time.Millisecond))
	if errText != "" {
		const maxErrLen = 1000
		if len(errText) > maxErrLen {
			cut := maxErrLen
			for cut > 0 && !utf8.RuneStart(errText[cut]) {
				cut--
			}
			errText = errText[:cut] + "…"
		}
		fmt.Fprintf(&b, "error: %s", errText)
	}
	return strings.TrimRight(b.String(), "\n")
}

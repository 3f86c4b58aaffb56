package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cronhook/pkg/cronjob"
)

func TestPublishFanout(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(1)
	defer unsubA()
	defer unsubC()

	b.Publish(Event{Type: "x"})
	for _, ch := range []<-chan Event{a, c} {
		e := <-ch
		if e.Type != "x" || e.Time.IsZero() {
			t.Fatalf("event = %+v", e)
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	t.Parallel()
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()
	b.Publish(Event{Type: "1"})
	b.Publish(Event{Type: "2"})
	if b.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", b.Dropped())
	}
}

func TestUnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		_, unsub := b.Subscribe(1)
		wg.Add(2)
		go func() { defer wg.Done(); b.Publish(Event{Type: "x"}) }()
		go func() { defer wg.Done(); unsub(); unsub() }()
	}
	wg.Wait()
}

func TestObserverPublishesLifecycle(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(8)
	defer unsub()

	reg := cronjob.NewRegistry()
	reg.MustRegister("ok", cronjob.Definition{Schedule: cronjob.Every("* * * * *"), Handler: func(context.Context, cronjob.JobContext) (any, error) { return 1, nil }})
	reg.MustRegister("bad", cronjob.Definition{Schedule: cronjob.Every("* * * * *"), Handler: func(context.Context, cronjob.JobContext) (any, error) { return nil, errors.New("nope") }})
	eng := cronjob.NewEngine(reg, cronjob.Config{Secret: "s", Observers: []cronjob.Observer{NewObserver(b)}})

	hdr := map[string][]string{cronjob.SecretHeader: {"s"}}
	eng.HandleRequest(context.Background(), cronjob.Request{JobName: "ok", Headers: hdr})
	eng.HandleRequest(context.Background(), cronjob.Request{JobName: "bad", Headers: hdr})

	want := []string{TypeJobStart, TypeJobComplete, TypeJobStart, TypeJobError}
	for i, typ := range want {
		select {
		case e := <-ch:
			if e.Type != typ {
				t.Fatalf("event %d type = %q, want %q", i, e.Type, typ)
			}
			je := e.Data.(JobEvent)
			if je.InvocationID == "" {
				t.Fatalf("event %d missing invocation id", i)
			}
			if typ == TypeJobError && je.Error != "nope" {
				t.Fatalf("error = %q", je.Error)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %d (%s)", i, typ)
		}
	}
}

func TestConsumeStopsOnCancel(t *testing.T) {
	t.Parallel()
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	done := make(chan struct{})
	go func() {
		Consume(ctx, b, 4, func(e Event) {
			select {
			case got <- e.Type:
			default:
			}
		})
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		b.Publish(Event{Type: "ping"})
		select {
		case typ := <-got:
			if typ != "ping" {
				t.Fatalf("type = %q", typ)
			}
			cancel()
			<-done
			return
		case <-deadline:
			t.Fatal("Consume never delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"adhunter/internal/model"
	"adhunter/internal/pkg/dedup"
)

type fakeNotifier struct {
	enabled bool
	fail    map[string]bool
	sent    []*model.Notification
	calls   int
}

func (f *fakeNotifier) Name() string  { return "fake" }
func (f *fakeNotifier) Enabled() bool { return f.enabled }
func (f *fakeNotifier) Send(_ context.Context, n *model.Notification) error {
	f.calls++
	if f.fail[n.Title] {
		return errors.New("transport down")
	}
	f.sent = append(f.sent, n)
	return nil
}

type countingWaiter struct {
	calls int
	err   error
}

func (w *countingWaiter) Wait(context.Context) error {
	w.calls++
	return w.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBatcher(n Notifier, w Waiter) *Batcher {
	return NewBatcher(n, NewRenderer("Visualizza su Subito"), dedup.NewMemorySet(), w, testLogger())
}

func listing(uid, name string, price int64) *model.Listing {
	return &model.Listing{UID: uid, Name: name, Price: &price, URL: "https://www.subito.it/x/" + uid + ".htm"}
}

func TestBatcher_DeduplicatesWithinRun(t *testing.T) {
	n := &fakeNotifier{enabled: true}
	b := newTestBatcher(n, nil)
	ctx := context.Background()

	b.Add(listing("fiat-1", "Fiat", 2500), "cars")
	b.Add(listing("fiat-1", "Fiat", 2500), "cars")
	res := b.Flush(ctx)
	if res.Sent != 1 || res.Duplicates != 1 || n.calls != 1 {
		t.Fatalf("first flush = %+v calls=%d", res, n.calls)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer should be cleared")
	}

	// 后续页面再次出现同一商品
	b.Add(listing("fiat-1", "Fiat", 2400), "cars")
	res = b.Flush(ctx)
	if res.Sent != 0 || res.Duplicates != 1 || n.calls != 1 {
		t.Fatalf("second flush = %+v calls=%d", res, n.calls)
	}
	if !strings.Contains(n.sent[0].Message, "2500") {
		t.Fatalf("message = %q", n.sent[0].Message)
	}
}

func TestBatcher_FailedDeliveryRetriedLater(t *testing.T) {
	n := &fakeNotifier{enabled: true, fail: map[string]bool{"Vespa": true}}
	b := newTestBatcher(n, nil)
	ctx := context.Background()

	b.Add(listing("vespa-1", "Vespa", 900), "moto")
	b.Add(listing("bmw-2", "BMW", 5000), "moto")
	res := b.Flush(ctx)
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("flush = %+v", res)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer must be cleared even after failures")
	}

	n.fail = nil
	b.Add(listing("vespa-1", "Vespa", 900), "moto")
	res = b.Flush(ctx)
	if res.Sent != 1 {
		t.Fatalf("retry flush = %+v", res)
	}
}

func TestBatcher_DisabledNotifierMakesNoCalls(t *testing.T) {
	n := &fakeNotifier{enabled: false}
	w := &countingWaiter{}
	b := newTestBatcher(n, w)

	b.Add(listing("a", "A", 1), "q")
	res := b.Flush(context.Background())
	if n.calls != 0 || w.calls != 0 || res.Sent != 0 {
		t.Fatalf("disabled notifier must not be called: calls=%d waits=%d", n.calls, w.calls)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer should be cleared")
	}
}

func TestBatcher_WaitsForRateLimit(t *testing.T) {
	n := &fakeNotifier{enabled: true}
	w := &countingWaiter{}
	b := newTestBatcher(n, w)

	b.Add(listing("a", "A", 1), "q")
	b.Add(listing("b", "B", 2), "q")
	b.Flush(context.Background())
	if w.calls != 2 {
		t.Fatalf("waits = %d, want 2", w.calls)
	}

	w.err = errors.New("rate limit wait timeout")
	b.Add(listing("c", "C", 3), "q")
	res := b.Flush(context.Background())
	if res.Sent != 0 || n.calls != 2 {
		t.Fatalf("interrupted flush should not send: %+v calls=%d", res, n.calls)
	}
	if b.Len() != 0 {
		t.Fatalf("buffer should be cleared")
	}
}

func TestBatcher_EmptyFlush(t *testing.T) {
	n := &fakeNotifier{enabled: true}
	b := newTestBatcher(n, nil)
	if res := b.Flush(context.Background()); res != (FlushResult{}) {
		t.Fatalf("empty flush = %+v", res)
	}
}

func TestMulti(t *testing.T) {
	ok := &fakeNotifier{enabled: true}
	broken := &fakeNotifier{enabled: true, fail: map[string]bool{"T": true}}
	off := &fakeNotifier{enabled: false}
	ctx := context.Background()
	notif := &model.Notification{Title: "T"}

	m := NewMulti(testLogger(), broken, ok, off, nil)
	if !m.Enabled() {
		t.Fatalf("multi should be enabled")
	}
	if err := m.Send(ctx, notif); err != nil {
		t.Fatalf("partial success should not fail: %v", err)
	}
	if off.calls != 0 {
		t.Fatalf("disabled channel must not be called")
	}

	if err := NewMulti(testLogger(), broken).Send(ctx, notif); err == nil {
		t.Fatalf("all channels failing should return an error")
	}
	if NewMulti(testLogger(), off).Enabled() {
		t.Fatalf("multi with only disabled channels should be disabled")
	}
}

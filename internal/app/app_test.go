package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"adhunter/internal/config"
	"adhunter/internal/crawler"
	"adhunter/internal/model"
	"adhunter/internal/pkg/notify"
	"adhunter/internal/pkg/runlock"
	"adhunter/internal/store"
	"adhunter/internal/store/redisstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// ============================================================================
// 测试辅助
// ============================================================================

type fakeNotifier struct {
	mu      sync.Mutex
	enabled bool
	sent    []*model.Notification
}

func (f *fakeNotifier) Name() string  { return "fake" }
func (f *fakeNotifier) Enabled() bool { return f.enabled }
func (f *fakeNotifier) Send(_ context.Context, n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Message)
	}
	return out
}

// fakeCrawler 记录处理顺序，可以对指定查询返回错误或 panic，
// 并为每个查询排入一条商品通知。
type fakeCrawler struct {
	mu      sync.Mutex
	order   []string
	fail    map[string]error
	panicOn string
	lock    *runlock.Lock
	held    []bool
}

func (f *fakeCrawler) CrawlQuery(ctx context.Context, q *model.SearchQuery, b *notify.Batcher) (*crawler.Result, error) {
	f.mu.Lock()
	f.order = append(f.order, q.Name)
	f.mu.Unlock()

	if f.lock != nil {
		held, _ := f.lock.Held(ctx)
		f.held = append(f.held, held)
	}
	if q.Name == f.panicOn {
		panic("parser exploded")
	}
	if err := f.fail[q.Name]; err != nil {
		return nil, err
	}
	price := int64(10)
	b.Add(&model.Listing{UID: "uid-" + q.Name, Name: q.Name, Price: &price, URL: "https://www.subito.it/x/" + q.Name + ".htm"}, q.Name)
	b.Flush(ctx)
	return &crawler.Result{Pages: 1, Queued: 1}, nil
}

type harness struct {
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	store    *redisstore.Store
	lock     *runlock.Lock
	notifier *fakeNotifier
	crawler  *fakeCrawler
	svc      *Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Default()
	cfg.Crawler.QueryDelay = 0

	h := &harness{
		mr:       mr,
		rdb:      rdb,
		store:    redisstore.New(rdb, "test"),
		lock:     runlock.New(rdb, "test:lock", time.Minute),
		notifier: &fakeNotifier{enabled: true},
	}
	h.crawler = &fakeCrawler{fail: map[string]error{}, lock: h.lock}
	h.svc = New(Deps{
		Config:   cfg,
		Store:    h.store,
		Lock:     h.lock,
		Crawler:  h.crawler,
		Notifier: h.notifier,
		Redis:    rdb,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func (h *harness) add(t *testing.T, name string) *model.SearchQuery {
	t.Helper()
	q, err := h.svc.AddQuery(context.Background(), model.QueryParams{
		Name: name,
		URL:  "https://www.subito.it/annunci-italia/vendita/usato/?q=" + name,
	})
	if err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return q
}

// ============================================================================
// RunAll
// ============================================================================

func TestRunAll_ProcessesEnabledQueriesInOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "bici")
	h.add(t, "vespa")
	h.add(t, "fiat")
	if _, err := h.svc.DisableQueries(ctx, "vespa"); err != nil {
		t.Fatalf("disable: %v", err)
	}

	report, err := h.svc.RunAll(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.Join(h.crawler.order, ","); got != "bici,fiat" {
		t.Fatalf("order = %s", got)
	}
	for i, held := range h.crawler.held {
		if !held {
			t.Fatalf("lock not held while crawling query %d", i)
		}
	}
	if len(report.Queries) != 2 || report.Failed() != 0 {
		t.Fatalf("report = %+v", report)
	}
	if held, _ := h.lock.Held(ctx); held {
		t.Fatalf("lock must be released after the run")
	}
	if len(h.notifier.sent) != 2 {
		t.Fatalf("sent = %d", len(h.notifier.sent))
	}
}

func TestRunAll_ConcurrentInvocationRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "bici")

	token, ok, err := h.lock.TryAcquire(ctx)
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}

	_, err = h.svc.RunAll(ctx)
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if len(h.crawler.order) != 0 {
		t.Fatalf("no query may run while another instance holds the lock")
	}
	if v, _ := h.mr.Get("test:lock"); v != token {
		t.Fatalf("lock value changed: %q", v)
	}
	msgs := h.notifier.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "already running") {
		t.Fatalf("operator notification = %v", msgs)
	}
}

func TestRunAll_QueryFailureDoesNotStopRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "bici")
	h.add(t, "boom")
	h.add(t, "broken")
	h.add(t, "fiat")
	h.crawler.panicOn = "boom"
	h.crawler.fail["broken"] = errors.New("store unavailable")

	report, err := h.svc.RunAll(ctx)
	if err == nil {
		t.Fatalf("expected joined query errors")
	}
	if !strings.Contains(err.Error(), "boom") || !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error should name failed queries: %v", err)
	}
	if got := strings.Join(h.crawler.order, ","); got != "bici,boom,broken,fiat" {
		t.Fatalf("order = %s", got)
	}
	if report.Failed() != 2 {
		t.Fatalf("failed = %d", report.Failed())
	}
	if held, _ := h.lock.Held(ctx); held {
		t.Fatalf("lock must be released after failures")
	}
}

func TestRunAll_CanceledReleasesLock(t *testing.T) {
	h := newHarness(t)
	h.add(t, "bici")
	h.add(t, "fiat")
	h.svc.cfg.Crawler.QueryDelay = time.Hour

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := h.svc.RunAll(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if held, _ := h.lock.Held(context.Background()); held {
		t.Fatalf("lock must be released after cancellation")
	}
	if len(h.crawler.order) != 1 {
		t.Fatalf("order = %v", h.crawler.order)
	}
}

func TestRunAll_DeliveredSetClearedAfterRun(t *testing.T) {
	h := newHarness(t)
	h.add(t, "bici")

	if _, err := h.svc.RunAll(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, key := range h.mr.Keys() {
		if strings.HasPrefix(key, "adhunter:delivered:") {
			t.Fatalf("delivered set %s should be removed after the run", key)
		}
	}
}

// ============================================================================
// 查询维护
// ============================================================================

func TestAddQuery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	q := h.add(t, "Bici Corsa!")
	if q.Name != "BiciCorsa" || !q.FirstRun || !q.Enabled {
		t.Fatalf("query = %+v", q)
	}

	_, err := h.svc.AddQuery(ctx, model.QueryParams{Name: "bicicorsa", URL: "https://www.subito.it/?q=x"})
	if !errors.Is(err, store.ErrQueryExists) {
		t.Fatalf("expected ErrQueryExists, got %v", err)
	}

	tests := []struct {
		name   string
		params model.QueryParams
		want   error
	}{
		{"bad_url", model.QueryParams{Name: "a", URL: "subito.it/annunci"}, model.ErrInvalidURL},
		{"bad_name", model.QueryParams{Name: "!!!", URL: "https://www.subito.it/"}, model.ErrInvalidName},
		{"bad_range", model.QueryParams{Name: "b", URL: "https://www.subito.it/", MinPrice: 500, MaxPrice: 100}, model.ErrInvalidPriceRange},
		{"bad_pattern", model.QueryParams{Name: "c", URL: "https://www.subito.it/", Pattern: "(unclosed"}, model.ErrInvalidPattern},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.AddQuery(ctx, tt.params); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEnableDisableDelete_ReportUnknownNames(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "bici")
	h.add(t, "fiat")

	res, err := h.svc.DisableQueries(ctx, "BICI", "ghost", "fiat")
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if len(res.Done) != 2 || len(res.Unknown) != 1 || res.Unknown[0] != "ghost" {
		t.Fatalf("result = %+v", res)
	}
	enabled, _ := h.store.ListEnabledQueries(ctx)
	if len(enabled) != 0 {
		t.Fatalf("enabled = %d", len(enabled))
	}

	if _, err := h.svc.EnableQueries(ctx, "fiat"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	enabled, _ = h.store.ListEnabledQueries(ctx)
	if len(enabled) != 1 || enabled[0].Name != "fiat" {
		t.Fatalf("enabled = %+v", enabled)
	}

	res, err = h.svc.DeleteQueries(ctx, "bici", "nope")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(res.Done) != 1 || len(res.Unknown) != 1 {
		t.Fatalf("result = %+v", res)
	}
	all, _ := h.svc.ListQueries(ctx)
	if len(all) != 1 || all[0].Name != "fiat" {
		t.Fatalf("remaining = %+v", all)
	}
}

func TestResetQuery(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := h.add(t, "bici")
	if err := h.store.SetQueryFirstRun(ctx, q.ID, false); err != nil {
		t.Fatalf("set first run: %v", err)
	}
	if err := h.store.UpsertListing(ctx, &model.Listing{UID: "a", QueryID: q.ID, Name: "A", URL: "https://www.subito.it/a.htm"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	infos, _ := h.svc.ListQueries(ctx)
	if infos[0].Listings != 1 {
		t.Fatalf("listings = %d", infos[0].Listings)
	}

	if err := h.svc.ResetQuery(ctx, "bici"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	infos, _ = h.svc.ListQueries(ctx)
	if infos[0].Listings != 0 || !infos[0].FirstRun {
		t.Fatalf("after reset = %+v", infos[0])
	}

	if err := h.svc.ResetQuery(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLifecycleRefusedWhileRunning(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.add(t, "bici")
	if _, _, err := h.lock.TryAcquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if _, err := h.svc.AddQuery(ctx, model.QueryParams{Name: "x", URL: "https://www.subito.it/"}); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("add: %v", err)
	}
	if _, err := h.svc.DeleteQueries(ctx, "bici"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("delete: %v", err)
	}
	if err := h.svc.ResetQuery(ctx, "bici"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("reset: %v", err)
	}
	// 只读操作不受影响
	if _, err := h.svc.ListQueries(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}

	msgs := h.notifier.messages()
	if len(msgs) != 3 {
		t.Fatalf("operator notifications = %q, want one per refused command", msgs)
	}
	for i, action := range []string{"not added", "not deleted", "not reset"} {
		if !strings.Contains(msgs[i], "already running") || !strings.Contains(msgs[i], action) {
			t.Fatalf("notification %d = %q, want mention of %q", i, msgs[i], action)
		}
	}
}

// ============================================================================
// 维护命令
// ============================================================================

func TestForceUnlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	existed, err := h.svc.ForceUnlock(ctx)
	if err != nil || existed {
		t.Fatalf("unlock free lock: existed=%v err=%v", existed, err)
	}
	_, _, _ = h.lock.TryAcquire(ctx)
	existed, err = h.svc.ForceUnlock(ctx)
	if err != nil || !existed {
		t.Fatalf("unlock held lock: existed=%v err=%v", existed, err)
	}
	if running, _ := h.svc.Running(ctx); running {
		t.Fatalf("lock should be gone")
	}
}

func TestTestNotification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.svc.TestNotification(ctx); err != nil {
		t.Fatalf("test notification: %v", err)
	}
	if len(h.notifier.sent) != 1 || h.notifier.sent[0].Title != "Test notification" {
		t.Fatalf("sent = %+v", h.notifier.sent)
	}

	h.notifier.enabled = false
	if err := h.svc.TestNotification(ctx); !errors.Is(err, ErrNotificationsDisabled) {
		t.Fatalf("expected ErrNotificationsDisabled, got %v", err)
	}
}

func TestSleep_HoldsLock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	started := make(chan struct{})
	var once sync.Once
	done := make(chan error, 1)
	go func() {
		done <- h.svc.Sleep(ctx, 1500*time.Millisecond, func(time.Duration) {
			once.Do(func() { close(started) })
		})
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatalf("sleep did not start")
	}
	if _, err := h.svc.RunAll(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning during sleep, got %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("sleep: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("sleep did not finish")
	}
	if held, _ := h.lock.Held(ctx); held {
		t.Fatalf("lock must be released after sleep")
	}
}

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crimson-sun/ember/internal/capture"
	"github.com/crimson-sun/ember/internal/config"
	"github.com/crimson-sun/ember/internal/connectivity"
	"github.com/crimson-sun/ember/internal/model"
	"github.com/crimson-sun/ember/internal/schedule"
	"github.com/crimson-sun/ember/internal/storage"
	"github.com/crimson-sun/ember/internal/transport"
)

// --- mocks ---

// mockTransport records payloads. While failing is set every Send fails.
type mockTransport struct {
	mu       sync.Mutex
	payloads []transport.Payload
	failing  bool
	closed   bool
}

func (m *mockTransport) Send(_ context.Context, p transport.Payload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, p)
	if m.failing {
		return model.ErrTransport
	}
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) setFailing(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = v
}

func (m *mockTransport) Payloads() []transport.Payload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.Payload(nil), m.payloads...)
}

func (m *mockTransport) Messages() []string {
	var out []string
	for _, p := range m.Payloads() {
		for _, r := range p.Reports {
			out = append(out, r.Message)
		}
	}
	return out
}

// --- helpers ---

func testConfig() config.Config {
	cfg := config.Default()
	cfg.App.ID = "app-1"
	cfg.Pipeline.BatchSize = 3
	cfg.Pipeline.FlushDelay = time.Second
	return cfg
}

func newTestPipeline(t *testing.T, cfg config.Config, tr transport.Transport, st storage.Storage, opts ...Option) (*Pipeline, *schedule.Manual) {
	t.Helper()
	sched := schedule.NewManual()
	n := 0
	base := []Option{
		WithScheduler(sched),
		WithLogger(discardLogger()),
		WithCaptureOptions(
			capture.WithSessionID("sess-1"),
			capture.WithIDGenerator(func() string { n++; return fmt.Sprintf("evt-%d", n) }),
		),
	}
	p := New(cfg, tr, st, append(base, opts...)...)
	t.Cleanup(func() { p.Close() })
	return p, sched
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- tests ---

func TestCaptureBatchesToTransport(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, testConfig(), tr, storage.NewMemory())

	for _, m := range []string{"a", "b", "c"} {
		if out := p.Capture(m, capture.Options{}); out != capture.Reported {
			t.Fatalf("Capture(%q) = %v", m, out)
		}
	}

	payloads := tr.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}
	if !payloads[0].Batch || payloads[0].Len() != 3 {
		t.Errorf("payload = batch:%v len:%d, want batch of 3", payloads[0].Batch, payloads[0].Len())
	}
	if !sameOrder(tr.Messages(), []string{"a", "b", "c"}) {
		t.Errorf("messages = %v", tr.Messages())
	}
	r := payloads[0].Reports[0]
	if r.AppID != "app-1" || r.SessionID != "sess-1" || r.EventID != "evt-1" {
		t.Errorf("record identity = %q %q %q", r.AppID, r.SessionID, r.EventID)
	}
}

func TestDelayedFlushReachesTransport(t *testing.T) {
	tr := &mockTransport{}
	p, sched := newTestPipeline(t, testConfig(), tr, storage.NewMemory())

	p.Capture("a", capture.Options{})
	if p.Queued() != 1 || len(tr.Payloads()) != 0 {
		t.Fatalf("queued=%d payloads=%d before delay", p.Queued(), len(tr.Payloads()))
	}
	sched.Advance(time.Second)
	if !sameOrder(tr.Messages(), []string{"a"}) {
		t.Errorf("messages = %v", tr.Messages())
	}
}

func TestBatchingDisabledSendsSingles(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.Batching = false
	tr := &mockTransport{}
	p, sched := newTestPipeline(t, cfg, tr, storage.NewMemory())

	p.Capture("a", capture.Options{})
	p.Capture("b", capture.Options{})

	payloads := tr.Payloads()
	if len(payloads) != 2 || payloads[0].Batch {
		t.Fatalf("payloads = %+v, want two singles", payloads)
	}
	if sched.Pending() != 0 {
		t.Error("unbatched pipeline armed a timer")
	}
}

func TestPageHideFlushes(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, testConfig(), tr, storage.NewMemory())

	p.Capture("a", capture.Options{})
	p.Capture("b", capture.Options{})
	p.PageHide()

	if !sameOrder(tr.Messages(), []string{"a", "b"}) {
		t.Errorf("messages = %v", tr.Messages())
	}
	if p.Queued() != 0 {
		t.Errorf("queued = %d after page hide", p.Queued())
	}
}

func TestOfflineCachesThenRetries(t *testing.T) {
	tr := &mockTransport{}
	st := storage.NewMemory()
	p, _ := newTestPipeline(t, testConfig(), tr, st)

	p.SetOnline(false)
	p.Capture("a", capture.Options{})
	p.Flush()

	if len(tr.Payloads()) != 0 {
		t.Fatal("transport used while offline")
	}
	if len(p.Pending()) != 1 || st.Saves() == 0 {
		t.Fatalf("pending=%d saves=%d, want cached and persisted", len(p.Pending()), st.Saves())
	}

	p.SetOnline(true)
	if !sameOrder(tr.Messages(), []string{"a"}) {
		t.Errorf("messages after reconnect = %v", tr.Messages())
	}
	if len(p.Pending()) != 0 {
		t.Errorf("pending after reconnect = %d", len(p.Pending()))
	}
	if snap := p.Health(); snap.Cached != 1 || snap.Sent != 1 {
		t.Errorf("health = %+v", snap)
	}
}

func seededStorage(t *testing.T, cfg config.Config, msgs ...string) *storage.Memory {
	t.Helper()
	st := storage.NewMemory()
	items := make([]model.CachedItem, len(msgs))
	for i, m := range msgs {
		items[i] = model.CachedItem{Report: model.EventRecord{AppID: cfg.App.ID, EventID: "old-" + m, Message: m}}
	}
	if err := st.Save(cfg.StorageKey(), items); err != nil {
		t.Fatalf("Save: %v", err)
	}
	return st
}

func TestRestoredQueueRetriedWhenStartingOnline(t *testing.T) {
	cfg := testConfig()
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, cfg, tr, seededStorage(t, cfg, "r1", "r2"))

	waitFor(t, func() bool { return len(p.Pending()) == 0 })
	if !sameOrder(tr.Messages(), []string{"r1", "r2"}) {
		t.Errorf("messages = %v, want restored records in order", tr.Messages())
	}
}

func TestRestoredQueueWaitsWhenStartingOffline(t *testing.T) {
	cfg := testConfig()
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, cfg, tr, seededStorage(t, cfg, "r1"), WithProbe(connectivity.Always(false)))

	p.RetryPass(context.Background())
	if len(p.Pending()) != 1 || len(tr.Payloads()) != 0 {
		t.Errorf("pending=%d sent=%d, want queue kept while offline", len(p.Pending()), len(tr.Payloads()))
	}
}

func TestStartupRetryDisabled(t *testing.T) {
	cfg := testConfig()
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, cfg, tr, seededStorage(t, cfg, "r1"), WithStartupRetry(false))

	if len(p.Pending()) != 1 || len(tr.Payloads()) != 0 {
		t.Fatalf("pending=%d sent=%d before explicit retry", len(p.Pending()), len(tr.Payloads()))
	}
	p.RetryPass(context.Background())
	if len(p.Pending()) != 0 || !sameOrder(tr.Messages(), []string{"r1"}) {
		t.Errorf("pending=%d messages=%v after RetryPass", len(p.Pending()), tr.Messages())
	}
}

func TestCacheOnFailureConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Pipeline.CacheOnFailure = true
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, cfg, tr, storage.NewMemory())

	tr.setFailing(true)
	p.Capture("a", capture.Options{})
	p.Flush()
	if len(p.Pending()) != 1 {
		t.Fatalf("pending = %d, want failed batch cached", len(p.Pending()))
	}

	tr.setFailing(false)
	p.RetryPass(context.Background())
	if len(p.Pending()) != 0 {
		t.Errorf("pending after retry = %d", len(p.Pending()))
	}
}

func TestProbeSetsInitialState(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, testConfig(), tr, storage.NewMemory(), WithProbe(connectivity.Always(false)))
	if p.Online() {
		t.Error("pipeline online despite offline probe")
	}
}

func TestRetryPassAfterFailures(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, testConfig(), tr, storage.NewMemory())

	p.SetOnline(false)
	p.Capture("a", capture.Options{})
	p.Flush()
	tr.setFailing(true)
	p.SetOnline(true)
	if len(p.Pending()) != 1 || p.Pending()[0].RetryCount != 1 {
		t.Fatalf("pending = %+v, want one item with RetryCount 1", p.Pending())
	}

	tr.setFailing(false)
	p.RetryPass(context.Background())
	if len(p.Pending()) != 0 {
		t.Errorf("pending after successful pass = %d", len(p.Pending()))
	}
}

func TestDisabledSendsNothing(t *testing.T) {
	cfg := testConfig()
	cfg.App.Enabled = false
	tr := &mockTransport{}
	p, sched := newTestPipeline(t, cfg, tr, storage.NewMemory())

	if out := p.Capture("a", capture.Options{}); out != capture.Disabled {
		t.Errorf("outcome = %v, want disabled", out)
	}
	sched.Advance(time.Minute)
	p.Flush()
	if len(tr.Payloads()) != 0 {
		t.Error("disabled pipeline sent a payload")
	}
}

func TestPluginSetupGetsHandle(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, testConfig(), tr, storage.NewMemory())

	var torn bool
	p.Use(capture.Plugin{
		Name: "boot",
		Setup: func(h capture.Handle) {
			h.AddBreadcrumb("init", "plugin ready", nil)
			h.Capture("from plugin", capture.Options{})
			h.Flush()
		},
		Teardown: func() { torn = true },
	})

	payloads := tr.Payloads()
	if len(payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(payloads))
	}
	r := payloads[0].Reports[0]
	if r.Message != "from plugin" || len(r.Breadcrumbs) != 1 {
		t.Errorf("record = %q with %d breadcrumbs", r.Message, len(r.Breadcrumbs))
	}

	p.Close()
	if !torn {
		t.Error("Teardown not called on Close")
	}
}

func TestPanickingSetupDoesNotEscape(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(), &mockTransport{}, storage.NewMemory())
	p.Use(capture.Plugin{Name: "bad", Setup: func(capture.Handle) { panic("boom") }})
}

func TestSetPolicyAppliesToLaterCaptures(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, testConfig(), tr, storage.NewMemory())

	pol := capture.DefaultPolicy()
	pol.IgnorePatterns = []string{"noise"}
	p.SetPolicy(pol)

	if out := p.Capture("noise from extension", capture.Options{}); out != capture.Filtered {
		t.Errorf("outcome = %v, want filtered", out)
	}
}

func TestCloseFlushesAndReleases(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, testConfig(), tr, storage.NewMemory())

	p.Capture("last words", capture.Options{})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sameOrder(tr.Messages(), []string{"last words"}) {
		t.Errorf("messages = %v", tr.Messages())
	}
	if !tr.closed {
		t.Error("transport not closed")
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestListenSignals(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, testConfig(), tr, storage.NewMemory())

	hide := make(chan struct{})
	conn := make(chan bool)
	p.Listen(Signals{PageHide: hide, Connectivity: conn})

	p.Capture("a", capture.Options{})
	hide <- struct{}{}
	waitFor(t, func() bool { return len(tr.Payloads()) == 1 })

	conn <- false
	waitFor(t, func() bool { return !p.Online() })

	p.Capture("b", capture.Options{})
	p.Flush()
	conn <- true
	waitFor(t, func() bool { return len(p.Pending()) == 0 && len(tr.Payloads()) == 2 })
}

func TestMonitorConnectivity(t *testing.T) {
	tr := &mockTransport{}
	p, _ := newTestPipeline(t, testConfig(), tr, storage.NewMemory())

	var up atomic.Bool
	up.Store(true)
	p.MonitorConnectivity(func(context.Context) bool { return up.Load() }, 5*time.Millisecond)

	up.Store(false)
	waitFor(t, func() bool { return !p.Online() })

	p.Capture("during outage", capture.Options{})
	p.Flush()
	up.Store(true)
	waitFor(t, func() bool { return len(tr.Payloads()) == 1 && len(p.Pending()) == 0 })
}

func TestListenStopsOnClose(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig(), &mockTransport{}, storage.NewMemory())
	p.Listen(Signals{PageHide: make(chan struct{})})

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked on listener")
	}
}

func TestOpenStorageKinds(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind    string
		path    string
		wantNil bool
		wantErr bool
	}{
		{"", "", true, false},
		{"memory", "", false, false},
		{"file", filepath.Join(dir, "files"), false, false},
		{"sqlite", filepath.Join(dir, "db"), false, false},
		{"tape", "", true, true},
	}
	for _, tt := range tests {
		st, err := OpenStorage(config.StorageConfig{Kind: tt.kind, Path: tt.path})
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v", tt.kind, err)
		}
		if (st == nil) != tt.wantNil {
			t.Errorf("%q: storage nil = %v, want %v", tt.kind, st == nil, tt.wantNil)
		}
		if st != nil {
			st.Close()
		}
	}
}

func TestOpenTransportUnknown(t *testing.T) {
	if _, err := OpenTransport(config.TransportConfig{Kind: "pigeon"}, discardLogger()); err == nil {
		t.Error("expected error for unknown transport")
	}
	if _, err := OpenTransport(config.TransportConfig{Kind: "http"}, discardLogger()); err == nil {
		t.Error("expected error for http without endpoint")
	}
}

func TestOpenTransportFanOut(t *testing.T) {
	tr, err := OpenTransport(config.TransportConfig{Kind: "stdout, stdout"}, discardLogger())
	if err != nil {
		t.Fatalf("OpenTransport: %v", err)
	}
	defer tr.Close()
	if _, ok := tr.(*transport.Multi); !ok {
		t.Errorf("transport = %T, want *transport.Multi", tr)
	}
}

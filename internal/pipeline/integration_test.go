package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/crimson-sun/ember/internal/capture"
	"github.com/crimson-sun/ember/internal/config"
	"github.com/crimson-sun/ember/internal/connectivity"
	"github.com/crimson-sun/ember/internal/model"
	"github.com/crimson-sun/ember/internal/transport"
)

// collector is an httptest ingestion endpoint that decodes every payload.
type collector struct {
	mu       sync.Mutex
	reports  []model.EventRecord
	batches  int
	failing  atomic.Bool
	requests atomic.Int64
}

func (c *collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.requests.Add(1)
	if c.failing.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	p, err := transport.Decode(body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	c.mu.Lock()
	c.reports = append(c.reports, p.Reports...)
	if p.Batch {
		c.batches++
	}
	c.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (c *collector) Batches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}

func (c *collector) Messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.reports))
	for i, r := range c.reports {
		out[i] = r.Message
	}
	return out
}

func integrationConfig(t *testing.T, endpoint, kind string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.App.ID = "it-app"
	cfg.Pipeline.BatchSize = 2
	cfg.Transport.Kind = kind
	cfg.Transport.Endpoint = endpoint
	cfg.Storage.Kind = "file"
	cfg.Storage.Path = t.TempDir()
	return cfg
}

func TestIntegrationHTTPBatch(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	p, err := FromConfig(integrationConfig(t, srv.URL, "http"), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer p.Close()

	p.AddBreadcrumb("navigation", "/checkout", nil)
	p.Capture(model.RawEvent{Type: "js", Message: "first"}, capture.Options{})
	p.Capture(model.RawEvent{Type: "js", Message: "second"}, capture.Options{Level: model.LevelWarning})

	if !sameOrder(c.Messages(), []string{"first", "second"}) {
		t.Fatalf("server got %v", c.Messages())
	}
	if c.Batches() != 1 {
		t.Errorf("batches = %d, want 1", c.Batches())
	}
	c.mu.Lock()
	r := c.reports[1]
	c.mu.Unlock()
	if r.AppID != "it-app" || r.Level != model.LevelWarning || len(r.Breadcrumbs) != 1 {
		t.Errorf("decoded record = %+v", r)
	}
}

func TestIntegrationBeaconDelivers(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	p, err := FromConfig(integrationConfig(t, srv.URL, "beacon"), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}

	p.Capture("beacon one", capture.Options{})
	p.PageHide()
	waitFor(t, func() bool { return len(c.Messages()) == 1 })

	// Close drains anything still buffered.
	p.Capture("beacon two", capture.Options{})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !sameOrder(c.Messages(), []string{"beacon one", "beacon two"}) {
		t.Errorf("server got %v", c.Messages())
	}
}

// Records cached offline survive a restart and are delivered once the next
// process comes online.
func TestIntegrationOfflineSurvivesRestart(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	cfg := integrationConfig(t, srv.URL, "http")

	first, err := FromConfig(cfg, WithLogger(discardLogger()), WithProbe(connectivity.Always(false)))
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	first.Capture("while offline", capture.Options{})
	first.Flush()
	if len(first.Pending()) != 1 {
		t.Fatalf("pending = %d, want 1", len(first.Pending()))
	}
	first.Close()
	if c.requests.Load() != 0 {
		t.Fatal("offline pipeline reached the server")
	}

	second, err := FromConfig(cfg, WithLogger(discardLogger()), WithProbe(connectivity.Always(false)))
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer second.Close()
	if len(second.Pending()) != 1 {
		t.Fatalf("restored pending = %d, want 1", len(second.Pending()))
	}

	second.SetOnline(true)
	if !sameOrder(c.Messages(), []string{"while offline"}) {
		t.Errorf("server got %v", c.Messages())
	}
	if len(second.Pending()) != 0 {
		t.Errorf("pending after reconnect = %d", len(second.Pending()))
	}
}

// A process that restarts while online delivers what the previous run left
// in the offline cache without waiting for a connectivity change.
func TestIntegrationRestartOnlineDeliversRestored(t *testing.T) {
	c := &collector{}
	srv := httptest.NewServer(c)
	defer srv.Close()

	cfg := integrationConfig(t, srv.URL, "http")
	cfg.Pipeline.BatchSize = 1

	first, err := FromConfig(cfg, WithLogger(discardLogger()), WithProbe(connectivity.Always(false)))
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	first.Capture("cached before restart", capture.Options{})
	first.Close()

	second, err := FromConfig(cfg, WithLogger(discardLogger()), WithProbe(connectivity.Always(true)))
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer second.Close()
	second.Capture("new", capture.Options{})

	waitFor(t, func() bool { return len(c.Messages()) == 2 })
	got := c.Messages()
	if !slices.Contains(got, "cached before restart") || !slices.Contains(got, "new") {
		t.Errorf("server got %v", got)
	}
	waitFor(t, func() bool { return len(second.Pending()) == 0 })
}

// With cache_on_failure a 5xx while online keeps the batch for the next pass.
func TestIntegrationCacheOnFailureSurvivesServerError(t *testing.T) {
	c := &collector{}
	c.failing.Store(true)
	srv := httptest.NewServer(c)
	defer srv.Close()

	cfg := integrationConfig(t, srv.URL, "http")
	cfg.Pipeline.CacheOnFailure = true

	p, err := FromConfig(cfg, WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer p.Close()

	p.Capture("x", capture.Options{})
	p.Flush()
	if len(p.Pending()) != 1 {
		t.Fatalf("pending after 503 = %d, want 1", len(p.Pending()))
	}

	c.failing.Store(false)
	p.RetryPass(context.Background())
	if !sameOrder(c.Messages(), []string{"x"}) {
		t.Errorf("server got %v", c.Messages())
	}
	if len(p.Pending()) != 0 {
		t.Errorf("pending after recovery = %d", len(p.Pending()))
	}
}

func TestIntegrationServerErrorsExhaustRetries(t *testing.T) {
	c := &collector{}
	c.failing.Store(true)
	srv := httptest.NewServer(c)
	defer srv.Close()

	cfg := integrationConfig(t, srv.URL, "http")
	cfg.Pipeline.MaxRetries = 1

	p, err := FromConfig(cfg, WithLogger(discardLogger()), WithProbe(connectivity.Always(false)))
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	defer p.Close()

	p.Capture("doomed", capture.Options{})
	p.Flush()

	p.SetOnline(true) // attempt 1, RetryCount 1
	if len(p.Pending()) != 1 {
		t.Fatalf("pending after first failure = %d", len(p.Pending()))
	}
	p.SetOnline(false)
	p.SetOnline(true) // attempt 2, RetryCount 2 > MaxRetries
	if len(p.Pending()) != 0 {
		t.Errorf("pending after exhausting retries = %d", len(p.Pending()))
	}
	if snap := p.Health(); snap.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", snap.Dropped)
	}
	if n := c.requests.Load(); n != 2 {
		t.Errorf("server saw %d requests, want 2", n)
	}
}

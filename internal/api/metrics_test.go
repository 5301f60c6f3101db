package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-matter/internal/infrastructure/influxdb"
)

// mockHistory implements MetricsHistory.
type mockHistory struct {
	mu        sync.Mutex
	usage     []influxdb.UsagePoint
	events    map[string]int64
	err       error
	lastStart time.Time
	lastEnd   time.Time
	lastEvery time.Duration
}

func (m *mockHistory) UsageHistory(_ context.Context, start, end time.Time, every time.Duration) ([]influxdb.UsagePoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastStart, m.lastEnd, m.lastEvery = start, end, every
	return m.usage, m.err
}

func (m *mockHistory) EventCounts(context.Context, time.Time) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events, m.err
}

func withHistory(h MetricsHistory) func(*Deps) {
	return func(d *Deps) { d.History = h }
}

func TestMetricsHistory_Disabled(t *testing.T) {
	env := testServer(t, 1, true)
	if rec := env.do(t, http.MethodGet, "/api/v1/metrics/history", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestMetricsHistory(t *testing.T) {
	at := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	hist := &mockHistory{
		usage:  []influxdb.UsagePoint{{Time: at, InUse: 3, Capacity: 16}},
		events: map[string]int64{"endpoint_added": 4, "endpoint_removed": 1},
	}
	env := testServerWith(t, 1, true, withHistory(hist))

	rec := env.do(t, http.MethodGet, "/api/v1/metrics/history?range=2h&every=10m", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	body := decode[HistoryResponse](t, rec)
	if len(body.Usage) != 1 || body.Usage[0].InUse != 3 || body.Usage[0].Capacity != 16 {
		t.Errorf("usage = %+v", body.Usage)
	}
	if body.Events["endpoint_added"] != 4 || body.Every != "10m0s" {
		t.Errorf("events = %v, every = %q", body.Events, body.Every)
	}

	hist.mu.Lock()
	defer hist.mu.Unlock()
	if span := hist.lastEnd.Sub(hist.lastStart); span != 2*time.Hour {
		t.Errorf("queried span = %v, want 2h", span)
	}
	if hist.lastEvery != 10*time.Minute {
		t.Errorf("queried every = %v", hist.lastEvery)
	}
}

func TestMetricsHistory_EmptyUsageIsArray(t *testing.T) {
	env := testServerWith(t, 1, true, withHistory(&mockHistory{}))

	rec := env.do(t, http.MethodGet, "/api/v1/metrics/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decode[map[string]any](t, rec); body["usage"] == nil {
		t.Errorf("usage should be [] not null: %v", body)
	}
}

func TestMetricsHistory_BadParams(t *testing.T) {
	env := testServerWith(t, 1, true, withHistory(&mockHistory{}))

	for _, query := range []string{"?range=abc", "?range=-1h", "?range=1000h", "?every=0s", "?every=soon"} {
		if rec := env.do(t, http.MethodGet, "/api/v1/metrics/history"+query, ""); rec.Code != http.StatusBadRequest {
			t.Errorf("GET history%s status = %d, want 400", query, rec.Code)
		}
	}
}

func TestMetricsHistory_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid range", fmt.Errorf("%w: more than 10000 windows", influxdb.ErrInvalidRange), http.StatusBadRequest},
		{"query failed", fmt.Errorf("%w: %w", influxdb.ErrQueryFailed, errors.New("timeout")), http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testServerWith(t, 1, true, withHistory(&mockHistory{err: tt.err}))
			if rec := env.do(t, http.MethodGet, "/api/v1/metrics/history", ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

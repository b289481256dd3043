package worker

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	reqlinesdk "reqline/sdk/go"
)

// fakeBroker records status changes and posted results for one pending
// request.
type fakeBroker struct {
	mu            sync.Mutex
	pending       []reqlinesdk.Request
	statusCalls   []string
	results       []reqlinesdk.ResultSubmission
	rejectResults bool
}

func (b *fakeBroker) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /requests/pending", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		json.NewEncoder(w).Encode(b.pending)
	})
	mux.HandleFunc("POST /requests/{uuid}/status", func(w http.ResponseWriter, r *http.Request) {
		var change struct {
			Status string `json:"status"`
		}
		json.NewDecoder(r.Body).Decode(&change)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.statusCalls = append(b.statusCalls, change.Status)
		if change.Status == "reserved" {
			b.pending = nil
		}
		json.NewEncoder(w).Encode(reqlinesdk.Request{UUID: r.PathValue("uuid"), Status: change.Status})
	})
	mux.HandleFunc("POST /results", func(w http.ResponseWriter, r *http.Request) {
		var sub reqlinesdk.ResultSubmission
		json.NewDecoder(r.Body).Decode(&sub)
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.rejectResults {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]any{"code": 400, "message": "schema validation failed"})
			return
		}
		b.results = append(b.results, sub)
		json.NewEncoder(w).Encode(reqlinesdk.Result{UUID: "r1", RequestUUID: sub.RequestUUID, Status: "original"})
	})
	return mux
}

func pendingDensityRequest(temperature float64) reqlinesdk.Request {
	return reqlinesdk.Request{
		UUID:     "req-1",
		Quantity: "density",
		Methods:  []string{"rollingBall"},
		Parameters: map[string]map[string]any{
			"rollingBall": {"temperature": temperature},
		},
		Status: "pending",
	}
}

func newTestWorker(t *testing.T, broker *fakeBroker, methods map[string]MethodFunc) *Worker {
	t.Helper()
	ts := httptest.NewServer(broker.handler())
	t.Cleanup(ts.Close)

	client := reqlinesdk.New(ts.URL)
	client.APIKey = "rq_test"
	return &Worker{
		Client: client,
		Tenant: "tenant-1",
		Offers: []Offer{{
			Quantity: "density",
			Method:   "rollingBall",
			Limitations: []any{map[string]any{
				"temperature": []any{map[string]any{"min": 0.0, "max": 100.0}},
			}},
		}},
		Methods: methods,
		Sleep:   time.Millisecond,
		Logger:  log.New(os.Stderr, "worker-test ", 0),
	}
}

func TestRunOnceServesCompatibleRequest(t *testing.T) {
	broker := &fakeBroker{pending: []reqlinesdk.Request{pendingDensityRequest(42)}}
	w := newTestWorker(t, broker, map[string]MethodFunc{
		"rollingBall": func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
			return map[string]any{"density": 0.99}, nil
		},
	})

	require.NoError(t, w.runOnce(context.Background()))

	require.Equal(t, []string{"reserved"}, broker.statusCalls)
	require.Len(t, broker.results, 1)
	require.Equal(t, "req-1", broker.results[0].RequestUUID)
	require.Equal(t, []string{"rollingBall"}, broker.results[0].Methods)
	require.Equal(t, 0.99, broker.results[0].Data["density"])
}

func TestRunOnceSkipsOutOfRangeRequest(t *testing.T) {
	broker := &fakeBroker{pending: []reqlinesdk.Request{pendingDensityRequest(400)}}
	w := newTestWorker(t, broker, map[string]MethodFunc{
		"rollingBall": func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
			t.Fatal("method must not run for an out of range request")
			return nil, nil
		},
	})

	require.NoError(t, w.runOnce(context.Background()))
	require.Empty(t, broker.statusCalls)
	require.Empty(t, broker.results)
}

func TestFailedMethodReleasesRequest(t *testing.T) {
	broker := &fakeBroker{pending: []reqlinesdk.Request{pendingDensityRequest(42)}}
	w := newTestWorker(t, broker, map[string]MethodFunc{
		"rollingBall": func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
			return nil, context.DeadlineExceeded
		},
	})

	err := w.runOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"reserved", "pending"}, broker.statusCalls)
	require.Empty(t, broker.results)
}

func TestFailedResultPostReleasesRequest(t *testing.T) {
	broker := &fakeBroker{
		pending:       []reqlinesdk.Request{pendingDensityRequest(42)},
		rejectResults: true,
	}
	w := newTestWorker(t, broker, map[string]MethodFunc{
		"rollingBall": func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
			return map[string]any{"density": 0.99}, nil
		},
	})

	// The method succeeded but the broker refused the result; the request
	// must not stay reserved.
	err := w.runOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, []string{"reserved", "pending"}, broker.statusCalls)
	require.Empty(t, broker.results)
}

func TestRunStopsAtDeadline(t *testing.T) {
	broker := &fakeBroker{}
	w := newTestWorker(t, broker, map[string]MethodFunc{
		"rollingBall": func(ctx context.Context, method string, params map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
	})
	w.Deadline = time.Now().Add(-time.Minute)

	require.NoError(t, w.Run(context.Background()))
}

func TestWithinLimitations(t *testing.T) {
	limitations := []any{map[string]any{
		"temperature": []any{map[string]any{"min": 0.0, "max": 100.0}, 250.0},
		"unit":        []any{"Celsius", "Kelvin"},
	}}

	cases := []struct {
		name   string
		params map[string]any
		want   bool
	}{
		{"in range", map[string]any{"temperature": 20.0}, true},
		{"point value", map[string]any{"temperature": 250.0}, true},
		{"out of range", map[string]any{"temperature": 150.0}, false},
		{"string literal", map[string]any{"unit": "Kelvin"}, true},
		{"unknown literal", map[string]any{"unit": "Fahrenheit"}, false},
		{"undeclared parameter passes", map[string]any{"pressure": 1.0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, withinLimitations(tc.params, limitations))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "worker.yaml")
	content := `
server_url: http://localhost:13371/api/v1
api_key: rq_secret
tenant_uuid: 11111111-1111-1111-1111-111111111111
sleep_seconds: 0.5
offers:
  - quantity: density
    method: rollingBall
    limitations:
      - temperature:
          - min: 0
            max: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:13371/api/v1", cfg.ServerURL)
	require.Equal(t, 500*time.Millisecond, cfg.Sleep())
	require.Len(t, cfg.Offers, 1)
	require.Equal(t, "rollingBall", cfg.Offers[0].Method)
}

func TestConfigValidation(t *testing.T) {
	valid := Config{
		ServerURL:  "http://localhost:13371/api/v1",
		APIKey:     "rq_secret",
		TenantUUID: "t-1",
		Offers:     []Offer{{Quantity: "density", Method: "rollingBall"}},
	}
	require.NoError(t, valid.Validate())

	missingAuth := valid
	missingAuth.APIKey = ""
	require.Error(t, missingAuth.Validate())

	noOffers := valid
	noOffers.Offers = nil
	require.Error(t, noOffers.Validate())

	badEnd := valid
	badEnd.EndTime = "tomorrow"
	require.Error(t, badEnd.Validate())
}

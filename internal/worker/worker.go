// Package worker runs the tenant-side polling loop: fetch pending requests,
// pick one the tenant can serve, reserve it, compute, post the result.
package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	reqlinesdk "reqline/sdk/go"
)

// MethodFunc computes the result data for one reserved request.
type MethodFunc func(ctx context.Context, method string, parameters map[string]any) (map[string]any, error)

type Worker struct {
	Client   *reqlinesdk.Client
	Tenant   string
	Offers   []Offer
	Methods  map[string]MethodFunc
	Sleep    time.Duration
	Deadline time.Time
	Logger   *log.Logger
	Now      func() time.Time
}

// FromConfig builds a worker from a validated configuration and the tenant's
// method implementations.
func FromConfig(cfg Config, methods map[string]MethodFunc) *Worker {
	client := reqlinesdk.New(cfg.ServerURL)
	client.APIKey = cfg.APIKey
	client.BearerToken = cfg.BearerToken
	return &Worker{
		Client:   client,
		Tenant:   cfg.TenantUUID,
		Offers:   cfg.Offers,
		Methods:  methods,
		Sleep:    cfg.Sleep(),
		Deadline: cfg.Deadline(),
	}
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *Worker) logf(format string, args ...any) {
	if w.Logger != nil {
		w.Logger.Printf(format, args...)
	}
}

// Run polls until the context is cancelled or the deadline passes. Any
// failure after a request was reserved releases it back to pending and stops
// the loop.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.Methods) == 0 {
		return fmt.Errorf("worker has no method implementations")
	}
	for {
		if !w.Deadline.IsZero() && w.now().After(w.Deadline) {
			w.logf("worker deadline reached, stopping")
			return nil
		}
		if err := w.runOnce(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.Sleep):
		}
	}
}

// runOnce performs a single poll cycle.
func (w *Worker) runOnce(ctx context.Context) error {
	for _, offer := range w.Offers {
		pending, err := w.Client.PendingRequests(ctx, offer.Quantity, offer.Method)
		if err != nil {
			w.logf("poll %s/%s: %v", offer.Quantity, offer.Method, err)
			continue
		}
		for _, req := range pending {
			params, ok := w.serveable(offer, req)
			if !ok {
				continue
			}
			return w.serve(ctx, offer, req, params)
		}
	}
	return nil
}

// serveable reports whether req can be served under offer and returns the
// parameter set for the offered method.
func (w *Worker) serveable(offer Offer, req reqlinesdk.Request) (map[string]any, bool) {
	if req.Quantity != offer.Quantity {
		return nil, false
	}
	if _, ok := w.Methods[offer.Method]; !ok {
		return nil, false
	}
	for _, method := range req.Methods {
		if method != offer.Method {
			continue
		}
		params := req.Parameters[method]
		if withinLimitations(params, offer.Limitations) {
			return params, true
		}
	}
	return nil, false
}

func (w *Worker) serve(ctx context.Context, offer Offer, req reqlinesdk.Request, params map[string]any) error {
	if _, err := w.Client.ReserveRequest(ctx, req.UUID, "reserved by tenant "+w.Tenant); err != nil {
		// Another tenant may have grabbed it between poll and reserve.
		w.logf("reserve %s: %v", req.UUID, err)
		return nil
	}
	w.logf("reserved request %s (%s/%s)", req.UUID, offer.Quantity, offer.Method)

	// Once reserved, any failure hands the request back to the pool.
	if err := w.fulfill(ctx, offer, req, params); err != nil {
		w.release(ctx, req.UUID, err)
		return err
	}
	return nil
}

func (w *Worker) fulfill(ctx context.Context, offer Offer, req reqlinesdk.Request, params map[string]any) error {
	data, err := w.Methods[offer.Method](ctx, offer.Method, params)
	if err != nil {
		return fmt.Errorf("method %s failed for request %s: %w", offer.Method, req.UUID, err)
	}

	_, err = w.Client.PostResult(ctx, reqlinesdk.ResultSubmission{
		RequestUUID: req.UUID,
		Quantity:    offer.Quantity,
		Methods:     []string{offer.Method},
		Parameters:  map[string]map[string]any{offer.Method: params},
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("post result for request %s: %w", req.UUID, err)
	}
	w.logf("posted result for request %s", req.UUID)
	return nil
}

func (w *Worker) release(ctx context.Context, requestUUID string, cause error) {
	if _, err := w.Client.ReleaseRequest(ctx, requestUUID,
		fmt.Sprintf("released by tenant %s: %v", w.Tenant, cause)); err != nil {
		w.logf("release %s: %v", requestUUID, err)
	}
}

// withinLimitations is a best-effort client-side filter. It checks numeric
// parameters against declared ranges and point values, and string parameters
// against declared literals. Parameters the limitations do not mention pass.
func withinLimitations(params map[string]any, limitations any) bool {
	if limitations == nil {
		return true
	}
	candidates, ok := limitations.([]any)
	if !ok {
		candidates = []any{limitations}
	}
	for _, candidate := range candidates {
		fragment, ok := candidate.(map[string]any)
		if !ok {
			continue
		}
		if matchesFragment(params, fragment) {
			return true
		}
	}
	return false
}

func matchesFragment(params map[string]any, fragment map[string]any) bool {
	for key, value := range params {
		declared, ok := fragment[key]
		if !ok {
			continue
		}
		if !matchesValue(value, declared) {
			return false
		}
	}
	return true
}

func matchesValue(value, declared any) bool {
	options, ok := declared.([]any)
	if !ok {
		options = []any{declared}
	}
	switch v := value.(type) {
	case float64:
		return matchesNumeric(v, options)
	case int:
		return matchesNumeric(float64(v), options)
	case string:
		for _, opt := range options {
			if s, ok := opt.(string); ok && s == v {
				return true
			}
		}
		return false
	default:
		// Nested shapes are validated server-side.
		return true
	}
}

func matchesNumeric(v float64, options []any) bool {
	for _, opt := range options {
		switch o := opt.(type) {
		case float64:
			if o == v {
				return true
			}
		case int:
			if float64(o) == v {
				return true
			}
		case map[string]any:
			if inRange(v, o) {
				return true
			}
		}
	}
	return false
}

func inRange(v float64, bounds map[string]any) bool {
	if min, ok := toFloat(bounds["min"]); ok && v < min {
		return false
	}
	if max, ok := toFloat(bounds["max"]); ok && v > max {
		return false
	}
	return true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/fault"
	"reqline/internal/migrate"
	"reqline/internal/registry"
)

type testEnv struct {
	eng *Engine
	reg *registry.Registry
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, db.EnsureWorkspace(dir))
	conn, err := db.Open(db.Path(dir))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		base = base.Add(time.Second)
		return base
	}
	eng := New(conn)
	eng.Now = clock
	reg := registry.New(conn)
	reg.Now = clock

	_, err = reg.AddCapability(context.Background(), registry.CapabilitySpec{
		Quantity: "density",
		Method:   "rollingBall",
		Specifications: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"temperature": map[string]any{"type": "number"},
			},
			"required": []any{"temperature"},
		},
		ResultOutput: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"density": map[string]any{"type": "number"},
			},
			"required": []any{"density"},
		},
		IsActive: true,
	})
	require.NoError(t, err)

	return testEnv{eng: eng, reg: reg}
}

const tenantUUID = "11111111-1111-1111-1111-111111111111"

func densityRequest() RequestSubmission {
	return RequestSubmission{
		Quantity: "density",
		Methods:  []string{"rollingBall"},
		Parameters: map[string]map[string]any{
			"rollingBall": {"temperature": 25.0},
		},
		TenantUUID: tenantUUID,
	}
}

func resultFor(requestUUID string) ResultSubmission {
	return ResultSubmission{
		RequestUUID: requestUUID,
		Quantity:    "density",
		Methods:     []string{"rollingBall"},
		Parameters: map[string]map[string]any{
			"rollingBall": {"temperature": 25.0},
		},
		Data:       map[string]any{"density": 0.997},
		TenantUUID: tenantUUID,
	}
}

func TestRequestLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	req, err := env.eng.CreateRequest(ctx, densityRequest())
	require.NoError(t, err)
	require.Equal(t, domain.RequestPending, req.Status)

	pending, err := env.eng.GetPendingRequests(ctx, "density", "rollingBall")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, req.UUID, pending[0].UUID)
	require.Equal(t, []string{"rollingBall"}, pending[0].Methods)

	res, err := env.eng.CreateResult(ctx, resultFor(req.UUID))
	require.NoError(t, err)
	require.Equal(t, domain.ResultOriginal, res.Status)
	require.Equal(t, "rollingBall", res.Method)

	// Posting the result resolves the request and drains the pending pool.
	stored, err := env.eng.GetRequest(ctx, req.UUID)
	require.NoError(t, err)
	require.Equal(t, domain.RequestResolved, stored.Status)

	pending, err = env.eng.GetPendingRequests(ctx, "", "")
	require.NoError(t, err)
	require.Empty(t, pending)

	history, err := env.eng.RequestHistory(ctx, req.UUID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.RequestPending, history[0].Status)
	require.Equal(t, domain.RequestResolved, history[1].Status)

	byRequest, err := env.eng.GetResultByRequest(ctx, req.UUID)
	require.NoError(t, err)
	require.Equal(t, res.UUID, byRequest.UUID)
}

func TestCreateRequestMismatchedKeys(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	sub := densityRequest()
	sub.Parameters = map[string]map[string]any{
		"otherMethod": {"temperature": 25.0},
	}
	_, err := env.eng.CreateRequest(ctx, sub)
	var validation fault.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
}

func TestCreateRequestUnknownMethod(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	sub := RequestSubmission{
		Quantity: "density",
		Methods:  []string{"oscillatingTube"},
		Parameters: map[string]map[string]any{
			"oscillatingTube": {"temperature": 25.0},
		},
		TenantUUID: tenantUUID,
	}
	_, err := env.eng.CreateRequest(ctx, sub)
	var validation fault.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
}

func TestCreateRequestInvalidParameters(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	sub := densityRequest()
	sub.Parameters["rollingBall"] = map[string]any{"temperature": "hot"}
	_, err := env.eng.CreateRequest(ctx, sub)
	var validation fault.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
}

func TestCreateResultWithoutRequest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	_, err := env.eng.CreateResult(ctx, resultFor("22222222-2222-2222-2222-222222222222"))
	var notFound fault.NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
}

func TestCreateResultSingleMethodEnforced(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	req, err := env.eng.CreateRequest(ctx, densityRequest())
	require.NoError(t, err)

	sub := resultFor(req.UUID)
	sub.Methods = []string{"rollingBall", "oscillatingTube"}
	_, err = env.eng.CreateResult(ctx, sub)
	var validation fault.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
}

func TestCreateResultInvalidData(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	req, err := env.eng.CreateRequest(ctx, densityRequest())
	require.NoError(t, err)

	sub := resultFor(req.UUID)
	sub.Data = map[string]any{"density": "syrupy"}
	_, err = env.eng.CreateResult(ctx, sub)
	var validation fault.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
}

func TestChangeStatusRequestRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	req, err := env.eng.CreateRequest(ctx, densityRequest())
	require.NoError(t, err)

	// Reserving and releasing are tenant transitions.
	reserved, err := env.eng.ChangeStatusRequest(ctx, req.UUID, domain.RequestReserved, "taken")
	require.NoError(t, err)
	require.Equal(t, domain.RequestReserved, reserved.Status)

	// Re-annotating the current status is allowed.
	_, err = env.eng.ChangeStatusRequest(ctx, req.UUID, domain.RequestReserved, "still working")
	require.NoError(t, err)

	var illegal fault.IllegalTransitionError
	_, err = env.eng.ChangeStatusRequest(ctx, req.UUID, domain.RequestResolved, "")
	require.True(t, errors.As(err, &illegal), "got %v", err)
	_, err = env.eng.ChangeStatusRequest(ctx, req.UUID, domain.RequestUnsolicited, "")
	require.True(t, errors.As(err, &illegal), "got %v", err)

	var validation fault.ValidationError
	_, err = env.eng.ChangeStatusRequest(ctx, req.UUID, "sideways", "")
	require.True(t, errors.As(err, &validation), "got %v", err)

	// Once resolved, the request is frozen.
	_, err = env.eng.CreateResult(ctx, resultFor(req.UUID))
	require.NoError(t, err)
	_, err = env.eng.ChangeStatusRequest(ctx, req.UUID, domain.RequestRetracted, "")
	require.True(t, errors.As(err, &illegal), "got %v", err)
}

func TestChangeStatusResultRules(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	req, err := env.eng.CreateRequest(ctx, densityRequest())
	require.NoError(t, err)
	res, err := env.eng.CreateResult(ctx, resultFor(req.UUID))
	require.NoError(t, err)

	// Original is the birth status and cannot be requested.
	var illegal fault.IllegalTransitionError
	_, err = env.eng.ChangeStatusResult(ctx, res.UUID, domain.ResultOriginal, "")
	require.True(t, errors.As(err, &illegal), "got %v", err)

	var validation fault.ValidationError
	_, err = env.eng.ChangeStatusResult(ctx, res.UUID, "polished", "")
	require.True(t, errors.As(err, &validation), "got %v", err)

	amended, err := env.eng.ChangeStatusResult(ctx, res.UUID, domain.ResultAmended, "corrected calibration")
	require.NoError(t, err)
	require.Equal(t, domain.ResultAmended, amended.Status)

	history, err := env.eng.ResultHistory(ctx, res.UUID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, domain.ResultOriginal, history[0].Status)
	require.Equal(t, domain.ResultAmended, history[1].Status)
}

func TestUnsolicitedResult(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	sub := resultFor("")
	sub.RequestUUID = ""
	res, err := env.eng.CreateUnsolicitedResult(ctx, sub)
	require.NoError(t, err)
	require.Equal(t, domain.ResultOriginal, res.Status)
	require.NotEmpty(t, res.RequestUUID)

	// The synthetic request stays unsolicited and never enters the pool.
	backing, err := env.eng.GetRequest(ctx, res.RequestUUID)
	require.NoError(t, err)
	require.Equal(t, domain.RequestUnsolicited, backing.Status)

	pending, err := env.eng.GetPendingRequests(ctx, "", "")
	require.NoError(t, err)
	require.Empty(t, pending)

	// And it is frozen like any other terminal request.
	_, err = env.eng.ChangeStatusRequest(ctx, res.RequestUUID, domain.RequestPending, "")
	var illegal fault.IllegalTransitionError
	require.True(t, errors.As(err, &illegal), "got %v", err)
}

func TestGetAllRequestsAndResults(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	req, err := env.eng.CreateRequest(ctx, densityRequest())
	require.NoError(t, err)
	_, err = env.eng.CreateResult(ctx, resultFor(req.UUID))
	require.NoError(t, err)

	reqs, err := env.eng.GetAllRequests(ctx, "density", "")
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	results, err := env.eng.GetAllResults(ctx, "density", "rollingBall")
	require.NoError(t, err)
	require.Len(t, results, 1)

	none, err := env.eng.GetAllResults(ctx, "viscosity", "")
	require.NoError(t, err)
	require.Empty(t, none)
}

package registry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/fault"
	"reqline/internal/migrate"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, db.EnsureWorkspace(dir))
	conn, err := db.Open(db.Path(dir))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(context.Background(), conn))
	return conn
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := New(newTestDB(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg.Now = func() time.Time {
		base = base.Add(time.Second)
		return base
	}
	return reg
}

func densitySpec() CapabilitySpec {
	return CapabilitySpec{
		Quantity: "density",
		Method:   "rollingBall",
		Specifications: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"temperature": map[string]any{"type": "number"},
				"unit":        map[string]any{"type": "string"},
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
	}
}

func TestAddCapabilityRejectsActiveDuplicate(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)

	_, err := reg.AddCapability(ctx, densitySpec())
	require.NoError(t, err)

	_, err = reg.AddCapability(ctx, densitySpec())
	var duplicate fault.DuplicateError
	require.True(t, errors.As(err, &duplicate), "got %v", err)

	// After deactivation a fresh version may be registered.
	require.NoError(t, reg.DeactivateCapability(ctx, "rollingBall"))
	_, err = reg.AddCapability(ctx, densitySpec())
	require.NoError(t, err)
}

func TestDeactivateCapabilityUnknownMethod(t *testing.T) {
	reg := newTestRegistry(t)
	err := reg.DeactivateCapability(context.Background(), "nope")
	var notFound fault.NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
}

func TestAddTenantValidatesLimitations(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	_, err := reg.AddCapability(ctx, densitySpec())
	require.NoError(t, err)

	tenant, err := reg.AddTenant(ctx, TenantSpec{
		Name: "viscometer-lab",
		Limitations: []domain.Limitation{{
			Quantity: "density",
			Method:   "rollingBall",
			Limitations: []any{map[string]any{
				"temperature": []any{map[string]any{"min": 0.0, "max": 100.0}},
				"unit":        []any{"Celsius"},
			}},
		}},
	})
	require.NoError(t, err)
	require.True(t, tenant.IsActive)
	require.NotEmpty(t, tenant.UUID)
}

func TestAddTenantRejectsInvalidLimitations(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	_, err := reg.AddCapability(ctx, densitySpec())
	require.NoError(t, err)

	_, err = reg.AddTenant(ctx, TenantSpec{
		Name: "broken-lab",
		Limitations: []domain.Limitation{{
			Quantity:    "density",
			Method:      "rollingBall",
			Limitations: []any{map[string]any{"temperature": "everything"}},
		}},
	})
	var validation fault.ValidationError
	require.True(t, errors.As(err, &validation), "got %v", err)
}

func TestAddTenantRejectsUnknownCapability(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.AddTenant(context.Background(), TenantSpec{
		Name: "lost-lab",
		Limitations: []domain.Limitation{{
			Quantity:    "density",
			Method:      "rollingBall",
			Limitations: []any{},
		}},
	})
	var notFound fault.NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)
}

func TestAddTenantRejectsIdenticalDuplicate(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	_, err := reg.AddCapability(ctx, densitySpec())
	require.NoError(t, err)

	spec := TenantSpec{
		Name: "twin-lab",
		Limitations: []domain.Limitation{{
			Quantity:    "density",
			Method:      "rollingBall",
			Limitations: []any{},
		}},
	}
	first, err := reg.AddTenant(ctx, spec)
	require.NoError(t, err)

	// An active tenant blocks the name outright.
	var duplicate fault.DuplicateError
	_, err = reg.AddTenant(ctx, spec)
	require.True(t, errors.As(err, &duplicate), "got %v", err)

	// An inactive tenant still blocks byte-identical limitations.
	_, err = reg.AlterTenantState(ctx, first.UUID, false)
	require.NoError(t, err)
	_, err = reg.AddTenant(ctx, spec)
	require.True(t, errors.As(err, &duplicate), "got %v", err)

	// Different limitations under the retired name are a new registration.
	spec.Limitations[0].Limitations = []any{map[string]any{"unit": []any{"Kelvin"}}}
	second, err := reg.AddTenant(ctx, spec)
	require.NoError(t, err)

	// Reactivating the retired tenant collides with the new active one.
	_, err = reg.AlterTenantState(ctx, first.UUID, true)
	require.True(t, errors.As(err, &duplicate), "got %v", err)

	// Once the name is free again, reactivation succeeds.
	_, err = reg.AlterTenantState(ctx, second.UUID, false)
	require.NoError(t, err)
	reactivated, err := reg.AlterTenantState(ctx, first.UUID, true)
	require.NoError(t, err)
	require.True(t, reactivated.IsActive)
}

func TestGetCapabilitiesCurrentlyAvailable(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	_, err := reg.AddCapability(ctx, densitySpec())
	require.NoError(t, err)

	// Nobody serves the capability yet.
	available, err := reg.GetCapabilities(ctx, "", "", true)
	require.NoError(t, err)
	require.Empty(t, available)

	all, err := reg.GetCapabilities(ctx, "", "", false)
	require.NoError(t, err)
	require.Len(t, all, 1)

	tenant, err := reg.AddTenant(ctx, TenantSpec{
		Name: "viscometer-lab",
		Limitations: []domain.Limitation{{
			Quantity:    "density",
			Method:      "rollingBall",
			Limitations: []any{},
		}},
	})
	require.NoError(t, err)

	available, err = reg.GetCapabilities(ctx, "", "", true)
	require.NoError(t, err)
	require.Len(t, available, 1)

	// Deactivating the tenant removes the coverage again.
	_, err = reg.AlterTenantState(ctx, tenant.UUID, false)
	require.NoError(t, err)
	available, err = reg.GetCapabilities(ctx, "", "", true)
	require.NoError(t, err)
	require.Empty(t, available)
}

func TestGetLimitationsAggregatesPerPair(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	_, err := reg.AddCapability(ctx, densitySpec())
	require.NoError(t, err)

	_, err = reg.AddTenant(ctx, TenantSpec{
		Name: "lab-one",
		Limitations: []domain.Limitation{{
			Quantity:    "density",
			Method:      "rollingBall",
			Limitations: []any{map[string]any{"unit": []any{"Celsius"}}},
		}},
	})
	require.NoError(t, err)
	_, err = reg.AddTenant(ctx, TenantSpec{
		Name: "lab-two",
		Limitations: []domain.Limitation{{
			Quantity:    "density",
			Method:      "rollingBall",
			Limitations: []any{map[string]any{"unit": []any{"Kelvin"}}},
		}},
	})
	require.NoError(t, err)

	limitations, err := reg.GetLimitations(ctx, true)
	require.NoError(t, err)
	require.Len(t, limitations, 1)
	require.Equal(t, "density", limitations[0].Quantity)
	require.Equal(t, "rollingBall", limitations[0].Method)
	require.Len(t, limitations[0].Limitations, 2)
}

func TestAlterTenantState(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	_, err := reg.AddCapability(ctx, densitySpec())
	require.NoError(t, err)

	tenant, err := reg.AddTenant(ctx, TenantSpec{Name: "solo-lab"})
	require.NoError(t, err)

	_, err = reg.AlterTenantState(ctx, "00000000-0000-0000-0000-000000000000", false)
	var notFound fault.NotFoundError
	require.True(t, errors.As(err, &notFound), "got %v", err)

	// The tenant is already active.
	_, err = reg.AlterTenantState(ctx, tenant.UUID, true)
	var illegal fault.IllegalTransitionError
	require.True(t, errors.As(err, &illegal), "got %v", err)

	updated, err := reg.AlterTenantState(ctx, tenant.UUID, false)
	require.NoError(t, err)
	require.False(t, updated.IsActive)
}

func TestSchemaTemplates(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry(t)
	_, err := reg.AddCapability(ctx, densitySpec())
	require.NoError(t, err)

	templates, err := reg.SchemaTemplates(ctx, "density", "", false)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	require.Equal(t, "required, float", templates[0].Input["temperature"])
	require.Equal(t, "optional, str", templates[0].Input["unit"])
	require.Equal(t, "required, float", templates[0].Output["density"])
}

// Package registry manages the capability map and the tenant roster.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"reqline/internal/domain"
	"reqline/internal/fault"
	"reqline/internal/repo"
	"reqline/internal/schema"
)

type Registry struct {
	DB   *sql.DB
	Repo repo.Repo
	Now  func() time.Time
}

func New(db *sql.DB) *Registry {
	return &Registry{
		DB:   db,
		Repo: repo.Repo{DB: db},
		Now:  time.Now,
	}
}

func (g *Registry) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

// CapabilitySpec is the submission shape for a new capability.
type CapabilitySpec struct {
	Quantity       string
	Method         string
	Specifications map[string]any
	ResultOutput   map[string]any
	IsActive       bool
}

// AddCapability registers a capability after checking that its schemas
// compile and that no active row exists for the same (quantity, method) pair.
func (g *Registry) AddCapability(ctx context.Context, spec CapabilitySpec) (domain.Capability, error) {
	if spec.Quantity == "" || spec.Method == "" {
		return domain.Capability{}, fault.Validationf("capability needs both a quantity and a method")
	}
	if spec.Specifications == nil {
		spec.Specifications = map[string]any{}
	}
	if spec.ResultOutput == nil {
		spec.ResultOutput = map[string]any{}
	}
	if _, err := schema.Compile(spec.Specifications); err != nil {
		return domain.Capability{}, err
	}
	if _, err := schema.Compile(spec.ResultOutput); err != nil {
		return domain.Capability{}, err
	}
	// The derived limitations schema must exist for every capability, or
	// tenants could never register against it.
	if _, err := schema.DeriveLimitations(spec.Specifications); err != nil {
		return domain.Capability{}, err
	}

	if spec.IsActive {
		existing, err := g.Repo.ListCapabilities(ctx, repo.CapabilityFilters{
			Quantity: spec.Quantity, Method: spec.Method, ActiveOnly: true,
		})
		if err != nil {
			return domain.Capability{}, err
		}
		if len(existing) > 0 {
			return domain.Capability{}, fault.Duplicatef(
				"quantity %q method %q is already active in the capability map", spec.Quantity, spec.Method)
		}
	}

	c := domain.Capability{
		UUID:           uuid.NewString(),
		Quantity:       spec.Quantity,
		Method:         spec.Method,
		Specifications: spec.Specifications,
		ResultOutput:   spec.ResultOutput,
		IsActive:       spec.IsActive,
		CreatedAt:      g.now(),
	}

	tx, err := g.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Capability{}, err
	}
	defer tx.Rollback()
	if err := g.Repo.InsertCapability(ctx, tx, c); err != nil {
		return domain.Capability{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Capability{}, err
	}
	return c, nil
}

// DeactivateCapability retires the active capability registered for method.
func (g *Registry) DeactivateCapability(ctx context.Context, method string) error {
	active, err := g.Repo.ListCapabilities(ctx, repo.CapabilityFilters{Method: method, ActiveOnly: true})
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return fault.NotFoundf("no method %q is currently active in the capability map", method)
	}

	tx, err := g.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, c := range active {
		if err := g.Repo.SetCapabilityActive(ctx, tx, c.UUID, false); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetCapabilities lists active capabilities. With currentlyAvailable set, only
// capabilities for which at least one active tenant declares a limitation are
// returned.
func (g *Registry) GetCapabilities(ctx context.Context, quantity, method string, currentlyAvailable bool) ([]domain.Capability, error) {
	caps, err := g.Repo.ListCapabilities(ctx, repo.CapabilityFilters{
		Quantity: quantity, Method: method, ActiveOnly: true,
	})
	if err != nil {
		return nil, err
	}
	if !currentlyAvailable {
		return caps, nil
	}

	covered, err := g.coveredPairs(ctx)
	if err != nil {
		return nil, err
	}
	available := caps[:0]
	for _, c := range caps {
		if covered[pair{c.Quantity, c.Method}] {
			available = append(available, c)
		}
	}
	return available, nil
}

type pair struct{ quantity, method string }

// coveredPairs collects the (quantity, method) pairs active tenants offer.
func (g *Registry) coveredPairs(ctx context.Context) (map[pair]bool, error) {
	tenants, err := g.Repo.ListTenants(ctx, repo.TenantFilters{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	covered := map[pair]bool{}
	for _, t := range tenants {
		for _, lim := range t.Limitations {
			covered[pair{lim.Quantity, lim.Method}] = true
		}
	}
	return covered, nil
}

// GetLimitations aggregates tenant limitations per (quantity, method) pair.
// With currentlyAvailable set only active tenants contribute.
func (g *Registry) GetLimitations(ctx context.Context, currentlyAvailable bool) ([]domain.Limitation, error) {
	tenants, err := g.Repo.ListTenants(ctx, repo.TenantFilters{ActiveOnly: currentlyAvailable})
	if err != nil {
		return nil, err
	}

	merged := map[pair][]any{}
	var order []pair
	for _, t := range tenants {
		for _, lim := range t.Limitations {
			key := pair{lim.Quantity, lim.Method}
			if _, seen := merged[key]; !seen {
				order = append(order, key)
			}
			// A tenant may declare a single fragment or a list of them.
			if list, ok := lim.Limitations.([]any); ok {
				merged[key] = append(merged[key], list...)
			} else {
				merged[key] = append(merged[key], lim.Limitations)
			}
		}
	}

	out := make([]domain.Limitation, 0, len(order))
	for _, key := range order {
		out = append(out, domain.Limitation{
			Quantity:    key.quantity,
			Method:      key.method,
			Limitations: merged[key],
		})
	}
	return out, nil
}

// TenantSpec is the submission shape for a new tenant.
type TenantSpec struct {
	Name          string
	ContactPerson string
	Limitations   []domain.Limitation
}

// AddTenant validates each declared limitation against the derived
// limitations schema of its capability and registers the tenant as active.
func (g *Registry) AddTenant(ctx context.Context, spec TenantSpec) (domain.Tenant, error) {
	if spec.Name == "" {
		return domain.Tenant{}, fault.Validationf("tenant needs a name")
	}
	if spec.Limitations == nil {
		spec.Limitations = []domain.Limitation{}
	}

	for _, lim := range spec.Limitations {
		if err := g.validateLimitation(ctx, lim); err != nil {
			return domain.Tenant{}, err
		}
	}

	if err := g.checkDuplicateTenant(ctx, spec); err != nil {
		return domain.Tenant{}, err
	}

	tenant := domain.Tenant{
		UUID:          uuid.NewString(),
		Name:          spec.Name,
		ContactPerson: spec.ContactPerson,
		Limitations:   spec.Limitations,
		IsActive:      true,
		CreatedAt:     g.now(),
	}

	tx, err := g.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()
	if err := g.Repo.InsertTenant(ctx, tx, tenant); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	return tenant, nil
}

func (g *Registry) validateLimitation(ctx context.Context, lim domain.Limitation) error {
	caps, err := g.Repo.ListCapabilities(ctx, repo.CapabilityFilters{
		Quantity: lim.Quantity, Method: lim.Method, ActiveOnly: true,
	})
	if err != nil {
		return err
	}
	if len(caps) == 0 {
		return fault.NotFoundf(
			"no active capability for quantity %q method %q to declare limitations against",
			lim.Quantity, lim.Method)
	}
	limitationsSchema, err := schema.DeriveLimitations(caps[0].Specifications)
	if err != nil {
		return err
	}
	return schema.Validate(limitationsSchema, lim.Limitations)
}

// checkDuplicateTenant rejects a registration when an active tenant already
// carries the name, or when an inactive tenant carries the name with
// byte-identical limitations. The latter is an ambiguous re-registration;
// reactivate the existing tenant instead.
func (g *Registry) checkDuplicateTenant(ctx context.Context, spec TenantSpec) error {
	existing, err := g.Repo.ListTenants(ctx, repo.TenantFilters{Name: spec.Name})
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return nil
	}
	submitted, err := json.Marshal(spec.Limitations)
	if err != nil {
		return err
	}
	for _, t := range existing {
		if t.IsActive {
			return fault.Duplicatef("an active tenant named %q already exists", spec.Name)
		}
		stored, err := json.Marshal(t.Limitations)
		if err != nil {
			return err
		}
		if string(stored) == string(submitted) {
			return fault.Duplicatef(
				"an inactive tenant named %q already exists with identical limitations", spec.Name)
		}
	}
	return nil
}

// AlterTenantState flips a tenant's is_active flag. A no-op transition fails.
func (g *Registry) AlterTenantState(ctx context.Context, tenantUUID string, active bool) (domain.Tenant, error) {
	tenant, err := g.Repo.GetTenant(ctx, tenantUUID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Tenant{}, fault.NotFoundf("no tenant exists with uuid %q", tenantUUID)
	}
	if err != nil {
		return domain.Tenant{}, err
	}
	if tenant.IsActive == active {
		return domain.Tenant{}, fault.IllegalTransitionf(
			"tenant %q already has is_active state %t", tenantUUID, active)
	}
	if active {
		// Name uniqueness holds among active tenants.
		others, err := g.Repo.ListTenants(ctx, repo.TenantFilters{Name: tenant.Name, ActiveOnly: true})
		if err != nil {
			return domain.Tenant{}, err
		}
		if len(others) > 0 {
			return domain.Tenant{}, fault.Duplicatef(
				"an active tenant named %q already exists", tenant.Name)
		}
	}

	tx, err := g.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Tenant{}, err
	}
	defer tx.Rollback()
	if err := g.Repo.SetTenantActive(ctx, tx, tenantUUID, active); err != nil {
		return domain.Tenant{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Tenant{}, err
	}
	tenant.IsActive = active
	return tenant, nil
}

// TenantsByName returns tenants matching name, or all tenants when name is
// empty. An empty match on a concrete name is an error.
func (g *Registry) TenantsByName(ctx context.Context, name string) ([]domain.Tenant, error) {
	tenants, err := g.Repo.ListTenants(ctx, repo.TenantFilters{Name: name})
	if err != nil {
		return nil, err
	}
	if len(tenants) == 0 && name != "" {
		return nil, fault.NotFoundf("no tenant registered with name %q", name)
	}
	return tenants, nil
}

// CapabilityTemplate pairs the rendered input and output parameter templates
// of one capability.
type CapabilityTemplate struct {
	Quantity string         `json:"quantity"`
	Method   string         `json:"method"`
	Input    map[string]any `json:"input_template"`
	Output   map[string]any `json:"output_template"`
}

// SchemaTemplates renders human readable templates for the selected
// capabilities.
func (g *Registry) SchemaTemplates(ctx context.Context, quantity, method string, currentlyAvailable bool) ([]CapabilityTemplate, error) {
	caps, err := g.GetCapabilities(ctx, quantity, method, currentlyAvailable)
	if err != nil {
		return nil, err
	}
	out := make([]CapabilityTemplate, 0, len(caps))
	for _, c := range caps {
		input, err := schema.Template(c.Specifications, nil)
		if err != nil {
			return nil, err
		}
		output, err := schema.Template(c.ResultOutput, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, CapabilityTemplate{
			Quantity: c.Quantity,
			Method:   c.Method,
			Input:    input,
			Output:   output,
		})
	}
	return out, nil
}

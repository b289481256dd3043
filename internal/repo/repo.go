// Package repo implements sqlite persistence for capabilities, tenants,
// requests, results and their quantity links.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"reqline/internal/domain"
)

// ErrNotFound is returned when a row does not exist. Callers translate it
// into their own error taxonomy.
var ErrNotFound = errors.New("not found")

type Repo struct {
	DB *sql.DB
}

func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func encodeJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode json: %w", err)
	}
	return string(raw), nil
}

// Capabilities.

type CapabilityFilters struct {
	Quantity   string
	Method     string
	ActiveOnly bool
}

func (r Repo) InsertCapability(ctx context.Context, tx *sql.Tx, c domain.Capability) error {
	specs, err := encodeJSON(c.Specifications)
	if err != nil {
		return err
	}
	output, err := encodeJSON(c.ResultOutput)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO capabilities (uuid, quantity, method, specifications, result_output, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.UUID, c.Quantity, c.Method, specs, output, boolInt(c.IsActive), encodeTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert capability: %w", err)
	}
	return nil
}

func (r Repo) GetCapability(ctx context.Context, id string) (domain.Capability, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT uuid, quantity, method, specifications, result_output, is_active, created_at
		FROM capabilities WHERE uuid = ?`, id)
	return scanCapability(row)
}

func (r Repo) ListCapabilities(ctx context.Context, f CapabilityFilters) ([]domain.Capability, error) {
	clauses := []string{"1 = 1"}
	args := []any{}
	if f.Quantity != "" {
		clauses = append(clauses, "quantity = ?")
		args = append(args, f.Quantity)
	}
	if f.Method != "" {
		clauses = append(clauses, "method = ?")
		args = append(args, f.Method)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "is_active = 1")
	}
	query := `
		SELECT uuid, quantity, method, specifications, result_output, is_active, created_at
		FROM capabilities WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at, uuid`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list capabilities: %w", err)
	}
	defer rows.Close()

	var out []domain.Capability
	for rows.Next() {
		c, err := scanCapability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r Repo) SetCapabilityActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE capabilities SET is_active = ? WHERE uuid = ?`, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("update capability: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCapability(row rowScanner) (domain.Capability, error) {
	var c domain.Capability
	var specs, output, createdAt string
	var active int
	err := row.Scan(&c.UUID, &c.Quantity, &c.Method, &specs, &output, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Capability{}, ErrNotFound
	}
	if err != nil {
		return domain.Capability{}, fmt.Errorf("scan capability: %w", err)
	}
	if err := json.Unmarshal([]byte(specs), &c.Specifications); err != nil {
		return domain.Capability{}, fmt.Errorf("decode specifications: %w", err)
	}
	if err := json.Unmarshal([]byte(output), &c.ResultOutput); err != nil {
		return domain.Capability{}, fmt.Errorf("decode result output: %w", err)
	}
	c.IsActive = active != 0
	c.CreatedAt = decodeTime(createdAt)
	return c, nil
}

// Tenants.

type TenantFilters struct {
	Name       string
	ActiveOnly bool
}

func (r Repo) InsertTenant(ctx context.Context, tx *sql.Tx, t domain.Tenant) error {
	limitations, err := encodeJSON(t.Limitations)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tenants (uuid, name, contact_person, limitations, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.UUID, t.Name, nullable(t.ContactPerson), limitations, boolInt(t.IsActive), encodeTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (r Repo) GetTenant(ctx context.Context, id string) (domain.Tenant, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT uuid, name, contact_person, limitations, is_active, created_at
		FROM tenants WHERE uuid = ?`, id)
	return scanTenant(row)
}

func (r Repo) ListTenants(ctx context.Context, f TenantFilters) ([]domain.Tenant, error) {
	clauses := []string{"1 = 1"}
	args := []any{}
	if f.Name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, f.Name)
	}
	if f.ActiveOnly {
		clauses = append(clauses, "is_active = 1")
	}
	query := `
		SELECT uuid, name, contact_person, limitations, is_active, created_at
		FROM tenants WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY created_at, uuid`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r Repo) SetTenantActive(ctx context.Context, tx *sql.Tx, id string, active bool) error {
	res, err := tx.ExecContext(ctx, `UPDATE tenants SET is_active = ? WHERE uuid = ?`, boolInt(active), id)
	if err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	return requireRow(res)
}

func scanTenant(row rowScanner) (domain.Tenant, error) {
	var t domain.Tenant
	var contact sql.NullString
	var limitations, createdAt string
	var active int
	err := row.Scan(&t.UUID, &t.Name, &contact, &limitations, &active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Tenant{}, ErrNotFound
	}
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("scan tenant: %w", err)
	}
	if err := json.Unmarshal([]byte(limitations), &t.Limitations); err != nil {
		return domain.Tenant{}, fmt.Errorf("decode limitations: %w", err)
	}
	t.ContactPerson = contact.String
	t.IsActive = active != 0
	t.CreatedAt = decodeTime(createdAt)
	return t, nil
}

// Requests.

type RequestFilters struct {
	Status   string
	Quantity string
	Method   string
}

func (r Repo) InsertRequest(ctx context.Context, tx *sql.Tx, req domain.Request) error {
	params, err := encodeJSON(req.Parameters)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO requests (uuid, quantity, parameters, tenant_uuid, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		req.UUID, req.Quantity, params, req.TenantUUID, req.Status,
		encodeTime(req.CreatedAt), encodeTime(req.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (r Repo) GetRequest(ctx context.Context, id string) (domain.Request, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT uuid, quantity, parameters, tenant_uuid, status, created_at, updated_at
		FROM requests WHERE uuid = ?`, id)
	req, err := scanRequest(row)
	if err != nil {
		return domain.Request{}, err
	}
	req.Methods, err = r.RequestMethods(ctx, req.UUID)
	if err != nil {
		return domain.Request{}, err
	}
	return req, nil
}

func (r Repo) ListRequests(ctx context.Context, f RequestFilters) ([]domain.Request, error) {
	clauses := []string{"1 = 1"}
	args := []any{}
	query := `
		SELECT DISTINCT r.uuid, r.quantity, r.parameters, r.tenant_uuid, r.status, r.created_at, r.updated_at
		FROM requests r`
	if f.Method != "" {
		query += `
		JOIN request_quantity_links l ON l.request_uuid = r.uuid
		JOIN capabilities c ON c.uuid = l.capability_uuid`
		clauses = append(clauses, "c.method = ?")
		args = append(args, f.Method)
	}
	if f.Status != "" {
		clauses = append(clauses, "r.status = ?")
		args = append(args, f.Status)
	}
	if f.Quantity != "" {
		clauses = append(clauses, "r.quantity = ?")
		args = append(args, f.Quantity)
	}
	query += ` WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY r.created_at, r.uuid`

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Methods, err = r.RequestMethods(ctx, out[i].UUID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r Repo) SetRequestStatus(ctx context.Context, tx *sql.Tx, id, status string, updatedAt time.Time) error {
	res, err := tx.ExecContext(ctx, `UPDATE requests SET status = ?, updated_at = ? WHERE uuid = ?`,
		status, encodeTime(updatedAt), id)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	return requireRow(res)
}

// RequestMethods returns the methods linked to a request in submission order.
func (r Repo) RequestMethods(ctx context.Context, requestUUID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.method
		FROM request_quantity_links l
		JOIN capabilities c ON c.uuid = l.capability_uuid
		WHERE l.request_uuid = ?
		ORDER BY l.rowid`, requestUUID)
	if err != nil {
		return nil, fmt.Errorf("request methods: %w", err)
	}
	defer rows.Close()

	var methods []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, fmt.Errorf("scan method: %w", err)
		}
		methods = append(methods, m)
	}
	return methods, rows.Err()
}

func scanRequest(row rowScanner) (domain.Request, error) {
	var req domain.Request
	var params, createdAt, updatedAt string
	err := row.Scan(&req.UUID, &req.Quantity, &params, &req.TenantUUID, &req.Status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Request{}, ErrNotFound
	}
	if err != nil {
		return domain.Request{}, fmt.Errorf("scan request: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &req.Parameters); err != nil {
		return domain.Request{}, fmt.Errorf("decode parameters: %w", err)
	}
	req.CreatedAt = decodeTime(createdAt)
	req.UpdatedAt = decodeTime(updatedAt)
	return req, nil
}

// Results.

type ResultFilters struct {
	Quantity string
	Method   string
}

func (r Repo) InsertResult(ctx context.Context, tx *sql.Tx, res domain.Result) error {
	params, err := encodeJSON(res.Parameters)
	if err != nil {
		return err
	}
	data, err := encodeJSON(res.Data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO results (uuid, request_uuid, quantity, parameters, data, tenant_uuid, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.UUID, res.RequestUUID, res.Quantity, params, data, res.TenantUUID, res.Status,
		encodeTime(res.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (r Repo) GetResult(ctx context.Context, id string) (domain.Result, error) {
	row := r.DB.QueryRowContext(ctx, resultSelect+` WHERE res.uuid = ?`, id)
	return scanResult(row)
}

// ResultByRequest returns the result backing the given request.
func (r Repo) ResultByRequest(ctx context.Context, requestUUID string) (domain.Result, error) {
	row := r.DB.QueryRowContext(ctx, resultSelect+` WHERE res.request_uuid = ? ORDER BY res.created_at DESC LIMIT 1`, requestUUID)
	return scanResult(row)
}

func (r Repo) ListResults(ctx context.Context, f ResultFilters) ([]domain.Result, error) {
	clauses := []string{"1 = 1"}
	args := []any{}
	if f.Quantity != "" {
		clauses = append(clauses, "res.quantity = ?")
		args = append(args, f.Quantity)
	}
	if f.Method != "" {
		clauses = append(clauses, "c.method = ?")
		args = append(args, f.Method)
	}
	query := resultSelect + ` WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY res.created_at, res.uuid`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []domain.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r Repo) SetResultStatus(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE results SET status = ? WHERE uuid = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update result status: %w", err)
	}
	return requireRow(res)
}

const resultSelect = `
	SELECT res.uuid, res.request_uuid, res.quantity, COALESCE(c.method, ''), res.parameters, res.data,
	       res.tenant_uuid, res.status, res.created_at
	FROM results res
	LEFT JOIN result_quantity_links l ON l.result_uuid = res.uuid
	LEFT JOIN capabilities c ON c.uuid = l.capability_uuid`

func scanResult(row rowScanner) (domain.Result, error) {
	var res domain.Result
	var params, data, createdAt string
	err := row.Scan(&res.UUID, &res.RequestUUID, &res.Quantity, &res.Method, &params, &data,
		&res.TenantUUID, &res.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Result{}, ErrNotFound
	}
	if err != nil {
		return domain.Result{}, fmt.Errorf("scan result: %w", err)
	}
	if err := json.Unmarshal([]byte(params), &res.Parameters); err != nil {
		return domain.Result{}, fmt.Errorf("decode parameters: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &res.Data); err != nil {
		return domain.Result{}, fmt.Errorf("decode data: %w", err)
	}
	res.CreatedAt = decodeTime(createdAt)
	return res, nil
}

// Links.

func (r Repo) InsertRequestLink(ctx context.Context, tx *sql.Tx, link domain.QuantityLink) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO request_quantity_links (uuid, capability_uuid, request_uuid, created_at)
		VALUES (?, ?, ?, ?)`,
		link.UUID, link.CapabilityUUID, link.SubjectUUID, encodeTime(link.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert request link: %w", err)
	}
	return nil
}

func (r Repo) InsertResultLink(ctx context.Context, tx *sql.Tx, link domain.QuantityLink) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO result_quantity_links (uuid, capability_uuid, result_uuid, created_at)
		VALUES (?, ?, ?, ?)`,
		link.UUID, link.CapabilityUUID, link.SubjectUUID, encodeTime(link.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert result link: %w", err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

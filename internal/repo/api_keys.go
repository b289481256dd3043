package repo

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"reqline/internal/domain"
)

// CreateAPIKey mints a key for a tenant and returns the plaintext secret.
// Only the hash is stored; the secret cannot be recovered later.
func (r Repo) CreateAPIKey(ctx context.Context, tenantUUID, name string, now time.Time) (domain.APIKey, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}
	secret := "rq_" + hex.EncodeToString(raw)
	sum := sha256.Sum256([]byte(secret))

	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO api_keys (tenant_uuid, name, key_hash, created_at)
		VALUES (?, ?, ?, ?)`,
		tenantUUID, name, hex.EncodeToString(sum[:]), now.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.APIKey{}, "", err
	}
	return domain.APIKey{ID: id, TenantUUID: tenantUUID, Name: name, CreatedAt: now.UTC()}, secret, nil
}

// TenantForAPIKey resolves a presented secret to its tenant.
func (r Repo) TenantForAPIKey(ctx context.Context, secret string) (string, error) {
	sum := sha256.Sum256([]byte(secret))
	var tenantUUID string
	err := r.DB.QueryRowContext(ctx,
		`SELECT tenant_uuid FROM api_keys WHERE key_hash = ?`,
		hex.EncodeToString(sum[:])).Scan(&tenantUUID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	return tenantUUID, nil
}

func (r Repo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, tenant_uuid, name, created_at FROM api_keys ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var out []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		var createdAt string
		if err := rows.Scan(&k.ID, &k.TenantUUID, &k.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		k.CreatedAt = decodeTime(createdAt)
		out = append(out, k)
	}
	return out, rows.Err()
}

func (r Repo) RevokeAPIKey(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return requireRow(res)
}

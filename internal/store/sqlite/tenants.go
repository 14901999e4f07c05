package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/id"
	"github.com/fitmentiq/fitment-server/internal/store"
)

// CreateTenant inserts a new tenant. Returns store.ErrAlreadyExists on a
// duplicate slug.
func (s *Store) CreateTenant(ctx context.Context, t *domain.Tenant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, created_at) VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, t.Slug, formatTime(t.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// GetTenantBySlug retrieves a tenant by its slug.
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	var (
		t         domain.Tenant
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, created_at FROM tenants WHERE slug = ?`, slug).
		Scan(&t.ID, &t.Name, &t.Slug, &createdAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindOrCreateTenant finds an existing tenant by slug or creates a new one.
// Returns (tenant, created, error).
func (s *Store) FindOrCreateTenant(ctx context.Context, name, slug string) (*domain.Tenant, bool, error) {
	existing, err := s.GetTenantBySlug(ctx, slug)
	if err == nil {
		return existing, false, nil
	}
	if err != store.ErrNotFound {
		return nil, false, err
	}

	tenantID, err := id.Generate("tnt")
	if err != nil {
		return nil, false, fmt.Errorf("generate tenant id: %w", err)
	}

	t := &domain.Tenant{
		ID:        tenantID,
		Name:      name,
		Slug:      slug,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.CreateTenant(ctx, t); err != nil {
		if err == store.ErrAlreadyExists {
			// Race: another caller created it.
			existing, err := s.GetTenantBySlug(ctx, slug)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	return t, true, nil
}

// FindOrCreateRole finds or creates a role within a tenant.
func (s *Store) FindOrCreateRole(ctx context.Context, tenantID, name string) (*domain.Role, bool, error) {
	var r domain.Role
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name FROM roles WHERE tenant_id = ? AND name = ?`,
		tenantID, name).Scan(&r.ID, &r.TenantID, &r.Name)
	if err == nil {
		return &r, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	roleID, err := id.Generate("role")
	if err != nil {
		return nil, false, fmt.Errorf("generate role id: %w", err)
	}

	r = domain.Role{ID: roleID, TenantID: tenantID, Name: name}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO roles (id, tenant_id, name) VALUES (?, ?, ?)`,
		r.ID, r.TenantID, r.Name); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return s.FindOrCreateRole(ctx, tenantID, name)
		}
		return nil, false, err
	}
	return &r, true, nil
}

// FindOrCreateUser finds or creates a user by email.
func (s *Store) FindOrCreateUser(ctx context.Context, tenantID, email, roleID string) (*domain.User, bool, error) {
	var (
		u         domain.User
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, email, role_id, created_at FROM users WHERE email = ?`,
		email).Scan(&u.ID, &u.TenantID, &u.Email, &u.RoleID, &createdAt)
	if err == nil {
		u.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, false, err
		}
		return &u, false, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, err
	}

	userID, err := id.Generate("usr")
	if err != nil {
		return nil, false, fmt.Errorf("generate user id: %w", err)
	}

	u = domain.User{
		ID:        userID,
		TenantID:  tenantID,
		Email:     email,
		RoleID:    roleID,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, email, role_id, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Email, u.RoleID, formatTime(u.CreatedAt)); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return s.FindOrCreateUser(ctx, tenantID, email, roleID)
		}
		return nil, false, err
	}
	return &u, true, nil
}

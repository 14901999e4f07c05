package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/store"
)

func TestCreateTenantDuplicateSlug(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &domain.Tenant{ID: "tnt_1", Name: "Acme Parts", Slug: "acme", CreatedAt: time.Now().UTC()}
	if err := s.CreateTenant(ctx, first); err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	dup := &domain.Tenant{ID: "tnt_2", Name: "Acme Clone", Slug: "acme", CreatedAt: time.Now().UTC()}
	if err := s.CreateTenant(ctx, dup); err != store.ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestFindOrCreateTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, created, err := s.FindOrCreateTenant(ctx, "Acme Parts", "acme")
	if err != nil {
		t.Fatalf("find or create tenant: %v", err)
	}
	if !created {
		t.Error("expected first call to create")
	}

	second, created, err := s.FindOrCreateTenant(ctx, "Acme Parts", "acme")
	if err != nil {
		t.Fatalf("find or create tenant again: %v", err)
	}
	if created {
		t.Error("expected second call to find")
	}
	if second.ID != first.ID {
		t.Errorf("expected same tenant id, got %s and %s", first.ID, second.ID)
	}
}

func TestFindOrCreateRoleAndUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tenant, _, err := s.FindOrCreateTenant(ctx, "Acme Parts", "acme")
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}

	role, created, err := s.FindOrCreateRole(ctx, tenant.ID, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}
	if !created {
		t.Error("expected role creation")
	}

	again, created, err := s.FindOrCreateRole(ctx, tenant.ID, domain.RoleAdmin)
	if err != nil {
		t.Fatalf("find role: %v", err)
	}
	if created || again.ID != role.ID {
		t.Errorf("expected existing role %s, got %s (created=%v)", role.ID, again.ID, created)
	}

	user, created, err := s.FindOrCreateUser(ctx, tenant.ID, "ops@acme.example", role.ID)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if !created {
		t.Error("expected user creation")
	}

	sameUser, created, err := s.FindOrCreateUser(ctx, tenant.ID, "ops@acme.example", role.ID)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if created || sameUser.ID != user.ID {
		t.Errorf("expected existing user %s, got %s (created=%v)", user.ID, sameUser.ID, created)
	}
}

// Package main provides a tool to seed the database with a tenant and its
// starter accounts.
//
// This creates (or finds) a tenant, its three standard roles, an admin user,
// and any requested dynamic field configs. Safe to re-run: every step is
// find-or-create.
//
// Usage:
//
//	go run ./cmd/seed --db ./fitment.db --tenant "Acme Offroad" --slug acme --admin admin@acme.test
//	go run ./cmd/seed --db ./fitment.db --slug acme --fields position,side,notes
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fitmentiq/fitment-server/internal/domain"
	"github.com/fitmentiq/fitment-server/internal/id"
	"github.com/fitmentiq/fitment-server/internal/store/sqlite"
	"github.com/fitmentiq/fitment-server/internal/util"
)

var (
	dbPath     = flag.String("db", "", "Path to the SQLite database file (or STORE_PATH)")
	tenantName = flag.String("tenant", "", "Tenant display name (defaults to the slug)")
	tenantSlug = flag.String("slug", "", "Tenant URL slug (required)")
	adminEmail = flag.String("admin", "", "Admin user email to create")
	fieldNames = flag.String("fields", "", "Comma-separated dynamic field names to configure")
)

func main() {
	flag.Parse()

	path := *dbPath
	if path == "" {
		path = os.Getenv("STORE_PATH")
	}
	if path == "" {
		log.Fatal("No database path: pass --db or set STORE_PATH")
	}
	slug := util.NormalizeSlug(*tenantSlug)
	if slug == "" {
		log.Fatal("--slug is required")
	}

	name := *tenantName
	if name == "" {
		name = slug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	st, err := sqlite.Open(path, logger)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tenant, created, err := st.FindOrCreateTenant(ctx, name, slug)
	if err != nil {
		log.Fatalf("Failed to ensure tenant: %v", err)
	}
	if created {
		fmt.Printf("Created tenant %s (%s)\n", tenant.Slug, tenant.ID)
	} else {
		fmt.Printf("Tenant %s exists (%s)\n", tenant.Slug, tenant.ID)
	}

	roles := map[string]*domain.Role{}
	for _, roleName := range []string{domain.RoleAdmin, domain.RoleOperator, domain.RoleViewer} {
		role, created, err := st.FindOrCreateRole(ctx, tenant.ID, roleName)
		if err != nil {
			log.Fatalf("Failed to ensure role %s: %v", roleName, err)
		}
		roles[roleName] = role
		if created {
			fmt.Printf("Created role %s\n", roleName)
		}
	}

	if *adminEmail != "" {
		user, created, err := st.FindOrCreateUser(ctx, tenant.ID, *adminEmail, roles[domain.RoleAdmin].ID)
		if err != nil {
			log.Fatalf("Failed to ensure admin user: %v", err)
		}
		if created {
			fmt.Printf("Created admin user %s (%s)\n", user.Email, user.ID)
		} else {
			fmt.Printf("Admin user %s exists (%s)\n", user.Email, user.ID)
		}
	}

	if *fieldNames != "" {
		existing, err := st.ListFieldConfigs(ctx, tenant.ID)
		if err != nil {
			log.Fatalf("Failed to list field configs: %v", err)
		}
		have := make(map[string]bool, len(existing))
		for _, fc := range existing {
			have[fc.FieldName] = true
		}

		for _, fieldName := range strings.Split(*fieldNames, ",") {
			fieldName = strings.TrimSpace(fieldName)
			if fieldName == "" || have[fieldName] {
				continue
			}
			configID, err := id.Generate("fc")
			if err != nil {
				log.Fatalf("Failed to generate field config id: %v", err)
			}
			fc := &domain.FieldConfig{
				ID:        configID,
				TenantID:  tenant.ID,
				FieldName: fieldName,
				CreatedAt: time.Now().UTC(),
			}
			if err := st.CreateFieldConfig(ctx, fc); err != nil {
				log.Fatalf("Failed to create field config %s: %v", fieldName, err)
			}
			fmt.Printf("Created field config %s (%s)\n", fieldName, fc.ID)
		}
	}

	fmt.Println("Seed complete")
}

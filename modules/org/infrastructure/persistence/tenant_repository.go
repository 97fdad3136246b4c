package persistence

import (
	"context"
	"strings"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
	"github.com/bizdash/orgsync/pkg/composables"
)

type TenantRepository struct{}

func NewTenantRepository() *TenantRepository {
	return &TenantRepository{}
}

// Create inserts a tenant. A nil id gets a random one.
func (r *TenantRepository) Create(ctx context.Context, id uuid.UUID, name string) (hierarchy.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return hierarchy.Tenant{}, gerrors.New("tenant name is required")
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return hierarchy.Tenant{}, err
	}
	out := hierarchy.Tenant{ID: id, Name: name}
	if err := tx.QueryRow(ctx, `
INSERT INTO tenants (id, name)
VALUES ($1, $2)
RETURNING hierarchy_revision
`, pgUUID(id), name).Scan(&out.Revision); err != nil {
		return hierarchy.Tenant{}, gerrors.Wrap(err, "create tenant")
	}
	return out, nil
}

func (r *TenantRepository) List(ctx context.Context) ([]hierarchy.Tenant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `SELECT id, name, hierarchy_revision FROM tenants ORDER BY name, id`)
	if err != nil {
		return nil, gerrors.Wrap(err, "list tenants")
	}
	defer rows.Close()

	var out []hierarchy.Tenant
	for rows.Next() {
		var t hierarchy.Tenant
		var id pgtype.UUID
		if err := rows.Scan(&id, &t.Name, &t.Revision); err != nil {
			return nil, gerrors.Wrap(err, "scan tenant")
		}
		t.ID = asUUID(id)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "list tenants")
	}
	return out, nil
}

package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
	"github.com/bizdash/orgsync/modules/org/services"
	"github.com/bizdash/orgsync/pkg/composables"
)

var _ services.HierarchyRepository = (*HierarchyRepository)(nil)

type HierarchyRepository struct {
	lockTimeout time.Duration
}

// NewHierarchyRepository returns the Postgres hierarchy store. A positive
// lockTimeout bounds how long a writer waits for the tenant lock.
func NewHierarchyRepository(lockTimeout time.Duration) *HierarchyRepository {
	return &HierarchyRepository{lockTimeout: lockTimeout}
}

func (r *HierarchyRepository) LockTenant(ctx context.Context, tenantID uuid.UUID) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	if r.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", timeout); err != nil {
			return gerrors.Wrap(err, "set lock timeout")
		}
	}
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", tenantLockKey(tenantID)); err != nil {
		return gerrors.Wrap(err, "lock tenant hierarchy")
	}
	return nil
}

func (r *HierarchyRepository) GetTenant(ctx context.Context, tenantID uuid.UUID) (hierarchy.Tenant, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return hierarchy.Tenant{}, err
	}
	out := hierarchy.Tenant{ID: tenantID}
	err = tx.QueryRow(ctx, `SELECT name, hierarchy_revision FROM tenants WHERE id = $1`, pgUUID(tenantID)).
		Scan(&out.Name, &out.Revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return hierarchy.Tenant{}, hierarchy.ErrTenantNotFound
	}
	if err != nil {
		return hierarchy.Tenant{}, gerrors.Wrap(err, "get tenant")
	}
	return out, nil
}

func (r *HierarchyRepository) BumpRevision(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	var revision int64
	err = tx.QueryRow(ctx, `
UPDATE tenants
SET hierarchy_revision = hierarchy_revision + 1, updated_at = now()
WHERE id = $1
RETURNING hierarchy_revision
`, pgUUID(tenantID)).Scan(&revision)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, hierarchy.ErrTenantNotFound
	}
	if err != nil {
		return 0, gerrors.Wrap(err, "bump hierarchy revision")
	}
	return revision, nil
}

func (r *HierarchyRepository) ListUnitStates(ctx context.Context, tenantID uuid.UUID) ([]hierarchy.UnitState, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `SELECT id, is_deleted FROM org_units WHERE tenant_id = $1`, pgUUID(tenantID))
	if err != nil {
		return nil, gerrors.Wrap(err, "list unit states")
	}
	defer rows.Close()

	out := make([]hierarchy.UnitState, 0, 64)
	for rows.Next() {
		var st hierarchy.UnitState
		if err := rows.Scan(&st.ID, &st.IsDeleted); err != nil {
			return nil, gerrors.Wrap(err, "scan unit state")
		}
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "list unit states")
	}
	return out, nil
}

func (r *HierarchyRepository) DeleteUnits(ctx context.Context, tenantID uuid.UUID, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	b := &pgx.Batch{}
	b.Queue(`
DELETE FROM org_unit_ancestry
WHERE tenant_id = $1
	AND (fundamental_unit_id = ANY($2) OR ancestor_unit_id = ANY($2) OR descendant_unit_id = ANY($2))
`, pgUUID(tenantID), ids)
	b.Queue(`DELETE FROM org_unit_assignments WHERE tenant_id = $1 AND unit_id = ANY($2)`, pgUUID(tenantID), ids)
	b.Queue(`
UPDATE org_units
SET is_deleted = true, is_fundamental = false, deleted_at = now(), updated_at = now()
WHERE tenant_id = $1 AND id = ANY($2)
`, pgUUID(tenantID), ids)

	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return gerrors.Wrap(err, "delete units")
		}
	}
	if err := br.Close(); err != nil {
		return gerrors.Wrap(err, "delete units")
	}
	return nil
}

func (r *HierarchyRepository) DeleteAncestry(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM org_unit_ancestry WHERE tenant_id = $1`, pgUUID(tenantID))
	if err != nil {
		return 0, gerrors.Wrap(err, "delete ancestry")
	}
	return tag.RowsAffected(), nil
}

func (r *HierarchyRepository) SaveUnits(ctx context.Context, tenantID uuid.UUID, units []services.UnitUpsert) ([]int64, error) {
	if len(units) == 0 {
		return nil, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	b := &pgx.Batch{}
	for _, u := range units {
		if u.ID == 0 {
			b.Queue(`
INSERT INTO org_units (tenant_id, name, comment, is_active, is_fundamental, display_order)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id
`, pgUUID(tenantID), u.Name, u.Comment, u.IsActive, u.IsFundamental, u.DisplayOrder)
			continue
		}
		b.Queue(`
UPDATE org_units
SET name = $3, comment = $4, is_active = $5, is_fundamental = $6, display_order = $7, updated_at = now()
WHERE tenant_id = $1 AND id = $2 AND NOT is_deleted
RETURNING id
`, pgUUID(tenantID), u.ID, u.Name, u.Comment, u.IsActive, u.IsFundamental, u.DisplayOrder)
	}

	br := tx.SendBatch(ctx, b)
	ids := make([]int64, len(units))
	for i, u := range units {
		err := br.QueryRow().Scan(&ids[i])
		if errors.Is(err, pgx.ErrNoRows) {
			_ = br.Close()
			return nil, gerrors.Wrapf(hierarchy.ErrUnitNotFound, "unit %d", u.ID)
		}
		if err != nil {
			_ = br.Close()
			return nil, gerrors.Wrap(err, "save units")
		}
	}
	if err := br.Close(); err != nil {
		return nil, gerrors.Wrap(err, "save units")
	}
	return ids, nil
}

func (r *HierarchyRepository) ReplaceAssignments(ctx context.Context, tenantID uuid.UUID, links []hierarchy.AssignmentLink) (int64, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM org_unit_assignments WHERE tenant_id = $1`, pgUUID(tenantID)); err != nil {
		return 0, gerrors.Wrap(err, "clear assignments")
	}
	if len(links) == 0 {
		return 0, nil
	}

	unitIDs := make([]int64, len(links))
	employeeIDs := make([]int64, len(links))
	roles := make([]string, len(links))
	for i, l := range links {
		unitIDs[i] = l.UnitID
		employeeIDs[i] = l.EmployeeID
		roles[i] = l.Role.String()
	}
	tag, err := tx.Exec(ctx, `
INSERT INTO org_unit_assignments (tenant_id, unit_id, employee_id, role)
SELECT $1, u.unit_id, u.employee_id, u.role
FROM unnest($2::bigint[], $3::bigint[], $4::text[]) AS u(unit_id, employee_id, role)
`, pgUUID(tenantID), unitIDs, employeeIDs, roles)
	if err != nil {
		return 0, gerrors.Wrap(err, "insert assignments")
	}
	return tag.RowsAffected(), nil
}

var ancestryColumns = []string{"tenant_id", "fundamental_unit_id", "ancestor_unit_id", "descendant_unit_id", "depth"}

func (r *HierarchyRepository) InsertAncestry(ctx context.Context, tenantID uuid.UUID, edges []hierarchy.AncestryEdge) (int64, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return 0, err
	}
	tenant := pgUUID(tenantID)
	n, err := tx.CopyFrom(ctx, pgx.Identifier{"org_unit_ancestry"}, ancestryColumns,
		pgx.CopyFromSlice(len(edges), func(i int) ([]any, error) {
			e := edges[i]
			return []any{tenant, e.FundamentalUnitID, e.AncestorUnitID, e.DescendantUnitID, int32(e.Depth)}, nil
		}))
	if err != nil {
		return 0, gerrors.Wrap(err, "copy ancestry")
	}
	return n, nil
}

const unitColumns = `id, tenant_id, name, comment, is_active, is_fundamental, is_deleted, display_order, created_at, updated_at`

func (r *HierarchyRepository) ListLiveUnits(ctx context.Context, tenantID uuid.UUID) ([]hierarchy.Unit, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+unitColumns+`
FROM org_units
WHERE tenant_id = $1 AND NOT is_deleted
ORDER BY display_order, id
`, pgUUID(tenantID))
	if err != nil {
		return nil, gerrors.Wrap(err, "list units")
	}
	return collectUnits(rows)
}

func (r *HierarchyRepository) ListAncestry(ctx context.Context, tenantID uuid.UUID) ([]hierarchy.AncestryEdge, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT fundamental_unit_id, ancestor_unit_id, descendant_unit_id, depth
FROM org_unit_ancestry
WHERE tenant_id = $1
`, pgUUID(tenantID))
	if err != nil {
		return nil, gerrors.Wrap(err, "list ancestry")
	}
	return collectEdges(rows)
}

// ListSubtree loads a unit, its live descendants and the parent rows between
// them, using the closure table instead of walking the tree.
func (r *HierarchyRepository) ListSubtree(ctx context.Context, tenantID uuid.UUID, unitID int64) ([]hierarchy.Unit, []hierarchy.AncestryEdge, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := tx.Query(ctx, `
SELECT `+unitColumns+`
FROM org_units
WHERE tenant_id = $1
	AND NOT is_deleted
	AND (id = $2 OR id IN (
		SELECT descendant_unit_id FROM org_unit_ancestry WHERE tenant_id = $1 AND ancestor_unit_id = $2
	))
ORDER BY display_order, id
`, pgUUID(tenantID), unitID)
	if err != nil {
		return nil, nil, gerrors.Wrap(err, "list subtree units")
	}
	units, err := collectUnits(rows)
	if err != nil {
		return nil, nil, err
	}
	if len(units) == 0 {
		return nil, nil, nil
	}

	rows, err = tx.Query(ctx, `
SELECT fundamental_unit_id, ancestor_unit_id, descendant_unit_id, depth
FROM org_unit_ancestry
WHERE tenant_id = $1
	AND depth = 1
	AND descendant_unit_id IN (
		SELECT descendant_unit_id FROM org_unit_ancestry WHERE tenant_id = $1 AND ancestor_unit_id = $2
	)
`, pgUUID(tenantID), unitID)
	if err != nil {
		return nil, nil, gerrors.Wrap(err, "list subtree ancestry")
	}
	edges, err := collectEdges(rows)
	if err != nil {
		return nil, nil, err
	}
	return units, edges, nil
}

func collectUnits(rows pgx.Rows) ([]hierarchy.Unit, error) {
	defer rows.Close()
	out := make([]hierarchy.Unit, 0, 64)
	for rows.Next() {
		var u hierarchy.Unit
		var tenant pgtype.UUID
		if err := rows.Scan(&u.ID, &tenant, &u.Name, &u.Comment, &u.IsActive, &u.IsFundamental, &u.IsDeleted,
			&u.DisplayOrder, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, gerrors.Wrap(err, "scan unit")
		}
		u.TenantID = asUUID(tenant)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "list units")
	}
	return out, nil
}

func collectEdges(rows pgx.Rows) ([]hierarchy.AncestryEdge, error) {
	defer rows.Close()
	out := make([]hierarchy.AncestryEdge, 0, 64)
	for rows.Next() {
		var e hierarchy.AncestryEdge
		if err := rows.Scan(&e.FundamentalUnitID, &e.AncestorUnitID, &e.DescendantUnitID, &e.Depth); err != nil {
			return nil, gerrors.Wrap(err, "scan ancestry")
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, gerrors.Wrap(err, "list ancestry")
	}
	return out, nil
}

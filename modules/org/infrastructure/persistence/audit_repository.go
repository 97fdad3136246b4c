package persistence

import (
	"context"
	"encoding/json"

	gerrors "github.com/go-faster/errors"

	"github.com/bizdash/orgsync/modules/org/services"
	"github.com/bizdash/orgsync/pkg/composables"
)

type AuditRepository struct{}

func NewAuditRepository() *AuditRepository {
	return &AuditRepository{}
}

func (r *AuditRepository) InsertSyncAudit(ctx context.Context, ev *services.HierarchySynchronizedEvent) error {
	if ev == nil {
		return nil
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(map[string]any{
		"created": len(ev.Created),
		"updated": len(ev.Updated),
		"deleted": len(ev.Deleted),
	})
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
INSERT INTO org_hierarchy_audit_logs (
	id,
	tenant_id,
	request_id,
	revision,
	created_units,
	updated_units,
	deleted_units,
	ancestry_rows,
	meta,
	transaction_time
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
`,
		pgUUID(ev.EventID),
		pgUUID(ev.TenantID),
		ev.RequestID,
		ev.Revision,
		nonNil(ev.Created),
		nonNil(ev.Updated),
		nonNil(ev.Deleted),
		ev.AncestryRows,
		string(meta),
		ev.OccurredAt.UTC(),
	)
	if err != nil {
		return gerrors.Wrap(err, "insert hierarchy audit log")
	}
	return nil
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

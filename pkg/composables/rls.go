package composables

import (
	"context"

	gerrors "github.com/go-faster/errors"

	"github.com/bizdash/orgsync/pkg/configuration"
	"github.com/bizdash/orgsync/pkg/repo"
)

// TenantSetting is the transaction-local setting read by the org_* RLS
// policies.
const TenantSetting = "app.current_tenant"

// ApplyTenantRLS scopes tx to the tenant in ctx when RLS_ENFORCE=enforce.
func ApplyTenantRLS(ctx context.Context, tx repo.Tx) error {
	return applyTenantRLS(ctx, tx, configuration.Use().RLSEnforce == "enforce")
}

func applyTenantRLS(ctx context.Context, tx repo.Tx, enforce bool) error {
	if !enforce {
		return nil
	}
	tenantID, err := UseTenantID(ctx)
	if err != nil {
		return gerrors.Wrap(err, "rls requires tenant in context")
	}
	if _, err := tx.Exec(ctx, "SELECT set_config($1, $2, true)", TenantSetting, tenantID.String()); err != nil {
		return gerrors.Wrapf(err, "scope transaction to tenant %s", tenantID)
	}
	return nil
}

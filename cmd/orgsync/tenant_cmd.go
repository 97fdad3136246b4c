package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
	"github.com/bizdash/orgsync/modules/org/infrastructure/persistence"
	"github.com/bizdash/orgsync/pkg/composables"
)

func newTenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
	}
	cmd.AddCommand(newTenantCreateCmd())
	cmd.AddCommand(newTenantListCmd())
	return cmd
}

func newTenantCreateCmd() *cobra.Command {
	var (
		name string
		id   string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(name) == "" {
				return withCode(exitUsage, fmt.Errorf("--name is required"))
			}
			tid := uuid.New()
			if id != "" {
				var err error
				if tid, err = parseTenant(id); err != nil {
					return err
				}
			}
			ctx, rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			start := time.Now()
			tenant, err := composables.InTenantTxResult(ctx, tid, func(txCtx context.Context) (hierarchy.Tenant, error) {
				return persistence.NewTenantRepository().Create(txCtx, tid, name)
			})
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "tenant create",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     tenant,
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Tenant name (required)")
	cmd.Flags().StringVar(&id, "id", "", "Tenant UUID (random when omitted)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newTenantListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			start := time.Now()
			// tenants is not row-level secured; the pool serves the query directly.
			tenants, err := persistence.NewTenantRepository().List(ctx)
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "tenant list",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     tenants,
			})
		},
	}
}

package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bizdash/orgsync/modules/org/domain/hierarchy"
	"github.com/bizdash/orgsync/modules/org/presentation/mappers"
)

func newReadCmd() *cobra.Command {
	var (
		tenantID string
		unitID   int64
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Print a tenant's hierarchy, or one unit's subtree with --unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tid, err := parseTenant(tenantID)
			if err != nil {
				return err
			}
			ctx, rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			svc := rt.hierarchyService()
			start := time.Now()
			var result any
			if unitID != 0 {
				node, err := svc.GetSubtree(ctx, tid, unitID)
				if err != nil {
					return serviceExit(err)
				}
				result = mappers.UnitTree([]*hierarchy.ResolvedNode{node})[0]
			} else {
				view, err := svc.GetHierarchy(ctx, tid)
				if err != nil {
					return serviceExit(err)
				}
				result = mappers.HierarchyToDTO(view)
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "read",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     result,
			})
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().Int64Var(&unitID, "unit", 0, "Only print the subtree rooted at this unit")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newVerifyCmd() *cobra.Command {
	var tenantID string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute the ancestry index and report mismatches (exit 2 when inconsistent)",
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

			start := time.Now()
			report, err := rt.hierarchyService().VerifyHierarchy(ctx, tid)
			if err != nil {
				return serviceExit(err)
			}
			if err := writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "verify",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     report,
			}); err != nil {
				return err
			}
			if !report.Consistent() {
				return &silentError{code: exitInconsistent}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant UUID (required)")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "orgsync",
		Short:         "Organizational hierarchy maintenance tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newReadCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newTenantCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		var silent *silentError
		if !errors.As(err, &silent) {
			fmt.Fprintln(os.Stderr, err.Error())
		}
		os.Exit(code)
	}
}

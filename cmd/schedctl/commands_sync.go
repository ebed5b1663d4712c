package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Reconcile local state with the remote store",
		Long: `Fetches every inventory scope from the remote store. Scopes the remote
store knows win over local state; scopes it has never seen keep their local
state and stay dirty. A completely empty remote store is seeded immediately
with every non-empty local scope.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := current.session.Bootstrap(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "bootstrap complete")
			return nil
		},
	}
}

func newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Discard local edits and re-pull everything from the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := current.session.Refresh(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "refresh complete")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show scopes with unsaved changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			changes := current.session.DirtyScopes()
			if len(changes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "clean: nothing to save")
				return nil
			}
			for _, c := range changes {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t+%d hosts, -%d hosts, ~%d hosts\n",
					c.Scope.String(), c.Added, c.Removed, c.Changed)
			}
			return nil
		},
	}
}

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Push all dirty scopes to the remote store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := current.session.Save(cmd.Context())
			if err != nil {
				return err
			}
			if report.Clean {
				fmt.Fprintln(cmd.OutOrStdout(), "clean: nothing to save")
				return nil
			}
			failed := 0
			for _, res := range report.Results {
				if res.Err != nil {
					failed++
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tFAILED: %v\n", res.Key, res.Err)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\tsaved\n", res.Key)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scope(s) failed to save", failed, len(report.Results))
			}
			return nil
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"powersched/internal/recurrence"
	"powersched/internal/types"
)

func newAppsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List applications visible to you",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, app := range current.session.Applications() {
				envs := current.inv.Environments(app)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d environment(s)\n", app, len(envs))
			}
			return nil
		},
	}
}

func newEnvsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "envs <application>",
		Short: "List environments of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := args[0]
			for _, env := range current.inv.Environments(app) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d machine(s)\n",
					env, len(current.inv.Machines(app, env)))
			}
			return nil
		},
	}
}

func newMachinesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "machines <application> <environment>",
		Short: "List machines in a scope, marking scheduled hosts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, env := args[0], args[1]
			for _, m := range current.inv.Machines(app, env) {
				entries, err := current.session.Entries(app, env, m.Hostname)
				if err != nil {
					return err
				}
				mark := ""
				if len(entries) > 0 {
					mark = fmt.Sprintf("\t[%d schedule(s)]", len(entries))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s%s\n",
					m.Hostname, m.MachineName, m.ServerType, mark)
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <application> <environment> [hostname]",
		Short: "Show schedule entries for a scope or one host",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, env := args[0], args[1]
			hosts := current.inv.Hostnames(app, env)
			if len(args) == 3 {
				hosts = []string{args[2]}
			}
			for _, host := range hosts {
				entries, err := current.session.Entries(app, env, host)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
						host, e.ID, describeEntry(e))
				}
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all visible schedules joined with machine metadata as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			records := current.session.Export()
			raw, err := json.MarshalIndent(records, "", "  ")
			if err != nil {
				return err
			}
			if outPath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), string(raw))
				return nil
			}
			return os.WriteFile(outPath, raw, 0o644)
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")
	return cmd
}

func newAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Show this invocation's audit trail, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, ev := range current.session.AuditTrail() {
				scope := ev.App
				if ev.Env != "" {
					scope += "/" + ev.Env
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\t%s\n",
					ev.Timestamp.Format(time.RFC3339), ev.User, ev.Action, scope, ev.Detail)
			}
			return nil
		},
	}
}

func newCronCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cron <application> <environment> <hostname>",
		Short: "Print the cron expressions generated for a host's schedules",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := current.session.Entries(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			for _, e := range entries {
				for _, job := range recurrence.Cronjobs(e) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", e.ID, job.Action, job.Expr)
				}
			}
			return nil
		},
	}
}

func newNoteCmd() *cobra.Command {
	note := &cobra.Command{
		Use:   "note",
		Short: "Manage per-host notes (local only, never synced)",
	}

	note.AddCommand(&cobra.Command{
		Use:   "add <hostname> <text>",
		Short: "Attach a note to a host",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := current.session.AddNote(args[0], strings.Join(args[1:], " "))
			fmt.Fprintln(cmd.OutOrStdout(), n.ID)
			return nil
		},
	})

	note.AddCommand(&cobra.Command{
		Use:   "list <hostname>",
		Short: "List a host's notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, n := range current.session.Notes(args[0]) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n",
					n.ID, n.CreatedAt.Format(time.RFC3339), n.Text)
			}
			return nil
		},
	})

	note.AddCommand(&cobra.Command{
		Use:   "rm <hostname> <note-id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			current.session.RemoveNote(args[0], args[1])
			return nil
		},
	})

	return note
}

// describeEntry renders one schedule entry for terminal output.
func describeEntry(e types.ScheduleEntry) string {
	var b strings.Builder
	if e.Type == types.TypeShutdown {
		b.WriteString("shutdown all day")
	} else {
		fmt.Fprintf(&b, "up %s-%s", e.StartTime, e.StopTime)
	}
	if e.Recurring == types.RecurNone {
		fmt.Fprintf(&b, " on %s", strings.Join(e.Dates, ","))
	} else {
		fmt.Fprintf(&b, " (%s)", e.Recurring)
	}
	if e.EnvGroupID != "" {
		fmt.Fprintf(&b, " [group %s]", e.EnvGroupID)
	}
	return b.String()
}

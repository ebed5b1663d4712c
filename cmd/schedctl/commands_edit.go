package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"powersched/internal/types"
)

// entryFlags collects the schedule entry parameters shared by the add,
// update, and group commands.
type entryFlags struct {
	typ       string
	start     string
	stop      string
	recurring string
	dates     []string
}

func (f *entryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.typ, "type", "window", `schedule type: "window" or "shutdown"`)
	cmd.Flags().StringVar(&f.start, "start", "", `startup time "HH:MM" (window type)`)
	cmd.Flags().StringVar(&f.stop, "stop", "", `shutdown time "HH:MM" (window type)`)
	cmd.Flags().StringVar(&f.recurring, "recurring", "none",
		`recurrence: "daily", "weekdays", "weekends", or "none"`)
	cmd.Flags().StringSliceVar(&f.dates, "date", nil,
		`explicit date "YYYY-MM-DD", repeatable (recurring=none)`)
}

func (f *entryFlags) entry() types.ScheduleEntry {
	return types.ScheduleEntry{
		Type:      types.ScheduleType(f.typ),
		StartTime: f.start,
		StopTime:  f.stop,
		Recurring: types.Recurrence(f.recurring),
		Dates:     f.dates,
	}
}

func newAddCmd() *cobra.Command {
	var flags entryFlags
	cmd := &cobra.Command{
		Use:   "add <application> <environment> <hostname>",
		Short: "Add a schedule entry to one host",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := current.session.AddEntry(args[0], args[1], args[2], flags.entry())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var flags entryFlags
	cmd := &cobra.Command{
		Use:   "update <application> <environment> <hostname> <entry-id>",
		Short: "Replace a schedule entry's parameters, keeping its identity",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			return current.session.UpdateEntry(args[0], args[1], args[2], args[3], flags.entry())
		},
	}
	flags.register(cmd)
	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <application> <environment> <hostname> <entry-id>",
		Short: "Remove one schedule entry",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			return current.session.RemoveEntry(args[0], args[1], args[2], args[3])
		},
	}
}

func newRemoveHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-host <application> <environment> <hostname>",
		Short: "Remove every schedule entry of one host",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			return current.session.RemoveHost(args[0], args[1], args[2])
		},
	}
}

func newGroupCmd() *cobra.Command {
	group := &cobra.Command{
		Use:   "group",
		Short: "Manage environment-wide schedule groups",
	}

	var addFlags entryFlags
	add := &cobra.Command{
		Use:   "add <application> <environment>",
		Short: "Apply one schedule to every machine in an environment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			groupID, err := current.session.AddEntryForEnv(args[0], args[1], addFlags.entry())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), groupID)
			return nil
		},
	}
	addFlags.register(add)
	group.AddCommand(add)

	group.AddCommand(&cobra.Command{
		Use:   "list <application> <environment>",
		Short: "List environment-wide groups and their membership",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := current.session.EnvGroups(args[0], args[1])
			if err != nil {
				return err
			}
			for _, g := range groups {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%d/%d host(s)\n",
					g.GroupID, describeEntry(g.Entry), len(g.Hostnames), g.TotalMachines)
			}
			return nil
		},
	})

	var updateFlags entryFlags
	update := &cobra.Command{
		Use:   "update <application> <environment> <group-id>",
		Short: "Edit a group's schedule on every member",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			return current.session.UpdateEnvGroup(args[0], args[1], args[2], updateFlags.entry())
		},
	}
	updateFlags.register(update)
	group.AddCommand(update)

	group.AddCommand(&cobra.Command{
		Use:   "remove <application> <environment> <group-id>",
		Short: "Remove a group from every member",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			return current.session.RemoveEnvGroup(args[0], args[1], args[2])
		},
	})

	group.AddCommand(&cobra.Command{
		Use:   "exclude <application> <environment> <hostname> <group-id>",
		Short: "Exclude one host from a group",
		Args:  cobra.ExactArgs(4),
		RunE: func(_ *cobra.Command, args []string) error {
			return current.session.ExcludeFromEnvGroup(args[0], args[1], args[2], args[3])
		},
	})

	group.AddCommand(&cobra.Command{
		Use:   "reinclude <application> <environment> <group-id>",
		Short: "Restore excluded hosts to a group",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			return current.session.ReincludeInEnvGroup(args[0], args[1], args[2])
		},
	})

	return group
}

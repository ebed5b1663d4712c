package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"powersched/internal/access"
	"powersched/internal/audit"
	"powersched/internal/config"
	"powersched/internal/inventory"
	"powersched/internal/schedule"
	"powersched/internal/session"
	"powersched/internal/syncclient"
	"powersched/internal/types"
)

// sessionTokenEnv carries the signed session token obtained from the OAuth
// exchange. When set, it identifies the acting user and authenticates calls
// to the remote store.
const sessionTokenEnv = "POWERSCHED_SESSION_TOKEN"

// app holds the wired dependencies for one CLI invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	inv     *inventory.Inventory
	local   *schedule.BadgerStore
	session *session.Session
}

var (
	loginFlag string
	current   *app
)

// NewRootCmd builds the schedctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "schedctl",
		Short: "Manage machine shutdown/startup schedules",
		Long: `schedctl edits per-machine and per-environment power schedules.

Edits are persisted locally and tracked against the last synced snapshot;
"schedctl save" pushes the dirty scopes to the remote schedule store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			switch cmd.Name() {
			case "help", "completion", "version":
				return nil
			}
			a, err := initApp()
			if err != nil {
				return err
			}
			current = a
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if current != nil && current.local != nil {
				return current.local.Close()
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&loginFlag, "login", "",
		"GitHub login to act as (local mode, when no session token is set)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newAppsCmd())
	root.AddCommand(newEnvsCmd())
	root.AddCommand(newMachinesCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newAddCmd())
	root.AddCommand(newUpdateCmd())
	root.AddCommand(newRemoveCmd())
	root.AddCommand(newRemoveHostCmd())
	root.AddCommand(newGroupCmd())
	root.AddCommand(newNoteCmd())
	root.AddCommand(newBootstrapCmd())
	root.AddCommand(newRefreshCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newSaveCmd())
	root.AddCommand(newExportCmd())
	root.AddCommand(newAuditCmd())
	root.AddCommand(newCronCmd())

	return root
}

// initApp loads configuration, static data, the local store, and assembles
// the editing session for the resolved user.
func initApp() (*app, error) {
	var provider config.SecretProvider
	if env := os.Getenv("APP_ENV"); env != "" && env != "local" {
		region := os.Getenv("AWS_REGION")
		if region == "" {
			region = "eu-central-1"
		}
		provider = config.NewSSMProvider(region)
	}

	cfg, err := config.LoadConfig(provider)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	inv, err := inventory.LoadCSV(cfg.Data.InventoryPath)
	if err != nil {
		return nil, fmt.Errorf("loading inventory: %w", err)
	}

	registry, err := access.LoadRegistry(cfg.Data.UsersPath)
	if err != nil {
		return nil, fmt.Errorf("loading user registry: %w", err)
	}

	token := os.Getenv(sessionTokenEnv)
	user, err := resolveUser(cfg, registry, token)
	if err != nil {
		return nil, err
	}

	local, err := schedule.OpenBadger(cfg.Local.StorePath)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	store := schedule.New(local, logger)
	store.Load()
	snapshot := schedule.NewSnapshot(local, logger)
	snapshot.Restore()

	client := syncclient.New(syncclient.Options{
		BaseURL:       cfg.Remote.BaseURL,
		Token:         token,
		RetryAttempts: cfg.Remote.RetryAttempts,
		BaseDelay:     cfg.Remote.BaseDelay,
		Timeout:       cfg.Remote.Timeout,
	}, logger)

	trail := audit.NewTrail(cfg.Data.AuditLimit)
	sess := session.New(store, snapshot, client, inv, user, trail, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		inv:     inv,
		local:   local,
		session: sess,
	}, nil
}

// resolveUser identifies the acting user. A session token wins; without one,
// the --login flag selects a registry user directly (the remote store still
// rejects unauthenticated saves).
func resolveUser(cfg *config.Config, registry *access.Registry, token string) (*types.UserRecord, error) {
	login := loginFlag
	if token != "" {
		identity, err := access.VerifyToken(
			[]byte(cfg.Auth.SessionSecret.Unmask()), token, types.RealClock{}.Now())
		if err != nil {
			return nil, err
		}
		login = identity.Login
	}
	if login == "" {
		return nil, fmt.Errorf("no identity: set %s or pass --login", sessionTokenEnv)
	}
	return registry.FindByGitHub(login)
}

// newLogger builds the CLI logger. Output goes to stderr so command output
// on stdout stays clean for piping.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			build := config.NewBuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "schedctl %s (%s, built %s)\n",
				build.Version, build.Commit, build.BuildTime)
		},
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ldi/delegate/internal/backend"
	"github.com/ldi/delegate/internal/backend/httpapi"
	"github.com/ldi/delegate/internal/config"
	"github.com/ldi/delegate/internal/console"
	"github.com/ldi/delegate/internal/db"
	"github.com/ldi/delegate/internal/delegation"
	"github.com/ldi/delegate/internal/intent"
	"github.com/ldi/delegate/internal/logging"
	"github.com/ldi/delegate/internal/mcp"
	"github.com/ldi/delegate/internal/planner"
	"github.com/ldi/delegate/internal/roster"
	"github.com/ldi/delegate/internal/server"
	"github.com/ldi/delegate/internal/session"
	"github.com/ldi/delegate/internal/ui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var version = "dev"

var (
	cfgPath string
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "delegate",
		Short: "Turn project requests into delegated task plans",
		Long: `Delegate turns a plain-language project request into a goal with
estimated, prioritised tasks assigned to your team by skill.

Run without arguments to pick a command from the launcher menu.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: runMenu,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath, "Path to config file")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newMCPCmd(),
		newConsoleCmd(),
		newClassifyCmd(),
		newPlanCmd(),
		newSessionsCmd(),
		newTeamCmd(),
	)
	return root
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(cfgPath)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	logger, err = logging.New(level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	logger.Debug("loaded config", zap.String("path", cfgPath), zap.String("db_path", cfg.DBPath))
	return nil
}

func runMenu(cmd *cobra.Command, args []string) error {
	_, statErr := os.Stat(filepath.Dir(cfgPath))
	selected, err := ui.RunMenu(statErr == nil)
	if err != nil {
		return fmt.Errorf("failed to run menu: %w", err)
	}
	if selected == "" {
		return nil
	}

	sub, _, err := cmd.Find([]string{selected})
	if err != nil || sub == cmd {
		return fmt.Errorf("unknown command: %s", selected)
	}
	sub.SetContext(cmd.Context())
	return sub.RunE(sub, nil)
}

// openStore opens and migrates the local database, turns on snapshot
// export and seeds the configured team.
func openStore(ctx context.Context) (*db.DB, error) {
	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if cfg.SnapshotPath != "" {
		store.EnableAutoSnapshot(cfg.SnapshotPath, func(err error) {
			logger.Warn("failed to export snapshot", zap.Error(err))
		})
	}

	if n, err := roster.Seed(ctx, store, cfg.Members()); err != nil {
		store.Close()
		return nil, err
	} else if n > 0 {
		logger.Info("seeded team members", zap.Int("count", n))
	}
	return store, nil
}

// openBackend returns the remote client when remote_url is configured and
// the local store otherwise. The returned func releases it.
func openBackend(ctx context.Context) (server.Backend, func(), error) {
	if cfg.RemoteURL != "" {
		timeout, err := cfg.Timeout()
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("using remote backend", zap.String("url", cfg.RemoteURL))
		return httpapi.New(cfg.RemoteURL, timeout), func() {}, nil
	}

	store, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return backend.NewLocal(store, nil, logger), func() { store.Close() }, nil
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Create the .delegate directory, config and database",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targetDir := "."
			if len(args) > 0 {
				targetDir = args[0]
			}
			return runInit(cmd, targetDir)
		},
	}
}

func runInit(cmd *cobra.Command, targetDir string) error {
	out := cmd.OutOrStdout()

	delegateDir := filepath.Join(targetDir, config.Dir)
	if err := os.MkdirAll(delegateDir, 0755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.Dir, err)
	}
	fmt.Fprintf(out, "✓ Created %s/ directory\n", config.Dir)

	gitignorePath := filepath.Join(delegateDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte("delegate.db*\n"), 0644); err != nil {
		return fmt.Errorf("failed to create .gitignore: %w", err)
	}
	fmt.Fprintf(out, "✓ Created %s/.gitignore\n", config.Dir)

	configFile := filepath.Join(targetDir, config.DefaultPath)
	if cmd.Flags().Changed("config") {
		configFile = cfgPath
	}
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		fresh := config.DefaultConfig()
		fresh.Team = config.SampleTeam()
		if err := fresh.Save(configFile); err != nil {
			return err
		}
		fmt.Fprintf(out, "✓ Wrote %s\n", configFile)
	}

	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	loaded.DBPath = within(targetDir, loaded.DBPath)
	loaded.SnapshotPath = within(targetDir, loaded.SnapshotPath)
	cfg = loaded

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	fmt.Fprintf(out, "✓ Initialized database at %s\n", cfg.DBPath)

	if _, err := os.Stat(cfg.SnapshotPath); err == nil {
		if err := store.ImportSnapshot(ctx, cfg.SnapshotPath); err != nil {
			return fmt.Errorf("failed to import snapshot: %w", err)
		}
		fmt.Fprintf(out, "✓ Imported snapshot from %s\n", cfg.SnapshotPath)
	}

	n, err := roster.Seed(ctx, store, cfg.Members())
	if err != nil {
		return err
	}
	if n > 0 {
		fmt.Fprintf(out, "✓ Seeded %d team members\n", n)
	}

	fmt.Fprintln(out, "✓ Delegate initialized successfully")
	return nil
}

// within resolves a relative path against dir.
func within(dir, path string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := server.NewServer(backend.NewLocal(store, nil, logger), logger)
			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start(addr)
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Address to listen on (default from config)")
	return cmd
}

// newSynchronizer wires a synchronizer and controller over the configured
// backend.
func newSynchronizer(ctx context.Context) (*session.Synchronizer, *delegation.Controller, func(), error) {
	api, release, err := openBackend(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	sync := session.New(api, api, logger)
	ctrl := delegation.New(sync, api, logger)
	return sync, ctrl, func() {
		sync.Close()
		release()
	}, nil
}

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sync, ctrl, release, err := newSynchronizer(ctx)
			if err != nil {
				return err
			}
			defer release()

			if err := sync.Bootstrap(ctx); err != nil {
				return err
			}
			return mcp.Serve(mcp.NewServer(sync, ctrl, version))
		},
	}
}

func newConsoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Chat with Delegate in an interactive console",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sync, ctrl, release, err := newSynchronizer(ctx)
			if err != nil {
				return err
			}
			defer release()
			return console.Run(ctx, sync, ctrl)
		},
	}
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Show how a request would be classified",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			goal := "no"
			if intent.IsGoalRequest(text) {
				goal = "yes"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archetype:    %s\n", intent.Classify(text))
			fmt.Fprintf(cmd.OutOrStdout(), "Goal request: %s\n", goal)
			return nil
		},
	}
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <text>",
		Short: "Draft a goal for a request without storing it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			api, release, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer release()

			members, err := api.ListMembers(ctx)
			if err != nil {
				return err
			}
			g := planner.Plan(strings.Join(args, " "), members)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s)\n", g.Title, g.Archetype)
			fmt.Fprintln(out, "=====================")
			fmt.Fprintf(out, "%-3s %-30s %-6s %-8s %-12s %s\n", "#", "TASK", "HOURS", "PRIORITY", "ASSIGNEE", "AFTER")
			fmt.Fprintln(out, "----------------------------------------------------------------------")

			position := make(map[string]int, len(g.Tasks))
			for i, t := range g.Tasks {
				position[t.ID] = i + 1
			}
			for i, t := range g.Tasks {
				assignee := "-"
				if t.AssignedTo != nil {
					assignee = t.AssignedTo.Name
				}
				var after []string
				for _, dep := range t.Dependencies {
					after = append(after, fmt.Sprint(position[dep]))
				}
				fmt.Fprintf(out, "%-3d %-30s %-6d %-8s %-12s %s\n", i+1, t.Title, t.EstimatedHours, t.Priority, assignee, strings.Join(after, ","))
			}
			fmt.Fprintf(out, "\nTotal: %dh (%s)\n", g.TotalHours, g.EstimatedDuration)
			return nil
		},
	}
}

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			api, release, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer release()

			sessions, err := api.ListSessions(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(sessions) == 0 {
				fmt.Fprintln(out, "No sessions yet.")
				return nil
			}
			fmt.Fprintf(out, "%-36s %-30s %s\n", "ID", "TITLE", "LAST ACTIVITY")
			fmt.Fprintln(out, "----------------------------------------------------------------------")
			for _, s := range sessions {
				fmt.Fprintf(out, "%-36s %-30s %s\n", s.ID, s.Title, s.LastActivityAt.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
}

func newTeamCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "team",
		Short: "List team members",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			api, release, err := openBackend(ctx)
			if err != nil {
				return err
			}
			defer release()

			members, err := api.ListMembers(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-15s %-20s %s\n", "NAME", "ROLE", "SKILLS")
			fmt.Fprintln(out, "------------------------------------------------------------")
			for _, m := range members {
				fmt.Fprintf(out, "%-15s %-20s %s\n", m.Name, m.Role, strings.Join(m.Skills, ", "))
			}
			return nil
		},
	}
}

// Package cmd implements the todosync command line interface.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"todosync/graph"
	"todosync/internal/analytics"
	"todosync/internal/cache"
	"todosync/internal/config"
	"todosync/internal/credentials"
	sync "todosync/internal/sync"
	"todosync/internal/utils"
)

// Version is set at build time
var Version = "dev"

// Config holds CLI configuration overrides (mainly for testing)
type Config struct {
	ConfigPath string // Path to config file (for testing)
	UserID     string // Cache namespace; defaults to the configured account
	Verbose    bool
}

// Execute runs the CLI with the given arguments and IO writers
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	rootCmd := NewTodoSync(stdout, stderr, cfg)

	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.Execute(); err != nil {
		if containsJSONFlag(args) {
			outputErrorJSON(err, stdout)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	return 0
}

// containsJSONFlag checks if args contain --json flag
func containsJSONFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--json" {
			return true
		}
	}
	return false
}

// NewTodoSync creates the root command with injectable IO
func NewTodoSync(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:     "todosync",
		Short:   "A task cache and sync tool for Microsoft To Do",
		Long:    "todosync maintains a compressed Redis cache of Microsoft To Do tasks,\nrefreshed by full background syncs and incremental delta syncs.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to config file")
	cmd.PersistentFlags().BoolP("verbose", "V", false, "Enable verbose/debug output")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().String("user", "", "Cache namespace (defaults to the configured account)")

	cmd.AddCommand(newLoginCmd(stdout, cfg))
	cmd.AddCommand(newLogoutCmd(stdout, cfg))
	cmd.AddCommand(newSyncCmd(stdout, cfg))
	cmd.AddCommand(newDeltaCmd(stdout, cfg))
	cmd.AddCommand(newStatusCmd(stdout, cfg))
	cmd.AddCommand(newTasksCmd(stdout, cfg))
	cmd.AddCommand(newInvalidateCmd(stdout, cfg))
	cmd.AddCommand(newRunsCmd(stdout, cfg))

	return cmd
}

// requireListArg validates the single list-id positional argument.
func requireListArg(cmd *cobra.Command, args []string) error {
	if len(args) != 1 {
		return utils.ErrListRequired()
	}
	return nil
}

// app bundles the wired components behind each command.
type app struct {
	cfg     *config.Config
	store   *cache.RedisStore
	client  *graph.Client
	service *sync.Service
	limiter *sync.RateLimiter
	tracker *analytics.Tracker
	userID  string
}

// newApp loads configuration and wires the cache store, Graph client and sync
// service. Callers must Close() the returned app.
func newApp(cmd *cobra.Command, cliCfg *Config) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = cliCfg.ConfigPath
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose || cliCfg.Verbose || cfg.Verbose {
		utils.SetVerboseMode(true)
	}

	manager := credentials.NewManager()
	tokens, info, err := manager.Get(cfg.Graph.Account)
	if err != nil {
		return nil, err
	}
	if !info.Found {
		return nil, utils.ErrCredentialsNotFound(cfg.Graph.Account)
	}

	client, err := graph.New(graph.Config{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ClientID:     tokens.ClientID,
		ClientSecret: tokens.ClientSecret,
		BaseURL:      cfg.Graph.BaseURL,
		TokenURL:     cfg.Graph.TokenURL,
	})
	if err != nil {
		return nil, err
	}
	client.SetTokenSink(manager.Sink(cfg.Graph.Account))

	store, err := cache.NewRedisStore(cache.RedisConfig{
		Address:  cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		_ = client.Close()
		return nil, utils.ErrCacheUnavailable(err.Error())
	}

	service := sync.New(client, store, sync.Config{
		SnapshotTTL: cfg.SnapshotTTL(),
		ProgressTTL: cfg.ProgressTTL(),
		Cooldown:    cfg.Cooldown(),
	})

	tracker, err := analytics.NewTracker(cfg.AnalyticsPath(), analytics.IsEnabledFromEnv(cfg.Analytics.Enabled))
	if err != nil {
		utils.Warnf("sync history disabled: %v", err)
	} else {
		service.SetRecorder(tracker)
	}

	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		userID = cliCfg.UserID
	}
	if userID == "" {
		userID = cfg.Graph.Account
	}

	return &app{
		cfg:     cfg,
		store:   store,
		client:  client,
		service: service,
		limiter: sync.NewRateLimiter(store, cfg.Sync.RateLimit, cfg.RateLimitWindow()),
		tracker: tracker,
		userID:  userID,
	}, nil
}

// Close releases the app's connections.
func (a *app) Close() {
	if a.tracker != nil {
		_ = a.tracker.Close()
	}
	_ = a.client.Close()
	_ = a.store.Close()
}

// newLoginCmd creates the 'login' subcommand
func newLoginCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store Microsoft Graph tokens in the system keyring",
		Long:  "Prompt for OAuth tokens and store them securely in the system keyring.\nObtain tokens from your Azure app registration or the Graph Explorer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			account, _ := cmd.Flags().GetString("account")
			if account == "" {
				configPath, _ := cmd.Flags().GetString("config")
				if configPath == "" {
					configPath = cfg.ConfigPath
				}
				appCfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				account = appCfg.Graph.Account
			}

			access, err := credentials.PromptToken(os.Stdin, stdout, "Access token")
			if err != nil {
				return err
			}
			if access == "" {
				return fmt.Errorf("access token must not be empty")
			}
			refresh, err := credentials.PromptToken(os.Stdin, stdout, "Refresh token (optional)")
			if err != nil {
				return err
			}
			clientID, err := credentials.PromptToken(os.Stdin, stdout, "Client ID (optional)")
			if err != nil {
				return err
			}
			clientSecret, err := credentials.PromptToken(os.Stdin, stdout, "Client secret (optional)")
			if err != nil {
				return err
			}

			manager := credentials.NewManager()
			if err := manager.Set(account, credentials.Tokens{
				AccessToken:  access,
				RefreshToken: refresh,
				ClientID:     clientID,
				ClientSecret: clientSecret,
			}); err != nil {
				return fmt.Errorf("failed to store tokens: %w", err)
			}

			_, _ = fmt.Fprintf(stdout, "Tokens stored in system keyring for account '%s'\n", account)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("account", "", "Keyring account name (defaults to configured account)")
	return cmd
}

// newLogoutCmd creates the 'logout' subcommand
func newLogoutCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored tokens from the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			account, _ := cmd.Flags().GetString("account")
			if account == "" {
				account = "default"
			}
			manager := credentials.NewManager()
			if err := manager.Delete(account); err != nil {
				return fmt.Errorf("failed to remove tokens: %w", err)
			}
			_, _ = fmt.Fprintf(stdout, "Tokens removed for account '%s'\n", account)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().String("account", "", "Keyring account name")
	return cmd
}

// newSyncCmd creates the 'sync' subcommand
func newSyncCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [list-id]",
		Short: "Start a full background sync for a task list",
		Long:  "Fetch every task in the list from Microsoft Graph and replace the\ncached snapshot. Progress is observable with 'todosync status'.",
		Args:  requireListArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			listID := args[0]

			if !a.limiter.Allow(ctx, a.userID, "sync") {
				return utils.WrapWithSuggestion(
					fmt.Errorf("sync rate limit exceeded"),
					fmt.Sprintf("Wait for the window to pass or raise sync.rate_limit in config.yaml (currently %d per %s)",
						a.cfg.Sync.RateLimit, a.cfg.RateLimitWindow()))
			}

			done := a.service.StartFullSync(a.userID, listID)

			noWait, _ := cmd.Flags().GetBool("no-wait")
			if noWait {
				_, _ = fmt.Fprintf(stdout, "Sync started for list %s\n", listID)
				return nil
			}

			// Poll progress until the run finishes, then print the outcome.
			ticker := time.NewTicker(500 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return printFinalProgress(ctx, a, listID, stdout, cmd)
				case <-ticker.C:
					if p, ok := a.service.Progress(ctx, a.userID, listID); ok && p.Phase == sync.PhaseFetching {
						_, _ = fmt.Fprintf(stdout, "\r%s", p.Message)
					}
				case <-ctx.Done():
					_, _ = fmt.Fprintln(stdout, "\nSync continues in the background")
					return nil
				}
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Bool("no-wait", false, "Return immediately without waiting for completion")
	return cmd
}

// printFinalProgress prints the terminal progress record of a finished run.
func printFinalProgress(ctx context.Context, a *app, listID string, stdout io.Writer, cmd *cobra.Command) error {
	p, ok := a.service.Progress(ctx, a.userID, listID)
	if !ok {
		return fmt.Errorf("sync finished but no progress record was found")
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		return outputProgressJSON(p, stdout)
	}

	if p.Phase == sync.PhaseError {
		return fmt.Errorf("sync failed: %s", p.Error)
	}
	_, _ = fmt.Fprintf(stdout, "\r%s\n", p.Message)
	return nil
}

// newDeltaCmd creates the 'delta' subcommand
func newDeltaCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delta [list-id]",
		Short: "Apply incremental changes to the cached snapshot",
		Long:  "Query the Graph delta feed and merge any changes into the cached\nsnapshot. Requires a live snapshot from a previous full sync.",
		Args:  requireListArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			result := a.service.TryIncrementalSync(ctx, a.userID, args[0])

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				out := struct {
					Result string `json:"result"`
				}{Result: result.String()}
				return printJSON(out, stdout)
			}

			switch result {
			case sync.ResultApplied:
				_, _ = fmt.Fprintln(stdout, "Changes applied to cached snapshot")
			case sync.ResultNoChanges:
				_, _ = fmt.Fprintln(stdout, "No changes")
			case sync.ResultSkippedCooldown:
				_, _ = fmt.Fprintln(stdout, "Skipped: a recent sync is still cooling down")
			case sync.ResultSkippedNoCache:
				_, _ = fmt.Fprintln(stdout, "Skipped: no cached snapshot, run 'todosync sync' first")
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newStatusCmd creates the 'status' subcommand
func newStatusCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status [list-id]",
		Short: "Show sync progress for a task list",
		Args:  requireListArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			p, ok := a.service.Progress(ctx, a.userID, args[0])
			quota := a.limiter.Remaining(ctx, a.userID, "sync")

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if !ok {
				if jsonOutput {
					out := struct {
						State string `json:"state"`
						Quota int    `json:"sync_quota_remaining"`
					}{State: "unknown", Quota: quota}
					return printJSON(out, stdout)
				}
				_, _ = fmt.Fprintln(stdout, "No sync in progress (or the record expired)")
				_, _ = fmt.Fprintf(stdout, "Quota:   %d sync starts left this window\n", quota)
				return nil
			}

			if jsonOutput {
				return outputProgressJSON(p, stdout)
			}

			_, _ = fmt.Fprintf(stdout, "State:   %s\n", p.Phase)
			if p.Total > 0 || p.Count > 0 {
				_, _ = fmt.Fprintf(stdout, "Tasks:   %d/%d\n", p.Count, p.Total)
			}
			if p.Message != "" {
				_, _ = fmt.Fprintf(stdout, "Message: %s\n", p.Message)
			}
			if p.Error != "" {
				_, _ = fmt.Fprintf(stdout, "Error:   %s\n", p.Error)
			}
			_, _ = fmt.Fprintf(stdout, "Quota:   %d sync starts left this window\n", quota)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newTasksCmd creates the 'tasks' subcommand
func newTasksCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks [list-id]",
		Short: "Show the cached tasks for a list",
		Long:  "Display the cached task snapshot. Reads only the cache; a miss means\nno recent sync, not an empty list.",
		Args:  requireListArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			tasks, ok := a.service.Snapshot(ctx, a.userID, args[0])
			if !ok {
				_, _ = fmt.Fprintln(stdout, "No cached snapshot, run 'todosync sync' first")
				return nil
			}

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				return printJSON(tasks, stdout)
			}

			sort.SliceStable(tasks, func(i, j int) bool {
				return tasks[i].Title < tasks[j].Title
			})

			_, _ = fmt.Fprintf(stdout, "Cached tasks (%d):\n\n", len(tasks))
			_, _ = fmt.Fprintf(stdout, "%-14s %-50s %s\n", "STATUS", "TITLE", "DUE")
			for _, t := range tasks {
				due := ""
				if t.DueDateTime != nil {
					due = t.DueDateTime.DateTime
					if len(due) > 10 {
						due = due[:10]
					}
				}
				title := t.Title
				if len(title) > 50 {
					title = title[:47] + "..."
				}
				_, _ = fmt.Fprintf(stdout, "%-14s %-50s %s\n", strings.ToUpper(t.Status), title, due)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newInvalidateCmd creates the 'invalidate' subcommand
func newInvalidateCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "invalidate",
		Short: "Drop all cached snapshots for the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			n := a.service.Invalidate(ctx, a.userID)
			_, _ = fmt.Fprintf(stdout, "Invalidated %d cache entries\n", n)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// newRunsCmd creates the 'runs' subcommand
func newRunsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent sync runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if a.tracker == nil || !a.tracker.Enabled() {
				_, _ = fmt.Fprintln(stdout, "Sync history is disabled (analytics.enabled: false)")
				return nil
			}

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := a.tracker.Recent(limit)
			if err != nil {
				return err
			}

			jsonOutput, _ := cmd.Flags().GetBool("json")
			if jsonOutput {
				return printJSON(runs, stdout)
			}

			if len(runs) == 0 {
				_, _ = fmt.Fprintln(stdout, "No sync runs recorded yet")
				return nil
			}

			_, _ = fmt.Fprintf(stdout, "%-20s %-12s %-24s %6s %8s %s\n", "TIME", "KIND", "LIST", "TASKS", "MS", "OUTCOME")
			for _, r := range runs {
				outcome := "ok"
				if !r.Success {
					outcome = "failed: " + r.ErrorType
				}
				listID := r.ListID
				if len(listID) > 24 {
					listID = listID[:21] + "..."
				}
				_, _ = fmt.Fprintf(stdout, "%-20s %-12s %-24s %6d %8d %s\n",
					time.Unix(r.Timestamp, 0).Format("2006-01-02 15:04:05"), r.Kind, listID, r.Tasks, r.DurationMs, outcome)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to show")
	return cmd
}

// outputProgressJSON writes a progress record as JSON
func outputProgressJSON(p *sync.Progress, stdout io.Writer) error {
	return printJSON(p, stdout)
}

// printJSON marshals v to a single JSON line
func printJSON(v interface{}, stdout io.Writer) error {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
	return nil
}

// outputErrorJSON outputs error in JSON format
func outputErrorJSON(err error, stdout io.Writer) {
	response := struct {
		Error string `json:"error"`
		Code  int    `json:"code"`
	}{Error: err.Error(), Code: 1}

	jsonBytes, _ := json.Marshal(response)
	_, _ = fmt.Fprintln(stdout, string(jsonBytes))
}

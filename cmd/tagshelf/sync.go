package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagshelf/tagshelf/internal/tagstore/daemon"
	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/migrate"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Reconcile with writes made by other processes",
	Long: `Keep a store in step with other processes sharing the same database.

Every tagshelf process caches the store in memory. Writes made elsewhere are
picked up by watching the SQLite database and WAL files, polling the changed
keys, and periodically reloading the full snapshot.`,
}

var syncDaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the reconciliation daemon (foreground)",
	Long: `Run the reconciliation daemon in the foreground.

The daemon will:
  1. Load the full snapshot
  2. Watch the database and WAL files
  3. Poll changed keys after each burst of file events
  4. Reload the snapshot every daemon.refresh_interval`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.db == nil {
			return fmt.Errorf("the daemon needs the sqlite backend")
		}

		d, err := newDaemon(a, func(res daemon.SyncResult) {
			if res.Kind == daemon.SyncPoll && res.Changed > 0 {
				a.printf("%s %d key(s) changed\n", a.out.Accent("↻"), res.Changed)
			}
		})
		if err != nil {
			return err
		}

		a.printf("%s Starting reconciliation daemon...\n", a.out.Accent("🚀"))
		a.printf("   Store: %s\n", a.db.Path())
		a.printf("   Refresh: every %v\n", a.cfg.Daemon.RefreshInterval)
		a.printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("daemon stopped: %w", err)
		}
		st := d.Stats()
		a.printf("%s Stopped after %d poll(s), %d refresh(es), %d key(s) changed\n",
			a.out.Pass("✓"), st.Polls, st.Refreshes, st.KeysChanged)
		return nil
	},
}

// newDaemon builds a daemon over the app's database.
func newDaemon(a *app, onSync func(daemon.SyncResult)) (*daemon.Daemon, error) {
	return daemon.NewWithConfig(a.store, a.db, a.db.Path(), &daemon.Config{
		RefreshInterval:  a.cfg.Daemon.RefreshInterval,
		DebounceInterval: a.cfg.Daemon.DebounceInterval,
		OnSync:           onSync,
		Logger:           a.logs.Logger("[daemon] "),
	})
}

var syncRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Reload the full snapshot and run pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		start := time.Now()
		if err := a.store.Refresh(cmd.Context()); err != nil {
			return err
		}
		a.printf("%s Refreshed in %v\n", a.out.Pass("✓"), time.Since(start).Round(time.Millisecond))
		a.printf("   Tags: %d\n", len(a.store.AllTagNames()))
		a.printf("   Projects: %d\n", len(a.store.ProjectIDs()))
		return nil
	},
}

// Status is the machine-readable output of sync status.
type Status struct {
	Backend          string    `json:"backend"`
	Path             string    `json:"path,omitempty"`
	FileBytes        int64     `json:"fileBytes,omitempty"`
	Modified         time.Time `json:"modified,omitempty"`
	Items            int       `json:"items"`
	Bytes            int       `json:"bytes"`
	QuotaItems       int       `json:"quotaItems"`
	QuotaBytes       int       `json:"quotaBytes"`
	MigrationVersion int       `json:"migrationVersion"`
	Tags             int       `json:"tags"`
	Projects         int       `json:"projects"`
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store location, quota usage and schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := collectStatus(cmd.Context(), a)
		if err != nil {
			return err
		}
		if a.json {
			return a.printJSON(st)
		}

		a.printf("\n%s Store Status\n\n", a.out.Accent("📊"))
		a.printf("%s\n", a.out.KeyValue("Backend", st.Backend))
		if st.Path != "" {
			a.printf("%s\n", a.out.KeyValue("Location", st.Path))
			a.printf("%s\n", a.out.KeyValue("Size", formatSize(st.FileBytes)))
			a.printf("%s\n", a.out.KeyValue("Modified", st.Modified.Format("2006-01-02 15:04:05")))
		}
		a.printf("%s\n", a.out.KeyValue("Items", fmt.Sprintf("%d / %d", st.Items, st.QuotaItems)))
		a.printf("%s\n", a.out.KeyValue("Bytes", fmt.Sprintf("%d / %d", st.Bytes, st.QuotaBytes)))
		a.printf("%s\n", a.out.KeyValue("Schema version", fmt.Sprintf("%d (current %d)", st.MigrationVersion, migrate.CurrentVersion)))
		a.printf("%s\n", a.out.KeyValue("Tags", st.Tags))
		a.printf("%s\n", a.out.KeyValue("Projects", st.Projects))
		if st.QuotaBytes > 0 && st.Bytes*10 > st.QuotaBytes*9 {
			a.printf("\n%s Store is above 90%% of its byte quota\n", a.out.Warn("⚠"))
		}
		a.printf("\n")
		return nil
	},
}

func collectStatus(ctx context.Context, a *app) (*Status, error) {
	items, err := a.transport.Get(ctx, nil)
	if err != nil {
		return nil, err
	}
	q := a.cfg.Quota()
	st := &Status{
		Backend:          a.cfg.Store.Backend,
		Items:            len(items),
		QuotaItems:       q.MaxItems,
		QuotaBytes:       q.TotalBytes,
		MigrationVersion: migrate.Version(items),
		Tags:             len(a.store.AllTagNames()),
		Projects:         len(a.store.ProjectIDs()),
	}
	for k, v := range items {
		st.Bytes += kv.ItemSize(k, v)
	}
	if a.db != nil {
		st.Path = a.db.Path()
		if info, err := os.Stat(a.db.Path()); err == nil {
			st.FileBytes = info.Size()
			st.Modified = info.ModTime()
		}
	}
	return st, nil
}

func formatSize(size int64) string {
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
	case size > 1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "maint",
	Short:   "Run pending schema migrations and show the version",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		items, err := a.transport.Get(cmd.Context(), nil)
		if err != nil {
			return err
		}
		m := migrate.New(a.transport, a.logs.Logger("[migrate] "))
		_, res, err := m.MigrateWithOptions(cmd.Context(), items, migrate.Options{DryRun: dryRun})
		if a.json {
			if jerr := a.printJSON(res); jerr != nil {
				return jerr
			}
			return err
		}
		if res.Skipped {
			a.printf("%s Schema is current (version %d)\n", a.out.Pass("✓"), res.FromVersion)
			return nil
		}
		for _, s := range res.Steps {
			a.printf("   %s: %d affected\n", s.Name, s.Affected)
		}
		for _, e := range res.Errors {
			a.printf("%s %s\n", a.out.Fail("✗"), e)
		}
		if err != nil {
			return err
		}
		verb := "Migrated"
		if res.DryRun {
			verb = "Would migrate"
		}
		a.printf("%s %s from version %d to %d\n", a.out.Pass("✓"), verb, res.FromVersion, res.ToVersion)
		return nil
	},
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "Preview without writing")

	syncCmd.AddCommand(syncDaemonCmd, syncRefreshCmd, syncStatusCmd)
	rootCmd.AddCommand(syncCmd, migrateCmd)
}

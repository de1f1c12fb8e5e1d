package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tagshelf/tagshelf/internal/config"
	"github.com/tagshelf/tagshelf/internal/tagstore/db"
	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/store"
	"github.com/tagshelf/tagshelf/internal/ui"
)

// app is everything a command needs, opened from the loaded config.
type app struct {
	cfg       *config.Config
	logs      *config.LogSink
	transport kv.Transport
	db        *db.DB // nil for the memory backend
	store     *store.Store
	out       *ui.Renderer
	w         io.Writer
	json      bool
}

// openApp loads config, opens the transport and the store. The store is
// not initialized; callers that read or write use ready.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, err
	}
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	jsonOut, _ := cmd.Flags().GetBool("json")

	logs, err := config.OpenLog(cfg.Log, quiet)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}

	a := &app{
		cfg:  cfg,
		logs: logs,
		out:  ui.NewRenderer(cmd.OutOrStdout(), noColor || jsonOut),
		w:    cmd.OutOrStdout(),
		json: jsonOut,
	}

	switch cfg.Store.Backend {
	case config.BackendMemory:
		a.transport = kv.NewMemoryWithQuota(cfg.Quota())
	default:
		database, err := db.OpenWithQuota(cfg.Store.Path, cfg.Quota())
		if err != nil {
			_ = logs.Close()
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		a.db = database
		a.transport = database
	}

	sc := store.DefaultConfig()
	sc.Logger = logs.Logger("[store] ")
	a.store = store.NewWithConfig(a.transport, sc)
	return a, nil
}

// openReady opens the app and loads the store.
func openReady(cmd *cobra.Command) (*app, error) {
	a, err := openApp(cmd)
	if err != nil {
		return nil, err
	}
	if err := a.store.Initialize(cmd.Context()); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	_ = a.store.Close()
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logs.Logger("").Printf("Warning: failed to close store: %v", err)
		}
	}
	_ = a.logs.Close()
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.w, format, args...)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// result prints a mutation outcome. No-op errors are reported, not failed.
func (a *app) result(err error, done string) error {
	if store.IsNoop(err) {
		a.printf("%s %v\n", a.out.Warn("•"), err)
		return nil
	}
	if err != nil {
		return err
	}
	a.printf("%s %s\n", a.out.Pass("✓"), done)
	return nil
}

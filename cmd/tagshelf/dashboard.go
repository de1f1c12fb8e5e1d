package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tagshelf/tagshelf/internal/tagstore/daemon"
	"github.com/tagshelf/tagshelf/internal/tagstore/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "sync",
	Short:   "Start real-time WebSocket dashboard for tag changes",
	Long: `Start a WebSocket dashboard server that broadcasts store changes.

With the sqlite backend the reconciliation daemon runs alongside, so changes
made by other processes reach connected clients too.

WebSocket messages include:
- tags_changed: Tag set or tag metadata changed
- projects_changed: Project records changed
- sync_complete: Daemon poll or refresh completed
- stats: Tag, project, pinned and untagged counts

Example usage:
  tagshelf dashboard                   # Start on dashboard.port (8080)
  tagshelf dashboard --port 9000       # Start on custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws

The current tag tree is served as JSON at /tree.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		port := a.cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: a.logs.Logger("[dashboard] "),
		})
		handler := dashboard.NewHandler(server, a.store, a.logs.Logger("[dashboard] "))
		handler.Attach()
		defer handler.Detach()

		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}

		a.printf("Dashboard server started on http://localhost:%d\n", port)
		a.printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		a.printf("Health check: http://localhost:%d/health\n", port)
		a.printf("\nPress Ctrl+C to stop...\n")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if a.db != nil {
			d, err := newDaemon(a, func(res daemon.SyncResult) {
				handler.OnSyncComplete(string(res.Kind), res.Changed, res.Duration)
			})
			if err != nil {
				_ = server.Stop()
				return err
			}
			// Start blocks until ctx is done.
			if err := d.Start(ctx); err != nil {
				a.logs.Logger("[dashboard] ").Printf("Warning: daemon stopped: %v", err)
			}
		}
		<-ctx.Done()

		a.printf("\nShutting down dashboard server...\n")
		if err := server.Stop(); err != nil {
			return fmt.Errorf("error during shutdown: %w", err)
		}
		a.printf("Dashboard server stopped\n")
		return nil
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on (default from dashboard.port)")
	rootCmd.AddCommand(dashboardCmd)
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tagshelf/tagshelf/internal/tagstore/backup"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "maint",
	Short:   "Export or import a snapshot of the whole store",
}

var backupExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write every key to a JSON, YAML or TOML snapshot",
	Long: `Write every key of the store to a snapshot.

The format is taken from --format, else from the file extension, else JSON.
Without a file the snapshot goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		format, err := backupFormat(cmd, path)
		if err != nil {
			return err
		}
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var w io.Writer = a.w
		if path != "" {
			f, err := os.Create(path)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", path, err)
			}
			defer f.Close()
			w = f
		}
		n, err := backup.Export(cmd.Context(), a.transport, w, format)
		if err != nil {
			return err
		}
		if path != "" {
			a.printf("%s Exported %d keys to %s\n", a.out.Pass("✓"), n, path)
		}
		return nil
	},
}

var backupImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore a snapshot",
	Long: `Restore a snapshot written by export.

Keys in the snapshot overwrite existing ones. --clear also removes keys the
snapshot does not contain. --dry-run only reports what would change.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		clearAll, _ := cmd.Flags().GetBool("clear")
		format, err := backupFormat(cmd, args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if clearAll && !dryRun {
			ok, err := confirm(cmd, "Replace the whole store?", "Keys missing from the snapshot will be removed.")
			if err != nil || !ok {
				return err
			}
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()

		res, err := backup.Import(cmd.Context(), a.transport, f, format, backup.ImportOptions{DryRun: dryRun, Clear: clearAll})
		if err != nil {
			return err
		}
		if a.json {
			return a.printJSON(res)
		}
		for _, e := range res.Errors {
			a.printf("%s skipped %s\n", a.out.Warn("⚠"), e)
		}
		verb := "Imported"
		if res.DryRun {
			verb = "Would import"
		}
		a.printf("%s %s %d keys (%d projects), removed %d\n", a.out.Pass("✓"), verb, res.Written, res.Projects, res.Removed)
		if !res.DryRun {
			// Loads the restored data and migrates it when it is older.
			if err := a.store.Refresh(cmd.Context()); err != nil {
				return err
			}
		}
		return nil
	},
}

func backupFormat(cmd *cobra.Command, path string) (backup.Format, error) {
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		return backup.ParseFormat(f)
	}
	if path != "" {
		return backup.FormatFromPath(path)
	}
	return backup.FormatJSON, nil
}

func init() {
	backupExportCmd.Flags().String("format", "", "json, yaml or toml")
	backupImportCmd.Flags().String("format", "", "json, yaml or toml")
	backupImportCmd.Flags().Bool("dry-run", false, "Preview without writing")
	backupImportCmd.Flags().Bool("clear", false, "Remove keys absent from the snapshot")
	backupImportCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")

	backupCmd.AddCommand(backupExportCmd, backupImportCmd)
	rootCmd.AddCommand(backupCmd)
}

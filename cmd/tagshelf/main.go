// Command tagshelf manages a hierarchical tag store from the terminal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tagshelf/tagshelf/internal/config"
)

var (
	cfgFile string
	v       = config.New("")
)

var rootCmd = &cobra.Command{
	Use:   "tagshelf",
	Short: "Hierarchical tags for your projects",
	Long: `tagshelf keeps hierarchical tags ("Lang/Go/Web") on projects.

Tags are stored in a sharded key-value store that several processes can
share. The default backend is a SQLite file (.tagshelf/store.db); every
command reconciles with writes made by other processes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		}
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tags", Title: "Tags:"},
		&cobra.Group{ID: "projects", Title: "Projects:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ./.tagshelf/config.* or ~/.tagshelf/config.*)")
	pf.String("db", "", "Store path (overrides store.path)")
	pf.String("backend", "", "Storage backend: sqlite or memory (overrides store.backend)")
	pf.BoolP("quiet", "q", false, "Discard log output")
	pf.Bool("no-color", false, "Disable colored output")
	pf.Bool("json", false, "Output as JSON")

	bindFlags(v, rootCmd)
}

// bindFlags maps persistent flags onto config keys. Unset flags leave the
// file and environment values alone.
func bindFlags(v *viper.Viper, cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	_ = v.BindPFlag("store.path", pf.Lookup("db"))
	_ = v.BindPFlag("store.backend", pf.Lookup("backend"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

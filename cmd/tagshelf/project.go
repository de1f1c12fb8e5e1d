package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
	"github.com/tagshelf/tagshelf/internal/tagstore/view"
	"github.com/tagshelf/tagshelf/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	GroupID: "projects",
	Short:   "List, pin and rename projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Long: `List tracked projects. Pinned projects always come first.

Filters combine with AND:
  --tag Lang/Go        projects carrying exactly this tag
  --under Lang         projects carrying Lang or any tag below it
  --untagged           projects without tags
  --text demo          name contains "demo" (case-insensitive)
  --pinned             pinned projects only
  --since "last week"  modified since (date, duration, or plain English)

Sort modes: default, name-asc, name-desc, tags-desc.`,
	Args: cobra.NoArgs,
	RunE: runProjectList,
}

func runProjectList(cmd *cobra.Command, args []string) error {
	tags, _ := cmd.Flags().GetStringSlice("tag")
	under, _ := cmd.Flags().GetStringSlice("under")
	untagged, _ := cmd.Flags().GetBool("untagged")
	text, _ := cmd.Flags().GetString("text")
	pinned, _ := cmd.Flags().GetBool("pinned")
	since, _ := cmd.Flags().GetString("since")
	sortFlag, _ := cmd.Flags().GetString("sort")

	var filters []view.Filter
	for _, t := range tags {
		filters = append(filters, view.TagFilter(t))
	}
	for _, t := range under {
		filters = append(filters, view.ParentFilter(t))
	}
	if untagged {
		filters = append(filters, view.Filter{Kind: view.KindUntagged})
	}
	if text != "" {
		filters = append(filters, view.TextFilter(text))
	}
	if pinned {
		filters = append(filters, view.Filter{Kind: view.KindPinned})
	}
	if since != "" {
		t, err := parseSince(since, time.Now())
		if err != nil {
			return err
		}
		filters = append(filters, view.SinceFilter(t))
	}

	a, err := openReady(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	mode := a.cfg.SortMode()
	if sortFlag != "" {
		if mode, err = view.ParseSortMode(sortFlag); err != nil {
			return err
		}
	}
	projects := view.Sort(view.Apply(a.store.Projects(), filters), mode)

	if a.json {
		if projects == nil {
			projects = []*schema.Project{}
		}
		return a.printJSON(projects)
	}
	if len(projects) == 0 {
		a.printf("No matching projects\n")
		return nil
	}
	now := time.Now()
	for _, p := range projects {
		a.printf("%s %s\n", a.out.ProjectLine(p, a.store.ColorOf), a.out.Dim.Render(ui.Ago(p.Updated(), now)))
	}
	return nil
}

var projectPinCmd = &cobra.Command{
	Use:   "pin <project>",
	Short: "Toggle a project's pinned state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		pinned, err := a.store.TogglePin(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		state := "unpinned"
		if pinned {
			state = "pinned"
		}
		a.printf("%s %s %s\n", a.out.Pass("✓"), args[0], state)
		return nil
	},
}

var projectRenameCmd = &cobra.Command{
	Use:   "rename <project> <name>",
	Short: "Update a tracked project's display name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		err = a.store.SyncProjectName(cmd.Context(), args[0], args[1])
		return a.result(err, fmt.Sprintf("Renamed %s to %q", args[0], args[1]))
	},
}

func init() {
	f := projectListCmd.Flags()
	f.StringSlice("tag", nil, "Only projects with this exact tag (repeatable)")
	f.StringSlice("under", nil, "Only projects with this tag or a descendant (repeatable)")
	f.Bool("untagged", false, "Only projects without tags")
	f.String("text", "", "Only projects whose name contains this text")
	f.Bool("pinned", false, "Only pinned projects")
	f.String("since", "", "Only projects modified since this time")
	f.String("sort", "", "Sort mode (default from view.sort)")

	projectCmd.AddCommand(projectListCmd, projectPinCmd, projectRenameCmd)
	rootCmd.AddCommand(projectCmd)
}

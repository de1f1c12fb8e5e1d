package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagshelf/tagshelf/internal/tagstore/hierarchy"
	"github.com/tagshelf/tagshelf/internal/ui"
)

var tagCmd = &cobra.Command{
	Use:     "tag",
	GroupID: "tags",
	Short:   "Add, rename, merge, move and color tags",
	Long: `Manage hierarchical tags.

Tags are slash-separated paths ("Lang/Go/Web"). Adding a tag registers its
ancestors; renames, merges and moves rewrite every project that uses them.`,
}

var tagAddCmd = &cobra.Command{
	Use:   "add <project> <tag>",
	Short: "Add a tag to a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		err = a.store.AddTag(cmd.Context(), args[0], args[1])
		return a.result(err, fmt.Sprintf("Added %s to %s", a.tag(strings.TrimSpace(args[1])), args[0]))
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <project> <tag>",
	Short: "Remove a tag from a project (the tag stays registered)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		err = a.store.RemoveTag(cmd.Context(), args[0], args[1])
		return a.result(err, fmt.Sprintf("Removed %s from %s", args[1], args[0]))
	},
}

var tagRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a tag",
	Long: `Rename a tag everywhere it is used.

By default only the tag itself is renamed; its descendants keep their
names. --tree renames the whole subtree.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, _ := cmd.Flags().GetBool("tree")
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if tree {
			err = a.store.RenameTree(cmd.Context(), args[0], args[1])
		} else {
			err = a.store.Rename(cmd.Context(), args[0], args[1])
		}
		return a.result(err, fmt.Sprintf("Renamed %s to %s", args[0], a.tag(args[1])))
	},
}

var tagMergeCmd = &cobra.Command{
	Use:   "merge <source> <target>",
	Short: "Merge a tag (and its subtree) into another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		src, dst := args[0], args[1]
		ok, err := confirm(cmd, fmt.Sprintf("Merge %s into %s?", src, dst),
			fmt.Sprintf("%d tag(s) will be folded into %s.", len(a.store.RemovalSet(src)), dst))
		if err != nil || !ok {
			return err
		}
		err = a.store.Merge(cmd.Context(), src, dst)
		return a.result(err, fmt.Sprintf("Merged %s into %s", src, a.tag(dst)))
	},
}

var tagMoveCmd = &cobra.Command{
	Use:   "move <tag> [parent]",
	Short: "Move a tag under a new parent",
	Long: `Move a tag and its subtree under a new parent, or to the top level with
--root. When the destination already exists the tag is merged into it.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		toRoot, _ := cmd.Flags().GetBool("root")
		parent := ""
		switch {
		case len(args) == 2 && toRoot:
			return fmt.Errorf("give either a parent or --root, not both")
		case len(args) == 2:
			parent = args[1]
		case !toRoot:
			return fmt.Errorf("missing parent (use --root to move to the top level)")
		}

		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		src := args[0]
		if dest := hierarchy.Join(parent, hierarchy.Base(src)); dest != src && a.store.HasTag(dest) {
			ok, err := confirm(cmd, fmt.Sprintf("%s already exists. Merge %s into it?", dest, src), "")
			if err != nil || !ok {
				return err
			}
		}
		newName, err := a.store.MoveToParent(cmd.Context(), src, parent)
		return a.result(err, fmt.Sprintf("Moved %s to %s", src, a.tag(newName)))
	},
}

var tagDeleteCmd = &cobra.Command{
	Use:   "delete <tag>",
	Short: "Delete a tag and all its descendants from every project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		set := a.store.RemovalSet(args[0])
		ok, err := confirm(cmd, fmt.Sprintf("Delete %d tag(s)?", len(set)), strings.Join(set, "\n"))
		if err != nil || !ok {
			return err
		}
		removed, err := a.store.RemoveTagAndDescendants(cmd.Context(), args[0])
		return a.result(err, fmt.Sprintf("Deleted %d tag(s)", len(removed)))
	},
}

var tagColorCmd = &cobra.Command{
	Use:   "color <tag> <color|none>",
	Short: "Set or clear a tag's color",
	Long: `Set a tag's color from the palette:
  blue, green, yellow, red, purple, cyan, orange, brown

"none" clears the color so the tag inherits its parent's.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		color := args[1]
		if strings.EqualFold(color, "none") {
			color = ""
		}
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		err = a.store.SetTagColor(cmd.Context(), args[0], color)
		return a.result(err, fmt.Sprintf("Colored %s", a.tag(args[0])))
	},
}

var tagTreeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show the tag hierarchy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		counts, _ := cmd.Flags().GetBool("counts")
		collapse, _ := cmd.Flags().GetBool("collapse")
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		nodes := a.store.TagTree()
		if a.json {
			return a.printJSON(nodes)
		}
		if len(nodes) == 0 {
			a.printf("No tags yet\n")
			return nil
		}
		a.printf("%s", a.out.Tree(nodes, ui.TreeOptions{ShowCounts: counts, Collapse: collapse}))
		return nil
	},
}

var tagExpandCmd = &cobra.Command{
	Use:   "expand <tag>",
	Short: "Toggle whether a tag's children are shown in collapsed trees",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		expanded, err := a.store.ToggleExpanded(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		state := "collapsed"
		if expanded {
			state = "expanded"
		}
		a.printf("%s %s is now %s\n", a.out.Pass("✓"), args[0], state)
		return nil
	},
}

var tagReorderCmd = &cobra.Command{
	Use:   "reorder <project> <dragged-root> [target-root]",
	Short: "Reorder a project's tag groups",
	Long: `Move the group of tags under one root to another position.

With a target root the group takes the target's slot. With --index the
group is inserted before the given position.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, _ := cmd.Flags().GetString("index")
		if (len(args) == 3) == (index != "") {
			return fmt.Errorf("give either a target root or --index")
		}

		a, err := openReady(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if index != "" {
			i, err := strconv.Atoi(index)
			if err != nil {
				return fmt.Errorf("invalid --index %q: %w", index, err)
			}
			err = a.store.ReorderTagGroupsAt(cmd.Context(), args[0], args[1], i)
			return a.result(err, fmt.Sprintf("Moved %s to position %d", args[1], i))
		}
		err = a.store.ReorderTagGroups(cmd.Context(), args[0], args[1], args[2])
		return a.result(err, fmt.Sprintf("Moved %s to %s's slot", args[1], args[2]))
	},
}

// tag renders a tag in its current color.
func (a *app) tag(name string) string {
	return a.out.Tag(name, a.store.ColorOf(name))
}

func init() {
	tagRenameCmd.Flags().Bool("tree", false, "Rename the whole subtree")
	tagMergeCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")
	tagMoveCmd.Flags().Bool("root", false, "Move to the top level")
	tagMoveCmd.Flags().BoolP("yes", "y", false, "Skip confirmation when the move merges")
	tagDeleteCmd.Flags().BoolP("yes", "y", false, "Skip confirmation")
	tagTreeCmd.Flags().Bool("counts", false, "Show how many projects use each tag")
	tagTreeCmd.Flags().Bool("collapse", false, "Hide children of tags that are not expanded")
	tagReorderCmd.Flags().String("index", "", "Insert the group before this position")

	tagCmd.AddCommand(tagAddCmd, tagRmCmd, tagRenameCmd, tagMergeCmd, tagMoveCmd,
		tagDeleteCmd, tagColorCmd, tagTreeCmd, tagExpandCmd, tagReorderCmd)
	rootCmd.AddCommand(tagCmd)
}

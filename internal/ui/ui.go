// Package ui renders tags and projects for the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
	"github.com/tagshelf/tagshelf/internal/tagstore/store"
)

// Renderer styles output for one writer.
type Renderer struct {
	r *lipgloss.Renderer

	Header  lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Dim     lipgloss.Style
	Label   lipgloss.Style
}

// NewRenderer detects the color profile of w. noColor, or NO_COLOR in the
// environment, forces plain output.
func NewRenderer(w io.Writer, noColor bool) *Renderer {
	r := lipgloss.NewRenderer(w, termenv.WithColorCache(true))
	if noColor || termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}
	return newRenderer(r)
}

// NewPlainRenderer never emits escape sequences.
func NewPlainRenderer(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(termenv.Ascii)
	return newRenderer(r)
}

func newRenderer(r *lipgloss.Renderer) *Renderer {
	return &Renderer{
		r:       r,
		Header:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		Success: r.NewStyle().Foreground(lipgloss.Color("46")),
		Warning: r.NewStyle().Foreground(lipgloss.Color("226")),
		Error:   r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Dim:     r.NewStyle().Foreground(lipgloss.Color("245")),
		Label:   r.NewStyle().Foreground(lipgloss.Color("45")),
	}
}

// Stdout returns a renderer for standard output.
func Stdout(noColor bool) *Renderer { return NewRenderer(os.Stdout, noColor) }

// Tag renders a tag name in its (possibly inherited) palette color.
func (r *Renderer) Tag(name, color string) string {
	if color == "" {
		return name
	}
	return r.r.NewStyle().Foreground(lipgloss.Color(color)).Render(name)
}

// Swatch renders a colored dot, or a hollow one when color is unset.
func (r *Renderer) Swatch(color string) string {
	if color == "" {
		return r.Dim.Render("○")
	}
	return r.r.NewStyle().Foreground(lipgloss.Color(color)).Render("●")
}

// TreeOptions controls tree output.
type TreeOptions struct {
	ShowCounts bool
	// Collapse hides the children of nodes that are not expanded.
	Collapse bool
}

// Tree renders a tag forest with box-drawing connectors.
func (r *Renderer) Tree(nodes []*store.TreeNode, opts TreeOptions) string {
	var b strings.Builder
	for i, n := range nodes {
		r.writeNode(&b, n, "", i == len(nodes)-1, true, opts)
	}
	return b.String()
}

func (r *Renderer) writeNode(b *strings.Builder, n *store.TreeNode, prefix string, last, root bool, opts TreeOptions) {
	connector, childPrefix := "", ""
	if !root {
		if last {
			connector, childPrefix = "└── ", prefix+"    "
		} else {
			connector, childPrefix = "├── ", prefix+"│   "
		}
	}

	if lead := prefix + connector; lead != "" {
		b.WriteString(r.Dim.Render(lead))
	}
	b.WriteString(r.Swatch(n.Color))
	b.WriteByte(' ')
	b.WriteString(r.Tag(n.Base, n.Color))
	if opts.ShowCounts && n.Count > 0 {
		b.WriteString(r.Dim.Render(fmt.Sprintf(" (%d)", n.Count)))
	}
	if name := schema.ColorName(n.Color); n.OwnColor && name != "" {
		b.WriteString(r.Dim.Render(" [" + name + "]"))
	}
	hidden := opts.Collapse && !n.Expanded && len(n.Children) > 0
	if hidden {
		b.WriteString(r.Dim.Render(fmt.Sprintf(" +%d", len(n.Children))))
	}
	b.WriteByte('\n')

	if hidden {
		return
	}
	for i, c := range n.Children {
		r.writeNode(b, c, childPrefix, i == len(n.Children)-1, false, opts)
	}
}

// ProjectLine renders one project: pin marker, name, ID, and colored tags.
func (r *Renderer) ProjectLine(p *schema.Project, colorOf func(string) string) string {
	var b strings.Builder
	if p.Pinned {
		b.WriteString(r.Warning.Render("★ "))
	} else {
		b.WriteString("  ")
	}
	name := p.Name
	if name == "" {
		name = p.ID
	}
	b.WriteString(r.Label.Render(name))
	if name != p.ID {
		b.WriteString(r.Dim.Render(" (" + p.ID + ")"))
	}
	if len(p.Tags) == 0 {
		b.WriteString(r.Dim.Render("  untagged"))
		return b.String()
	}
	tags := make([]string, len(p.Tags))
	for i, t := range p.Tags {
		tags[i] = r.Tag(t, colorOf(t))
	}
	b.WriteString("  ")
	b.WriteString(strings.Join(tags, r.Dim.Render(", ")))
	return b.String()
}

// KeyValue renders an aligned "label: value" line.
func (r *Renderer) KeyValue(label string, value any) string {
	return r.Label.Render(fmt.Sprintf("%-16s", label+":")) + " " + fmt.Sprint(value)
}

// Ago renders a coarse relative time.
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Pass renders a success marker such as "✓".
func (r *Renderer) Pass(s string) string { return r.Success.Render(s) }

// Warn renders a warning marker.
func (r *Renderer) Warn(s string) string { return r.Warning.Render(s) }

// Fail renders an error marker.
func (r *Renderer) Fail(s string) string { return r.Error.Render(s) }

// Accent renders a heading.
func (r *Renderer) Accent(s string) string { return r.Header.Render(s) }

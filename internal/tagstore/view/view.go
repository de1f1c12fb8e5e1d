// Package view filters and orders projects for display.
package view

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tagshelf/tagshelf/internal/tagstore/hierarchy"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

// Kind identifies a filter.
type Kind string

// Filter kinds.
const (
	KindTag       Kind = "tag"        // project carries the tag
	KindTagParent Kind = "tag-parent" // project carries the tag or a descendant
	KindUntagged  Kind = "untagged"
	KindText      Kind = "text" // case-insensitive name substring
	KindPinned    Kind = "pinned"
	KindSince     Kind = "since" // modified at or after Since
)

// Filter is one display condition. Filters combine with AND.
type Filter struct {
	Kind  Kind
	Value string
	Since time.Time
}

// TagFilter returns an exact-tag filter.
func TagFilter(tag string) Filter { return Filter{Kind: KindTag, Value: tag} }

// ParentFilter returns a tag-or-descendant filter.
func ParentFilter(tag string) Filter { return Filter{Kind: KindTagParent, Value: tag} }

// TextFilter returns a name substring filter.
func TextFilter(text string) Filter { return Filter{Kind: KindText, Value: text} }

// SinceFilter returns a modification time filter.
func SinceFilter(t time.Time) Filter { return Filter{Kind: KindSince, Since: t} }

// Match reports whether p satisfies the filter. A nil project is an
// untracked one: no tags, not pinned.
func (f Filter) Match(p *schema.Project) bool {
	var tags []string
	var name string
	var pinned bool
	var updated time.Time
	if p != nil {
		tags, name, pinned, updated = p.Tags, p.Name, p.Pinned, p.Updated()
	}

	switch f.Kind {
	case KindTag:
		return slices.Contains(tags, f.Value)
	case KindTagParent:
		return slices.ContainsFunc(tags, func(t string) bool {
			return hierarchy.IsSelfOrDescendant(t, f.Value)
		})
	case KindUntagged:
		return len(tags) == 0
	case KindText:
		return strings.Contains(strings.ToLower(name), strings.ToLower(f.Value))
	case KindPinned:
		return pinned
	case KindSince:
		return p != nil && !updated.Before(f.Since)
	default:
		return true
	}
}

func (f Filter) isTag() bool {
	return f.Kind == KindTag || f.Kind == KindTagParent
}

func (f Filter) same(o Filter) bool {
	return f.Kind == o.Kind && f.Value == o.Value && f.Since.Equal(o.Since)
}

// String renders the filter for display.
func (f Filter) String() string {
	switch f.Kind {
	case KindUntagged, KindPinned:
		return string(f.Kind)
	case KindSince:
		return fmt.Sprintf("since:%s", f.Since.Format(time.RFC3339))
	default:
		return fmt.Sprintf("%s:%s", f.Kind, f.Value)
	}
}

// Apply returns the projects matching every filter, in input order.
func Apply(projects []*schema.Project, filters []Filter) []*schema.Project {
	if len(filters) == 0 {
		return slices.Clone(projects)
	}
	out := make([]*schema.Project, 0, len(projects))
	for _, p := range projects {
		ok := true
		for _, f := range filters {
			if !f.Match(p) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, p)
		}
	}
	return out
}

// SortMode selects project ordering.
type SortMode string

// Sort modes.
const (
	SortDefault  SortMode = "default"
	SortNameAsc  SortMode = "name-asc"
	SortNameDesc SortMode = "name-desc"
	SortTagsDesc SortMode = "tags-desc"
)

// ParseSortMode validates a sort mode name. Empty means SortDefault.
func ParseSortMode(s string) (SortMode, error) {
	switch m := SortMode(strings.TrimSpace(s)); m {
	case "":
		return SortDefault, nil
	case SortDefault, SortNameAsc, SortNameDesc, SortTagsDesc:
		return m, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q (want default, name-asc, name-desc or tags-desc)", s)
	}
}

// Sort orders projects stably. Pinned projects always come first; within
// each group the mode decides and SortDefault keeps input order.
func Sort(projects []*schema.Project, mode SortMode) []*schema.Project {
	out := slices.Clone(projects)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Pinned != b.Pinned {
			return a.Pinned
		}
		switch mode {
		case SortNameAsc:
			return hierarchy.CompareLocale(a.Name, b.Name) < 0
		case SortNameDesc:
			return hierarchy.CompareLocale(b.Name, a.Name) < 0
		case SortTagsDesc:
			return len(a.Tags) > len(b.Tags)
		default:
			return false
		}
	})
	return out
}

// Selection is the active filter set. It is safe for concurrent use.
type Selection struct {
	mu      sync.Mutex
	filters []Filter
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{}
}

// Add appends f unless an identical filter is active. A text filter replaces
// any previous text filter.
func (s *Selection) Add(f Filter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.filters {
		if cur.same(f) {
			return false
		}
	}
	if f.Kind == KindText {
		s.filters = slices.DeleteFunc(s.filters, func(c Filter) bool { return c.Kind == KindText })
		if f.Value == "" {
			return true
		}
	}
	s.filters = append(s.filters, f)
	return true
}

// Remove drops f and reports whether it was active.
func (s *Selection) Remove(f Filter) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.filters)
	s.filters = slices.DeleteFunc(s.filters, func(c Filter) bool { return c.same(f) })
	return len(s.filters) != n
}

// Toggle adds f if inactive, removes it otherwise. It returns the new state.
func (s *Selection) Toggle(f Filter) bool {
	if s.Remove(f) {
		return false
	}
	s.Add(f)
	return true
}

// Clear drops every filter.
func (s *Selection) Clear() {
	s.mu.Lock()
	s.filters = nil
	s.mu.Unlock()
}

// Filters returns a copy of the active filters.
func (s *Selection) Filters() []Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.filters)
}

// Tags returns the tag values of active tag filters.
func (s *Selection) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, f := range s.filters {
		if f.isTag() {
			out = append(out, f.Value)
		}
	}
	return out
}

// ReplaceTag rewrites tag filters on oldTag to newTag, dropping them when an
// equivalent filter on newTag is already active.
func (s *Selection) ReplaceTag(oldTag, newTag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	out := make([]Filter, 0, len(s.filters))
	for _, f := range s.filters {
		if f.isTag() && f.Value == oldTag {
			changed = true
			nf := Filter{Kind: f.Kind, Value: newTag}
			if slices.ContainsFunc(s.filters, nf.same) {
				continue
			}
			f = nf
		}
		out = append(out, f)
	}
	s.filters = out
	return changed
}

// RetainTags drops tag filters whose tag no longer satisfies exists.
func (s *Selection) RetainTags(exists func(string) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.filters)
	s.filters = slices.DeleteFunc(s.filters, func(f Filter) bool {
		return f.isTag() && !exists(f.Value)
	})
	return len(s.filters) != n
}

// Dropdown height bounds, in pixels.
const (
	DefaultDropdownHeight = 350
	MinDropdownHeight     = 100
	MaxDropdownHeight     = 600
)

// ClampDropdownHeight bounds h to the allowed range.
func ClampDropdownHeight(h int) int {
	return max(MinDropdownHeight, min(MaxDropdownHeight, h))
}

// ToggleExpanded flips tag's membership in expanded and returns the new list.
func ToggleExpanded(expanded []string, tag string) []string {
	if slices.Contains(expanded, tag) {
		return slices.DeleteFunc(slices.Clone(expanded), func(t string) bool { return t == tag })
	}
	return append(slices.Clone(expanded), tag)
}

package store

import (
	"maps"
	"slices"
	"sort"

	"github.com/tagshelf/tagshelf/internal/tagstore/hierarchy"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

// Project returns a copy of a cached project.
func (s *Store) Project(id string) (*schema.Project, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// Projects returns copies of every cached project, sorted by ID.
func (s *Store) Projects() []*schema.Project {
	return s.snapshotProjects()
}

// ProjectIDs returns the cached project IDs in sorted order.
func (s *Store) ProjectIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Collect(maps.Keys(s.projects))
	sort.Strings(ids)
	return ids
}

// AllProjectTags maps every cached project ID to a copy of its tag list.
func (s *Store) AllProjectTags() map[string][]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]string, len(s.projects))
	for id, p := range s.projects {
		out[id] = slices.Clone(p.Tags)
	}
	return out
}

// AllTagNames returns the registered tag set. Metadata keys win when any
// exist; otherwise the legacy flat list is used.
func (s *Store) AllTagNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allTagNamesLocked()
}

func (s *Store) allTagNamesLocked() []string {
	if len(s.tagMeta) > 0 {
		names := slices.Collect(maps.Keys(s.tagMeta))
		hierarchy.SortLocale(names)
		return names
	}
	return slices.Clone(s.allTags)
}

// FlatTags returns the cached legacy flat list as stored.
func (s *Store) FlatTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.allTags)
}

// TagMeta returns the metadata record of a tag.
func (s *Store) TagMeta(tag string) (schema.TagMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.tagMeta[tag]
	return m, ok
}

// HasTag reports whether tag is registered in the metadata or the flat list.
func (s *Store) HasTag(tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasTagLocked(tag)
}

func (s *Store) hasTagLocked(tag string) bool {
	if _, ok := s.tagMeta[tag]; ok {
		return true
	}
	return slices.Contains(s.allTags, tag)
}

// referenced reports whether tag is registered or carried by any project.
func (s *Store) referenced(tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hasTagLocked(tag) {
		return true
	}
	for _, p := range s.projects {
		if p.HasTag(tag) {
			return true
		}
	}
	return false
}

// knownTags returns every registered or project-referenced tag, normalized.
func (s *Store) knownTags() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.allTagNamesLocked()
	all = append(all, s.allTags...)
	for _, p := range s.projects {
		all = append(all, p.Tags...)
	}
	return hierarchy.Normalize(all)
}

// ColorOf returns the tag's own color, or the nearest ancestor's, or "".
func (s *Store) ColorOf(tag string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.colorOfLocked(tag)
}

func (s *Store) colorOfLocked(tag string) string {
	if m, ok := s.tagMeta[tag]; ok && m.HasColor() {
		return m.ColorValue()
	}
	if parent, ok := hierarchy.Parent(tag); ok {
		return s.colorOfLocked(parent)
	}
	return ""
}

// HasCustomColor reports whether the tag carries its own color.
func (s *Store) HasCustomColor(tag string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.tagMeta[tag]
	return ok && m.HasColor()
}

// UsageCounts maps each tag to the number of projects carrying it.
func (s *Store) UsageCounts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int)
	for _, p := range s.projects {
		for _, t := range p.Tags {
			out[t]++
		}
	}
	return out
}

// RemovalSet returns tag followed by every current descendant: exactly what
// RemoveTagAndDescendants would delete.
func (s *Store) RemovalSet(tag string) []string {
	return append([]string{tag}, hierarchy.Children(tag, s.knownTags())...)
}

// Preferences returns the persisted view settings.
func (s *Store) Preferences() Preferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Preferences{
		ExpandedTags:   slices.Clone(s.prefs.ExpandedTags),
		DropdownHeight: s.prefs.DropdownHeight,
	}
}

// TreeNode is a tag with display attributes.
type TreeNode struct {
	Name       string      `json:"name"`
	Base       string      `json:"base"`
	Depth      int         `json:"depth"`
	Color      string      `json:"color,omitempty"` // inherited when OwnColor is false
	OwnColor   bool        `json:"ownColor"`
	Count      int         `json:"count"`
	Expanded   bool        `json:"expanded"`
	Registered bool        `json:"registered"` // false for names only present on projects
	Children   []*TreeNode `json:"children,omitempty"`
}

// TagTree arranges every known tag into a forest.
func (s *Store) TagTree() []*TreeNode {
	known := s.knownTags()
	counts := s.UsageCounts()

	s.mu.RLock()
	defer s.mu.RUnlock()
	expanded := make(map[string]bool, len(s.prefs.ExpandedTags))
	for _, t := range s.prefs.ExpandedTags {
		expanded[t] = true
	}

	var convert func(n *hierarchy.Node) *TreeNode
	convert = func(n *hierarchy.Node) *TreeNode {
		m, registered := s.tagMeta[n.Name]
		if !registered {
			registered = slices.Contains(s.allTags, n.Name)
		}
		out := &TreeNode{
			Name:       n.Name,
			Base:       n.Base,
			Depth:      n.Depth,
			Color:      s.colorOfLocked(n.Name),
			OwnColor:   m.HasColor(),
			Count:      counts[n.Name],
			Expanded:   expanded[n.Name],
			Registered: registered,
		}
		for _, c := range n.Children {
			out.Children = append(out.Children, convert(c))
		}
		return out
	}

	roots := hierarchy.BuildTree(known)
	out := make([]*TreeNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, convert(r))
	}
	return out
}

package store

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/tagshelf/tagshelf/internal/tagstore/hierarchy"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

// projectOrNew returns a copy of the cached project, or a default record for
// an untracked ID.
func (s *Store) projectOrNew(id string) *schema.Project {
	if p, ok := s.Project(id); ok {
		return p
	}
	p := schema.NewProject(id, s.hostName(id))
	p.Touch(s.config.Now())
	return p
}

func (s *Store) hostName(id string) string {
	if s.config.NameSource == nil {
		return ""
	}
	return strings.TrimSpace(s.config.NameSource(id))
}

// AddTag validates rawTag and appends it to the project, registering the
// tag and its ancestors. Adding a tag the project already carries returns
// ErrAlreadyExists without writing.
func (s *Store) AddTag(ctx context.Context, projectID, rawTag string) error {
	tag, err := hierarchy.Validate(rawTag)
	if err != nil {
		return err
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p := s.projectOrNew(projectID)
	if p.HasTag(tag) {
		return fmt.Errorf("%w: project %s already has tag %q", ErrAlreadyExists, projectID, tag)
	}
	if name := s.hostName(projectID); name != "" {
		p.Name = name
	}

	flat, err := s.ensureTags(ctx, tag)
	if err != nil {
		return err
	}
	p.Tags = append(p.Tags, tag)
	p.Touch(s.config.Now())

	if err := s.persist(ctx, []*schema.Project{p}, flat); err != nil {
		return err
	}
	s.emit(Event{Source: SourceLocal, Tags: true, Projects: true})
	return nil
}

// RemoveTag drops a tag from one project. The tag stays registered even when
// no project uses it anymore.
func (s *Store) RemoveTag(ctx context.Context, projectID, tag string) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, ok := s.Project(projectID)
	if !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	out, changed := hierarchy.RemoveTags(p.Tags, map[string]bool{tag: true})
	if !changed {
		return fmt.Errorf("%w: project %s does not have tag %q", ErrNoChange, projectID, tag)
	}
	p.Tags = out
	p.Touch(s.config.Now())

	if err := s.persist(ctx, []*schema.Project{p}, nil); err != nil {
		return err
	}
	s.emit(Event{Source: SourceLocal, Projects: true})
	return nil
}

// tagGroup is a project's tags sharing one top-level segment.
type tagGroup struct {
	root string
	tags []string
}

// groupByRoot groups tags by top-level segment in first-seen order,
// preserving each group's internal order.
func groupByRoot(tags []string) []tagGroup {
	var groups []tagGroup
	index := make(map[string]int)
	for _, t := range tags {
		root := hierarchy.Root(t)
		i, ok := index[root]
		if !ok {
			i = len(groups)
			index[root] = i
			groups = append(groups, tagGroup{root: root})
		}
		groups[i].tags = append(groups[i].tags, t)
	}
	return groups
}

func flattenGroups(groups []tagGroup) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g.tags...)
	}
	return out
}

func groupIndex(groups []tagGroup, root string) int {
	return slices.IndexFunc(groups, func(g tagGroup) bool { return g.root == root })
}

// ReorderTagGroups moves the group of draggedRoot into the slot held by the
// group of targetRoot: before it when dragging up, after it when dragging
// down.
func (s *Store) ReorderTagGroups(ctx context.Context, projectID, draggedRoot, targetRoot string) error {
	if draggedRoot == targetRoot {
		return ErrNoChange
	}
	return s.reorder(ctx, projectID, func(groups []tagGroup) ([]tagGroup, error) {
		from := groupIndex(groups, draggedRoot)
		to := groupIndex(groups, targetRoot)
		if from < 0 || to < 0 {
			return nil, fmt.Errorf("%w: tag group %q or %q on project %s", ErrNotFound, draggedRoot, targetRoot, projectID)
		}
		g := groups[from]
		groups = slices.Delete(groups, from, from+1)
		return slices.Insert(groups, to, g), nil
	})
}

// ReorderTagGroupsAt moves the group of draggedRoot to the gap before
// position index (len(groups) for the end). Dropping a group onto either of
// its own edges is a no-op.
func (s *Store) ReorderTagGroupsAt(ctx context.Context, projectID, draggedRoot string, index int) error {
	return s.reorder(ctx, projectID, func(groups []tagGroup) ([]tagGroup, error) {
		from := groupIndex(groups, draggedRoot)
		if from < 0 {
			return nil, fmt.Errorf("%w: tag group %q on project %s", ErrNotFound, draggedRoot, projectID)
		}
		index = max(0, min(index, len(groups)))
		if index == from || index == from+1 {
			return nil, ErrNoChange
		}
		g := groups[from]
		groups = slices.Delete(groups, from, from+1)
		if index > from {
			index--
		}
		return slices.Insert(groups, index, g), nil
	})
}

func (s *Store) reorder(ctx context.Context, projectID string, move func([]tagGroup) ([]tagGroup, error)) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, ok := s.Project(projectID)
	if !ok || len(p.Tags) == 0 {
		return fmt.Errorf("%w: project %s has no tags", ErrNotFound, projectID)
	}
	groups, err := move(groupByRoot(p.Tags))
	if err != nil {
		return err
	}
	reordered := flattenGroups(groups)
	if slices.Equal(reordered, p.Tags) {
		return ErrNoChange
	}
	p.Tags = reordered
	p.Touch(s.config.Now())

	if err := s.persist(ctx, []*schema.Project{p}, nil); err != nil {
		return err
	}
	s.emit(Event{Source: SourceLocal, Projects: true})
	return nil
}

// TogglePin flips a project's pinned flag, tracking the project if needed,
// and returns the new state.
func (s *Store) TogglePin(ctx context.Context, projectID string) (bool, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return false, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p := s.projectOrNew(projectID)
	p.Pinned = !p.Pinned
	p.Touch(s.config.Now())

	if err := s.persist(ctx, []*schema.Project{p}, nil); err != nil {
		return !p.Pinned, err
	}
	s.emit(Event{Source: SourceLocal, Projects: true})
	return p.Pinned, nil
}

// SyncProjectName stores a newer host-provided display name for a tracked
// project. Untracked projects are not created.
func (s *Store) SyncProjectName(ctx context.Context, projectID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNoChange
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	p, ok := s.Project(projectID)
	if !ok {
		return fmt.Errorf("%w: project %s", ErrNotFound, projectID)
	}
	if p.Name == name {
		return ErrNoChange
	}
	p.Name = name
	p.Touch(s.config.Now())

	if err := s.persist(ctx, []*schema.Project{p}, nil); err != nil {
		return err
	}
	s.emit(Event{Source: SourceLocal, Projects: true})
	return nil
}

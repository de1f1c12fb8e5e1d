package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/tagshelf/tagshelf/internal/tagstore/hierarchy"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

// Rename renames a single tag. Descendants keep their names; use RenameTree
// or MoveToParent to carry a subtree. Renaming onto an existing tag fails
// with ErrConflict; use Merge for that.
func (s *Store) Rename(ctx context.Context, oldTag, newTag string) error {
	newTag, err := hierarchy.Validate(newTag)
	if err != nil {
		return err
	}
	if oldTag == newTag {
		return ErrNoChange
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.referenced(oldTag) {
		return fmt.Errorf("%w: tag %q", ErrNotFound, oldTag)
	}
	if s.referenced(newTag) {
		return fmt.Errorf("%w: %q", ErrConflict, newTag)
	}
	if err := s.renameTag(ctx, oldTag, newTag); err != nil {
		return err
	}
	s.emit(Event{Source: SourceLocal, Tags: true, Projects: true})
	return nil
}

// RenameTree renames a tag and every descendant by prefix substitution.
func (s *Store) RenameTree(ctx context.Context, oldTag, newTag string) error {
	newTag, err := hierarchy.Validate(newTag)
	if err != nil {
		return err
	}
	if oldTag == newTag {
		return ErrNoChange
	}
	if hierarchy.IsDescendant(newTag, oldTag) {
		return fmt.Errorf("%w: %q is beneath %q", ErrCycle, newTag, oldTag)
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.referenced(oldTag) {
		return fmt.Errorf("%w: tag %q", ErrNotFound, oldTag)
	}
	if s.referenced(newTag) {
		return fmt.Errorf("%w: %q", ErrConflict, newTag)
	}
	if err := s.renameTree(ctx, oldTag, newTag); err != nil {
		return err
	}
	s.emit(Event{Source: SourceLocal, Tags: true, Projects: true})
	return nil
}

// Merge folds sourceTag into targetTag, together with its subtree. Projects
// carrying the source get the target at the same position (or just lose the
// source when they already carry the target). The source's color moves to
// the target when the target has none.
func (s *Store) Merge(ctx context.Context, sourceTag, targetTag string) error {
	targetTag, err := hierarchy.Validate(targetTag)
	if err != nil {
		return err
	}
	if sourceTag == targetTag {
		return ErrNoChange
	}
	if hierarchy.IsDescendant(targetTag, sourceTag) {
		return fmt.Errorf("%w: %q is beneath %q", ErrCycle, targetTag, sourceTag)
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.referenced(sourceTag) {
		return fmt.Errorf("%w: tag %q", ErrNotFound, sourceTag)
	}
	if err := s.merge(ctx, sourceTag, targetTag); err != nil {
		return err
	}
	s.emit(Event{Source: SourceLocal, Tags: true, Projects: true})
	return nil
}

// MoveToParent re-parents a tag and its subtree under newParent ("" for the
// root) and returns the tag's new name. A collision with an existing tag
// merges into it.
func (s *Store) MoveToParent(ctx context.Context, sourceTag, newParent string) (string, error) {
	if sourceTag == newParent {
		return "", fmt.Errorf("%w: %q onto itself", ErrInvalidMove, sourceTag)
	}
	if newParent != "" && hierarchy.IsDescendant(newParent, sourceTag) {
		return "", fmt.Errorf("%w: %q is beneath %q", ErrCycle, newParent, sourceTag)
	}
	newName := hierarchy.Join(newParent, hierarchy.Base(sourceTag))
	if newName == sourceTag {
		return sourceTag, ErrNoChange
	}
	newName, err := hierarchy.Validate(newName)
	if err != nil {
		return "", err
	}
	if err := s.EnsureReady(ctx); err != nil {
		return "", err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.referenced(sourceTag) {
		return "", fmt.Errorf("%w: tag %q", ErrNotFound, sourceTag)
	}
	if s.referenced(newName) {
		err = s.merge(ctx, sourceTag, newName)
	} else {
		err = s.renameTree(ctx, sourceTag, newName)
	}
	if err != nil {
		return "", err
	}
	s.emit(Event{Source: SourceLocal, Tags: true, Projects: true})
	return newName, nil
}

// RemoveTagAndDescendants deletes a tag and its subtree from every project,
// the metadata and the flat list. It returns the removed names; RemovalSet
// previews them.
func (s *Store) RemoveTagAndDescendants(ctx context.Context, tag string) ([]string, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return nil, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if !s.referenced(tag) {
		return nil, fmt.Errorf("%w: tag %q", ErrNotFound, tag)
	}
	set := s.RemovalSet(tag)
	remove := make(map[string]bool, len(set))
	for _, t := range set {
		remove[t] = true
	}

	var changed []*schema.Project
	for _, p := range s.snapshotProjects() {
		if out, ok := hierarchy.RemoveTags(p.Tags, remove); ok {
			p.Tags = out
			p.Touch(s.config.Now())
			changed = append(changed, p)
		}
	}
	if err := s.persist(ctx, changed, nil); err != nil {
		return nil, err
	}

	var withMeta []string
	for _, t := range set {
		if _, ok := s.TagMeta(t); ok {
			withMeta = append(withMeta, t)
		}
	}
	if err := s.writeMeta(ctx, nil, withMeta); err != nil {
		return nil, err
	}

	flat, _ := hierarchy.RemoveTags(s.FlatTags(), remove)
	if err := s.persist(ctx, nil, flat); err != nil {
		return nil, err
	}

	s.selection.RetainTags(func(t string) bool { return !remove[t] })
	s.config.Logger.Printf("Removed tag %s and %d descendants from %d projects", tag, len(set)-1, len(changed))
	s.emit(Event{Source: SourceLocal, Tags: true, Projects: true})
	return set, nil
}

// renameTag moves one tag's metadata and project references to newTag and
// persists the changed projects with the flat list in one batch.
func (s *Store) renameTag(ctx context.Context, oldTag, newTag string) error {
	s.selection.ReplaceTag(oldTag, newTag)

	meta, _ := s.TagMeta(oldTag)
	created, err := s.ensureAncestry(ctx, newTag)
	if err != nil {
		return err
	}
	if err := s.writeMeta(ctx, schema.TagMetaMap{newTag: meta}, []string{oldTag}); err != nil {
		return err
	}

	var changed []*schema.Project
	for _, p := range s.snapshotProjects() {
		if out, ok := hierarchy.ReplaceTag(p.Tags, oldTag, newTag); ok {
			p.Tags = out
			p.Touch(s.config.Now())
			changed = append(changed, p)
		}
	}

	flat, _ := hierarchy.ReplaceTag(s.FlatTags(), oldTag, newTag)
	if !slices.Contains(flat, newTag) {
		flat = append(flat, newTag)
	}
	flat = hierarchy.Normalize(append(flat, created...))

	if err := s.persist(ctx, changed, flat); err != nil {
		return err
	}
	s.config.Logger.Printf("Renamed tag %s to %s on %d projects", oldTag, newTag, len(changed))
	return nil
}

// renameTree renames oldTag and each descendant, parents first. A
// descendant whose new name is already taken merges into it.
func (s *Store) renameTree(ctx context.Context, oldTag, newTag string) error {
	names := append([]string{oldTag}, hierarchy.Children(oldTag, s.knownTags())...)
	for _, name := range names {
		if !s.referenced(name) {
			continue
		}
		target := hierarchy.ReplacePrefix(name, oldTag, newTag)
		var err error
		if s.referenced(target) {
			err = s.merge(ctx, name, target)
		} else {
			err = s.renameTag(ctx, name, target)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// merge implements Merge without locking. Descendants are captured before
// any write; a descendant already consumed by a nested merge is skipped.
func (s *Store) merge(ctx context.Context, sourceTag, targetTag string) error {
	descendants := hierarchy.Children(sourceTag, s.knownTags())
	s.selection.ReplaceTag(sourceTag, targetTag)

	var changed []*schema.Project
	for _, p := range s.snapshotProjects() {
		if out, ok := hierarchy.MergeTag(p.Tags, sourceTag, targetTag); ok {
			p.Tags = out
			p.Touch(s.config.Now())
			changed = append(changed, p)
		}
	}
	if err := s.persist(ctx, changed, nil); err != nil {
		return err
	}

	if _, err := s.ensureAncestry(ctx, targetTag); err != nil {
		return err
	}
	srcMeta, _ := s.TagMeta(sourceTag)
	dstMeta, dstOK := s.TagMeta(targetTag)
	upserts := make(schema.TagMetaMap)
	if !dstOK {
		upserts[targetTag] = schema.TagMeta{}
	}
	if srcMeta.HasColor() && !dstMeta.HasColor() {
		upserts[targetTag] = schema.WithColor(srcMeta.ColorValue())
	}
	if err := s.writeMeta(ctx, upserts, []string{sourceTag}); err != nil {
		return err
	}

	for _, d := range descendants {
		if !s.referenced(d) {
			continue
		}
		target := hierarchy.ReplacePrefix(d, sourceTag, targetTag)
		var err error
		if s.referenced(target) {
			err = s.merge(ctx, d, target)
		} else {
			err = s.renameTag(ctx, d, target)
		}
		if err != nil {
			return err
		}
	}

	if err := s.persist(ctx, nil, hierarchy.Normalize(s.AllTagNames())); err != nil {
		return err
	}
	s.config.Logger.Printf("Merged tag %s into %s (%d projects, %d descendants)",
		sourceTag, targetTag, len(changed), len(descendants))
	return nil
}

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
	"github.com/tagshelf/tagshelf/internal/tagstore/view"
)

// ToggleExpanded flips whether a tag's children are shown in tree views and
// returns the new state.
func (s *Store) ToggleExpanded(ctx context.Context, tag string) (bool, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return false, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	next := view.ToggleExpanded(s.Preferences().ExpandedTags, tag)
	raw, err := schema.EncodeStringList(next)
	if err != nil {
		return false, err
	}
	if err := s.transport.Set(ctx, kv.Items{schema.ExpandedTagsKey: raw}); err != nil {
		return false, fmt.Errorf("failed to save expanded tags: %w", err)
	}

	s.mu.Lock()
	s.prefs.ExpandedTags = next
	s.mu.Unlock()
	s.emit(Event{Source: SourceLocal, Preferences: true})

	for _, t := range next {
		if t == tag {
			return true, nil
		}
	}
	return false, nil
}

// SetDropdownHeight stores the tag dropdown height, clamped to its bounds,
// and returns the stored value.
func (s *Store) SetDropdownHeight(ctx context.Context, height int) (int, error) {
	if err := s.EnsureReady(ctx); err != nil {
		return 0, err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	height = view.ClampDropdownHeight(height)
	raw, err := json.Marshal(height)
	if err != nil {
		return 0, err
	}
	if err := s.transport.Set(ctx, kv.Items{schema.DropdownHeightKey: raw}); err != nil {
		return 0, fmt.Errorf("failed to save dropdown height: %w", err)
	}

	s.mu.Lock()
	s.prefs.DropdownHeight = height
	s.mu.Unlock()
	s.emit(Event{Source: SourceLocal, Preferences: true})
	return height, nil
}

package store

import (
	"encoding/json"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
	"github.com/tagshelf/tagshelf/internal/tagstore/view"
)

// ApplyChanges folds a transport change notification into the cache and
// notifies listeners. Notifications that arrive before the store is ready are
// held and replayed after the initial load.
func (s *Store) ApplyChanges(changes kv.Changes) {
	if len(changes) == 0 {
		return
	}
	s.mu.Lock()
	if !s.ready {
		s.pending = append(s.pending, changes)
		s.mu.Unlock()
		return
	}
	ev := s.applyLocked(changes)
	s.mu.Unlock()

	if ev.Tags {
		s.selection.RetainTags(s.HasTag)
	}
	s.emit(ev)
}

func (s *Store) applyLocked(changes kv.Changes) Event {
	ev := Event{Source: SourceChange}
	for key, change := range changes {
		kind, suffix := schema.Classify(key)
		switch kind {
		case schema.KindAllTags:
			s.allTags = decodeListOrEmpty(change.NewValue)
			ev.Tags = true

		case schema.KindTagMeta:
			s.applyShardLocked(suffix, change)
			ev.Tags = true

		case schema.KindProject:
			if change.Removed() {
				delete(s.projects, suffix)
			} else {
				p, err := schema.DecodeProject(change.NewValue)
				if err != nil {
					s.config.Logger.Printf("Warning: ignoring change to %s: %v", key, err)
					continue
				}
				if p.ID == "" {
					p.ID = suffix
				}
				s.projects[p.ID] = p
			}
			ev.Projects = true

		case schema.KindPreference:
			s.applyPreferenceLocked(key, change.NewValue)
			ev.Preferences = true

		default:
			continue
		}
		ev.Keys = append(ev.Keys, key)
	}
	return ev
}

// applyShardLocked removes every entry the shard used to hold, then merges
// its new content. A shard can shrink, so merging alone would keep deleted
// tags alive.
func (s *Store) applyShardLocked(shard string, change kv.Change) {
	removed := false
	if change.OldValue != nil {
		if old, err := schema.DecodeShard(change.OldValue); err == nil {
			for name := range old {
				delete(s.tagMeta, name)
			}
			removed = true
		}
	}
	if !removed {
		for name := range s.tagMeta {
			if schema.ShardKeyFor(name) == shard {
				delete(s.tagMeta, name)
			}
		}
	}

	if change.Removed() {
		return
	}
	entries, err := schema.DecodeShard(change.NewValue)
	if err != nil {
		s.config.Logger.Printf("Warning: ignoring unreadable shard %s: %v", shard, err)
		return
	}
	for name, meta := range entries {
		s.tagMeta[name] = meta
	}
}

func (s *Store) applyPreferenceLocked(key string, raw json.RawMessage) {
	switch key {
	case schema.ExpandedTagsKey:
		s.prefs.ExpandedTags = decodeListOrEmpty(raw)
	case schema.DropdownHeightKey:
		h := view.DefaultDropdownHeight
		if raw != nil {
			if err := json.Unmarshal(raw, &h); err != nil {
				h = view.DefaultDropdownHeight
			}
		}
		s.prefs.DropdownHeight = view.ClampDropdownHeight(h)
	}
}

func decodeListOrEmpty(raw json.RawMessage) []string {
	list, err := schema.DecodeStringList(raw)
	if err != nil {
		return []string{}
	}
	return list
}

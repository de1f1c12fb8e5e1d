package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/tagshelf/tagshelf/internal/tagstore/hierarchy"
	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

// writeMeta round-trips every shard owning a touched name: read the shard in
// full, delete then upsert entries, write the whole shard back. All touched
// shards go out in one batch. The cache is updated after the write succeeds.
func (s *Store) writeMeta(ctx context.Context, upserts schema.TagMetaMap, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}

	owners := make(map[string]bool)
	for name := range upserts {
		owners[schema.TagMetaKey(schema.ShardKeyFor(name))] = true
	}
	for _, name := range deletes {
		owners[schema.TagMetaKey(schema.ShardKeyFor(name))] = true
	}
	keys := make([]string, 0, len(owners))
	for k := range owners {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	current, err := s.transport.Get(ctx, keys)
	if err != nil {
		return fmt.Errorf("failed to read tag metadata: %w", err)
	}

	shards := make(map[string]schema.TagMetaMap, len(keys))
	for _, k := range keys {
		shard, err := schema.DecodeShard(current[k])
		if err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		shards[k] = shard
	}
	for _, name := range deletes {
		delete(shards[schema.TagMetaKey(schema.ShardKeyFor(name))], name)
	}
	for name, meta := range upserts {
		shards[schema.TagMetaKey(schema.ShardKeyFor(name))][name] = meta
	}

	writes := make(kv.Items, len(shards))
	for k, shard := range shards {
		raw, err := schema.EncodeShard(shard)
		if err != nil {
			return err
		}
		writes[k] = raw
	}
	if err := s.transport.Set(ctx, writes); err != nil {
		return fmt.Errorf("failed to write tag metadata: %w", err)
	}

	s.mu.Lock()
	for _, name := range deletes {
		delete(s.tagMeta, name)
	}
	for name, meta := range upserts {
		s.tagMeta[name] = meta
	}
	s.mu.Unlock()
	return nil
}

// ensureAncestry creates unset metadata for every ancestor of tag lacking
// one and returns the names it created. Callers fold them into the flat list
// they persist.
func (s *Store) ensureAncestry(ctx context.Context, tag string) ([]string, error) {
	missing := make(schema.TagMetaMap)
	var created []string
	s.mu.RLock()
	for _, anc := range hierarchy.Ancestors(tag) {
		if _, ok := s.tagMeta[anc]; !ok {
			missing[anc] = schema.TagMeta{}
			created = append(created, anc)
		}
	}
	s.mu.RUnlock()

	if err := s.writeMeta(ctx, missing, nil); err != nil {
		return nil, err
	}
	return created, nil
}

// ensureTags makes sure each name and its ancestors carry metadata, and
// returns the flat list extended with every such name, normalized. The flat
// list is not persisted.
func (s *Store) ensureTags(ctx context.Context, names ...string) ([]string, error) {
	upserts := make(schema.TagMetaMap)
	s.mu.RLock()
	flat := slices.Clone(s.allTags)
	for _, name := range names {
		for _, t := range append([]string{name}, hierarchy.Ancestors(name)...) {
			if _, ok := s.tagMeta[t]; !ok {
				upserts[t] = schema.TagMeta{}
			}
			flat = append(flat, t)
		}
	}
	s.mu.RUnlock()

	if err := s.writeMeta(ctx, upserts, nil); err != nil {
		return nil, err
	}
	return hierarchy.Normalize(flat), nil
}

// EnsureAncestryExists registers every ancestor of tag, persisting both
// metadata and the flat list.
func (s *Store) EnsureAncestryExists(ctx context.Context, tag string) error {
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	created, err := s.ensureAncestry(ctx, tag)
	if err != nil {
		return err
	}
	if len(created) == 0 {
		return nil
	}
	flat := hierarchy.Normalize(append(s.FlatTags(), created...))
	if err := s.persist(ctx, nil, flat); err != nil {
		return err
	}
	s.emit(Event{Source: SourceLocal, Tags: true})
	return nil
}

// SetTagColor sets a tag's own color. color may be a palette name or hex
// code; "" clears it so the tag inherits again. The tag is registered (with
// its ancestry) when new.
func (s *Store) SetTagColor(ctx context.Context, tag, color string) error {
	tag, err := hierarchy.Validate(tag)
	if err != nil {
		return err
	}
	hex := ""
	if color != "" {
		var ok bool
		if hex, ok = schema.LookupColor(color); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidColor, color)
		}
	}
	if err := s.EnsureReady(ctx); err != nil {
		return err
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if cur, ok := s.TagMeta(tag); ok && cur.ColorValue() == hex {
		return ErrNoChange
	}

	flat, err := s.ensureTags(ctx, tag)
	if err != nil {
		return err
	}
	if err := s.writeMeta(ctx, schema.TagMetaMap{tag: schema.WithColor(hex)}, nil); err != nil {
		return err
	}
	if !slices.Equal(flat, s.FlatTags()) {
		if err := s.persist(ctx, nil, flat); err != nil {
			return err
		}
	}
	s.emit(Event{Source: SourceLocal, Tags: true})
	return nil
}

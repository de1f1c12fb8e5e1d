// Package schema defines the persisted layout of the tag store.
//
// # Overview
//
// Everything lives in a flat key-value transport whose values are JSON
// documents. Logical entities map to keys as follows:
//
//	tagMeta:<shard>      {"<tag name>": {"color": "#4285f4" | null}, ...}
//	project:<id>         {"id", "name", "tags": [...], "pinned", "updatedAt"}
//	allTags              ["AI", "AI/ML", ...]   (legacy flat list)
//	_migrationVersion    3
//	expandedTags         ["AI", ...]            (view preference)
//	dropdownHeight       350                    (view preference)
//
// # Sharding
//
// Tag metadata is split across shards so that no single value outgrows the
// transport's per-item budget. The shard of a tag is a pure function of its
// first character (see ShardKeyFor). The bucket boundaries are part of the
// persisted format: changing them orphans existing shards.
//
// # Usage
//
//	key := schema.TagMetaKey(schema.ShardKeyFor("AI/ML")) // "tagMeta:A"
//	meta, err := schema.LoadTagMetaFromShards(items)
//	p, err := schema.DecodeProject(items[schema.ProjectKey("p1")])
package schema

package schema

import "strings"

// Storage keys and prefixes.
const (
	TagMetaPrefix       = "tagMeta:"
	ProjectPrefix       = "project:"
	AllTagsKey          = "allTags"
	MigrationVersionKey = "_migrationVersion"
	ExpandedTagsKey     = "expandedTags"
	DropdownHeightKey   = "dropdownHeight"
)

// KeyKind classifies a storage key.
type KeyKind int

const (
	// KindUnknown is any key the store does not interpret.
	KindUnknown KeyKind = iota
	// KindTagMeta is a tag metadata shard.
	KindTagMeta
	// KindProject is a project record.
	KindProject
	// KindAllTags is the legacy flat tag list.
	KindAllTags
	// KindMigrationVersion is the schema version counter.
	KindMigrationVersion
	// KindPreference is a persisted view preference.
	KindPreference
)

// String returns a human-readable representation of the kind.
func (k KeyKind) String() string {
	switch k {
	case KindTagMeta:
		return "tagMeta"
	case KindProject:
		return "project"
	case KindAllTags:
		return "allTags"
	case KindMigrationVersion:
		return "migrationVersion"
	case KindPreference:
		return "preference"
	default:
		return "unknown"
	}
}

// TagMetaKey returns the key of a metadata shard.
func TagMetaKey(shard string) string {
	return TagMetaPrefix + shard
}

// ProjectKey returns the key of a project record.
func ProjectKey(id string) string {
	return ProjectPrefix + id
}

// Classify returns the kind of key and, for shards and projects, the suffix
// (shard symbol or project ID).
func Classify(key string) (KeyKind, string) {
	switch {
	case strings.HasPrefix(key, TagMetaPrefix):
		return KindTagMeta, strings.TrimPrefix(key, TagMetaPrefix)
	case strings.HasPrefix(key, ProjectPrefix):
		return KindProject, strings.TrimPrefix(key, ProjectPrefix)
	case key == AllTagsKey:
		return KindAllTags, ""
	case key == MigrationVersionKey:
		return KindMigrationVersion, ""
	case key == ExpandedTagsKey, key == DropdownHeightKey:
		return KindPreference, key
	default:
		return KindUnknown, ""
	}
}

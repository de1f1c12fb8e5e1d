package schema

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// TagMetaMap maps tag names to their metadata.
type TagMetaMap map[string]TagMeta

// DecodeShard parses one shard value.
func DecodeShard(raw json.RawMessage) (TagMetaMap, error) {
	out := make(TagMetaMap)
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode tag metadata shard: %w", err)
	}
	return out, nil
}

// EncodeShard returns the storage value of a shard.
func EncodeShard(m TagMetaMap) (json.RawMessage, error) {
	if m == nil {
		m = TagMetaMap{}
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tag metadata shard: %w", err)
	}
	return data, nil
}

// LoadTagMetaFromShards merges every tagMeta:* entry of items into one map.
// Undecodable shards are skipped and reported in the returned error; the map
// still holds every shard that decoded.
func LoadTagMetaFromShards(items map[string]json.RawMessage) (TagMetaMap, error) {
	out := make(TagMetaMap)
	var firstErr error
	for key, raw := range items {
		if kind, _ := Classify(key); kind != KindTagMeta {
			continue
		}
		shard, err := DecodeShard(raw)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", key, err)
			}
			continue
		}
		for name, meta := range shard {
			out[name] = meta
		}
	}
	return out, firstErr
}

// GroupByShard splits a metadata map into per-shard maps keyed by storage key.
func GroupByShard(m TagMetaMap) map[string]TagMetaMap {
	out := make(map[string]TagMetaMap)
	for name, meta := range m {
		key := TagMetaKey(ShardKeyFor(name))
		if out[key] == nil {
			out[key] = make(TagMetaMap)
		}
		out[key][name] = meta
	}
	return out
}

// DecodeProject parses a project record and fills defaults.
func DecodeProject(raw json.RawMessage) (*Project, error) {
	var p Project
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("failed to decode project: %w", err)
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}

// DecodeStringList parses a JSON string array. Null decodes as empty.
func DecodeStringList(raw json.RawMessage) ([]string, error) {
	var out []string
	if len(raw) == 0 || string(raw) == "null" {
		return []string{}, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode string list: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// EncodeStringList returns the storage value of a string list.
func EncodeStringList(list []string) (json.RawMessage, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to encode string list: %w", err)
	}
	return data, nil
}

// DecodeVersion parses the migration counter. Missing or malformed values
// read as zero.
func DecodeVersion(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	v, err := strconv.Atoi(string(raw))
	if err != nil {
		var f float64
		if json.Unmarshal(raw, &f) == nil {
			return int(f)
		}
		return 0
	}
	return v
}

// EncodeVersion returns the storage value of the migration counter.
func EncodeVersion(v int) json.RawMessage {
	return json.RawMessage(strconv.Itoa(v))
}

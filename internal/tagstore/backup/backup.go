// Package backup exports and restores the raw contents of a storage area.
//
// A snapshot holds every key with its JSON value, so it round-trips data
// this version does not understand yet. JSON and YAML snapshots carry values
// as native documents; TOML has no null, so TOML snapshots carry each value
// as JSON text.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

// FormatVersion is the snapshot layout version written by Export.
const FormatVersion = 1

// Format is a snapshot encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// ParseFormat accepts a format name, case-insensitively. "yml" means YAML.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("unknown backup format %q (want json, yaml or toml)", s)
}

// FormatFromPath infers the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer backup format from %q", path)
	}
	return ParseFormat(ext)
}

// Snapshot is the document written by Export.
type Snapshot struct {
	Version    int            `json:"version" yaml:"version"`
	ExportedAt time.Time      `json:"exportedAt" yaml:"exportedAt"`
	Items      map[string]any `json:"items" yaml:"items"`
}

type tomlSnapshot struct {
	Version    int               `toml:"version"`
	ExportedAt time.Time         `toml:"exported_at"`
	Items      map[string]string `toml:"items"`
}

// Export writes every item of t to w and returns the number of items.
func Export(ctx context.Context, t kv.Transport, w io.Writer, format Format) (int, error) {
	items, err := t.Get(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to read store: %w", err)
	}
	now := time.Now().UTC().Truncate(time.Second)

	switch format {
	case FormatTOML:
		doc := tomlSnapshot{Version: FormatVersion, ExportedAt: now, Items: make(map[string]string, len(items))}
		for k, v := range items {
			doc.Items[k] = string(v)
		}
		if err := toml.NewEncoder(w).Encode(doc); err != nil {
			return 0, fmt.Errorf("failed to encode toml: %w", err)
		}

	case FormatJSON, FormatYAML:
		doc := Snapshot{Version: FormatVersion, ExportedAt: now, Items: make(map[string]any, len(items))}
		for k, v := range items {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return 0, fmt.Errorf("item %s: %w", k, err)
			}
			doc.Items[k] = val
		}
		if format == FormatJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if err := enc.Encode(doc); err != nil {
				return 0, fmt.Errorf("failed to encode json: %w", err)
			}
		} else {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return 0, fmt.Errorf("failed to encode yaml: %w", err)
			}
			if err := enc.Close(); err != nil {
				return 0, fmt.Errorf("failed to encode yaml: %w", err)
			}
		}

	default:
		return 0, fmt.Errorf("unknown backup format %q", format)
	}
	return len(items), nil
}

// Decode reads a snapshot and returns its items as raw JSON values.
func Decode(r io.Reader, format Format) (kv.Items, error) {
	raw := make(map[string]any)
	switch format {
	case FormatTOML:
		var doc tomlSnapshot
		if _, err := toml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode toml: %w", err)
		}
		if err := checkVersion(doc.Version); err != nil {
			return nil, err
		}
		items := make(kv.Items, len(doc.Items))
		for k, v := range doc.Items {
			if !json.Valid([]byte(v)) {
				return nil, fmt.Errorf("item %s: value is not valid JSON", k)
			}
			items[k] = json.RawMessage(v)
		}
		return items, nil

	case FormatJSON:
		var doc Snapshot
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode json: %w", err)
		}
		if err := checkVersion(doc.Version); err != nil {
			return nil, err
		}
		raw = doc.Items

	case FormatYAML:
		var doc Snapshot
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode yaml: %w", err)
		}
		if err := checkVersion(doc.Version); err != nil {
			return nil, err
		}
		raw = doc.Items

	default:
		return nil, fmt.Errorf("unknown backup format %q", format)
	}

	items := make(kv.Items, len(raw))
	for k, v := range raw {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", k, err)
		}
		items[k] = data
	}
	return items, nil
}

func checkVersion(v int) error {
	if v < 1 || v > FormatVersion {
		return fmt.Errorf("unsupported backup version %d", v)
	}
	return nil
}

// ImportOptions contains configuration for an import
type ImportOptions struct {
	DryRun bool // Preview without writing
	Clear  bool // Remove keys absent from the snapshot
}

// ImportResult contains statistics about an import
type ImportResult struct {
	Items    int      // items in the snapshot
	Written  int      // items written (or that would be)
	Removed  int      // keys removed by Clear (or that would be)
	Projects int      // project records among the written items
	Skipped  []string // keys rejected as unreadable
	DryRun   bool
	Errors   []string
}

// Import restores a snapshot into t. Records that fail to decode are
// skipped and reported; everything else is written in a single batch.
// Callers refresh their stores afterwards.
func Import(ctx context.Context, t kv.Transport, r io.Reader, format Format, opts ImportOptions) (*ImportResult, error) {
	items, err := Decode(r, format)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{Items: len(items), DryRun: opts.DryRun}

	writes := make(kv.Items, len(items))
	for _, k := range items.Keys() {
		v := items[k]
		if err := validate(k, v); err != nil {
			result.Skipped = append(result.Skipped, k)
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		writes[k] = v
		if kind, _ := schema.Classify(k); kind == schema.KindProject {
			result.Projects++
		}
	}
	result.Written = len(writes)

	var stale []string
	if opts.Clear {
		current, err := t.Get(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read store: %w", err)
		}
		for _, k := range current.Keys() {
			if _, ok := writes[k]; !ok {
				stale = append(stale, k)
			}
		}
		result.Removed = len(stale)
	}

	if opts.DryRun {
		return result, nil
	}

	if len(stale) > 0 {
		if err := t.Remove(ctx, stale...); err != nil {
			return result, fmt.Errorf("failed to clear store: %w", err)
		}
	}
	if err := t.Set(ctx, writes); err != nil {
		return result, fmt.Errorf("failed to write snapshot: %w", err)
	}
	return result, nil
}

// validate checks that known record kinds decode.
func validate(key string, v []byte) error {
	kind, _ := schema.Classify(key)
	var err error
	switch kind {
	case schema.KindProject:
		var p *schema.Project
		if p, err = schema.DecodeProject(v); err == nil {
			err = p.Validate()
		}
	case schema.KindTagMeta:
		_, err = schema.DecodeShard(v)
	case schema.KindAllTags, schema.KindPreference:
		if key != schema.DropdownHeightKey {
			_, err = schema.DecodeStringList(v)
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return nil
}

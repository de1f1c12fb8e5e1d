// Package migrate upgrades a raw store snapshot to the current schema version.
//
// Migrations run at most once per version bump: when the persisted counter is
// already current, Migrate returns its input untouched. Every step is
// idempotent, so re-running after an interrupted migration is safe.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

// CurrentVersion is the schema version this build writes.
const CurrentVersion = 3

// Step is one ordered migration step. Plan computes the writes the step needs
// against a snapshot; an empty result means nothing to do.
type Step struct {
	Name string
	Plan func(items kv.Items) (writes kv.Items, affected int, err error)
}

// Steps lists every migration step in execution order.
var Steps = []Step{
	{Name: "backfill-tag-meta", Plan: planTagMetaBackfill},
	{Name: "backfill-pinned", Plan: planPinnedBackfill},
}

// Options controls a migration run.
type Options struct {
	DryRun bool // compute the result without writing
}

// StepResult reports one step.
type StepResult struct {
	Name     string
	Affected int
	Keys     []string
}

// Result contains statistics about the migration.
type Result struct {
	FromVersion int
	ToVersion   int
	Skipped     bool
	DryRun      bool
	Steps       []StepResult
	Errors      []string
}

// Migrator runs Steps against a transport.
type Migrator struct {
	transport kv.Transport
	logger    *log.Logger
	steps     []Step
	target    int
}

// New creates a migrator. A nil logger discards output.
func New(t kv.Transport, logger *log.Logger) *Migrator {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Migrator{transport: t, logger: logger, steps: Steps, target: CurrentVersion}
}

// Version returns the counter stored in items.
func Version(items kv.Items) int {
	return schema.DecodeVersion(items[schema.MigrationVersionKey])
}

// NeedsMigration reports whether items are behind the current version.
func NeedsMigration(items kv.Items) bool {
	return Version(items) < CurrentVersion
}

// Migrate upgrades items and returns the migrated snapshot.
//
// A failing step aborts the run before the version counter is written, so the
// next load retries every step; the returned snapshot is then the input. When
// the final re-read fails the input is returned as well.
func (m *Migrator) Migrate(ctx context.Context, items kv.Items) (kv.Items, *Result, error) {
	return m.MigrateWithOptions(ctx, items, Options{})
}

// MigrateWithOptions is Migrate with explicit options.
func (m *Migrator) MigrateWithOptions(ctx context.Context, items kv.Items, opts Options) (kv.Items, *Result, error) {
	res := &Result{FromVersion: Version(items), ToVersion: m.target, DryRun: opts.DryRun}
	if res.FromVersion >= m.target {
		res.Skipped = true
		res.ToVersion = res.FromVersion
		return items, res, nil
	}

	m.logger.Printf("Migrating store from version %d to %d", res.FromVersion, m.target)

	working := items.Clone()
	for _, step := range m.steps {
		writes, affected, err := step.Plan(working)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", step.Name, err))
			m.logger.Printf("Warning: migration step %s failed: %v", step.Name, err)
			return items, res, fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		sr := StepResult{Name: step.Name, Affected: affected, Keys: writes.Keys()}
		res.Steps = append(res.Steps, sr)

		if len(writes) == 0 {
			continue
		}
		if !opts.DryRun {
			if err := m.transport.Set(ctx, writes); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", step.Name, err))
				m.logger.Printf("Warning: migration step %s failed to persist: %v", step.Name, err)
				return items, res, fmt.Errorf("migration step %s failed: %w", step.Name, err)
			}
		}
		for k, v := range writes {
			working[k] = v
		}
		m.logger.Printf("Step %s: %d entries across %s", step.Name, affected, strings.Join(sr.Keys, ", "))
	}

	if opts.DryRun {
		working[schema.MigrationVersionKey] = schema.EncodeVersion(m.target)
		return working, res, nil
	}

	if err := m.transport.Set(ctx, kv.Items{schema.MigrationVersionKey: schema.EncodeVersion(m.target)}); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("version: %v", err))
		return items, res, fmt.Errorf("failed to write migration version: %w", err)
	}

	fresh, err := m.transport.Get(ctx, nil)
	if err != nil {
		m.logger.Printf("Warning: failed to re-read store after migration: %v", err)
		return items, res, nil
	}
	return fresh, res, nil
}

// planTagMetaBackfill creates an unset metadata entry for every legacy flat
// list name that has none, touching only shards that gain entries.
func planTagMetaBackfill(items kv.Items) (kv.Items, int, error) {
	legacy, err := schema.DecodeStringList(items[schema.AllTagsKey])
	if err != nil {
		return nil, 0, err
	}
	existing, err := schema.LoadTagMetaFromShards(items)
	if err != nil {
		return nil, 0, err
	}

	grown := make(map[string]schema.TagMetaMap)
	added := 0
	for _, name := range legacy {
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, ok := existing[name]; ok {
			continue
		}
		key := schema.TagMetaKey(schema.ShardKeyFor(name))
		shard, ok := grown[key]
		if !ok {
			if shard, err = schema.DecodeShard(items[key]); err != nil {
				return nil, 0, err
			}
			grown[key] = shard
		}
		shard[name] = schema.TagMeta{}
		existing[name] = schema.TagMeta{}
		added++
	}

	writes := make(kv.Items, len(grown))
	for key, shard := range grown {
		raw, err := schema.EncodeShard(shard)
		if err != nil {
			return nil, 0, err
		}
		writes[key] = raw
	}
	return writes, added, nil
}

// planPinnedBackfill sets pinned=false on every project record lacking it.
// Unknown fields are preserved.
func planPinnedBackfill(items kv.Items) (kv.Items, int, error) {
	writes := make(kv.Items)
	for key, raw := range items {
		if kind, _ := schema.Classify(key); kind != schema.KindProject {
			continue
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, 0, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		if fields == nil {
			continue
		}
		if _, ok := fields["pinned"]; ok {
			continue
		}
		fields["pinned"] = json.RawMessage(`false`)
		data, err := json.Marshal(fields)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		writes[key] = data
	}
	return writes, len(writes), nil
}

package migrate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

func seed(t *testing.T, m *kv.Memory, items kv.Items) kv.Items {
	t.Helper()
	require.NoError(t, m.Set(context.Background(), items))
	all, err := m.Get(context.Background(), nil)
	require.NoError(t, err)
	return all
}

func legacySnapshot() kv.Items {
	return kv.Items{
		schema.AllTagsKey:       json.RawMessage(`["AI","AI/ML","Research","仕事"," "]`),
		"tagMeta:A":             json.RawMessage(`{"AI":{"color":"#4285f4"}}`),
		schema.ProjectKey("p1"): json.RawMessage(`{"id":"p1","name":"One","tags":["AI"],"updatedAt":1}`),
		schema.ProjectKey("p2"): json.RawMessage(`{"id":"p2","name":"Two","tags":[],"pinned":true,"updatedAt":2}`),
	}
}

func TestMigrate_BackfillsAndAdvancesVersion(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	items := seed(t, mem, legacySnapshot())

	out, res, err := New(mem, nil).Migrate(ctx, items)
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 0, res.FromVersion)
	assert.Equal(t, CurrentVersion, res.ToVersion)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, 3, res.Steps[0].Affected)
	assert.Equal(t, 1, res.Steps[1].Affected)

	assert.Equal(t, CurrentVersion, Version(out))

	meta, err := schema.LoadTagMetaFromShards(out)
	require.NoError(t, err)
	assert.Equal(t, "#4285f4", meta["AI"].ColorValue(), "existing metadata must not be overwritten")
	assert.Contains(t, meta, "AI/ML")
	assert.Contains(t, meta, "Research")
	assert.Contains(t, meta, "仕事")
	assert.NotContains(t, meta, " ")

	p1, err := schema.DecodeProject(out[schema.ProjectKey("p1")])
	require.NoError(t, err)
	assert.False(t, p1.Pinned)
	assert.Contains(t, string(out[schema.ProjectKey("p1")]), `"pinned":false`)

	p2, err := schema.DecodeProject(out[schema.ProjectKey("p2")])
	require.NoError(t, err)
	assert.True(t, p2.Pinned)
}

func TestMigrate_OnlyGrownShardsWritten(t *testing.T) {
	mem := kv.NewMemory()
	items := seed(t, mem, kv.Items{
		schema.AllTagsKey: json.RawMessage(`["AI","Beta"]`),
		"tagMeta:A":       json.RawMessage(`{"AI":{"color":null}}`),
	})

	writes, added, err := planTagMetaBackfill(items)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"tagMeta:B"}, writes.Keys())
}

func TestMigrate_Idempotent(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	items := seed(t, mem, legacySnapshot())
	m := New(mem, nil)

	first, _, err := m.Migrate(ctx, items)
	require.NoError(t, err)
	writes := mem.SetCount()

	second, res, err := m.Migrate(ctx, first)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, first, second)
	assert.Equal(t, writes, mem.SetCount(), "current store must not be written")
}

func TestMigrate_StepFailureKeepsVersion(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	items := seed(t, mem, legacySnapshot())

	mem.FailWritesWhen(func(it kv.Items) bool {
		for k := range it {
			if kind, _ := schema.Classify(k); kind == schema.KindProject {
				return true
			}
		}
		return false
	})

	out, res, err := New(mem, nil).Migrate(ctx, items)
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.ErrWrite)
	assert.Equal(t, items, out)
	assert.NotEmpty(t, res.Errors)

	stored, err := mem.Get(ctx, []string{schema.MigrationVersionKey})
	require.NoError(t, err)
	assert.Empty(t, stored, "version must not advance after a failed step")

	mem.FailWritesWhen(nil)
	out, _, err = New(mem, nil).Migrate(ctx, out)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, Version(out))
}

func TestMigrate_RereadFailureReturnsInput(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	items := seed(t, mem, kv.Items{schema.AllTagsKey: json.RawMessage(`["X"]`)})

	m := New(&failingReads{Memory: mem}, nil)
	out, _, err := m.Migrate(ctx, items)
	require.NoError(t, err)
	assert.Equal(t, items, out)
}

func TestMigrate_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	items := seed(t, mem, legacySnapshot())
	before := mem.SetCount()

	out, res, err := New(mem, nil).MigrateWithOptions(ctx, items, Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, before, mem.SetCount())
	assert.Equal(t, CurrentVersion, Version(out))
}

func TestMigrate_CorruptProjectAborts(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	items := seed(t, mem, kv.Items{schema.ProjectKey("bad"): json.RawMessage(`"not an object"`)})

	_, res, err := New(mem, nil).Migrate(ctx, items)
	require.Error(t, err)
	assert.Len(t, res.Errors, 1)
}

// failingReads passes writes through but fails full-snapshot reads.
type failingReads struct {
	*kv.Memory
}

func (f *failingReads) Get(ctx context.Context, keys []string) (kv.Items, error) {
	if len(keys) == 0 {
		return nil, kv.ErrRead
	}
	return f.Memory.Get(ctx, keys)
}

package store

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/migrate"
	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestStore returns an initialized store over a fresh memory transport.
func newTestStore(t *testing.T) (*Store, *kv.Memory) {
	t.Helper()
	mem := kv.NewMemory()
	return newStoreOn(t, mem), mem
}

func newStoreOn(t *testing.T, mem kv.Transport) *Store {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return fixedNow }
	s := NewWithConfig(mem, cfg)
	require.NoError(t, s.Initialize(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// countingTransport counts full-snapshot reads.
type countingTransport struct {
	*kv.Memory
	fullReads atomic.Int32
	delay     time.Duration
}

func (c *countingTransport) Get(ctx context.Context, keys []string) (kv.Items, error) {
	if len(keys) == 0 {
		c.fullReads.Add(1)
		time.Sleep(c.delay)
	}
	return c.Memory.Get(ctx, keys)
}

func TestInitialize_ConcurrentCallsShareOneLoad(t *testing.T) {
	ct := &countingTransport{Memory: kv.NewMemory(), delay: 20 * time.Millisecond}
	s := New(ct)
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Initialize(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, s.Ready())
	// One read for the load and one re-read after migrating the empty store.
	assert.Equal(t, int32(2), ct.fullReads.Load())

	require.NoError(t, s.EnsureReady(context.Background()))
	assert.Equal(t, int32(2), ct.fullReads.Load(), "ready store must not reload")
}

func TestInitialize_ReadFailureLeavesStoreRetryable(t *testing.T) {
	mem := kv.NewMemory()
	mem.SetFailReads(true)
	s := New(mem)
	defer s.Close()

	err := s.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, kv.ErrRead)
	assert.False(t, s.Ready())

	mem.SetFailReads(false)
	require.NoError(t, s.EnsureReady(context.Background()))
	assert.True(t, s.Ready())
}

func TestInitialize_MigratesLegacyData(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	require.NoError(t, mem.Set(ctx, kv.Items{
		schema.AllTagsKey:       json.RawMessage(`["Work","Work/Urgent"]`),
		schema.ProjectKey("p1"): json.RawMessage(`{"id":"p1","name":"One","tags":["Work/Urgent"],"updatedAt":5}`),
	}))

	s := newStoreOn(t, mem)
	assert.Equal(t, []string{"Work", "Work/Urgent"}, s.AllTagNames())
	_, ok := s.TagMeta("Work/Urgent")
	assert.True(t, ok)
	require.NotNil(t, s.MigrationResult())
	assert.Equal(t, migrate.CurrentVersion, s.MigrationResult().ToVersion)

	raw, err := mem.Get(ctx, []string{schema.ProjectKey("p1")})
	require.NoError(t, err)
	assert.Contains(t, string(raw[schema.ProjectKey("p1")]), `"pinned":false`)
}

func TestAllTagNames_FallsBackToFlatList(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	// Current version with no metadata: nothing backfills the flat list.
	require.NoError(t, mem.Set(ctx, kv.Items{
		schema.MigrationVersionKey: schema.EncodeVersion(migrate.CurrentVersion),
		schema.AllTagsKey:          json.RawMessage(`["Legacy"]`),
	}))
	s := newStoreOn(t, mem)
	assert.Equal(t, []string{"Legacy"}, s.AllTagNames())
	assert.True(t, s.HasTag("Legacy"))
}

func TestRefresh_ReplacesCache(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	require.NoError(t, s.AddTag(ctx, "p1", "A"))

	// Write behind the store's back without notifications reaching it.
	require.NoError(t, s.Close())
	require.NoError(t, mem.Set(ctx, kv.Items{
		schema.ProjectKey("p2"): json.RawMessage(`{"id":"p2","name":"Two","tags":[],"pinned":true,"updatedAt":1}`),
	}))
	_, ok := s.Project("p2")
	assert.False(t, ok)

	var events []Event
	s.Subscribe(func(ev Event) { events = append(events, ev) })

	require.NoError(t, s.Refresh(ctx))
	p2, ok := s.Project("p2")
	require.True(t, ok)
	assert.True(t, p2.Pinned)
	require.Len(t, events, 1)
	assert.Equal(t, SourceRefresh, events[0].Source)
}

func TestRefresh_FailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	require.NoError(t, s.AddTag(ctx, "p1", "A"))

	mem.SetFailReads(true)
	assert.Error(t, s.Refresh(ctx))
	assert.Equal(t, []string{"A"}, s.AllTagNames())
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var local, changes int
	sub := s.Subscribe(func(ev Event) {
		switch ev.Source {
		case SourceLocal:
			local++
		case SourceChange:
			changes++
		}
	})

	require.NoError(t, s.AddTag(ctx, "p1", "A"))
	assert.Equal(t, 1, local)
	assert.Positive(t, changes, "own writes come back as change notifications")

	sub.Unsubscribe()
	sub.Unsubscribe()
	require.NoError(t, s.AddTag(ctx, "p1", "B"))
	assert.Equal(t, 1, local)
}

func TestReadAccessorsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	require.NoError(t, s.AddTag(ctx, "p1", "A"))

	p, ok := s.Project("p1")
	require.True(t, ok)
	p.Tags[0] = "mutated"
	idx := s.AllProjectTags()
	idx["p1"][0] = "mutated"

	again, _ := s.Project("p1")
	assert.Equal(t, []string{"A"}, again.Tags)
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	s, mem := newTestStore(t)
	assert.Equal(t, 350, s.Preferences().DropdownHeight)

	h, err := s.SetDropdownHeight(ctx, 5000)
	require.NoError(t, err)
	assert.Equal(t, 600, h)

	on, err := s.ToggleExpanded(ctx, "AI")
	require.NoError(t, err)
	assert.True(t, on)
	assert.Equal(t, []string{"AI"}, s.Preferences().ExpandedTags)

	other := newStoreOn(t, mem)
	assert.Equal(t, 600, other.Preferences().DropdownHeight)
	assert.Equal(t, []string{"AI"}, other.Preferences().ExpandedTags)

	on, err = s.ToggleExpanded(ctx, "AI")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Empty(t, other.Preferences().ExpandedTags, "other instance reconciles preference changes")
}

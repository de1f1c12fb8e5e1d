package kv

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Set(ctx, Items{
		"a": json.RawMessage(`1`),
		"b": json.RawMessage(`"two"`),
	}))

	got, err := m.Get(ctx, []string{"a", "missing"})
	require.NoError(t, err)
	assert.Equal(t, Items{"a": json.RawMessage(`1`)}, got)

	all, err := m.Get(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []string{"a", "b"}, all.Keys())
}

func TestMemory_GetReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, Items{"a": json.RawMessage(`[1]`)}))

	got, err := m.Get(ctx, nil)
	require.NoError(t, err)
	got["a"][1] = '9'

	again, err := m.Get(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, `[1]`, string(again["a"]))
}

func TestMemory_WatchReceivesOldAndNew(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got []Changes
	cancel := m.Watch(func(c Changes) { got = append(got, c) })

	require.NoError(t, m.Set(ctx, Items{"k": json.RawMessage(`1`)}))
	require.NoError(t, m.Set(ctx, Items{"k": json.RawMessage(`2`)}))
	require.NoError(t, m.Set(ctx, Items{"k": json.RawMessage(`2`)}))
	require.NoError(t, m.Remove(ctx, "k"))

	require.Len(t, got, 3, "unchanged value must not notify")
	assert.Nil(t, got[0]["k"].OldValue)
	assert.Equal(t, `1`, string(got[0]["k"].NewValue))
	assert.Equal(t, `1`, string(got[1]["k"].OldValue))
	assert.Equal(t, `2`, string(got[1]["k"].NewValue))
	assert.True(t, got[2]["k"].Removed())

	cancel()
	require.NoError(t, m.Set(ctx, Items{"k": json.RawMessage(`3`)}))
	assert.Len(t, got, 3)
}

func TestMemory_FaultInjection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	m.SetFailReads(true)
	_, err := m.Get(ctx, nil)
	assert.True(t, errors.Is(err, ErrRead))
	m.SetFailReads(false)

	m.SetFailWrites(true)
	assert.ErrorIs(t, m.Set(ctx, Items{"a": json.RawMessage(`1`)}), ErrWrite)
	assert.ErrorIs(t, m.Remove(ctx, "a"), ErrWrite)
	m.SetFailWrites(false)

	m.FailWritesWhen(func(it Items) bool { _, ok := it["bad"]; return ok })
	assert.ErrorIs(t, m.Set(ctx, Items{"bad": json.RawMessage(`1`)}), ErrWrite)
	assert.NoError(t, m.Set(ctx, Items{"good": json.RawMessage(`1`)}))
	m.FailWritesWhen(nil)
	assert.NoError(t, m.Set(ctx, Items{"bad": json.RawMessage(`1`)}))
	assert.Equal(t, int64(2), m.SetCount())
}

func TestMemory_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryWithQuota(Quota{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.Set(ctx, Items{string(rune('a' + i)): json.RawMessage(`true`)})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, m.Len())
}

func TestQuota_Check(t *testing.T) {
	q := Quota{BytesPerItem: 10, TotalBytes: 20, MaxItems: 2}

	assert.NoError(t, q.Check(nil, Items{"k": json.RawMessage(`"abc"`)}))

	err := q.Check(nil, Items{"k": json.RawMessage(`"` + strings.Repeat("x", 20) + `"`)})
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	current := Items{"a": json.RawMessage(`123456`), "b": json.RawMessage(`123456`)}
	assert.ErrorIs(t, q.Check(current, Items{"c": json.RawMessage(`1`)}), ErrQuotaExceeded)
	assert.NoError(t, q.Check(current, Items{"a": json.RawMessage(`1`)}), "overwrites do not add items")
}

func TestMemory_QuotaRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryWithQuota(Quota{BytesPerItem: 16})

	err := m.Set(ctx, Items{
		"ok":  json.RawMessage(`1`),
		"big": json.RawMessage(`"` + strings.Repeat("x", 32) + `"`),
	})
	require.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, 0, m.Len())
}

func TestGetOrDefault(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Set(ctx, Items{"present": json.RawMessage(`1`)}))

	defaults := Items{"present": json.RawMessage(`0`), "absent": json.RawMessage(`[]`)}
	got, ok := GetOrDefault(ctx, m, defaults)
	assert.True(t, ok)
	assert.Equal(t, `1`, string(got["present"]))
	assert.Equal(t, `[]`, string(got["absent"]))

	m.SetFailReads(true)
	got, ok = GetOrDefault(ctx, m, defaults)
	assert.False(t, ok)
	assert.Equal(t, `0`, string(got["present"]))
}

func TestDiff(t *testing.T) {
	before := Items{"same": json.RawMessage(`1`), "changed": json.RawMessage(`1`), "gone": json.RawMessage(`1`)}
	after := Items{"same": json.RawMessage(`1`), "changed": json.RawMessage(`2`), "new": json.RawMessage(`3`)}

	d := Diff(before, after)
	require.Len(t, d, 3)
	assert.Equal(t, `2`, string(d["changed"].NewValue))
	assert.True(t, d["gone"].Removed())
	assert.Nil(t, d["new"].OldValue)
}

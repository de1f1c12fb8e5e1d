package kv

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Memory is an in-process transport. Several stores sharing one Memory behave
// like several tabs sharing one synced storage area.
//
// Memory also supports fault injection for exercising failure branches.
type Memory struct {
	mu    sync.Mutex
	items Items
	quota Quota

	watchers Watchers

	failReads  atomic.Bool
	failWrites atomic.Bool
	failWhen   atomic.Pointer[func(Items) bool]

	sets    atomic.Int64
	removes atomic.Int64
}

// NewMemory returns an empty transport with the default quota.
func NewMemory() *Memory {
	return NewMemoryWithQuota(DefaultQuota())
}

// NewMemoryWithQuota returns an empty transport with a custom quota.
func NewMemoryWithQuota(q Quota) *Memory {
	return &Memory{
		items: make(Items),
		quota: q,
	}
}

// Get implements Transport.
func (m *Memory) Get(ctx context.Context, keys []string) (Items, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRead, err)
	}
	if m.failReads.Load() {
		return nil, fmt.Errorf("%w: injected failure", ErrRead)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(keys) == 0 {
		return m.items.Clone(), nil
	}
	out := make(Items, len(keys))
	for _, k := range keys {
		if v, ok := m.items[k]; ok {
			out[k] = cloneRaw(v)
		}
	}
	return out, nil
}

// Set implements Transport.
func (m *Memory) Set(ctx context.Context, items Items) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if m.failWrites.Load() {
		return fmt.Errorf("%w: injected failure", ErrWrite)
	}
	if fn := m.failWhen.Load(); fn != nil && (*fn)(items) {
		return fmt.Errorf("%w: injected failure", ErrWrite)
	}
	if len(items) == 0 {
		return nil
	}

	m.mu.Lock()
	if err := m.quota.Check(m.items, items); err != nil {
		m.mu.Unlock()
		return err
	}
	before := make(Items, len(items))
	for k := range items {
		if v, ok := m.items[k]; ok {
			before[k] = v
		}
	}
	for k, v := range items {
		m.items[k] = cloneRaw(v)
	}
	m.mu.Unlock()
	m.sets.Add(1)

	m.watchers.Notify(Diff(before, items))
	return nil
}

// Remove implements Transport.
func (m *Memory) Remove(ctx context.Context, keys ...string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if m.failWrites.Load() {
		return fmt.Errorf("%w: injected failure", ErrWrite)
	}

	m.mu.Lock()
	changes := make(Changes)
	for _, k := range keys {
		if v, ok := m.items[k]; ok {
			changes[k] = Change{OldValue: v}
			delete(m.items, k)
		}
	}
	m.mu.Unlock()
	m.removes.Add(1)

	m.watchers.Notify(changes)
	return nil
}

// Watch implements Transport.
func (m *Memory) Watch(fn ChangeFunc) func() {
	return m.watchers.Add(fn)
}

// SetFailReads makes every subsequent Get fail until reset.
func (m *Memory) SetFailReads(fail bool) { m.failReads.Store(fail) }

// SetFailWrites makes every subsequent Set and Remove fail until reset.
func (m *Memory) SetFailWrites(fail bool) { m.failWrites.Store(fail) }

// FailWritesWhen fails any Set whose batch matches pred. A nil pred clears it.
func (m *Memory) FailWritesWhen(pred func(Items) bool) {
	if pred == nil {
		m.failWhen.Store(nil)
		return
	}
	m.failWhen.Store(&pred)
}

// SetCount returns how many Set batches have been applied.
func (m *Memory) SetCount() int64 { return m.sets.Load() }

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

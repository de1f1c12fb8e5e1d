// Package kv defines the key-value transport the tag store persists through.
//
// A transport is a small, bounded, eventually-consistent key-value store in the
// shape of a browser extension's synced storage area: values are JSON documents,
// every write is a batch of whole-value replacements, and every writer (including
// the local one) receives change notifications carrying old and new values.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrRead wraps any failure reading from a transport.
	ErrRead = errors.New("transport read failed")

	// ErrWrite wraps any failure writing to a transport.
	ErrWrite = errors.New("transport write failed")

	// ErrQuotaExceeded is returned when a write would exceed a storage budget.
	// The whole batch is rejected.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("transport closed")
)

// Items maps storage keys to their raw JSON values.
type Items map[string]json.RawMessage

// Keys returns the item keys in sorted order.
func (it Items) Keys() []string {
	keys := make([]string, 0, len(it))
	for k := range it {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of the items.
func (it Items) Clone() Items {
	out := make(Items, len(it))
	for k, v := range it {
		out[k] = cloneRaw(v)
	}
	return out
}

// Change describes one key's transition. A nil OldValue means the key was
// created; a nil NewValue means it was removed.
type Change struct {
	OldValue json.RawMessage `json:"oldValue,omitempty"`
	NewValue json.RawMessage `json:"newValue,omitempty"`
}

// Removed reports whether the change deleted the key.
func (c Change) Removed() bool {
	return c.NewValue == nil
}

// Changes maps keys to their transitions within one notification.
type Changes map[string]Change

// ChangeFunc receives change notifications.
type ChangeFunc func(Changes)

// Transport is the storage boundary of the tag store.
//
// Implementations must be safe for concurrent use. Watch callbacks are invoked
// for every change, including those caused by the same process, and must not
// be assumed to be delivered in any particular order across keys of one batch.
type Transport interface {
	// Get returns the values for keys. A nil or empty keys slice returns the
	// full snapshot. Absent keys are omitted from the result.
	Get(ctx context.Context, keys []string) (Items, error)

	// Set writes every item in one batch.
	Set(ctx context.Context, items Items) error

	// Remove deletes the given keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error

	// Watch registers fn for change notifications and returns a function
	// that cancels the registration.
	Watch(fn ChangeFunc) (cancel func())
}

// GetOrDefault reads the keys of defaults and fills absent ones with the
// default value. On any failure it returns a copy of defaults and ok=false.
func GetOrDefault(ctx context.Context, t Transport, defaults Items) (Items, bool) {
	keys := defaults.Keys()
	got, err := t.Get(ctx, keys)
	if err != nil {
		return defaults.Clone(), false
	}
	out := make(Items, len(defaults))
	for k, def := range defaults {
		if v, ok := got[k]; ok {
			out[k] = v
		} else {
			out[k] = cloneRaw(def)
		}
	}
	return out, true
}

// Marshal encodes v as a raw item value.
func Marshal(v any) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return data, nil
}

// Diff computes the changes that turn before into after.
func Diff(before, after Items) Changes {
	changes := make(Changes)
	for k, nv := range after {
		ov, ok := before[k]
		if !ok {
			changes[k] = Change{NewValue: cloneRaw(nv)}
			continue
		}
		if string(ov) != string(nv) {
			changes[k] = Change{OldValue: cloneRaw(ov), NewValue: cloneRaw(nv)}
		}
	}
	for k, ov := range before {
		if _, ok := after[k]; !ok {
			changes[k] = Change{OldValue: cloneRaw(ov)}
		}
	}
	return changes
}

func cloneRaw(v json.RawMessage) json.RawMessage {
	if v == nil {
		return nil
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}

//go:build js && wasm

package chromekv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
)

// AreaName is the storage area this transport binds to.
const AreaName = "sync"

// Transport implements kv.Transport over chrome.storage.sync.
type Transport struct {
	area      js.Value
	onChanged js.Value
	quota     kv.Quota

	mu       sync.Mutex
	listener js.Func
	watching bool
	watchers kv.Watchers
	queue    *changeQueue
}

var _ kv.Transport = (*Transport)(nil)

// New binds to chrome.storage.sync with the default quota.
func New() (*Transport, error) {
	return NewWithQuota(kv.DefaultQuota())
}

// NewWithQuota binds with a custom quota. The browser enforces its own
// limits as well; checking here reports violations as kv.ErrQuotaExceeded.
func NewWithQuota(q kv.Quota) (*Transport, error) {
	chrome := js.Global().Get("chrome")
	if chrome.IsUndefined() || chrome.Get("storage").IsUndefined() {
		return nil, errors.New("chrome.storage is not available")
	}
	storage := chrome.Get("storage")
	area := storage.Get(AreaName)
	if area.IsUndefined() {
		return nil, fmt.Errorf("chrome.storage.%s is not available", AreaName)
	}
	return &Transport{
		area:      area,
		onChanged: storage.Get("onChanged"),
		quota:     q,
	}, nil
}

// Get reads keys, or everything when keys is empty.
func (t *Transport) Get(ctx context.Context, keys []string) (kv.Items, error) {
	arg := js.Null()
	if len(keys) > 0 {
		arg = stringArray(keys)
	}
	res, err := await(ctx, t.area.Call("get", arg))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrRead, err)
	}
	items, err := decodeObject(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", kv.ErrRead, err)
	}
	return items, nil
}

// Set writes items as one batch after checking the quota.
func (t *Transport) Set(ctx context.Context, items kv.Items) error {
	if len(items) == 0 {
		return nil
	}
	current, err := t.Get(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", kv.ErrWrite, err)
	}
	if err := t.quota.Check(current, items); err != nil {
		return err
	}

	obj := js.Global().Get("Object").New()
	parse := js.Global().Get("JSON").Get("parse")
	for k, v := range items {
		if !json.Valid(v) {
			return fmt.Errorf("%w: value of %q is not valid JSON", kv.ErrWrite, k)
		}
		obj.Set(k, parse.Invoke(string(v)))
	}
	if _, err := await(ctx, t.area.Call("set", obj)); err != nil {
		return fmt.Errorf("%w: %v", kv.ErrWrite, err)
	}
	return nil
}

// Remove deletes keys.
func (t *Transport) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := await(ctx, t.area.Call("remove", stringArray(keys))); err != nil {
		return fmt.Errorf("%w: %v", kv.ErrWrite, err)
	}
	return nil
}

// Watch registers fn for changes to the sync area, including this
// transport's own writes.
func (t *Transport) Watch(fn kv.ChangeFunc) func() {
	t.mu.Lock()
	if !t.watching {
		t.watching = true
		t.queue = newChangeQueue()
		t.listener = js.FuncOf(t.onStorageChanged)
		t.onChanged.Call("addListener", t.listener)
		go t.queue.run(t.watchers.Notify)
	}
	t.mu.Unlock()
	return t.watchers.Add(fn)
}

// Close detaches the change listener.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.watching {
		return nil
	}
	t.onChanged.Call("removeListener", t.listener)
	t.listener.Release()
	t.watching = false
	t.queue.close()
	t.queue = nil
	return nil
}

// onStorageChanged receives (changes, areaName).
func (t *Transport) onStorageChanged(this js.Value, args []js.Value) any {
	if len(args) < 2 || args[1].String() != AreaName {
		return nil
	}
	changes, err := decodeChanges(args[0])
	if err != nil || len(changes) == 0 {
		return nil
	}
	t.mu.Lock()
	q := t.queue
	t.mu.Unlock()
	if q != nil {
		q.push(changes)
	}
	return nil
}

// decodeChanges converts a StorageChange map. A missing newValue means the
// key was removed.
func decodeChanges(obj js.Value) (kv.Changes, error) {
	out := make(kv.Changes)
	keys := js.Global().Get("Object").Call("keys", obj)
	for i := 0; i < keys.Length(); i++ {
		k := keys.Index(i).String()
		c := obj.Get(k)
		var change kv.Change
		var err error
		if change.OldValue, err = stringify(c.Get("oldValue")); err != nil {
			return nil, err
		}
		if change.NewValue, err = stringify(c.Get("newValue")); err != nil {
			return nil, err
		}
		out[k] = change
	}
	return out, nil
}

func decodeObject(obj js.Value) (kv.Items, error) {
	items := make(kv.Items)
	if obj.IsUndefined() || obj.IsNull() {
		return items, nil
	}
	keys := js.Global().Get("Object").Call("keys", obj)
	for i := 0; i < keys.Length(); i++ {
		k := keys.Index(i).String()
		raw, err := stringify(obj.Get(k))
		if err != nil {
			return nil, err
		}
		if raw != nil {
			items[k] = raw
		}
	}
	return items, nil
}

// stringify returns the JSON text of v, or nil when v is undefined.
func stringify(v js.Value) (json.RawMessage, error) {
	if v.IsUndefined() {
		return nil, nil
	}
	s := js.Global().Get("JSON").Call("stringify", v)
	if s.IsUndefined() {
		return nil, fmt.Errorf("value of type %s has no JSON form", v.Type())
	}
	return json.RawMessage(s.String()), nil
}

func stringArray(ss []string) js.Value {
	arr := js.Global().Get("Array").New(len(ss))
	for i, s := range ss {
		arr.SetIndex(i, s)
	}
	return arr
}

// await blocks until p settles or ctx ends. It must not be called from a
// JavaScript callback.
func await(ctx context.Context, p js.Value) (js.Value, error) {
	done := make(chan struct{})
	var result js.Value
	var err error

	onResolve := js.FuncOf(func(this js.Value, args []js.Value) any {
		if len(args) > 0 {
			result = args[0]
		}
		close(done)
		return nil
	})
	onReject := js.FuncOf(func(this js.Value, args []js.Value) any {
		msg := "promise rejected"
		if len(args) > 0 {
			if m := args[0].Get("message"); m.Type() == js.TypeString {
				msg = m.String()
			} else {
				msg = args[0].Call("toString").String()
			}
		}
		err = errors.New(msg)
		close(done)
		return nil
	})
	release := func() {
		onResolve.Release()
		onReject.Release()
	}

	p.Call("then", onResolve, onReject)

	select {
	case <-done:
		release()
		return result, err
	case <-ctx.Done():
		// The callbacks stay alive until the promise settles.
		go func() {
			<-done
			release()
		}()
		return js.Undefined(), ctx.Err()
	}
}

//go:build js && wasm

package chromekv

import (
	"context"
	"syscall/js"
	"testing"
	"time"

	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
)

// fakeArea installs a chrome.storage stub whose sync.get records its
// argument and resolves with data.
type fakeArea struct {
	getArgs  []js.Value
	listener js.Value
	funcs    []js.Func
}

func installFakeChrome(t *testing.T, data map[string]any) *fakeArea {
	t.Helper()
	fa := &fakeArea{}
	promise := js.Global().Get("Promise")
	fn := func(f func(args []js.Value) any) js.Func {
		jf := js.FuncOf(func(this js.Value, args []js.Value) any { return f(args) })
		fa.funcs = append(fa.funcs, jf)
		return jf
	}

	area := js.Global().Get("Object").New()
	area.Set("get", fn(func(args []js.Value) any {
		fa.getArgs = append(fa.getArgs, args[0])
		return promise.Call("resolve", js.ValueOf(data))
	}))
	area.Set("set", fn(func([]js.Value) any { return promise.Call("resolve") }))
	area.Set("remove", fn(func([]js.Value) any { return promise.Call("resolve") }))

	onChanged := js.Global().Get("Object").New()
	onChanged.Set("addListener", fn(func(args []js.Value) any {
		fa.listener = args[0]
		return nil
	}))
	onChanged.Set("removeListener", fn(func([]js.Value) any { return nil }))

	storage := js.Global().Get("Object").New()
	storage.Set(AreaName, area)
	storage.Set("onChanged", onChanged)
	chrome := js.Global().Get("Object").New()
	chrome.Set("storage", storage)
	js.Global().Set("chrome", chrome)

	t.Cleanup(func() {
		js.Global().Delete("chrome")
		for _, f := range fa.funcs {
			f.Release()
		}
	})
	return fa
}

func TestGet_EmptyKeysReadsEverything(t *testing.T) {
	fa := installFakeChrome(t, map[string]any{
		"allTags":    []any{"Go"},
		"project:p1": map[string]any{"id": "p1"},
	})
	tr, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	for _, keys := range [][]string{nil, {}} {
		items, err := tr.Get(context.Background(), keys)
		if err != nil {
			t.Fatalf("Get(%v) failed: %v", keys, err)
		}
		if len(items) != 2 {
			t.Errorf("Get(%v) returned %d items, want 2", keys, len(items))
		}
	}
	for i, arg := range fa.getArgs {
		if !arg.IsNull() {
			t.Errorf("call %d passed %v to get, want null", i, arg)
		}
	}
}

func TestWatch_ManyEventsDoNotBlockListener(t *testing.T) {
	fa := installFakeChrome(t, map[string]any{})
	tr, err := New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer tr.Close()

	got := make(chan kv.Changes, 256)
	unwatch := tr.Watch(func(c kv.Changes) { got <- c })
	defer unwatch()

	const n = 200
	change := js.ValueOf(map[string]any{
		"allTags": map[string]any{"newValue": []any{"Go"}},
	})
	for i := 0; i < n; i++ {
		fa.listener.Invoke(change, AreaName)
	}
	fa.listener.Invoke(change, "local")

	for i := 0; i < n; i++ {
		select {
		case <-got:
		case <-time.After(2 * time.Second):
			t.Fatalf("received %d of %d batches", i, n)
		}
	}
	select {
	case c := <-got:
		t.Errorf("unexpected batch from another area: %v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

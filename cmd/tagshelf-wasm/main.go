//go:build js && wasm

// Command tagshelf-wasm exposes the tag store to a browser extension.
//
// It registers a global Tagshelf object. Mutations and initialize return
// Promises; reads return plain values from the cache. Rejections carry an
// Error whose name is one of NotFound, AlreadyExists, NoChange, Conflict,
// Cycle, InvalidMove, InvalidColor, InvalidTag, QuotaExceeded or Error.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"syscall/js"

	"github.com/tagshelf/tagshelf/internal/tagstore/chromekv"
	"github.com/tagshelf/tagshelf/internal/tagstore/kv"
	"github.com/tagshelf/tagshelf/internal/tagstore/store"
)

func main() {
	logger := log.New(os.Stderr, "[tagshelf] ", 0)

	t, err := chromekv.New()
	if err != nil {
		logger.Printf("Error: %v", err)
		return
	}

	cfg := store.DefaultConfig()
	cfg.Logger = logger
	cfg.NameSource = hostNames
	s := store.NewWithConfig(t, cfg)

	js.Global().Set("Tagshelf", js.ValueOf(api(s)))
	logger.Println("ready")
	select {}
}

// hostNames asks the page for a project's display name through an optional
// global tagshelfProjectName(id) function.
func hostNames(id string) string {
	fn := js.Global().Get("tagshelfProjectName")
	if fn.Type() != js.TypeFunction {
		return ""
	}
	v := fn.Invoke(id)
	if v.Type() != js.TypeString {
		return ""
	}
	return v.String()
}

func api(s *store.Store) map[string]any {
	ctx := context.Background()
	return map[string]any{
		"initialize": async(func(args []js.Value) (any, error) {
			return nil, s.Initialize(ctx)
		}),
		"refresh": async(func(args []js.Value) (any, error) {
			return nil, s.Refresh(ctx)
		}),
		"addTag": async(func(args []js.Value) (any, error) {
			return nil, s.AddTag(ctx, arg(args, 0), arg(args, 1))
		}),
		"removeTag": async(func(args []js.Value) (any, error) {
			return nil, s.RemoveTag(ctx, arg(args, 0), arg(args, 1))
		}),
		"togglePin": async(func(args []js.Value) (any, error) {
			return s.TogglePin(ctx, arg(args, 0))
		}),
		"syncProjectName": async(func(args []js.Value) (any, error) {
			return nil, s.SyncProjectName(ctx, arg(args, 0), arg(args, 1))
		}),
		"renameTag": async(func(args []js.Value) (any, error) {
			return nil, s.Rename(ctx, arg(args, 0), arg(args, 1))
		}),
		"renameTagTree": async(func(args []js.Value) (any, error) {
			return nil, s.RenameTree(ctx, arg(args, 0), arg(args, 1))
		}),
		"mergeTags": async(func(args []js.Value) (any, error) {
			return nil, s.Merge(ctx, arg(args, 0), arg(args, 1))
		}),
		"moveTag": async(func(args []js.Value) (any, error) {
			return s.MoveToParent(ctx, arg(args, 0), arg(args, 1))
		}),
		"removeTagCascade": async(func(args []js.Value) (any, error) {
			removed, err := s.RemoveTagAndDescendants(ctx, arg(args, 0))
			return toJS(removed), err
		}),
		"setTagColor": async(func(args []js.Value) (any, error) {
			return nil, s.SetTagColor(ctx, arg(args, 0), arg(args, 1))
		}),
		"reorderTagGroups": async(func(args []js.Value) (any, error) {
			return nil, s.ReorderTagGroups(ctx, arg(args, 0), arg(args, 1), arg(args, 2))
		}),
		"reorderTagGroupsAt": async(func(args []js.Value) (any, error) {
			index := 0
			if len(args) > 2 && args[2].Type() == js.TypeNumber {
				index = args[2].Int()
			}
			return nil, s.ReorderTagGroupsAt(ctx, arg(args, 0), arg(args, 1), index)
		}),
		"toggleExpanded": async(func(args []js.Value) (any, error) {
			return s.ToggleExpanded(ctx, arg(args, 0))
		}),
		"setDropdownHeight": async(func(args []js.Value) (any, error) {
			h := 0
			if len(args) > 0 && args[0].Type() == js.TypeNumber {
				h = args[0].Int()
			}
			return s.SetDropdownHeight(ctx, h)
		}),

		"ready":      call(func(args []js.Value) any { return s.Ready() }),
		"tags":       call(func(args []js.Value) any { return toJS(s.AllTagNames()) }),
		"tagTree":    call(func(args []js.Value) any { return toJS(s.TagTree()) }),
		"projects":   call(func(args []js.Value) any { return toJS(s.Projects()) }),
		"colorOf":    call(func(args []js.Value) any { return s.ColorOf(arg(args, 0)) }),
		"removalSet": call(func(args []js.Value) any { return toJS(s.RemovalSet(arg(args, 0))) }),
		"preferences": call(func(args []js.Value) any {
			p := s.Preferences()
			return toJS(map[string]any{"expandedTags": p.ExpandedTags, "dropdownHeight": p.DropdownHeight})
		}),

		"subscribe": js.FuncOf(func(this js.Value, args []js.Value) any {
			if len(args) == 0 || args[0].Type() != js.TypeFunction {
				return js.Undefined()
			}
			cb := args[0]
			sub := s.Subscribe(func(ev store.Event) {
				cb.Invoke(toJS(map[string]any{
					"source":      ev.Source.String(),
					"tags":        ev.Tags,
					"projects":    ev.Projects,
					"preferences": ev.Preferences,
					"keys":        ev.Keys,
				}))
			})
			var unsubscribe js.Func
			unsubscribe = js.FuncOf(func(this js.Value, args []js.Value) any {
				sub.Unsubscribe()
				unsubscribe.Release()
				return nil
			})
			return unsubscribe
		}),
	}
}

func arg(args []js.Value, i int) string {
	if i >= len(args) || args[i].Type() != js.TypeString {
		return ""
	}
	return args[i].String()
}

func call(fn func(args []js.Value) any) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		return fn(args)
	})
}

// async runs fn on a goroutine and returns a Promise for its result.
// Transport calls await JavaScript promises, which would deadlock if made
// directly inside the callback.
func async(fn func(args []js.Value) (any, error)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		executor := js.FuncOf(func(this js.Value, pargs []js.Value) any {
			resolve, reject := pargs[0], pargs[1]
			go func() {
				v, err := fn(args)
				if err != nil {
					reject.Invoke(jsError(err))
					return
				}
				resolve.Invoke(v)
			}()
			return nil
		})
		defer executor.Release()
		return js.Global().Get("Promise").New(executor)
	})
}

func jsError(err error) js.Value {
	e := js.Global().Get("Error").New(err.Error())
	e.Set("name", errorName(err))
	return e
}

func errorName(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return "NotFound"
	case errors.Is(err, store.ErrAlreadyExists):
		return "AlreadyExists"
	case errors.Is(err, store.ErrNoChange):
		return "NoChange"
	case errors.Is(err, store.ErrConflict):
		return "Conflict"
	case errors.Is(err, store.ErrCycle):
		return "Cycle"
	case errors.Is(err, store.ErrInvalidMove):
		return "InvalidMove"
	case errors.Is(err, store.ErrInvalidColor):
		return "InvalidColor"
	case errors.Is(err, store.ErrInvalidTag):
		return "InvalidTag"
	case errors.Is(err, kv.ErrQuotaExceeded):
		return "QuotaExceeded"
	default:
		return "Error"
	}
}

// toJS converts a Go value through its JSON form.
func toJS(v any) js.Value {
	data, err := json.Marshal(v)
	if err != nil {
		return js.Null()
	}
	return js.Global().Get("JSON").Call("parse", string(data))
}

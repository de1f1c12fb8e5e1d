// Package chromekv binds the key-value transport to chrome.storage.sync.
//
// It is only built for js/wasm. All calls use the Promise form of the
// storage API (Manifest V3). Change notifications come from
// chrome.storage.onChanged, filtered to the "sync" area, and are delivered
// in order on a dedicated goroutine so that store callbacks never run
// inside a JavaScript event handler.
package chromekv

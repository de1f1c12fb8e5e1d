package schema

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Shard symbols for non-Latin buckets.
const (
	HiraganaShard = "あ"
	KatakanaShard = "ア"
	OtherShard    = "_"
)

// ShardKeyFor returns the shard symbol that owns tagName.
//
// The first character is upper-cased with full case mapping, so one
// character may become several letters ("ß" becomes "SS"). Any result
// containing A-Z is the shard itself. Hiragana あ..ん map to HiraganaShard,
// Katakana ア..ン to KatakanaShard, CJK unified ideographs to themselves,
// and everything else (including the empty name and characters outside the
// Basic Multilingual Plane) to OtherShard.
func ShardKeyFor(tagName string) string {
	r, size := utf8.DecodeRuneInString(tagName)
	if size == 0 || r == utf8.RuneError || r > 0xFFFF {
		return OtherShard
	}
	// Casers keep state; one per call.
	first := cases.Upper(language.Und).String(string(r))

	switch {
	case strings.ContainsFunc(first, isASCIIUpper):
		return first
	case r >= 0x3042 && r <= 0x3093:
		return HiraganaShard
	case r >= 0x30A2 && r <= 0x30F3:
		return KatakanaShard
	case r >= 0x4E00 && r <= 0x9FFF:
		return string(r)
	default:
		return OtherShard
	}
}

func isASCIIUpper(r rune) bool {
	return r >= 'A' && r <= 'Z'
}

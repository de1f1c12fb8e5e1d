package hierarchy

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Collator is not safe for concurrent use.
var (
	collatorMu sync.Mutex
	collator   = collate.New(language.Japanese)
)

// CompareLocale orders two strings with Japanese collation, falling back to
// byte order for collation ties so the order is total.
func CompareLocale(a, b string) int {
	collatorMu.Lock()
	c := collator.CompareString(a, b)
	collatorMu.Unlock()
	if c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

// Compare orders tag paths segment by segment; on a shared prefix the
// shorter path (the ancestor) sorts first.
func Compare(a, b string) int {
	as, bs := Parse(a), Parse(b)
	n := min(len(as), len(bs))
	for i := 0; i < n; i++ {
		if as[i] == bs[i] {
			continue
		}
		if c := CompareLocale(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return len(as) - len(bs)
}

// Normalize deduplicates, drops blank entries and sorts tags so that every
// ancestor precedes its descendants. It is idempotent.
func Normalize(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		if strings.TrimSpace(t) == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return Compare(out[i], out[j]) < 0
	})
	return out
}

// SortLocale sorts whole strings with locale collation.
func SortLocale(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		return CompareLocale(names[i], names[j]) < 0
	})
}

// Package hierarchy implements the path semantics of hierarchical tag names.
//
// A tag name is a sequence of segments joined by Separator. Nothing here
// touches storage; the functions are pure and safe for concurrent use.
package hierarchy

import (
	"slices"
	"strings"
)

// Separator joins path segments.
const Separator = "/"

// Parse splits a tag into its segments.
func Parse(tag string) []string {
	return strings.Split(tag, Separator)
}

// Parent returns the tag minus its last segment, or "" and false for a root tag.
func Parent(tag string) (string, bool) {
	i := strings.LastIndex(tag, Separator)
	if i < 0 {
		return "", false
	}
	return tag[:i], true
}

// Depth returns the number of separators in the tag (0 for a root tag).
func Depth(tag string) int {
	return strings.Count(tag, Separator)
}

// Base returns the last segment.
func Base(tag string) string {
	i := strings.LastIndex(tag, Separator)
	if i < 0 {
		return tag
	}
	return tag[i+len(Separator):]
}

// Root returns the first segment.
func Root(tag string) string {
	i := strings.Index(tag, Separator)
	if i < 0 {
		return tag
	}
	return tag[:i]
}

// Join builds a tag from a parent and a base. An empty parent yields base.
func Join(parent, base string) string {
	if parent == "" {
		return base
	}
	return parent + Separator + base
}

// Ancestors returns every proper prefix of tag, nearest first.
func Ancestors(tag string) []string {
	var out []string
	for p, ok := Parent(tag); ok; p, ok = Parent(p) {
		out = append(out, p)
	}
	return out
}

// IsDescendant reports whether tag lies strictly beneath ancestor.
func IsDescendant(tag, ancestor string) bool {
	return strings.HasPrefix(tag, ancestor+Separator)
}

// IsSelfOrDescendant reports whether tag is ancestor or lies beneath it.
func IsSelfOrDescendant(tag, ancestor string) bool {
	return tag == ancestor || IsDescendant(tag, ancestor)
}

// Children returns the names in all that lie strictly beneath parent, in
// input order. Like the stored tag set it includes grandchildren.
func Children(parent string, all []string) []string {
	var out []string
	for _, t := range all {
		if IsDescendant(t, parent) {
			out = append(out, t)
		}
	}
	return out
}

// DirectChildren returns only the names exactly one level beneath parent.
func DirectChildren(parent string, all []string) []string {
	depth := Depth(parent) + 1
	var out []string
	for _, t := range all {
		if IsDescendant(t, parent) && Depth(t) == depth {
			out = append(out, t)
		}
	}
	return out
}

// ReplacePrefix substitutes the oldPrefix of tag with newPrefix. It returns
// tag unchanged when it is neither oldPrefix nor beneath it.
func ReplacePrefix(tag, oldPrefix, newPrefix string) string {
	if tag == oldPrefix {
		return newPrefix
	}
	if IsDescendant(tag, oldPrefix) {
		return newPrefix + tag[len(oldPrefix):]
	}
	return tag
}

// ReplaceTag replaces oldTag with newTag in tags, in place order. It reports
// whether anything changed.
func ReplaceTag(tags []string, oldTag, newTag string) ([]string, bool) {
	out := slices.Clone(tags)
	changed := false
	for i, t := range out {
		if t == oldTag {
			out[i] = newTag
			changed = true
		}
	}
	if changed {
		out = Dedupe(out)
	}
	return out, changed
}

// MergeTag rewrites sourceTag to targetTag at its position, or drops it when
// targetTag is already present. The result never contains duplicates.
func MergeTag(tags []string, sourceTag, targetTag string) ([]string, bool) {
	if !slices.Contains(tags, sourceTag) {
		return slices.Clone(tags), false
	}
	hasTarget := slices.Contains(tags, targetTag)
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == sourceTag {
			if hasTarget {
				continue
			}
			t = targetTag
		}
		out = append(out, t)
	}
	return Dedupe(out), true
}

// RemoveTags drops every member of remove from tags.
func RemoveTags(tags []string, remove map[string]bool) ([]string, bool) {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !remove[t] {
			out = append(out, t)
		}
	}
	return out, len(out) != len(tags)
}

// Dedupe removes repeated entries keeping first occurrences.
func Dedupe(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

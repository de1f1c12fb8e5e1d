package hierarchy

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParentChainTerminates(t *testing.T) {
	for _, tag := range []string{"A", "A/B", "A/B/C/D/E", "仕事/重要/今週"} {
		cur := tag
		steps := 0
		for {
			p, ok := Parent(cur)
			if !ok {
				break
			}
			assert.True(t, strings.HasPrefix(tag, p), "%q must prefix %q", p, tag)
			assert.Less(t, len(p), len(cur))
			cur = p
			steps++
		}
		assert.Equal(t, Depth(tag), steps)
	}
}

func TestParseBaseRoot(t *testing.T) {
	assert.Equal(t, []string{"A", "B", "C"}, Parse("A/B/C"))
	assert.Equal(t, "C", Base("A/B/C"))
	assert.Equal(t, "A", Base("A"))
	assert.Equal(t, "A", Root("A/B/C"))
	assert.Equal(t, 2, Depth("A/B/C"))
	assert.Equal(t, 0, Depth("A"))
	assert.Equal(t, "A/B", Join("A", "B"))
	assert.Equal(t, "B", Join("", "B"))
	assert.Equal(t, []string{"A/B", "A"}, Ancestors("A/B/C"))
	assert.Empty(t, Ancestors("A"))
}

func TestChildren(t *testing.T) {
	all := []string{"AI", "AI/ML", "AI/ML/Deep", "AIR", "Research/AI"}
	assert.Equal(t, []string{"AI/ML", "AI/ML/Deep"}, Children("AI", all))
	assert.Equal(t, []string{"AI/ML"}, DirectChildren("AI", all))
	assert.Empty(t, Children("AIR", all))
	assert.False(t, IsDescendant("AIR", "AI"))
	assert.True(t, IsSelfOrDescendant("AI", "AI"))
}

func TestReplacePrefix(t *testing.T) {
	assert.Equal(t, "B", ReplacePrefix("A", "A", "B"))
	assert.Equal(t, "B/x/y", ReplacePrefix("A/x/y", "A", "B"))
	assert.Equal(t, "AB", ReplacePrefix("AB", "A", "B"))
}

func TestMergeTag(t *testing.T) {
	out, changed := MergeTag([]string{"AI/ML", "AI/NLP"}, "AI/ML", "Research/ML")
	assert.True(t, changed)
	assert.Equal(t, []string{"Research/ML", "AI/NLP"}, out)

	out, changed = MergeTag([]string{"X", "A", "B"}, "A", "B")
	assert.True(t, changed)
	assert.Equal(t, []string{"X", "B"}, out)

	in := []string{"X"}
	out, changed = MergeTag(in, "A", "B")
	assert.False(t, changed)
	assert.Equal(t, in, out)
}

func TestReplaceTag(t *testing.T) {
	out, changed := ReplaceTag([]string{"a", "b", "c"}, "b", "z")
	assert.True(t, changed)
	assert.Equal(t, []string{"a", "z", "c"}, out)

	_, changed = ReplaceTag([]string{"a"}, "b", "z")
	assert.False(t, changed)
}

func TestRemoveTags(t *testing.T) {
	out, changed := RemoveTags([]string{"a", "b", "c"}, map[string]bool{"b": true, "q": true})
	assert.True(t, changed)
	assert.Equal(t, []string{"a", "c"}, out)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"simple", "AI", "AI", false},
		{"trimmed", "  AI/ML  ", "AI/ML", false},
		{"japanese", "仕事/重要", "仕事/重要", false},
		{"empty", "", "", true},
		{"whitespace", "   ", "", true},
		{"leading separator", "/AI", "", true},
		{"trailing separator", "AI/", "", true},
		{"double separator", "AI//ML", "", true},
		{"blank segment", "AI/ /ML", "", true},
		{"exactly max", strings.Repeat("a", MaxTagLength), strings.Repeat("a", MaxTagLength), false},
		{"too long", strings.Repeat("a", MaxTagLength+1), "", true},
		{"astral counts twice", strings.Repeat("😀", 26), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTag))
				var ve *ValidationError
				assert.True(t, errors.As(err, &ve))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_ParentsFirst(t *testing.T) {
	in := []string{"B/x", "A/z", "", "A", "  ", "B", "A/z", "A/b/c", "A/b"}
	out := Normalize(in)
	assert.Equal(t, []string{"A", "A/b", "A/b/c", "A/z", "B", "B/x"}, out)
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := [][]string{
		{"c", "b/a", "a", "b"},
		{"あ/い", "ア", "漢字", "Z", "a/b/c", "a"},
		{"x/y/z", "x", "x/y"},
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once))

		pos := make(map[string]int, len(once))
		for i, tag := range once {
			pos[tag] = i
		}
		for _, tag := range once {
			for _, anc := range Ancestors(tag) {
				if i, ok := pos[anc]; ok {
					assert.Less(t, i, pos[tag], "%q must precede %q", anc, tag)
				}
			}
		}
	}
}

func TestNormalize_SegmentOrderBeatsWholeString(t *testing.T) {
	// Whole-string order would put "A-B" between "A" and "A/x" since '-' < '/'.
	out := Normalize([]string{"A-B", "A/x", "A"})
	assert.Equal(t, "A", out[0])
	assert.Equal(t, "A/x", out[1])
}

func TestCompareLocale_Total(t *testing.T) {
	assert.Zero(t, CompareLocale("a", "a"))
	assert.NotZero(t, CompareLocale("a", "A"))
	assert.Less(t, CompareLocale("apple", "banana"), 0)
}

func TestBuildTree(t *testing.T) {
	roots := BuildTree([]string{"A/B/C", "D", "A"})
	require.Len(t, roots, 2)
	assert.Equal(t, "A", roots[0].Name)
	require.Len(t, roots[0].Children, 1)
	assert.Equal(t, "A/B", roots[0].Children[0].Name, "missing intermediate is materialized")
	assert.Equal(t, "C", roots[0].Children[0].Children[0].Base)

	var visited []string
	Walk(roots, func(n *Node) { visited = append(visited, n.Name) })
	assert.Equal(t, []string{"A", "A/B", "A/B/C", "D"}, visited)
}

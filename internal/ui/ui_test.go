package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tagshelf/tagshelf/internal/tagstore/schema"
	"github.com/tagshelf/tagshelf/internal/tagstore/store"
)

func sampleTree() []*store.TreeNode {
	return []*store.TreeNode{
		{
			Name: "AI", Base: "AI", Color: "#4285f4", OwnColor: true, Count: 1, Registered: true,
			Children: []*store.TreeNode{
				{
					Name: "AI/ML", Base: "ML", Depth: 1, Color: "#4285f4", Count: 2, Registered: true,
					Children: []*store.TreeNode{
						{Name: "AI/ML/CV", Base: "CV", Depth: 2, Color: "#4285f4", Registered: true},
					},
				},
				{Name: "AI/NLP", Base: "NLP", Depth: 1, Color: "#ea4335", OwnColor: true, Registered: true},
			},
		},
		{Name: "Go", Base: "Go", Count: 3, Registered: true},
	}
}

func TestTree_Plain(t *testing.T) {
	r := NewPlainRenderer(&bytes.Buffer{})
	got := r.Tree(sampleTree(), TreeOptions{ShowCounts: true})
	want := "● AI (1) [blue]\n" +
		"├── ● ML (2)\n" +
		"│   └── ● CV\n" +
		"└── ● NLP [red]\n" +
		"○ Go (3)\n"
	assert.Equal(t, want, got)
}

func TestTree_Collapse(t *testing.T) {
	nodes := sampleTree()
	nodes[0].Expanded = true
	r := NewPlainRenderer(&bytes.Buffer{})
	got := r.Tree(nodes, TreeOptions{Collapse: true})
	want := "● AI [blue]\n" +
		"├── ● ML +1\n" +
		"└── ● NLP [red]\n" +
		"○ Go\n"
	assert.Equal(t, want, got)
}

func TestProjectLine(t *testing.T) {
	r := NewPlainRenderer(&bytes.Buffer{})
	colorOf := func(string) string { return "" }

	p := &schema.Project{ID: "p1", Name: "Demo", Tags: []string{"AI/ML", "Go"}, Pinned: true}
	assert.Equal(t, "★ Demo (p1)  AI/ML, Go", r.ProjectLine(p, colorOf))

	bare := &schema.Project{ID: "p2", Tags: []string{}}
	assert.Equal(t, "  p2  untagged", r.ProjectLine(bare, colorOf))
}

func TestKeyValue(t *testing.T) {
	r := NewPlainRenderer(&bytes.Buffer{})
	assert.Equal(t, "Tags:            12", r.KeyValue("Tags", 12))
}

func TestAgo(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Ago(tt.at, now))
	}
}

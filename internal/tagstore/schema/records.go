package schema

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// TagMeta is the metadata record of one tag.
type TagMeta struct {
	Color *string `json:"color"`
}

// HasColor reports whether the record carries its own color.
func (m TagMeta) HasColor() bool {
	return m.Color != nil && *m.Color != ""
}

// ColorValue returns the color or "" when unset.
func (m TagMeta) ColorValue() string {
	if m.Color == nil {
		return ""
	}
	return *m.Color
}

// WithColor returns a record carrying hex, or an unset record for "".
func WithColor(hex string) TagMeta {
	if hex == "" {
		return TagMeta{}
	}
	return TagMeta{Color: &hex}
}

// Project is the persisted record of one host project.
type Project struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Tags      []string `json:"tags"`
	Pinned    bool     `json:"pinned"`
	UpdatedAt int64    `json:"updatedAt"` // unix milliseconds
}

// NewProject returns a default record for an untracked project.
func NewProject(id, name string) *Project {
	p := &Project{ID: id, Name: name}
	p.SetDefaults()
	return p
}

// Validate checks the record's invariants.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("id is required")
	}
	seen := make(map[string]bool, len(p.Tags))
	for _, t := range p.Tags {
		if t == "" {
			return fmt.Errorf("project %s has an empty tag", p.ID)
		}
		if seen[t] {
			return fmt.Errorf("project %s has duplicate tag %q", p.ID, t)
		}
		seen[t] = true
	}
	return nil
}

// SetDefaults fills zero-valued fields.
func (p *Project) SetDefaults() {
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.UpdatedAt == 0 {
		p.Touch(time.Now())
	}
}

// Touch sets the modification timestamp.
func (p *Project) Touch(now time.Time) {
	p.UpdatedAt = now.UnixMilli()
}

// Updated returns the modification timestamp as a time.
func (p *Project) Updated() time.Time {
	return time.UnixMilli(p.UpdatedAt)
}

// HasTag reports whether the project carries tag.
func (p *Project) HasTag(tag string) bool {
	return slices.Contains(p.Tags, tag)
}

// Clone returns a deep copy.
func (p *Project) Clone() *Project {
	c := *p
	c.Tags = slices.Clone(p.Tags)
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c
}

// Encode returns the record's storage value.
func (p *Project) Encode() (json.RawMessage, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode project %s: %w", p.ID, err)
	}
	return data, nil
}

package schema

import "strings"

// Color is a palette entry.
type Color struct {
	Name string
	Hex  string
}

// Palette lists the colors a tag may carry. A tag may also be unset.
var Palette = []Color{
	{Name: "blue", Hex: "#4285f4"},
	{Name: "green", Hex: "#34a853"},
	{Name: "yellow", Hex: "#fbbc04"},
	{Name: "red", Hex: "#ea4335"},
	{Name: "purple", Hex: "#9c27b0"},
	{Name: "cyan", Hex: "#00bcd4"},
	{Name: "orange", Hex: "#ff9800"},
	{Name: "brown", Hex: "#795548"},
}

// LookupColor resolves a palette name or hex code. Matching is
// case-insensitive.
func LookupColor(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Palette {
		if s == c.Name || s == c.Hex {
			return c.Hex, true
		}
	}
	return "", false
}

// ColorName returns the palette name of a hex code, or the code itself.
func ColorName(hex string) string {
	for _, c := range Palette {
		if strings.EqualFold(c.Hex, hex) {
			return c.Name
		}
	}
	return hex
}

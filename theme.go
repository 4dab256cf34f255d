package gorepl

import (
	"encoding/json"
	"fmt"
	"os"
)

// Theme maps semantic classification categories to ANSI display colors.
// Categories with no mapping fall back to Default.
type Theme struct {
	Name    string            `json:"name"`
	Colors  map[string]string `json:"colors"`
	Default string            `json:"default"`
}

const (
	ansiReset   = "\033[0m"
	ansiRed     = "\033[31m"
	ansiGreen   = "\033[32m"
	ansiYellow  = "\033[33m"
	ansiBlue    = "\033[34m"
	ansiMagenta = "\033[35m"
	ansiCyan    = "\033[36m"
	ansiWhite   = "\033[37m"
	ansiGray    = "\033[90m"
)

var builtinThemes = map[string]*Theme{
	"default": {
		Name: "default",
		Colors: map[string]string{
			"keyword":  ansiMagenta,
			"name":     ansiWhite,
			"function": ansiCyan,
			"string":   ansiYellow,
			"number":   ansiGreen,
			"comment":  ansiGray,
			"operator": ansiWhite,
			"type":     ansiBlue,
		},
		Default: ansiWhite,
	},
	"mono": {
		Name:    "mono",
		Colors:  map[string]string{},
		Default: ansiWhite,
	},
}

// ThemeByName returns a builtin theme, or the default theme when the name
// is unknown.
func ThemeByName(name string) *Theme {
	if t, ok := builtinThemes[name]; ok {
		return t
	}
	return builtinThemes["default"]
}

// LoadTheme reads a user theme file (JSON). Missing fields inherit from
// the default theme.
func LoadTheme(path string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Theme
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing theme %s: %w", path, err)
	}
	if t.Default == "" {
		t.Default = builtinThemes["default"].Default
	}
	if t.Colors == nil {
		t.Colors = map[string]string{}
	}
	return &t, nil
}

// ColorFor resolves a span's candidate categories, most specific first;
// the first category with a mapping wins.
func (t *Theme) ColorFor(categories []string) string {
	for _, c := range categories {
		if color, ok := t.Colors[c]; ok {
			return color
		}
	}
	return t.Default
}

// Package directive recognizes the line-oriented directives embedded in
// evaluated code: #r library references and import declarations. It is not a
// general Go parser; everything that is not a directive line is ignored.
package directive

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var directiveLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t]+`},
	{Name: "Ref", Pattern: `(?i)#r\b`},
	{Name: "Import", Pattern: `import\b`},
	{Name: "String", Pattern: `"[^"]*"` + "|`[^`]*`"},
	{Name: "LParen", Pattern: `\(`},
	{Name: "RParen", Pattern: `\)`},
	{Name: "Dot", Pattern: `\.`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Semicolon", Pattern: `;`},
})

// Line is one recognized directive line.
type Line struct {
	Ref         *RefDirective    `parser:"@@"`
	ImportGroup *ImportGroup     `parser:"| @@"`
	Import      *ImportDirective `parser:"| @@"`
}

// RefDirective is a #r "..." library reference.
type RefDirective struct {
	Target string `parser:"Ref @String Semicolon?"`
}

// ImportDirective is a single-path import, with an optional alias or dot.
type ImportDirective struct {
	Alias string `parser:"Import ( @Ident | @Dot )?"`
	Path  string `parser:"@String Semicolon?"`
}

// ImportGroup is a parenthesized import block written on one line.
type ImportGroup struct {
	Specs []*ImportSpec `parser:"Import LParen @@* RParen"`
}

type ImportSpec struct {
	Alias string `parser:"( @Ident | @Dot )?"`
	Path  string `parser:"@String Semicolon?"`
}

var lineParser = participle.MustBuild[Line](
	participle.Lexer(directiveLexer),
	participle.Elide("Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// Directives is everything recognized while scanning a submission.
type Directives struct {
	// Refs are the raw #r targets, in order of appearance.
	Refs []string
	// Imports maps import path to alias ("" when none was written).
	Imports map[string]string
	// ImportOrder is the paths in order of first appearance.
	ImportOrder []string
}

// Scan walks the submission line by line and collects directives. Lines
// that fail to parse are ordinary code and are skipped without error.
func Scan(text string) Directives {
	d := Directives{Imports: make(map[string]string)}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(line), "#r") && !strings.HasPrefix(line, "import") {
			continue
		}
		parsed, err := lineParser.ParseString("", line)
		if err != nil {
			continue
		}
		switch {
		case parsed.Ref != nil:
			d.Refs = append(d.Refs, parsed.Ref.Target)
		case parsed.Import != nil:
			d.addImport(parsed.Import.Path, parsed.Import.Alias)
		case parsed.ImportGroup != nil:
			for _, spec := range parsed.ImportGroup.Specs {
				d.addImport(spec.Path, spec.Alias)
			}
		}
	}
	return d
}

func (d *Directives) addImport(path, alias string) {
	if path == "" {
		return
	}
	if _, seen := d.Imports[path]; !seen {
		d.ImportOrder = append(d.ImportOrder, path)
	}
	d.Imports[path] = alias
}

// StripRefs removes #r directive lines from a submission so the remaining
// text can be handed to the compiler, which has no notion of them.
func StripRefs(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(l)), "#r") {
			continue
		}
		kept = append(kept, l)
	}
	return strings.Join(kept, "\n")
}

const modPrefix = "mod:"

// IsModuleRef reports whether a #r target names a remote module, by
// case-insensitive prefix.
func IsModuleRef(target string) bool {
	return len(target) >= len(modPrefix) &&
		strings.EqualFold(target[:len(modPrefix)], modPrefix)
}

// ParseModuleRef splits a "mod:path[@version]" or "mod:path, version"
// target into its module path and optional version.
func ParseModuleRef(target string) (path, version string, err error) {
	if !IsModuleRef(target) {
		return "", "", fmt.Errorf("not a module reference: %q", target)
	}
	rest := strings.TrimSpace(target[len(modPrefix):])
	if rest == "" {
		return "", "", fmt.Errorf("empty module reference")
	}
	if i := strings.LastIndex(rest, "@"); i > 0 {
		return strings.TrimSpace(rest[:i]), strings.TrimSpace(rest[i+1:]), nil
	}
	if i := strings.Index(rest, ","); i > 0 {
		return strings.TrimSpace(rest[:i]), strings.TrimSpace(rest[i+1:]), nil
	}
	return rest, "", nil
}

package gorepl

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// DisassemblyService renders submitted code to the compiler's low-level
// assembly listing. The submission's framing is unknown — statements, bare
// declarations, or a full program — so framings are tried in fixed order
// and the first one that builds wins. Every attempt is recorded in a
// trailing report.
type DisassemblyService struct {
	catalog *ReferenceCatalog
	goBin   string
	workDir string
	log     *zap.Logger
}

type framing struct {
	name string
	wrap func(imports, code string) string
}

func NewDisassemblyService(catalog *ReferenceCatalog, workDir string, log *zap.Logger) *DisassemblyService {
	if log == nil {
		log = zap.NewNop()
	}
	return &DisassemblyService{catalog: catalog, goBin: "go", workDir: workDir, log: log}
}

// Disassemble compiles the code, prefixed with the session's accumulated
// imports, and returns the assembly listing plus the attempt report. All
// framings failing yields an Error carrying the concatenated diagnostics.
func (d *DisassemblyService) Disassemble(ctx context.Context, code string, debugMode bool) EvaluationResult {
	imports := d.relevantImports(code)
	framings := []framing{
		{name: "main program", wrap: wrapMainProgram},
		{name: "library", wrap: wrapLibrary},
		{name: "script", wrap: wrapScript},
	}

	var report strings.Builder
	for _, f := range framings {
		src := f.wrap(imports, code)
		listing, err := d.compile(ctx, src, debugMode)
		if err != nil {
			fmt.Fprintf(&report, "// compiling as %s: failed\n//   %s\n", f.name,
				strings.ReplaceAll(strings.TrimSpace(err.Error()), "\n", "\n//   "))
			continue
		}
		fmt.Fprintf(&report, "// compiling as %s: succeeded\n", f.name)
		d.log.Debug("disassembly framing selected", zap.String("framing", f.name))
		return Success{
			Input:       code,
			ReturnValue: listing + "\n" + report.String(),
			HasValue:    true,
		}
	}
	return Error{Input: code, Err: fmt.Errorf("no framing compiled:\n%s", report.String())}
}

func (d *DisassemblyService) compile(ctx context.Context, src string, debugMode bool) (string, error) {
	dir, err := os.MkdirTemp(d.workDir, "dis-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	goVersion := majorMinor(strings.TrimPrefix(runtime.Version(), "go"))
	mod := fmt.Sprintf("module scratch\n\ngo %s\n", goVersion)
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(mod), 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte(src), 0o644); err != nil {
		return "", err
	}

	gcflags := "-S"
	if debugMode {
		gcflags = "-S -N -l"
	}
	cmd := exec.CommandContext(ctx, d.goBin, "build", "-gcflags="+gcflags, ".")
	cmd.Dir = dir
	// The compiler writes the listing to stderr, interleaved with any
	// diagnostics.
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%v\n%s", err, strings.TrimSpace(string(output)))
	}
	return strings.TrimSpace(string(output)), nil
}

// relevantImports keeps only tracked imports whose package name actually
// appears in the code; an unused import would fail every framing.
func (d *DisassemblyService) relevantImports(code string) string {
	var used []string
	for _, p := range d.catalog.Imports() {
		base := path.Base(p)
		if strings.Contains(code, base+".") {
			used = append(used, p)
		}
	}
	if len(used) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("import (\n")
	for _, p := range used {
		fmt.Fprintf(&b, "\t%q\n", p)
	}
	b.WriteString(")\n")
	return b.String()
}

func wrapMainProgram(imports, code string) string {
	return fmt.Sprintf("package main\n\n%s\nfunc main() {\n%s\n}\n", imports, code)
}

func wrapLibrary(imports, code string) string {
	return fmt.Sprintf("package replout\n\n%s\n%s\n", imports, code)
}

func wrapScript(imports, code string) string {
	return fmt.Sprintf("package main\n\n%s\n%s\n", imports, code)
}

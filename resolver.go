package gorepl

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"gorepl/directive"
)

// ReferenceResolver is one strategy for satisfying a #r target. A strategy
// that does not recognize the target returns (nil, nil) so the next one can
// try.
type ReferenceResolver interface {
	Resolve(ctx context.Context, target string) ([]*ReferenceArtifact, error)
}

// CompositeResolver tries its strategies in fixed priority order — remote
// module, module build, local path — and stops at the first non-empty
// result. All strategies declining yields an empty result, not an error.
type CompositeResolver struct {
	resolvers []ReferenceResolver
}

func NewCompositeResolver(resolvers ...ReferenceResolver) *CompositeResolver {
	return &CompositeResolver{resolvers: resolvers}
}

func (c *CompositeResolver) Resolve(ctx context.Context, target string) ([]*ReferenceArtifact, error) {
	for _, r := range c.resolvers {
		artifacts, err := r.Resolve(ctx, target)
		if err != nil {
			return nil, err
		}
		if len(artifacts) > 0 {
			return artifacts, nil
		}
	}
	return nil, nil
}

// ModuleReferenceResolver satisfies "mod:" directives through the package
// resolver.
type ModuleReferenceResolver struct {
	Packages *PackageResolver
}

func (m *ModuleReferenceResolver) Resolve(ctx context.Context, target string) ([]*ReferenceArtifact, error) {
	if !m.Packages.IsPackageReference(target) {
		return nil, nil
	}
	path, version, err := directive.ParseModuleRef(target)
	if err != nil {
		return nil, err
	}
	return m.Packages.Install(ctx, path, version)
}

// BuildReferenceResolver satisfies directives naming a go.mod file or a
// directory containing one: it runs an external build and parses the build
// output for the produced export archives. A build that exits non-zero, or
// whose output names no archive, yields a user-facing error rather than a
// crash.
type BuildReferenceResolver struct {
	GoBin string
	Out   io.Writer
	Log   *zap.Logger
}

func (b *BuildReferenceResolver) Resolve(ctx context.Context, target string) ([]*ReferenceArtifact, error) {
	dir := b.moduleDir(target)
	if dir == "" {
		return nil, nil
	}
	goBin := b.GoBin
	if goBin == "" {
		goBin = "go"
	}
	cmd := exec.CommandContext(ctx, goBin, "list", "-export",
		"-f", "{{.ImportPath}} -> {{.Export}}", "./...")
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("building %s failed: %v\n%s", target, err, strings.TrimSpace(string(output)))
	}
	// The last line containing the separator carries the final produced
	// archive; earlier lines are per-package progress.
	archive := ""
	for _, line := range strings.Split(string(output), "\n") {
		if i := strings.LastIndex(line, " -> "); i >= 0 {
			if produced := strings.TrimSpace(line[i+len(" -> "):]); produced != "" {
				archive = produced
			}
		}
	}
	if archive == "" {
		return nil, fmt.Errorf("build output of %s names no produced archive", target)
	}
	if b.Log != nil {
		b.Log.Info("module built for reference", zap.String("target", target), zap.String("archive", archive))
	}
	return []*ReferenceArtifact{
		NewArtifact(archive, ReferenceOnly),
		NewArtifact(dir, Implementation),
	}, nil
}

func (b *BuildReferenceResolver) moduleDir(target string) string {
	if strings.HasSuffix(target, "go.mod") {
		if _, err := os.Stat(target); err == nil {
			return filepath.Dir(target)
		}
		return ""
	}
	if info, err := os.Stat(target); err == nil && info.IsDir() {
		if _, err := os.Stat(filepath.Join(target, "go.mod")); err == nil {
			return target
		}
	}
	return ""
}

// PathReferenceResolver satisfies plain path directives: an absolute path,
// or a path relative to any of the catalog's search directories. When the
// resolved path sits next to a framework manifest, the whole framework is
// pulled in instead of the single artifact.
type PathReferenceResolver struct {
	Catalog *ReferenceCatalog
	Locator *FrameworkLocator
}

func (p *PathReferenceResolver) Resolve(_ context.Context, target string) ([]*ReferenceArtifact, error) {
	if directive.IsModuleRef(target) {
		return nil, nil
	}
	path := p.locate(target)
	if path == "" {
		return nil, nil
	}
	if f := p.frameworkFor(path); f != nil {
		return f.ImplementationArtifacts, nil
	}
	kind := Implementation
	if strings.HasSuffix(path, ".a") || strings.HasSuffix(path, ".txt") {
		kind = ReferenceOnly
	}
	return []*ReferenceArtifact{NewArtifact(path, kind)}, nil
}

func (p *PathReferenceResolver) locate(target string) string {
	if filepath.IsAbs(target) {
		if _, err := os.Stat(target); err == nil {
			return target
		}
		return ""
	}
	for _, dir := range p.Catalog.SearchPaths() {
		candidate := filepath.Join(dir, target)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if _, err := os.Stat(target); err == nil {
		abs, err := filepath.Abs(target)
		if err == nil {
			return abs
		}
	}
	return ""
}

// frameworkFor reads the runtime-config-style manifest adjacent to an
// artifact, when present, and resolves the framework it names.
func (p *PathReferenceResolver) frameworkFor(path string) *SharedFramework {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	data, err := os.ReadFile(base + ".goversion")
	if err != nil {
		data, err = os.ReadFile(filepath.Join(filepath.Dir(path), ".goversion"))
		if err != nil {
			return nil
		}
	}
	fields := strings.Fields(strings.TrimSpace(string(data)))
	name, version := FrameworkStd, ""
	if len(fields) > 0 {
		name = fields[0]
	}
	if len(fields) > 1 {
		version = fields[1]
	}
	f, err := p.Locator.Resolve(name, version)
	if err != nil {
		// A mis-described manifest degrades to the plain artifact.
		return nil
	}
	return f
}

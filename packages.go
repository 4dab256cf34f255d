package gorepl

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
	"golang.org/x/mod/semver"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"gorepl/directive"
)

// ErrPackageNotFound is reported when no version of a requested module can
// be located. It surfaces to the user as text, never as a session crash.
var ErrPackageNotFound = errors.New("package not found")

// ProxyClient is the black-box package-manager collaborator. The resolver
// performs no retries of its own; retry policy belongs to the client.
type ProxyClient interface {
	Latest(ctx context.Context, modulePath string) (string, error)
	GoMod(ctx context.Context, modulePath, version string) ([]byte, error)
	Zip(ctx context.Context, modulePath, version string) ([]byte, error)
}

type proxyClient struct {
	base string
	hc   *http.Client
}

// NewProxyClient talks to a Go module proxy (defaults to the public one).
func NewProxyClient(base string) ProxyClient {
	if base == "" {
		base = "https://proxy.golang.org"
	}
	return &proxyClient{base: strings.TrimRight(base, "/"), hc: &http.Client{}}
}

func (c *proxyClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return nil, fmt.Errorf("%s: %w", url, ErrPackageNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *proxyClient) Latest(ctx context.Context, modulePath string) (string, error) {
	escaped, err := module.EscapePath(modulePath)
	if err != nil {
		return "", fmt.Errorf("malformed module path %q: %w", modulePath, err)
	}
	data, err := c.get(ctx, c.base+"/"+escaped+"/@latest")
	if err != nil {
		return "", err
	}
	var info struct{ Version string }
	if err := json.Unmarshal(data, &info); err != nil {
		return "", fmt.Errorf("decoding @latest for %s: %w", modulePath, err)
	}
	if info.Version == "" {
		return "", fmt.Errorf("%s: %w", modulePath, ErrPackageNotFound)
	}
	return info.Version, nil
}

func (c *proxyClient) GoMod(ctx context.Context, modulePath, version string) ([]byte, error) {
	escaped, err := module.EscapePath(modulePath)
	if err != nil {
		return nil, err
	}
	ev, err := module.EscapeVersion(version)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, c.base+"/"+escaped+"/@v/"+ev+".mod")
}

func (c *proxyClient) Zip(ctx context.Context, modulePath, version string) ([]byte, error) {
	escaped, err := module.EscapePath(modulePath)
	if err != nil {
		return nil, err
	}
	ev, err := module.EscapeVersion(version)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, c.base+"/"+escaped+"/@v/"+ev+".zip")
}

// moduleInfo memoizes one resolved module version so repeated directives do
// not re-download. Keys are path@version, so two installs with different
// explicit versions never share entries.
type moduleInfo struct {
	artifacts []*ReferenceArtifact
	deps      []module.Version
}

// PackageResolver turns a "mod:path[@version]" directive into a set of
// loadable implementation artifacts, resolving the transitive dependency
// closure through the proxy collaborator.
type PackageResolver struct {
	client   ProxyClient
	cacheDir string // extracted module trees, one dir per path@version
	linkDir  string // GOPATH/src tree the interpreter imports from
	out      io.Writer
	log      *zap.Logger

	// resolved is shared between the warm-up task and the foreground
	// path and must stay concurrency-safe.
	resolved sync.Map // path@version -> *moduleInfo
}

func NewPackageResolver(client ProxyClient, cacheDir, linkDir string, out io.Writer, log *zap.Logger) *PackageResolver {
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &PackageResolver{client: client, cacheDir: cacheDir, linkDir: linkDir, out: out, log: log}
}

// IsPackageReference reports whether a #r target is a remote module
// directive, by case-insensitive prefix.
func (r *PackageResolver) IsPackageReference(target string) bool {
	return directive.IsModuleRef(target)
}

// Install fetches the module (latest version when none is given) plus its
// transitive dependency closure and returns every loadable artifact found.
func (r *PackageResolver) Install(ctx context.Context, modulePath, version string) ([]*ReferenceArtifact, error) {
	if version == "" {
		latest, err := r.client.Latest(ctx, modulePath)
		if err != nil {
			return nil, err
		}
		version = latest
	}
	if !semver.IsValid(version) && semver.IsValid("v"+version) {
		version = "v" + version
	}

	seen := &sync.Map{}
	artifacts, installed, err := r.install(ctx, modulePath, version, seen, true)
	if err != nil {
		return nil, err
	}
	r.progress(modulePath, version, len(artifacts), installed-1)
	return artifacts, nil
}

// install resolves one module version and its requirement graph. The seen
// set breaks cycles and avoids redundant downloads within one call;
// first-level requirements fan out one goroutine each, deeper levels walk
// sequentially inside their branch.
func (r *PackageResolver) install(ctx context.Context, modulePath, version string, seen *sync.Map, fanOut bool) ([]*ReferenceArtifact, int, error) {
	key := modulePath + "@" + version
	if _, visited := seen.LoadOrStore(key, true); visited {
		return nil, 0, nil
	}

	info, err := r.resolveOne(ctx, modulePath, version)
	if err != nil {
		return nil, 0, err
	}

	artifacts := append([]*ReferenceArtifact(nil), info.artifacts...)
	installed := 1

	if fanOut && len(info.deps) > 0 {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for _, dep := range info.deps {
			g.Go(func() error {
				arts, n, err := r.install(gctx, dep.Path, dep.Version, seen, false)
				if err != nil {
					return err
				}
				mu.Lock()
				artifacts = append(artifacts, arts...)
				installed += n
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, 0, err
		}
	} else {
		for _, dep := range info.deps {
			arts, n, err := r.install(ctx, dep.Path, dep.Version, seen, false)
			if err != nil {
				return nil, 0, err
			}
			artifacts = append(artifacts, arts...)
			installed += n
		}
	}
	return artifacts, installed, nil
}

func (r *PackageResolver) resolveOne(ctx context.Context, modulePath, version string) (*moduleInfo, error) {
	key := modulePath + "@" + version
	if cached, ok := r.resolved.Load(key); ok {
		return cached.(*moduleInfo), nil
	}

	modData, err := r.client.GoMod(ctx, modulePath, version)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", key, err)
	}
	mf, err := modfile.ParseLax(modulePath+"/go.mod", modData, nil)
	if err != nil {
		return nil, fmt.Errorf("parsing go.mod of %s: %w", key, err)
	}

	zipData, err := r.client.Zip(ctx, modulePath, version)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	root := filepath.Join(r.cacheDir, filepath.FromSlash(modulePath)+"@"+version)
	if err := extractModuleZip(zipData, modulePath, version, root); err != nil {
		return nil, fmt.Errorf("extracting %s: %w", key, err)
	}
	if err := r.linkModule(modulePath, root); err != nil {
		return nil, err
	}

	info := &moduleInfo{artifacts: collectPackageArtifacts(root)}
	for _, req := range mf.Require {
		info.deps = append(info.deps, req.Mod)
	}
	actual, _ := r.resolved.LoadOrStore(key, info)
	return actual.(*moduleInfo), nil
}

// linkModule points the interpreter-visible import tree at the extracted
// version. Re-linking on every install keeps "resolve twice with two
// versions" honest: the link always follows the most recent request.
func (r *PackageResolver) linkModule(modulePath, root string) error {
	link := filepath.Join(r.linkDir, filepath.FromSlash(modulePath))
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return err
	}
	if _, err := os.Lstat(link); err == nil {
		if err := os.Remove(link); err != nil {
			return err
		}
	}
	return os.Symlink(root, link)
}

// extractModuleZip unpacks a module zip (entries are prefixed
// path@version/) under root.
func extractModuleZip(data []byte, modulePath, version, root string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	prefix := modulePath + "@" + version + "/"
	for _, f := range zr.File {
		name, ok := strings.CutPrefix(f.Name, prefix)
		if !ok || name == "" || strings.Contains(name, "..") {
			continue
		}
		dest := filepath.Join(root, filepath.FromSlash(name))
		if f.FileInfo().IsDir() {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		rc, err := f.Open()
		if err != nil {
			return err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return err
		}
		if err := os.WriteFile(dest, content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// collectPackageArtifacts walks an extracted module and returns one
// implementation artifact per package directory that has at least one file
// in its selected library group.
func collectPackageArtifacts(root string) []*ReferenceArtifact {
	var artifacts []*ReferenceArtifact
	dirs := map[string][]string{}
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".go") || strings.HasSuffix(d.Name(), "_test.go") {
			return nil
		}
		dir := filepath.Dir(path)
		dirs[dir] = append(dirs[dir], d.Name())
		return nil
	})
	keys := make([]string, 0, len(dirs))
	for dir := range dirs {
		keys = append(keys, dir)
	}
	sort.Strings(keys)
	for _, dir := range keys {
		if selected := selectLibraryGroup(dirs[dir]); len(selected) > 0 {
			artifacts = append(artifacts, NewArtifact(dir, Implementation))
		}
	}
	return artifacts
}

var knownGOOS = map[string]bool{
	"aix": true, "android": true, "darwin": true, "dragonfly": true,
	"freebsd": true, "illumos": true, "ios": true, "js": true,
	"linux": true, "netbsd": true, "openbsd": true, "plan9": true,
	"solaris": true, "wasip1": true, "windows": true, "unix": true,
}

var knownGOARCH = map[string]bool{
	"386": true, "amd64": true, "arm": true, "arm64": true,
	"loong64": true, "mips": true, "mips64": true, "mips64le": true,
	"mipsle": true, "ppc64": true, "ppc64le": true, "riscv64": true,
	"s390x": true, "wasm": true,
}

// selectLibraryGroup buckets a package's files by target suffix and picks
// the last compatible group in sorted order. Compatibility is not a total
// order here, so the deterministic "last listed match" rule matters: it is
// what makes repeated resolution reproducible.
func selectLibraryGroup(files []string) []string {
	groups := map[string][]string{}
	for _, f := range files {
		groups[targetSuffix(f)] = append(groups[targetSuffix(f)], f)
	}
	var keys []string
	for k := range groups {
		if targetCompatible(k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)
	last := keys[len(keys)-1]
	// The unsuffixed group always participates alongside a targeted one.
	selected := append([]string(nil), groups[last]...)
	if last != "" {
		selected = append(selected, groups[""]...)
	}
	sort.Strings(selected)
	return selected
}

// targetSuffix extracts the GOOS/GOARCH constraint portion of a file name:
// "conn_linux_amd64.go" -> "linux_amd64", "conn.go" -> "".
func targetSuffix(name string) string {
	base := strings.TrimSuffix(name, ".go")
	parts := strings.Split(base, "_")
	if len(parts) >= 3 {
		goos, goarch := parts[len(parts)-2], parts[len(parts)-1]
		if knownGOOS[goos] && knownGOARCH[goarch] {
			return goos + "_" + goarch
		}
	}
	if len(parts) >= 2 {
		last := parts[len(parts)-1]
		if knownGOOS[last] || knownGOARCH[last] {
			return last
		}
	}
	return ""
}

func targetCompatible(suffix string) bool {
	if suffix == "" {
		return true
	}
	for _, seg := range strings.Split(suffix, "_") {
		switch {
		case seg == runtime.GOOS || seg == runtime.GOARCH:
		case seg == "unix" && isUnixGOOS(runtime.GOOS):
		default:
			return false
		}
	}
	return true
}

func isUnixGOOS(goos string) bool {
	switch goos {
	case "aix", "android", "darwin", "dragonfly", "freebsd", "illumos",
		"ios", "linux", "netbsd", "openbsd", "solaris":
		return true
	}
	return false
}

// progress emits one human-readable line summarizing what was added,
// truncated so raw resolver chatter does not flood the terminal.
func (r *PackageResolver) progress(modulePath, version string, packages, deps int) {
	line := fmt.Sprintf("Added %d package(s) from %s@%s", packages, modulePath, version)
	if deps > 0 {
		line += fmt.Sprintf(" (+%d dependencies)", deps)
	}
	fmt.Fprintln(r.out, truncateLine(line, terminalWidth(r.out)))
	r.log.Info("module installed",
		zap.String("module", modulePath),
		zap.String("version", version),
		zap.Int("packages", packages),
		zap.Int("dependencies", deps))
}

func terminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return 80
}

func truncateLine(s string, width int) string {
	if width <= 3 || len(s) <= width {
		return s
	}
	return s[:width-3] + "..."
}

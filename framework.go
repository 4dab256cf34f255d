package gorepl

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
)

// Framework names understood by the catalog. FrameworkCmd is an overlay
// exposing the toolchain's own packages and always implies FrameworkStd.
const (
	FrameworkStd = "std"
	FrameworkCmd = "cmd"
)

// SharedFramework is one Go SDK installation found on disk: a reference
// directory holding shape-only API surface files and an implementation
// directory holding loadable package sources.
type SharedFramework struct {
	Name    string
	Version string
	Root    string

	ReferenceDir      string
	ImplementationDir string

	ReferenceArtifacts      []*ReferenceArtifact
	ImplementationArtifacts []*ReferenceArtifact
}

// Contains reports whether the artifact lives inside this installation.
// Such artifacts are suppressed when converting implementation references
// for the editor model, to avoid duplicate type identities.
func (f *SharedFramework) Contains(a *ReferenceArtifact) bool {
	if a == nil {
		return false
	}
	rel, err := filepath.Rel(f.Root, a.Path)
	return err == nil && !strings.HasPrefix(rel, "..")
}

// FrameworkLocator finds SDK installations. Resolved installations are
// cached for the process lifetime since installation layout does not change
// mid-session.
type FrameworkLocator struct {
	// SystemRoots are global installation directories searched first.
	SystemRoots []string
	// UserSDKDir is the per-user download tree (~/sdk) searched as a
	// fallback, selecting the highest version within the requested
	// major.minor.
	UserSDKDir string

	mu    sync.Mutex
	cache map[string]*SharedFramework
}

func NewFrameworkLocator() *FrameworkLocator {
	roots := []string{}
	if gr := runtime.GOROOT(); gr != "" {
		roots = append(roots, gr)
	}
	if gr := os.Getenv("GOROOT"); gr != "" {
		roots = append(roots, gr)
	}
	roots = append(roots, "/usr/local/go", "/usr/lib/go", "/usr/local/share/go", "/opt/go")

	userSDK := ""
	if home, err := os.UserHomeDir(); err == nil {
		userSDK = filepath.Join(home, "sdk")
	}
	return &FrameworkLocator{
		SystemRoots: roots,
		UserSDKDir:  userSDK,
		cache:       make(map[string]*SharedFramework),
	}
}

// Resolve locates the installation for (name, version). Version may be a
// full version ("1.22.3"), a major.minor ("1.22"), or empty for the running
// toolchain's version. Failure is unrecoverable for the session: there is
// nothing to compile against.
func (l *FrameworkLocator) Resolve(name, version string) (*SharedFramework, error) {
	if name != FrameworkStd && name != FrameworkCmd {
		return nil, fmt.Errorf("unknown shared framework %q", name)
	}
	if version == "" {
		version = strings.TrimPrefix(runtime.Version(), "go")
	}
	key := name + "@" + majorMinor(version)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cache == nil {
		l.cache = make(map[string]*SharedFramework)
	}
	if f, ok := l.cache[key]; ok {
		return f, nil
	}

	root, installed, err := l.locateRoot(version)
	if err != nil {
		return nil, err
	}
	f, err := buildFramework(name, installed, root)
	if err != nil {
		return nil, err
	}
	l.cache[key] = f
	return f, nil
}

func (l *FrameworkLocator) locateRoot(version string) (root, installed string, err error) {
	want := majorMinor(version)
	for _, r := range l.SystemRoots {
		v, ok := readSDKVersion(r)
		if ok && majorMinor(v) == want {
			return r, v, nil
		}
	}
	// Per-user download tree: highest installed version within the same
	// major.minor. Versions sort lexicographically with an appended
	// sentinel so a stable release ranks above a prerelease tag of the
	// same numeric version.
	if l.UserSDKDir != "" {
		entries, err := os.ReadDir(l.UserSDKDir)
		if err == nil {
			var best, bestVersion string
			for _, e := range entries {
				if !e.IsDir() || !strings.HasPrefix(e.Name(), "go") {
					continue
				}
				candidate := filepath.Join(l.UserSDKDir, e.Name())
				v, ok := readSDKVersion(candidate)
				if !ok {
					v = strings.TrimPrefix(e.Name(), "go")
				}
				if majorMinor(v) != want {
					continue
				}
				if best == "" || versionSortKey(v) > versionSortKey(bestVersion) {
					best, bestVersion = candidate, v
				}
			}
			if best != "" {
				return best, bestVersion, nil
			}
		}
	}
	return "", "", fmt.Errorf("no Go SDK installation found for version %s: searched %s and %s",
		version, strings.Join(l.SystemRoots, ", "), l.UserSDKDir)
}

func buildFramework(name, version, root string) (*SharedFramework, error) {
	srcDir := filepath.Join(root, "src")
	if name == FrameworkCmd {
		srcDir = filepath.Join(root, "src", "cmd")
	}
	if _, err := os.Stat(srcDir); err != nil {
		return nil, fmt.Errorf("SDK installation at %s has no %s sources: %w", root, name, err)
	}

	f := &SharedFramework{
		Name:              name,
		Version:           version,
		Root:              root,
		ReferenceDir:      filepath.Join(root, "api"),
		ImplementationDir: srcDir,
	}

	if entries, err := os.ReadDir(f.ReferenceDir); err == nil {
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
				continue
			}
			f.ReferenceArtifacts = append(f.ReferenceArtifacts,
				NewArtifact(filepath.Join(f.ReferenceDir, e.Name()), ReferenceOnly))
		}
	}

	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("enumerating %s packages: %w", name, err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		switch e.Name() {
		case "cmd", "internal", "vendor", "testdata":
			if name == FrameworkStd {
				continue
			}
		}
		f.ImplementationArtifacts = append(f.ImplementationArtifacts,
			NewArtifact(filepath.Join(srcDir, e.Name()), Implementation))
	}
	sort.Slice(f.ImplementationArtifacts, func(i, j int) bool {
		return f.ImplementationArtifacts[i].Display < f.ImplementationArtifacts[j].Display
	})
	return f, nil
}

// readSDKVersion parses the VERSION file at an installation root. Returns
// the bare version ("1.22.3") and whether the root looks like an SDK.
func readSDKVersion(root string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(root, "VERSION"))
	if err != nil {
		return "", false
	}
	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	if !strings.HasPrefix(line, "go") {
		return "", false
	}
	return strings.TrimPrefix(line, "go"), true
}

// majorMinor reduces a version to its first two numeric components,
// stopping at the first non-numeric, non-dot character ("1.22rc1" -> "1.22").
func majorMinor(v string) string {
	end := len(v)
	for i, r := range v {
		if (r < '0' || r > '9') && r != '.' {
			end = i
			break
		}
	}
	parts := strings.Split(v[:end], ".")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, ".")
}

// versionSortKey appends a sentinel that sorts after any prerelease suffix
// character, so "1.22~" ranks above "1.22rc1~" while plain lexicographic
// comparison alone would rank them the other way.
func versionSortKey(v string) string {
	return v + "~"
}

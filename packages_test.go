package gorepl

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProxy serves modules from in-memory maps, keyed path@version.
type fakeProxy struct {
	latest map[string]string
	mods   map[string]string
	zips   map[string][]byte

	latestCalls int
	zipCalls    map[string]int
}

func newFakeProxy() *fakeProxy {
	return &fakeProxy{
		latest:   map[string]string{},
		mods:     map[string]string{},
		zips:     map[string][]byte{},
		zipCalls: map[string]int{},
	}
}

// addModule registers one module version; files maps relative paths to
// contents.
func (p *fakeProxy) addModule(t *testing.T, path, version, gomod string, files map[string]string) {
	t.Helper()
	key := path + "@" + version
	p.latest[path] = version
	p.mods[key] = gomod

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(key + "/" + name)
		if err != nil {
			t.Fatalf("creating zip entry: %v", err)
		}
		if _, err := io.WriteString(w, content); err != nil {
			t.Fatalf("writing zip entry: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("closing zip: %v", err)
	}
	p.zips[key] = buf.Bytes()
}

func (p *fakeProxy) Latest(_ context.Context, modulePath string) (string, error) {
	p.latestCalls++
	v, ok := p.latest[modulePath]
	if !ok {
		return "", fmt.Errorf("%s: %w", modulePath, ErrPackageNotFound)
	}
	return v, nil
}

func (p *fakeProxy) GoMod(_ context.Context, modulePath, version string) ([]byte, error) {
	data, ok := p.mods[modulePath+"@"+version]
	if !ok {
		return nil, fmt.Errorf("%s@%s: %w", modulePath, version, ErrPackageNotFound)
	}
	return []byte(data), nil
}

func (p *fakeProxy) Zip(_ context.Context, modulePath, version string) ([]byte, error) {
	key := modulePath + "@" + version
	data, ok := p.zips[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrPackageNotFound)
	}
	p.zipCalls[key]++
	return data, nil
}

func newTestResolver(t *testing.T, proxy ProxyClient) *PackageResolver {
	t.Helper()
	base := t.TempDir()
	return NewPackageResolver(proxy, filepath.Join(base, "cache"), filepath.Join(base, "src"), io.Discard, nil)
}

func TestInstallLatestVersion(t *testing.T) {
	proxy := newFakeProxy()
	proxy.addModule(t, "example.com/colors", "v1.2.0", "module example.com/colors\n", map[string]string{
		"colors.go": "package colors\n",
	})
	r := newTestResolver(t, proxy)

	artifacts, err := r.Install(context.Background(), "example.com/colors", "")
	require.NoError(t, err)
	require.Equal(t, 1, proxy.latestCalls)
	require.Len(t, artifacts, 1)
	require.Equal(t, Implementation, artifacts[0].Kind)
	require.Contains(t, artifacts[0].Path, "colors@v1.2.0")
}

func TestInstallNormalizesBareVersion(t *testing.T) {
	proxy := newFakeProxy()
	proxy.addModule(t, "example.com/colors", "v1.2.0", "module example.com/colors\n", map[string]string{
		"colors.go": "package colors\n",
	})
	r := newTestResolver(t, proxy)

	if _, err := r.Install(context.Background(), "example.com/colors", "1.2.0"); err != nil {
		t.Fatalf("Install with bare version failed: %v", err)
	}
	if proxy.latestCalls != 0 {
		t.Errorf("explicit version should not query @latest")
	}
}

func TestInstallTransitiveDependencies(t *testing.T) {
	proxy := newFakeProxy()
	proxy.addModule(t, "example.com/app", "v1.0.0",
		"module example.com/app\n\nrequire (\n\texample.com/lib v1.1.0\n\texample.com/util v2.0.0+incompatible\n)\n",
		map[string]string{"app.go": "package app\n"})
	proxy.addModule(t, "example.com/lib", "v1.1.0",
		"module example.com/lib\n\nrequire example.com/util v2.0.0+incompatible\n",
		map[string]string{"lib.go": "package lib\n"})
	proxy.addModule(t, "example.com/util", "v2.0.0+incompatible",
		"module example.com/util\n",
		map[string]string{"util.go": "package util\n"})
	r := newTestResolver(t, proxy)

	artifacts, err := r.Install(context.Background(), "example.com/app", "v1.0.0")
	require.NoError(t, err)
	require.Len(t, artifacts, 3, "app, lib and util should each contribute")
	// util is required twice but the seen set must download it once.
	require.Equal(t, 1, proxy.zipCalls["example.com/util@v2.0.0+incompatible"])
}

func TestInstallSeparateVersionsStaySeparate(t *testing.T) {
	proxy := newFakeProxy()
	proxy.addModule(t, "example.com/colors", "v1.0.0", "module example.com/colors\n", map[string]string{
		"colors.go": "package colors\nconst V = 1\n",
	})
	r := newTestResolver(t, proxy)

	first, err := r.Install(context.Background(), "example.com/colors", "v1.0.0")
	if err != nil {
		t.Fatalf("first Install failed: %v", err)
	}
	proxy.addModule(t, "example.com/colors", "v2.0.0", "module example.com/colors\n", map[string]string{
		"colors.go": "package colors\nconst V = 2\n",
	})
	second, err := r.Install(context.Background(), "example.com/colors", "v2.0.0")
	if err != nil {
		t.Fatalf("second Install failed: %v", err)
	}

	if first[0].Path == second[0].Path {
		t.Fatalf("both versions resolved to %q", first[0].Path)
	}
	for _, a := range first {
		if _, err := os.Stat(a.Path); err != nil {
			t.Errorf("first version's tree disappeared: %v", err)
		}
	}
}

func TestInstallMemoizesResolvedVersions(t *testing.T) {
	proxy := newFakeProxy()
	proxy.addModule(t, "example.com/colors", "v1.0.0", "module example.com/colors\n", map[string]string{
		"colors.go": "package colors\n",
	})
	r := newTestResolver(t, proxy)

	for i := 0; i < 3; i++ {
		if _, err := r.Install(context.Background(), "example.com/colors", "v1.0.0"); err != nil {
			t.Fatalf("Install %d failed: %v", i, err)
		}
	}
	if n := proxy.zipCalls["example.com/colors@v1.0.0"]; n != 1 {
		t.Errorf("zip fetched %d times, want 1", n)
	}
}

func TestInstallUnknownModule(t *testing.T) {
	r := newTestResolver(t, newFakeProxy())
	_, err := r.Install(context.Background(), "example.com/nope", "")
	if !errors.Is(err, ErrPackageNotFound) {
		t.Fatalf("err = %v, want ErrPackageNotFound", err)
	}
}

func TestCollectPackageArtifactsSkipsHiddenAndTestdata(t *testing.T) {
	proxy := newFakeProxy()
	proxy.addModule(t, "example.com/colors", "v1.0.0", "module example.com/colors\n", map[string]string{
		"colors.go":            "package colors\n",
		"colors_test.go":       "package colors\n",
		"internal/hsl/hsl.go":  "package hsl\n",
		"testdata/fixture.go":  "package fixture\n",
		"_tools/gen.go":        "package main\n",
		".hidden/secret.go":    "package secret\n",
		"docs/readme.md":       "not go\n",
		"cmd/colorize/main.go": "package main\n",
	})
	r := newTestResolver(t, proxy)

	artifacts, err := r.Install(context.Background(), "example.com/colors", "v1.0.0")
	if err != nil {
		t.Fatalf("Install failed: %v", err)
	}
	var rels []string
	for _, a := range artifacts {
		i := strings.Index(a.Path, "colors@v1.0.0")
		rels = append(rels, filepath.ToSlash(a.Path[i:]))
	}
	want := []string{
		"colors@v1.0.0",
		"colors@v1.0.0/cmd/colorize",
		"colors@v1.0.0/internal/hsl",
	}
	if len(rels) != len(want) {
		t.Fatalf("got dirs %v, want %v", rels, want)
	}
	for i := range want {
		if rels[i] != want[i] {
			t.Errorf("dir[%d] = %q, want %q", i, rels[i], want[i])
		}
	}
}

func TestTargetSuffix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"conn.go", ""},
		{"conn_linux.go", "linux"},
		{"conn_linux_amd64.go", "linux_amd64"},
		{"conn_amd64.go", "amd64"},
		{"conn_unix.go", "unix"},
		{"big_endian.go", ""},
		{"file_windows_arm64.go", "windows_arm64"},
		{"util_string.go", ""},
		{"x_linux_string.go", ""},
	}
	for _, tt := range tests {
		if got := targetSuffix(tt.name); got != tt.want {
			t.Errorf("targetSuffix(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSelectLibraryGroup(t *testing.T) {
	got := selectLibraryGroup([]string{"conn.go", "conn_plan9.go"})
	want := []string{"conn.go"}
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("incompatible group must be ignored: got %v, want %v", got, want)
	}

	if got := selectLibraryGroup(nil); got != nil {
		t.Errorf("empty input should select nothing, got %v", got)
	}

	// Unsuffixed files ride along with whichever targeted group wins.
	got = selectLibraryGroup([]string{"common.go", "fast_" + runtime.GOOS + ".go"})
	if len(got) != 2 {
		t.Errorf("unsuffixed group should join the targeted one, got %v", got)
	}
}

func TestTruncateLine(t *testing.T) {
	tests := []struct {
		in    string
		width int
		want  string
	}{
		{"short", 80, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"this line is far too long", 10, "this li..."},
		{"never truncate tiny widths", 3, "never truncate tiny widths"},
	}
	for _, tt := range tests {
		if got := truncateLine(tt.in, tt.width); got != tt.want {
			t.Errorf("truncateLine(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
		}
	}
}

func TestExtractModuleZipRejectsTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("m@v1.0.0/../escape.go")
	io.WriteString(w, "package escape\n")
	zw.Close()

	root := filepath.Join(t.TempDir(), "out")
	if err := extractModuleZip(buf.Bytes(), "m", "v1.0.0", root); err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.go")); err == nil {
		t.Fatal("traversal entry escaped the extraction root")
	}
}

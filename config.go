package gorepl

import (
	"os"
	"path/filepath"
)

// Config carries everything the facade needs to come up. Zero values get
// sensible defaults in New.
type Config struct {
	// Framework names the shared framework to compile against; empty
	// means the base framework at the running toolchain's version.
	Framework        string
	FrameworkVersion string
	// Theme selects a builtin theme by name; ThemeFile overrides it.
	Theme     string
	ThemeFile string
	// DataDir holds the package cache, symbol cache, history database
	// and log file. Defaults to ~/.gorepl.
	DataDir string
	// Args is exposed to evaluated code.
	Args []string
	// ProxyURL overrides the module proxy endpoint.
	ProxyURL string
	// Debug enables file logging.
	Debug bool
}

// DefaultDataDir is ~/.gorepl, with the current directory as a last
// resort.
func DefaultDataDir() string {
	if dir := os.Getenv("GOREPL_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gorepl"
	}
	return filepath.Join(home, ".gorepl")
}

// Fixed relative names inside the data directory. The package and symbol
// caches persist across sessions; everything else is per-process.
const (
	packageCacheDirName = "packages"
	symbolCacheDirName  = "symbols"
	gopathDirName       = "gopath"
	historyFileName     = "history.sqlite"
	logFileName         = "gorepl.log"
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.DataDir == "" {
		out.DataDir = DefaultDataDir()
	}
	if out.Framework == "" {
		out.Framework = FrameworkStd
	}
	if out.Theme == "" {
		out.Theme = "default"
	}
	return out
}

func (c *Config) packageCacheDir() string { return filepath.Join(c.DataDir, packageCacheDirName) }
func (c *Config) symbolCacheDir() string  { return filepath.Join(c.DataDir, symbolCacheDirName) }
func (c *Config) gopathDir() string       { return filepath.Join(c.DataDir, gopathDirName) }
func (c *Config) historyPath() string     { return filepath.Join(c.DataDir, historyFileName) }

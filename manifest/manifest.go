// Package manifest handles classvm.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/classvm/vm"
)

// FileName is the name of the manifest file.
const FileName = "classvm.toml"

// Manifest represents a classvm.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	VM           VMConfig              `toml:"vm"`
	Classpath    Classpath             `toml:"classpath"`
	Log          LogConfig             `toml:"log"`
	Run          RunConfig             `toml:"run"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the classvm.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// VMConfig sizes the VMs created for the project.
type VMConfig struct {
	HeapBudget  int64   `toml:"heap-budget"`
	MaxFrames   int     `toml:"max-frames"`
	GCThreshold float64 `toml:"gc-threshold"`
}

// Classpath lists where classes are loaded from, searched in the order
// dirs, zips, store.
type Classpath struct {
	Dirs  []string `toml:"dirs"`
	Zips  []string `toml:"zips"`
	Store string   `toml:"store"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// RunConfig names the default entry point, e.g. "app/Main.main()V".
type RunConfig struct {
	Entry string `toml:"entry"`
}

// Dependency is another project whose classpath is appended to this one.
type Dependency struct {
	Path string `toml:"path"`
}

// Default returns the manifest used when no classvm.toml exists.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

// Load parses a classvm.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return Parse(dir, data)
}

// Parse parses manifest text as if it were read from dir.
func Parse(dir string, data []byte) (*Manifest, error) {
	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", filepath.Join(dir, FileName), err)
	}

	var err error
	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults()
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, FileName), err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	defaults := vm.DefaultConfig()
	if m.VM.HeapBudget == 0 {
		m.VM.HeapBudget = defaults.HeapBudget
	}
	if m.VM.MaxFrames == 0 {
		m.VM.MaxFrames = defaults.MaxFrames
	}
	if len(m.Classpath.Dirs) == 0 && len(m.Classpath.Zips) == 0 && m.Classpath.Store == "" {
		m.Classpath.Dirs = []string{"classes"}
	}
}

// Validate checks value ranges.
func (m *Manifest) Validate() error {
	switch {
	case m.VM.MaxFrames < 0:
		return fmt.Errorf("vm.max-frames must not be negative")
	case m.VM.GCThreshold < 0 || m.VM.GCThreshold >= 1:
		return fmt.Errorf("vm.gc-threshold must be in [0, 1)")
	case m.Log.Verbosity < -4 || m.Log.Verbosity > 2:
		return fmt.Errorf("log.verbosity must be between -4 and 2")
	}
	if m.Run.Entry != "" {
		if _, err := ParseEntry(m.Run.Entry); err != nil {
			return fmt.Errorf("run.entry: %w", err)
		}
	}
	return nil
}

// FindAndLoad walks up from startDir to find a classvm.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// VMConfig converts the [vm] section into a vm.Config.
func (m *Manifest) VMConfig() vm.Config {
	return vm.Config{
		HeapBudget:  m.VM.HeapBudget,
		MaxFrames:   m.VM.MaxFrames,
		GCThreshold: m.VM.GCThreshold,
	}
}

// path makes p absolute relative to the manifest directory.
func (m *Manifest) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// DirPaths returns absolute paths for the configured class directories.
func (m *Manifest) DirPaths() []string {
	var paths []string
	for _, d := range m.Classpath.Dirs {
		paths = append(paths, m.path(d))
	}
	return paths
}

// ZipPaths returns absolute paths for the configured class archives.
func (m *Manifest) ZipPaths() []string {
	var paths []string
	for _, z := range m.Classpath.Zips {
		paths = append(paths, m.path(z))
	}
	return paths
}

// StorePath returns the absolute path of the class store, or "".
func (m *Manifest) StorePath() string {
	if m.Classpath.Store == "" {
		return ""
	}
	return m.path(m.Classpath.Store)
}

// LogFile returns the absolute path of the log file, or "" for stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.path(m.Log.File)
}

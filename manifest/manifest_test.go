package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"

[vm]
heap-budget = 1048576
max-frames = 2048
gc-threshold = 0.5

[classpath]
dirs = ["classes", "lib"]
zips = ["vendor/rt.zip"]
store = "classes.db"

[log]
verbosity = 1
file = "cvm.log"

[run]
entry = "app/Main.main(I)I"

[dependencies]
helper = { path = "../helper" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Classpath.Dirs) != 2 {
		t.Errorf("classpath dirs count = %d, want 2", len(m.Classpath.Dirs))
	}
	if m.Run.Entry != "app/Main.main(I)I" {
		t.Errorf("run entry = %q", m.Run.Entry)
	}
	if dep, ok := m.Dependencies["helper"]; !ok || dep.Path != "../helper" {
		t.Errorf("helper dep = %v, want path ../helper", m.Dependencies["helper"])
	}
	if got := m.StorePath(); got != filepath.Join(m.Dir, "classes.db") {
		t.Errorf("store path = %q", got)
	}
	if got := m.LogFile(); got != filepath.Join(m.Dir, "cvm.log") {
		t.Errorf("log file = %q", got)
	}

	cfg := m.VMConfig()
	if cfg.HeapBudget != 1<<20 || cfg.MaxFrames != 2048 || cfg.GCThreshold != 0.5 {
		t.Errorf("vm config = %+v", cfg)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Classpath.Dirs) != 1 || m.Classpath.Dirs[0] != "classes" {
		t.Errorf("default classpath dirs = %v, want [classes]", m.Classpath.Dirs)
	}
	if m.VM.MaxFrames != 1<<16 || m.VM.HeapBudget != 64<<20 {
		t.Errorf("default vm section = %+v", m.VM)
	}
}

func TestLoadManifestErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"syntax", "[vm\nheap-budget = 1"},
		{"threshold", "[vm]\ngc-threshold = 1.5"},
		{"frames", "[vm]\nmax-frames = -1"},
		{"verbosity", "[log]\nverbosity = 9"},
		{"entry", "[run]\nentry = \"Main\""},
		{"reserved entry", "[run]\nentry = \"java/lang/Object.<init>()V\""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tc.content)
			if _, err := Load(dir); err == nil {
				t.Errorf("Load(%q) succeeded, want error", tc.content)
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, `[project]
name = "found-project"
`)

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no classvm.toml exists")
	}
}

func TestDirPaths(t *testing.T) {
	m := &Manifest{
		Dir: "/app",
		Classpath: Classpath{
			Dirs: []string{"classes", "/abs/lib"},
			Zips: []string{"rt.zip"},
		},
	}

	paths := m.DirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/classes" {
		t.Errorf("paths[0] = %q, want /app/classes", paths[0])
	}
	if paths[1] != "/abs/lib" {
		t.Errorf("paths[1] = %q, want /abs/lib", paths[1])
	}
	if zips := m.ZipPaths(); len(zips) != 1 || zips[0] != "/app/rt.zip" {
		t.Errorf("zip paths = %v", zips)
	}
	if m.StorePath() != "" {
		t.Errorf("store path = %q, want empty", m.StorePath())
	}
}

package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveLocalPathDep(t *testing.T) {
	root := t.TempDir()

	// Create a local dependency with its own manifest and dependency
	libDir := filepath.Join(root, "lib")
	baseDir := filepath.Join(root, "base")
	for _, d := range []string{libDir, baseDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeManifest(t, libDir, `
[classpath]
dirs = ["out"]

[dependencies]
base = { path = "../base" }
`)

	appDir := filepath.Join(root, "app")
	if err := os.MkdirAll(appDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, appDir, `
[classpath]
zips = ["app.zip"]

[dependencies]
lib = { path = "../lib" }
`)

	m, err := Load(appDir)
	if err != nil {
		t.Fatal(err)
	}

	r := NewResolver(m)
	deps, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("expected 2 deps, got %d", len(deps))
	}
	// dependencies come before their dependents
	if deps[0].Name != "base" || deps[1].Name != "lib" {
		t.Errorf("order = %s, %s; want base, lib", deps[0].Name, deps[1].Name)
	}

	cp, err := r.FullClasspath()
	if err != nil {
		t.Fatal(err)
	}
	wantDirs := []string{filepath.Join(baseDir, "."), filepath.Join(libDir, "out")}
	if len(cp.Dirs) != 2 || cp.Dirs[0] != wantDirs[0] || cp.Dirs[1] != wantDirs[1] {
		t.Errorf("dirs = %v, want %v", cp.Dirs, wantDirs)
	}
	if len(cp.Zips) != 1 || cp.Zips[0] != filepath.Join(appDir, "app.zip") {
		t.Errorf("zips = %v", cp.Zips)
	}
}

func TestResolveCycle(t *testing.T) {
	root := t.TempDir()
	a, b := filepath.Join(root, "a"), filepath.Join(root, "b")
	for _, d := range []string{a, b} {
		if err := os.MkdirAll(d, 0755); err != nil {
			t.Fatal(err)
		}
	}
	writeManifest(t, a, "[dependencies]\nb = { path = \"../b\" }\n")
	writeManifest(t, b, "[dependencies]\na = { path = \"../a\" }\n")

	m, err := Load(a)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewResolver(m).Resolve()
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Errorf("Resolve error = %v, want cycle", err)
	}
}

func TestResolveMissingDep(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, "[dependencies]\nnope = { path = \"../does-not-exist\" }\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Error("expected error for missing dependency")
	}
}

func TestResolveDepWithoutPath(t *testing.T) {
	m := &Manifest{Dir: t.TempDir(), Dependencies: map[string]Dependency{"x": {}}}
	if _, err := NewResolver(m).Resolve(); err == nil {
		t.Error("expected error for dependency without path")
	}
}

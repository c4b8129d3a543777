package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ResolvedDep represents a dependency that has been resolved to a local path.
type ResolvedDep struct {
	Name      string    // dependency name
	LocalPath string    // local filesystem path
	Manifest  *Manifest // the dependency's own manifest (may be nil)
}

// Resolver walks path dependencies.
type Resolver struct {
	manifest *Manifest
}

// NewResolver creates a new dependency resolver.
func NewResolver(m *Manifest) *Resolver {
	return &Resolver{manifest: m}
}

// Resolve resolves all dependencies and returns them in load order
// (topologically sorted: dependencies before dependents).
func (r *Resolver) Resolve() ([]ResolvedDep, error) {
	var order []ResolvedDep
	state := make(map[string]int) // 1 visiting, 2 done
	if err := r.visit(r.manifest, state, &order); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *Resolver) visit(m *Manifest, state map[string]int, order *[]ResolvedDep) error {
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		dep, err := resolveOne(m, name, m.Dependencies[name])
		if err != nil {
			return err
		}
		switch state[dep.LocalPath] {
		case 1:
			return fmt.Errorf("dependency cycle through %q (%s)", name, dep.LocalPath)
		case 2:
			continue
		}
		state[dep.LocalPath] = 1
		if dep.Manifest != nil {
			if err := r.visit(dep.Manifest, state, order); err != nil {
				return err
			}
		}
		state[dep.LocalPath] = 2
		*order = append(*order, *dep)
	}
	return nil
}

// resolveOne resolves a single dependency of m.
func resolveOne(m *Manifest, name string, dep Dependency) (*ResolvedDep, error) {
	if dep.Path == "" {
		return nil, fmt.Errorf("dependency %q has no path specified", name)
	}
	localPath, err := filepath.Abs(m.path(dep.Path))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", dep.Path, err)
	}
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("local dependency %q not found at %s: %w", name, localPath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local dependency %q at %s is not a directory", name, localPath)
	}

	var depManifest *Manifest
	if _, err := os.Stat(filepath.Join(localPath, FileName)); err == nil {
		if depManifest, err = Load(localPath); err != nil {
			return nil, fmt.Errorf("dependency %q: %w", name, err)
		}
	} else {
		// a bare directory of class files
		depManifest = Default(localPath)
		depManifest.Classpath.Dirs = []string{"."}
	}
	return &ResolvedDep{Name: name, LocalPath: localPath, Manifest: depManifest}, nil
}

// FullClasspath returns the project's classpath followed by those of its
// dependencies in load order. Paths are absolute.
func (r *Resolver) FullClasspath() (Classpath, error) {
	deps, err := r.Resolve()
	if err != nil {
		return Classpath{}, err
	}
	cp := Classpath{
		Dirs:  r.manifest.DirPaths(),
		Zips:  r.manifest.ZipPaths(),
		Store: r.manifest.StorePath(),
	}
	for _, d := range deps {
		cp.Dirs = append(cp.Dirs, d.Manifest.DirPaths()...)
		cp.Zips = append(cp.Zips, d.Manifest.ZipPaths()...)
		if cp.Store == "" {
			cp.Store = d.Manifest.StorePath()
		}
	}
	return cp, nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/chazu/classvm/manifest"
)

// project is the manifest in effect plus its opened classpath.
type project struct {
	manifest  *manifest.Manifest
	classpath *manifest.OpenedClasspath
}

// openProject finds the nearest classvm.toml (or uses defaults for the
// working directory) and opens its classpath. A -cp flag replaces the
// manifest classpath, dependencies included.
func openProject(ctx *cli.Context) (*project, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	m, err := manifest.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = manifest.Default(wd)
	}

	var cp manifest.Classpath
	if entries := ctx.StringSlice(classpathFlag.Name); len(entries) > 0 {
		cp, err = classpathOf(entries)
	} else {
		cp, err = manifest.NewResolver(m).FullClasspath()
	}
	if err != nil {
		return nil, err
	}

	opened, err := cp.Open()
	if err != nil {
		return nil, err
	}
	return &project{manifest: m, classpath: opened}, nil
}

func (p *project) Close() error {
	return p.classpath.Close()
}

// classpathOf sorts -cp entries by kind: .zip and .jar are archives, .db
// is a class store, anything else a directory.
func classpathOf(entries []string) (manifest.Classpath, error) {
	var cp manifest.Classpath
	for _, e := range entries {
		for _, part := range filepath.SplitList(e) {
			abs, err := filepath.Abs(part)
			if err != nil {
				return cp, err
			}
			switch strings.ToLower(filepath.Ext(abs)) {
			case ".zip", ".jar":
				cp.Zips = append(cp.Zips, abs)
			case ".db":
				if cp.Store != "" {
					return cp, fmt.Errorf("only one class store allowed, got %s and %s", cp.Store, abs)
				}
				cp.Store = abs
			default:
				cp.Dirs = append(cp.Dirs, abs)
			}
		}
	}
	return cp, nil
}

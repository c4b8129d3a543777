package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/urfave/cli.v1"

	"github.com/chazu/classvm/fixtures"
	"github.com/chazu/classvm/store"
	"github.com/chazu/classvm/vm"
)

var fixturesCommand = cli.Command{
	Name:     "fixtures",
	Usage:    "Write the built-in conformance corpus",
	Category: "CORPUS COMMANDS",
	Subcommands: []cli.Command{
		{
			Action:    emitFixtures,
			Name:      "emit",
			Usage:     "Write the corpus as class files under a directory, or into a .zip archive",
			ArgsUsage: "<dir|file.zip>",
		},
		{
			Action:    storeFixtures,
			Name:      "store",
			Usage:     "Write the corpus into a SQLite class store",
			ArgsUsage: "<file.db>",
		},
		{
			Action: listFixtures,
			Name:   "list",
			Usage:  "List the corpus classes and checks",
		},
	},
}

func emitFixtures(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected an output directory or .zip file")
	}
	classes, err := fixtures.Encoded()
	if err != nil {
		return err
	}
	out := ctx.Args().First()

	if strings.EqualFold(filepath.Ext(out), ".zip") {
		f, err := os.Create(out)
		if err != nil {
			return err
		}
		if err := vm.WriteZip(f, classes); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Printf("wrote %d classes to %s\n", len(classes), out)
		return nil
	}

	for name, data := range classes {
		path := filepath.Join(out, filepath.FromSlash(name)+".class")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
	}
	fmt.Printf("wrote %d classes under %s\n", len(classes), out)
	return nil
}

func storeFixtures(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("expected a store path")
	}
	classes, err := fixtures.Encoded()
	if err != nil {
		return err
	}
	s, err := store.Open(ctx.Args().First())
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.PutAll(context.Background(), classes); err != nil {
		return err
	}
	fmt.Printf("stored %d classes in %s\n", len(classes), s.Path())
	return nil
}

func listFixtures(ctx *cli.Context) error {
	for _, f := range fixtures.All() {
		var names []string
		for _, build := range f.Classes {
			names = append(names, build().Name())
		}
		sort.Strings(names)
		fmt.Printf("%s  %s\n", bold(f.Name), strings.Join(names, " "))
		for _, c := range f.Checks {
			fmt.Printf("    %s\n", c.Name)
		}
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/urfave/cli.v1"

	"github.com/chazu/classvm/vm"
)

var verifyCommand = cli.Command{
	Action:    verifyFiles,
	Name:      "verify",
	Usage:     "Load, link and verify class files",
	ArgsUsage: "<file.class>...",
	Flags:     []cli.Flag{classpathFlag},
	Description: `
The verify command decodes each file, then loads it together with the other
files given and the classpath, so classes may refer to each other. Every
problem found is reported, not just the first.`,
}

func verifyFiles(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("no class files given")
	}

	var errs *multierror.Error
	given := vm.MapSource{}
	for _, path := range ctx.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		cf, err := vm.ReadClassFile(data)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		name, err := cf.Name()
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		given[name] = data
	}

	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	loader := vm.NewLoader(given, p.classpath.Sources())
	names := make([]string, 0, len(given))
	for name := range given {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := loader.Resolve(name); err != nil {
			fmt.Printf("%s %s\n", red("FAIL"), name)
			errs = multierror.Append(errs, err)
			continue
		}
		fmt.Printf("%s   %s\n", green("ok"), name)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return cli.NewExitError(red(err.Error()), 1)
	}
	return nil
}

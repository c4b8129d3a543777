// cvm - command line front end for the class VM
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"gopkg.in/urfave/cli.v1"

	"github.com/chazu/classvm/manifest"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

var (
	verbosityFlag = cli.IntFlag{
		Name:  "verbosity, v",
		Usage: "log verbosity (-4 silent .. 2 debug); overrides classvm.toml",
	}
	logFileFlag = cli.StringFlag{
		Name:  "log",
		Usage: "write log output to `FILE` instead of stderr",
	}
	noColorFlag = cli.BoolFlag{
		Name:   "no-color",
		Usage:  "disable colored output",
		EnvVar: "NO_COLOR",
	}
	classpathFlag = cli.StringSliceFlag{
		Name:  "classpath, cp",
		Usage: "class directory, .zip archive or .db store (repeatable); replaces the manifest classpath",
	}
)

var app = cli.NewApp()

func init() {
	app.Name = "cvm"
	app.Usage = "load, verify and run class files"
	app.HideVersion = true
	app.Commands = []cli.Command{
		runCommand,
		verifyCommand,
		disCommand,
		fixturesCommand,
		selftestCommand,
	}
	sort.Sort(cli.CommandsByName(app.Commands))

	app.Flags = []cli.Flag{verbosityFlag, logFileFlag, noColorFlag}
	app.Before = setupLogging
}

// setupLogging configures commonlog from the flags, falling back to the
// [log] section of the nearest classvm.toml.
func setupLogging(ctx *cli.Context) error {
	if ctx.GlobalBool(noColorFlag.Name) {
		color.NoColor = true
	}

	verbosity, path := 0, ""
	if m, err := manifest.FindAndLoad("."); err == nil && m != nil {
		verbosity, path = m.Log.Verbosity, m.LogFile()
	}
	if ctx.GlobalIsSet("verbosity") {
		verbosity = ctx.GlobalInt("verbosity")
	}
	if f := ctx.GlobalString(logFileFlag.Name); f != "" {
		path = f
	}

	if path == "" {
		commonlog.Configure(verbosity, nil)
	} else {
		commonlog.Configure(verbosity, &path)
	}
	return nil
}

func fatal(msg any) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", red(s))
	os.Exit(1)
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

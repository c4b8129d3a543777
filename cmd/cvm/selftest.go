package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/chazu/classvm/fixtures"
	"github.com/chazu/classvm/vm"
)

var (
	jobsFlag = cli.IntFlag{
		Name:  "jobs, j",
		Usage: "number of VMs to run at once",
		Value: runtime.NumCPU(),
	}
	filterFlag = cli.StringFlag{
		Name:  "run",
		Usage: "only run checks whose fixture/name contains `TEXT`",
	}

	selftestCommand = cli.Command{
		Action:   selftest,
		Name:     "selftest",
		Usage:    "Run the built-in conformance corpus",
		Category: "CORPUS COMMANDS",
		Flags:    []cli.Flag{jobsFlag, filterFlag, statsFlag},
		Description: `
Each check runs in its own VM. All VMs share one class loader, so the corpus
is loaded and verified once.`,
	}
)

func selftest(ctx *cli.Context) error {
	loader, err := fixtures.NewLoader()
	if err != nil {
		return err
	}

	var checks []fixtures.Check
	filter := ctx.String(filterFlag.Name)
	for _, c := range fixtures.Checks() {
		if filter == "" || strings.Contains(c.String(), filter) {
			checks = append(checks, c)
		}
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	start := time.Now()
	results, runErr := fixtures.Run(runCtx, loader, vm.DefaultConfig(), checks, ctx.Int("jobs"))

	failed := 0
	for _, r := range results {
		status := green("PASS")
		if !r.Passed() {
			status = red("FAIL")
			failed++
		}
		fmt.Printf("%s %-40s %8s  asserts=%d", status, r.Check, r.Elapsed.Round(time.Microsecond), r.Asserts)
		if ctx.Bool(statsFlag.Name) {
			fmt.Printf(" gc=%d freed=%d", r.GC.Cycles, r.GC.TotalFreed)
		}
		fmt.Println()
		if !r.Passed() {
			fmt.Printf("     %s\n", r.Err)
		}
	}

	summary := fmt.Sprintf("%d checks, %d failed, %s", len(results), failed, time.Since(start).Round(time.Millisecond))
	if runErr != nil {
		return cli.NewExitError(red(summary), 1)
	}
	fmt.Println(green(summary))
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"gopkg.in/urfave/cli.v1"

	"github.com/chazu/classvm/fixtures"
	"github.com/chazu/classvm/manifest"
	"github.com/chazu/classvm/natives"
	"github.com/chazu/classvm/vm"
)

var (
	statsFlag = cli.BoolFlag{
		Name:  "stats",
		Usage: "print heap statistics after the call",
	}

	runCommand = cli.Command{
		Action:    runEntry,
		Name:      "run",
		Usage:     "Invoke a static method and print its result",
		ArgsUsage: "[pkg/Class.method(desc)] [args...]",
		Flags:     []cli.Flag{classpathFlag, statsFlag},
		Description: `
The run command loads classes from the classpath, invokes the named static
method with the arguments given on the command line and prints the result.
Without an explicit method the [run] entry of classvm.toml is used.

Interrupting the process (Ctrl-C) cancels the invocation at the next
instruction boundary.`,
	}
)

func runEntry(ctx *cli.Context) error {
	p, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	ref, words := p.manifest.Run.Entry, []string(ctx.Args())
	if len(words) > 0 {
		ref, words = words[0], words[1:]
	}
	if ref == "" {
		return errors.New("no method given and no [run] entry in " + manifest.FileName)
	}
	entry, err := manifest.ParseEntry(ref)
	if err != nil {
		return err
	}
	args, err := entry.ParseArgs(words)
	if err != nil {
		return err
	}

	loader := vm.NewLoader(p.classpath.Sources())
	asserts := natives.NewAssertProvider()
	asserts.Strict = true
	machine := vm.NewVM(loader, p.manifest.VMConfig(), asserts, fixtures.Natives())

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := machine.Invoke(runCtx, entry.Class, entry.Method, entry.Descriptor, args...)
	if ctx.Bool(statsFlag.Name) {
		printStats(machine.Heap())
	}
	if err != nil {
		printFault(err)
		return cli.NewExitError("", 1)
	}
	fmt.Println(result)
	return nil
}

// printFault writes err in red, followed by the interpreter stack trace
// when err is a fault.
func printFault(err error) {
	fmt.Fprintln(os.Stderr, red(err.Error()))
	var f *vm.Fault
	if errors.As(err, &f) && len(f.Trace) > 0 {
		fmt.Fprint(os.Stderr, f.StackTrace())
	}
}

func printStats(h *vm.Heap) {
	s := h.Stats()
	fmt.Fprintf(os.Stderr, "%s %d cycles, %d allocations (%d bytes), freed %d (%d bytes), peak %d of %d bytes, %d live\n",
		yellow("heap:"), s.Cycles, s.Allocations, s.AllocatedBytes, s.TotalFreed, s.TotalFreedBytes,
		s.PeakUsed, h.Budget(), h.Live())
	for _, tc := range liveByType(h) {
		fmt.Fprintf(os.Stderr, "  %6d  %s\n", tc.count, tc.name)
	}
}

type typeCount struct {
	name  string
	count int
}

// liveByType counts the objects still in the heap per class or array type,
// most frequent first.
func liveByType(h *vm.Heap) []typeCount {
	counts := map[string]int{}
	h.ForEach(func(_ vm.Ref, item vm.HeapItem) {
		counts[item.TypeName()]++
	})
	result := make([]typeCount, 0, len(counts))
	for name, n := range counts {
		result = append(result, typeCount{name, n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].count != result[j].count {
			return result[i].count > result[j].count
		}
		return result[i].name < result[j].name
	})
	return result
}

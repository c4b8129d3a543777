package fixtures

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/classvm/natives"
	"github.com/chazu/classvm/vm"
)

var log = commonlog.GetLogger("classvm.fixtures")

// Result is the outcome of one check.
type Result struct {
	Check   Check
	VM      uuid.UUID
	Err     error
	Asserts int
	GC      vm.HeapStats
	Elapsed time.Duration
}

// Passed reports whether the check succeeded.
func (r Result) Passed() bool {
	return r.Err == nil
}

// RunCheck runs one check in a fresh VM over loader. Assertions made by
// bytecode are recorded and turned into the check's error.
func RunCheck(ctx context.Context, loader *vm.Loader, config vm.Config, c Check) Result {
	asserts := natives.NewAssertProvider()
	m := vm.NewVM(loader, config, asserts, Natives())
	start := time.Now()
	err := c.Run(ctx, m)
	if err == nil {
		err = asserts.Err()
	}
	r := Result{
		Check:   c,
		VM:      m.ID,
		Err:     err,
		Asserts: asserts.Calls(),
		GC:      m.Heap().Stats(),
		Elapsed: time.Since(start),
	}
	if err != nil {
		log.Warningf("%s failed: %s", c, err)
	} else {
		log.Debugf("%s passed in %s", c, r.Elapsed)
	}
	return r
}

// Run runs checks with at most parallel VMs at a time, all sharing
// loader. Results come back in the order of checks; the error combines
// every failure.
func Run(ctx context.Context, loader *vm.Loader, config vm.Config, checks []Check, parallel int) ([]Result, error) {
	if parallel <= 0 {
		parallel = 1
	}
	results := make([]Result, len(checks))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, c := range checks {
		g.Go(func() error {
			results[i] = RunCheck(ctx, loader, config, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	var failures *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			failures = multierror.Append(failures, fmt.Errorf("%s: %w", r.Check, r.Err))
		}
	}
	return results, failures.ErrorOrNil()
}

// NewLoader returns a loader over the corpus.
func NewLoader() (*vm.Loader, error) {
	src, err := Source()
	if err != nil {
		return nil, err
	}
	return vm.NewLoader(src), nil
}

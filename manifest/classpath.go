package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/chazu/classvm/store"
	"github.com/chazu/classvm/vm"
)

// OpenedClasspath holds the open sources of a classpath.
type OpenedClasspath struct {
	dirs  []vm.DirSource
	zips  []*vm.ZipSource
	store *store.SQLiteStore
}

// Open opens every entry of the classpath. Entries that cannot be opened are
// reported together; nothing is left open on failure.
func (cp Classpath) Open() (*OpenedClasspath, error) {
	o := &OpenedClasspath{}
	var errs *multierror.Error
	for _, d := range cp.Dirs {
		o.dirs = append(o.dirs, vm.DirSource{Root: d})
	}
	for _, z := range cp.Zips {
		zs, err := vm.OpenZipSource(z)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("classpath zip %s: %w", z, err))
			continue
		}
		o.zips = append(o.zips, zs)
	}
	if cp.Store != "" {
		s, err := store.Open(cp.Store)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("classpath store %s: %w", cp.Store, err))
		} else {
			o.store = s
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

// Sources returns the classpath as a search chain.
func (o *OpenedClasspath) Sources() vm.MultiSource {
	var sources vm.MultiSource
	for _, d := range o.dirs {
		sources = append(sources, d)
	}
	for _, z := range o.zips {
		sources = append(sources, z)
	}
	if o.store != nil {
		sources = append(sources, o.store.Source())
	}
	return sources
}

// Names lists every class reachable through the classpath, sorted and
// without duplicates. Directories that do not exist are skipped.
func (o *OpenedClasspath) Names() ([]string, error) {
	seen := make(map[string]bool)
	var errs *multierror.Error
	for _, d := range o.dirs {
		names, err := d.Names()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("scanning %s: %w", d.Root, err))
			continue
		}
		for _, n := range names {
			seen[n] = true
		}
	}
	for _, z := range o.zips {
		for _, n := range z.Names() {
			seen[n] = true
		}
	}
	if o.store != nil {
		names, err := o.store.Names()
		if err != nil {
			errs = multierror.Append(errs, err)
		}
		for _, n := range names {
			seen[n] = true
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, errs.ErrorOrNil()
}

// Close releases archives and the store.
func (o *OpenedClasspath) Close() error {
	var errs *multierror.Error
	for _, z := range o.zips {
		if err := z.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	if o.store != nil {
		if err := o.store.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

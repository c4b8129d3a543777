package vm

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ClassSource finds encoded classes by internal name ("pkg/Name"). A source
// that does not have the class returns an error wrapping ErrClassNotFound.
type ClassSource interface {
	FindClass(name string) ([]byte, error)
}

// ClassFileSuffix is the file name extension of encoded classes.
const ClassFileSuffix = ".class"

// ---------------------------------------------------------------------------
// DirSource
// ---------------------------------------------------------------------------

// DirSource reads <Root>/<pkg>/<Name>.class.
type DirSource struct {
	Root string
}

// FindClass implements ClassSource.
func (d DirSource) FindClass(name string) ([]byte, error) {
	path := filepath.Join(d.Root, filepath.FromSlash(name)+ClassFileSuffix)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s in %s: %w", name, d.Root, ErrClassNotFound)
	}
	return data, err
}

// Names lists every class below Root.
func (d DirSource) Names() ([]string, error) {
	var names []string
	err := filepath.WalkDir(d.Root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() || !strings.HasSuffix(path, ClassFileSuffix) {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		names = append(names, strings.TrimSuffix(filepath.ToSlash(rel), ClassFileSuffix))
		return nil
	})
	return names, err
}

// ---------------------------------------------------------------------------
// ZipSource
// ---------------------------------------------------------------------------

// ZipSource reads classes from a zip archive whose entries are
// <pkg>/<Name>.class.
type ZipSource struct {
	path    string
	mu      sync.Mutex
	reader  *zip.ReadCloser
	entries map[string]*zip.File
}

// OpenZipSource opens an archive.
func OpenZipSource(path string) (*ZipSource, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open class archive: %w", err)
	}
	z := &ZipSource{path: path, reader: r, entries: make(map[string]*zip.File)}
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, ClassFileSuffix) {
			z.entries[strings.TrimSuffix(f.Name, ClassFileSuffix)] = f
		}
	}
	return z, nil
}

// FindClass implements ClassSource.
func (z *ZipSource) FindClass(name string) ([]byte, error) {
	z.mu.Lock()
	defer z.mu.Unlock()
	f, ok := z.entries[name]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", name, z.path, ErrClassNotFound)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Names lists the classes in the archive.
func (z *ZipSource) Names() []string {
	names := make([]string, 0, len(z.entries))
	for n := range z.entries {
		names = append(names, n)
	}
	return names
}

// Close releases the archive.
func (z *ZipSource) Close() error {
	return z.reader.Close()
}

// WriteZip writes classes (name to encoded bytes) as a class archive.
func WriteZip(w io.Writer, classes map[string][]byte) error {
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	zw := zip.NewWriter(w)
	for _, name := range names {
		f, err := zw.Create(name + ClassFileSuffix)
		if err != nil {
			return err
		}
		if _, err := f.Write(classes[name]); err != nil {
			return err
		}
	}
	return zw.Close()
}

// ---------------------------------------------------------------------------
// MapSource and MultiSource
// ---------------------------------------------------------------------------

// MapSource serves classes from memory.
type MapSource map[string][]byte

// FindClass implements ClassSource.
func (m MapSource) FindClass(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
	}
	return data, nil
}

// MultiSource searches sources in order.
type MultiSource []ClassSource

// FindClass implements ClassSource. The first source that has the class
// wins; errors other than ErrClassNotFound stop the search.
func (m MultiSource) FindClass(name string) ([]byte, error) {
	for _, s := range m {
		data, err := s.FindClass(name)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, ErrClassNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrClassNotFound)
}

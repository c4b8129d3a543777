package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"github.com/chazu/classvm/fixtures"
	"github.com/chazu/classvm/vm"
)

func TestClasspathOf(t *testing.T) {
	dir := t.TempDir()
	cp, err := classpathOf([]string{
		filepath.Join(dir, "classes"),
		filepath.Join(dir, "lib.zip") + string(os.PathListSeparator) + filepath.Join(dir, "other.JAR"),
		filepath.Join(dir, "classes.db"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "classes")}, cp.Dirs)
	assert.Equal(t, []string{filepath.Join(dir, "lib.zip"), filepath.Join(dir, "other.JAR")}, cp.Zips)
	assert.Equal(t, filepath.Join(dir, "classes.db"), cp.Store)

	_, err = classpathOf([]string{"a.db", "b.db"})
	assert.Error(t, err)
}

// contextWith builds a command context with the given positional arguments.
func contextWith(t *testing.T, args ...string) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, set.Parse(args))
	return cli.NewContext(app, set, nil)
}

func TestEmitFixturesAsDirectory(t *testing.T) {
	out := t.TempDir()
	require.NoError(t, emitFixtures(contextWith(t, out)))

	loader := vm.NewLoader(vm.DirSource{Root: out})
	c, err := loader.Resolve("tests/ackermann/Ackermann")
	require.NoError(t, err)
	assert.Equal(t, "tests/ackermann/Ackermann", c.Name)
}

func TestEmitFixturesAsZip(t *testing.T) {
	out := filepath.Join(t.TempDir(), "corpus.zip")
	require.NoError(t, emitFixtures(contextWith(t, out)))

	zs, err := vm.OpenZipSource(out)
	require.NoError(t, err)
	defer zs.Close()

	names, err := fixtures.Names()
	require.NoError(t, err)
	assert.ElementsMatch(t, names, zs.Names())

	m := vm.NewVM(vm.NewLoader(zs), vm.DefaultConfig())
	got, err := m.Invoke(context.Background(), "tests/ackermann/Ackermann", "ack", "(II)I", vm.Int(2), vm.Int(3))
	require.NoError(t, err)
	assert.Equal(t, vm.Int(9), got)
}

func TestStoreFixtures(t *testing.T) {
	db := filepath.Join(t.TempDir(), "corpus.db")
	require.NoError(t, storeFixtures(contextWith(t, db)))

	cp, err := classpathOf([]string{db})
	require.NoError(t, err)
	opened, err := cp.Open()
	require.NoError(t, err)
	defer opened.Close()

	names, err := opened.Names()
	require.NoError(t, err)
	assert.Contains(t, names, "tests/math/MathTests")
}

func TestLiveByType(t *testing.T) {
	m := vm.NewVM(vm.NewLoader(vm.MapSource{}), vm.DefaultConfig())
	for _, typ := range []string{"[I", "[J", "[I", "[B", "[I", "[J"} {
		_, err := m.NewArray(typ, 4)
		require.NoError(t, err)
	}
	assert.Equal(t, []typeCount{
		{"[I", 3},
		{"[J", 2},
		{"[B", 1},
	}, liveByType(m.Heap()))

	m.CollectGarbage()
	assert.Empty(t, liveByType(m.Heap()))
}

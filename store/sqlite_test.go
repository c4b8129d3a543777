package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/classvm/vm"
)

func buildClass(t *testing.T, name string) []byte {
	t.Helper()
	b := vm.NewClassBuilder(name, "")
	m := b.Method("answer", "()I", vm.AccPublic|vm.AccStatic)
	m.Iconst(42)
	m.Return(vm.KindInt)
	data, err := b.Bytes()
	require.NoError(t, err)
	return data
}

func openTemp(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "classes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// ---------------------------------------------------------------------------
// CRUD
// ---------------------------------------------------------------------------

func TestPutGetDelete(t *testing.T) {
	s := openTemp(t)
	data := buildClass(t, "app/Main")

	require.NoError(t, s.Put("app/Main", data))
	got, err := s.Get("app/Main")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, s.Delete("app/Main"))
	_, err = s.Get("app/Main")
	assert.ErrorIs(t, err, vm.ErrClassNotFound)

	assert.NoError(t, s.Delete("app/Main"), "deleting twice is fine")
}

func TestPutReplaces(t *testing.T) {
	s := openTemp(t)
	first := buildClass(t, "app/Main")

	b := vm.NewClassBuilder("app/Main", "")
	b.Field("x", "I", vm.AccPublic)
	second, err := b.Bytes()
	require.NoError(t, err)

	require.NoError(t, s.Put("app/Main", first))
	require.NoError(t, s.Put("app/Main", second))
	got, err := s.Get("app/Main")
	require.NoError(t, err)
	assert.Equal(t, second, got)

	entries, err := s.List()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPutRejectsBadData(t *testing.T) {
	s := openTemp(t)

	assert.ErrorIs(t, s.Put("app/Main", []byte("not a class")), vm.ErrMalformed)
	assert.Error(t, s.Put("app/Other", buildClass(t, "app/Main")), "name mismatch")
}

func TestList(t *testing.T) {
	s := openTemp(t)
	classes := map[string][]byte{
		"b/Two":   buildClass(t, "b/Two"),
		"a/One":   buildClass(t, "a/One"),
		"c/Three": buildClass(t, "c/Three"),
	}
	require.NoError(t, s.PutAll(context.Background(), classes))

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a/One", entries[0].Name)
	assert.Equal(t, "c/Three", entries[2].Name)
	for _, e := range entries {
		assert.Equal(t, len(classes[e.Name]), e.Size)
		assert.False(t, e.UpdatedAt.IsZero())
	}

	names, err := s.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"a/One", "b/Two", "c/Three"}, names)
}

func TestCorruptionDetected(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Put("app/Main", buildClass(t, "app/Main")))

	_, err := s.db.Exec("UPDATE classes SET crc = crc + 1 WHERE name = ?", "app/Main")
	require.NoError(t, err)

	_, err = s.Get("app/Main")
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestPersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classes.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("app/Main", buildClass(t, "app/Main")))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Get("app/Main")
	assert.NoError(t, err)
}

// ---------------------------------------------------------------------------
// As a class source
// ---------------------------------------------------------------------------

func TestStoreAsClassSource(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Put("app/Main", buildClass(t, "app/Main")))

	loader := vm.NewLoader(s.Source())
	m := vm.NewVM(loader, vm.DefaultConfig())
	got, err := m.Invoke(context.Background(), "app/Main", "answer", "()I")
	require.NoError(t, err)
	assert.Equal(t, vm.Int(42), got)

	_, err = loader.Resolve("app/Missing")
	assert.ErrorIs(t, err, vm.ErrClassNotFound)
}

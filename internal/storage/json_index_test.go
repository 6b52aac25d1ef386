package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONIndex_MissingFileIsEmpty(t *testing.T) {
	idx := NewJSONIndex[entry](filepath.Join(t.TempDir(), "index.json"))

	entries, err := idx.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestJSONIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.json")
	idx := NewJSONIndex[entry](path)

	require.NoError(t, idx.Save(map[string]entry{
		"a": {Name: "alpha", Count: 1},
		"b": {Name: "beta", Count: 2},
	}))

	entries, err := idx.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "beta", entries["b"].Name)

	// no temp files left behind
	tmps, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmps)
}

func TestJSONIndex_UpdateSeesOtherWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	first := NewJSONIndex[entry](path)
	second := NewJSONIndex[entry](path)

	_, err := first.Load()
	require.NoError(t, err)
	_, err = second.Load()
	require.NoError(t, err)

	_, err = first.Update(func(entries map[string]entry) error {
		entries["a"] = entry{Name: "alpha"}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, second.Changed())
	assert.False(t, first.Changed())

	entries, err := second.Update(func(entries map[string]entry) error {
		entries["b"] = entry{Name: "beta"}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	entries, err = NewJSONIndex[entry](path).Load()
	require.NoError(t, err)
	assert.Equal(t, "alpha", entries["a"].Name)
	assert.Equal(t, "beta", entries["b"].Name)
}

func TestJSONIndex_UpdateErrorWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	idx := NewJSONIndex[entry](path)
	require.NoError(t, idx.Save(map[string]entry{"a": {Name: "alpha"}}))

	boom := errors.New("boom")
	_, err := idx.Update(func(entries map[string]entry) error {
		delete(entries, "a")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	entries, err := idx.Load()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJSONIndex_ConcurrentUpdatesFromSeparateHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := NewJSONIndex[entry](path).Update(func(entries map[string]entry) error {
				entries[fmt.Sprintf("k%d", i)] = entry{Count: i}
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := NewJSONIndex[entry](path).Load()
	require.NoError(t, err)
	assert.Len(t, entries, 10)
}

func TestJSONIndex_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewJSONIndex[entry](path).Load()
	assert.ErrorIs(t, err, ErrIO)
}

func TestWriteFileAtomic_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file.txt")

	require.NoError(t, WriteFileAtomic(path, []byte("first"), 0o600))
	require.NoError(t, WriteFileAtomic(path, []byte("second"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// ErrIO marks persistence failures. Callers decide whether to retry.
var ErrIO = errors.New("storage i/o failure")

func ioError(op string, err error) error {
	return fmt.Errorf("%w: failed to %s: %v", ErrIO, op, err)
}

// JSONIndex persists a flat id-keyed map as a single JSON document that
// several processes may share. Writers go through Update, which holds an
// exclusive lock on a sibling ".lock" file and re-reads the document before
// changing it. Readers need no lock because the document is only ever
// replaced by rename.
type JSONIndex[T any] struct {
	path string
	lock *flock.Flock

	mu   sync.Mutex
	seen os.FileInfo
}

// NewJSONIndex returns an index stored at path
func NewJSONIndex[T any](path string) *JSONIndex[T] {
	return &JSONIndex[T]{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the index file location
func (i *JSONIndex[T]) Path() string {
	return i.path
}

// Load reads the whole index. A missing file is an empty index.
func (i *JSONIndex[T]) Load() (map[string]T, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.load()
}

// Changed reports whether the document on disk was replaced since this
// index last loaded or wrote it
func (i *JSONIndex[T]) Changed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()

	info, err := os.Stat(i.path)
	if err != nil {
		return i.seen != nil || !errors.Is(err, os.ErrNotExist)
	}
	if i.seen == nil {
		return true
	}
	return !os.SameFile(info, i.seen) ||
		!info.ModTime().Equal(i.seen.ModTime()) ||
		info.Size() != i.seen.Size()
}

// Save rewrites the whole index atomically under the cross-process lock
func (i *JSONIndex[T]) Save(entries map[string]T) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	unlock, err := i.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	return i.save(entries)
}

// Update loads the current document under the cross-process lock, applies
// fn and writes the result back. An error from fn is returned unchanged and
// nothing is written.
func (i *JSONIndex[T]) Update(fn func(entries map[string]T) error) (map[string]T, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	unlock, err := i.acquire()
	if err != nil {
		return nil, err
	}
	defer unlock()

	entries, err := i.load()
	if err != nil {
		return nil, err
	}
	if err := fn(entries); err != nil {
		return nil, err
	}
	if err := i.save(entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (i *JSONIndex[T]) acquire() (func(), error) {
	if err := os.MkdirAll(filepath.Dir(i.path), 0o755); err != nil {
		return nil, ioError("create directory", err)
	}
	if err := i.lock.Lock(); err != nil {
		return nil, ioError("lock index", err)
	}
	return func() { i.lock.Unlock() }, nil
}

func (i *JSONIndex[T]) load() (map[string]T, error) {
	entries := make(map[string]T)

	info, statErr := os.Stat(i.path)
	data, err := os.ReadFile(i.path)
	if errors.Is(err, os.ErrNotExist) {
		i.seen = nil
		return entries, nil
	}
	if err != nil {
		return nil, ioError("read index", err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, ioError("decode index "+i.path, err)
		}
	}

	i.seen = nil
	if statErr == nil {
		i.seen = info
	}
	return entries, nil
}

func (i *JSONIndex[T]) save(entries map[string]T) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := WriteFileAtomic(i.path, data, 0o644); err != nil {
		return err
	}
	if info, err := os.Stat(i.path); err == nil {
		i.seen = info
	}
	return nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers never observe a partial file
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioError("create directory", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return ioError("create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if tmpName != "" {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ioError("write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ioError("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return ioError("close temp file", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return ioError("chmod temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return ioError("rename temp file", err)
	}
	tmpName = ""
	return nil
}

// Package local holds device local slot stores for the cart engine.
package local

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File keeps every key in its own file under dir. Writes go through a
// temporary file and a rename so a crash never leaves a half written slot.
type File struct {
	dir string
	mu  sync.Mutex
}

func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed creating local storage dir with error=%w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) Dir() string { return f.dir }

func (f *File) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("failed resolving local storage key %q with error=%w", key, fs.ErrInvalid)
	}
	return filepath.Join(f.dir, key+".json"), nil
}

func (f *File) GetItem(key string) (string, bool, error) {
	p, err := f.path(key)
	if err != nil {
		return "", false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed reading local storage key %s with error=%w", key, err)
	}
	return string(b), true, nil
}

func (f *File) SetItem(key string, value string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	tmp, err := os.CreateTemp(f.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed creating temp file for key %s with error=%w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.WriteString(value); err != nil {
		tmp.Close()
		return fmt.Errorf("failed writing local storage key %s with error=%w", key, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed closing temp file for key %s with error=%w", key, err)
	}
	if err = os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("failed replacing local storage key %s with error=%w", key, err)
	}
	return nil
}

func (f *File) RemoveItem(key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err = os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed removing local storage key %s with error=%w", key, err)
	}
	return nil
}

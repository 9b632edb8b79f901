// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package templates provides the sources statement templates are loaded
// from. A template is addressed by a slash separated key such as
// "User/findById.sql".
package templates

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
)

// ErrNotFound is returned by a Source that has no template for a key.
var ErrNotFound = errors.New("template not found")

// Source loads template text by key. Implementations must be safe for
// concurrent use.
type Source interface {
	Load(key string) (string, error)
}

// Lister is implemented by sources that can enumerate their keys.
type Lister interface {
	Keys() ([]string, error)
}

// Map is a Source holding templates in memory. It must not be modified while
// in use.
type Map map[string]string

// Load implements Source.
func (m Map) Load(key string) (string, error) {
	text, ok := m[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return text, nil
}

// Keys implements Lister.
func (m Map) Keys() ([]string, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// FS is a Source reading templates from a file system. Keys are paths
// relative to the root of the file system.
type FS struct {
	fsys fs.FS
}

// NewFS returns a Source reading templates from fsys, e.g. an embed.FS.
func NewFS(fsys fs.FS) *FS {
	return &FS{fsys: fsys}
}

// Dir returns a Source reading templates from the directory dir.
func Dir(dir string) *FS {
	return NewFS(os.DirFS(dir))
}

// Load implements Source.
func (s *FS) Load(key string) (string, error) {
	if !fs.ValidPath(key) {
		return "", fmt.Errorf("%w: invalid key %q", ErrNotFound, key)
	}
	b, err := fs.ReadFile(s.fsys, key)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %q", ErrNotFound, key)
	} else if err != nil {
		return "", fmt.Errorf("cannot read template %q: %w", key, err)
	}
	return string(b), nil
}

// Keys implements Lister. It returns every ".sql" file.
func (s *FS) Keys() ([]string, error) {
	var keys []string
	err := fs.WalkDir(s.fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && path.Ext(p) == ".sql" {
			keys = append(keys, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot list templates: %w", err)
	}
	return keys, nil
}

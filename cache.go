// Copyright 2026 The wirej Authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package wirej

import (
	"errors"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Gergilcan/wirej/internal/template"
	"github.com/Gergilcan/wirej/templates"
)

// DefaultCacheSize is the number of parsed templates a DB keeps by default.
const DefaultCacheSize = 256

// templateCache keeps parsed templates indexed by template key. The lru
// cache does its own locking. Loads are not serialised: two goroutines
// missing the same key both load and parse it, and the second Add stores
// identical content. A load that overlaps an invalidation is returned but not
// stored.
type templateCache struct {
	source templates.Source
	cache  *lru.Cache[string, *template.Template]

	// mu guards gen, which counts invalidations.
	mu  sync.Mutex
	gen uint64
}

func newTemplateCache(source templates.Source, size int) (*templateCache, error) {
	if source == nil {
		return nil, errors.New("cannot create template cache: nil template source")
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *template.Template](size)
	if err != nil {
		return nil, err
	}
	return &templateCache{source: source, cache: cache}, nil
}

// normaliseKey strips the leading slash of resource style keys such as
// "/queries/User/findById.sql".
func normaliseKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

// get returns the parsed template for key, loading it from the source on a
// miss.
func (tc *templateCache) get(key string) (*template.Template, error) {
	key = normaliseKey(key)
	if t, ok := tc.cache.Get(key); ok {
		return t, nil
	}
	tc.mu.Lock()
	gen := tc.gen
	tc.mu.Unlock()
	// Any failure to read the text means the template is not available.
	text, err := tc.source.Load(key)
	if err != nil {
		return nil, &TemplateError{Key: key, Kind: ErrTemplateNotFound, Err: err}
	}
	t, err := template.Parse(key, text)
	if err != nil {
		return nil, &TemplateError{Key: key, Kind: ErrTemplateSyntax, Err: err}
	}
	tc.mu.Lock()
	if tc.gen == gen {
		tc.cache.Add(key, t)
	}
	tc.mu.Unlock()
	return t, nil
}

// invalidate drops key from the cache so the next get reloads it.
func (tc *templateCache) invalidate(key string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.gen++
	tc.cache.Remove(normaliseKey(key))
}

// purge drops every cached template.
func (tc *templateCache) purge() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.gen++
	tc.cache.Purge()
}

// Package templates holds the built-in maintenance scripts used to seed new
// script records.
package templates

import (
	"errors"
	"fmt"
	"sort"

	"github.com/t77yq/nitrite-automation/internal/model"
)

// ErrTemplateNotFound is returned for an unknown template key
var ErrTemplateNotFound = errors.New("template not found")

// Template is a pre-authored script
type Template struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Language    model.Language `json:"language"`
	Code        string         `json:"code"`
	Tags        []string       `json:"tags"`
}

// Catalog is a read-only lookup over a fixed template table
type Catalog struct {
	byKey map[string]Template
	keys  []string
}

// NewCatalog builds a catalog from the given templates
func NewCatalog(list []Template) *Catalog {
	c := &Catalog{byKey: make(map[string]Template, len(list))}
	for _, t := range list {
		c.byKey[t.Key] = t
		c.keys = append(c.keys, t.Key)
	}
	sort.Strings(c.keys)
	return c
}

// Default returns the catalog of built-in maintenance templates
func Default() *Catalog {
	return NewCatalog(builtin())
}

// Keys returns the template keys in sorted order
func (c *Catalog) Keys() []string {
	return append([]string(nil), c.keys...)
}

// List returns every template ordered by key
func (c *Catalog) List() []Template {
	list := make([]Template, 0, len(c.keys))
	for _, k := range c.keys {
		list = append(list, c.byKey[k].clone())
	}
	return list
}

// Get looks up a template by key
func (c *Catalog) Get(key string) (Template, error) {
	t, ok := c.byKey[key]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	return t.clone(), nil
}

func (t Template) clone() Template {
	t.Tags = append([]string(nil), t.Tags...)
	return t
}

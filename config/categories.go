package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category maps a display name to the search query sent to the storefront.
type Category struct {
	Name  string
	Query string
}

// Categories keeps the file order, which is also the scrape order.
type Categories []Category

// Names returns the category names in order.
func (cs Categories) Names() []string {
	names := make([]string, 0, len(cs))
	for _, c := range cs {
		names = append(names, c.Name)
	}
	return names
}

// LoadCategories reads a name→query mapping. The file is usually JSON; the
// YAML decoder reads it and keeps key order.
func LoadCategories(path string) (Categories, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: categories file %q not found", ErrMissingConfig, path)
		}
		return nil, fmt.Errorf("read categories: %w", err)
	}
	return ParseCategories(raw)
}

// ParseCategories decodes an ordered name→query mapping.
func ParseCategories(raw []byte) (Categories, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse categories: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: categories file is empty", ErrMissingConfig)
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse categories: expected an object of name to query")
	}

	out := make(Categories, 0, len(root.Content)/2)
	seen := make(map[string]struct{}, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := strings.TrimSpace(root.Content[i].Value)
		query := strings.TrimSpace(root.Content[i+1].Value)
		if name == "" {
			return nil, fmt.Errorf("parse categories: empty category name at line %d", root.Content[i].Line)
		}
		if query == "" {
			return nil, fmt.Errorf("parse categories: category %q has no query", name)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("parse categories: duplicate category %q", name)
		}
		seen[name] = struct{}{}
		out = append(out, Category{Name: name, Query: query})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no categories defined", ErrMissingConfig)
	}
	return out, nil
}

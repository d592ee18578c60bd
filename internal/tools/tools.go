// Package tools serves the plugin-style catalog of converter tools.
// The catalog is data, not code: a YAML file lists each tool's slug,
// formats, and the static HTML page that fronts it.
package tools

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Tool describes one entry in the converter catalog.
type Tool struct {
	Slug        string   `yaml:"slug" json:"slug"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description,omitempty"`
	From        []string `yaml:"from" json:"from"`
	To          []string `yaml:"to" json:"to"`
	Page        string   `yaml:"page" json:"-"`
}

type catalogFile struct {
	Tools []Tool `yaml:"tools"`
}

// Catalog holds the loaded tool registry.
type Catalog struct {
	tools    []Tool
	bySlug   map[string]Tool
	pagesDir string
}

// Empty returns a catalog with no tools, used when no catalog file is
// configured.
func Empty() *Catalog {
	return &Catalog{bySlug: map[string]Tool{}}
}

// Load reads the catalog YAML and indexes tools by slug. Duplicate
// slugs are a configuration error.
func Load(catalogPath, pagesDir string) (*Catalog, error) {
	f, err := os.Open(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("open tool catalog: %w", err)
	}
	defer f.Close()

	var file catalogFile
	if err := yaml.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode tool catalog: %w", err)
	}

	bySlug := make(map[string]Tool, len(file.Tools))
	for _, t := range file.Tools {
		if t.Slug == "" {
			return nil, fmt.Errorf("tool catalog entry %q has no slug", t.Name)
		}
		if _, dup := bySlug[t.Slug]; dup {
			return nil, fmt.Errorf("duplicate tool slug %q", t.Slug)
		}
		bySlug[t.Slug] = t
	}

	return &Catalog{
		tools:    file.Tools,
		bySlug:   bySlug,
		pagesDir: pagesDir,
	}, nil
}

// List returns all tools in catalog order.
func (c *Catalog) List() []Tool {
	return c.tools
}

// Get looks up a tool by slug.
func (c *Catalog) Get(slug string) (Tool, bool) {
	t, ok := c.bySlug[slug]
	return t, ok
}

// PagePath resolves the tool's HTML page within the pages directory.
// The page name is cleaned to its base so catalog entries cannot point
// outside the directory.
func (c *Catalog) PagePath(t Tool) string {
	if t.Page == "" || c.pagesDir == "" {
		return ""
	}
	return filepath.Join(c.pagesDir, filepath.Base(t.Page))
}

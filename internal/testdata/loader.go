// Package testdata loads test fixtures and locator catalogs from YAML or
// JSON files, so element definitions can live next to the suites that use
// them instead of being hardcoded.
package testdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/lancet/internal/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadFixture decodes a YAML or JSON file into out, picking the decoder by
// file extension.
func LoadFixture(path string, out any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading fixture %s: %w", path, err)
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parsing YAML fixture %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("parsing JSON fixture %s: %w", path, err)
		}
	default:
		return fmt.Errorf("unsupported fixture format %q (want .yaml, .yml or .json)", ext)
	}
	return nil
}

// strategyEntry is the on-disk form of one locator strategy. Timeout is a
// Go duration string ("2s", "500ms"); empty means the configured default.
type strategyEntry struct {
	Kind     string `yaml:"kind" json:"kind"`
	Selector string `yaml:"selector" json:"selector"`
	Label    string `yaml:"label" json:"label"`
	Timeout  string `yaml:"timeout" json:"timeout"`
}

// elementEntry is the on-disk form of one element.
type elementEntry struct {
	Strategies []strategyEntry `yaml:"strategies" json:"strategies"`
}

// catalogFile is the on-disk form of a locator catalog.
type catalogFile struct {
	Elements map[string]elementEntry `yaml:"elements" json:"elements"`
}

// Catalog is a named collection of locator specs loaded from disk.
type Catalog struct {
	specs map[string]*locator.Spec
}

// LoadCatalog reads a locator catalog file. Every element must declare at
// least one strategy with a kind and a selector.
func LoadCatalog(path string) (*Catalog, error) {
	var file catalogFile
	if err := LoadFixture(path, &file); err != nil {
		return nil, err
	}

	specs := make(map[string]*locator.Spec, len(file.Elements))
	for name, entry := range file.Elements {
		if len(entry.Strategies) == 0 {
			return nil, fmt.Errorf("element %q declares no strategies", name)
		}
		spec := locator.New(name)
		for i, st := range entry.Strategies {
			if st.Kind == "" || st.Selector == "" {
				return nil, fmt.Errorf("element %q strategy %d is missing kind or selector", name, i)
			}
			var timeout time.Duration
			if st.Timeout != "" {
				var err error
				if timeout, err = time.ParseDuration(st.Timeout); err != nil {
					return nil, fmt.Errorf("element %q strategy %d has invalid timeout %q: %w", name, i, st.Timeout, err)
				}
			}
			spec.Add(locator.Strategy{
				Kind:     locator.Kind(st.Kind),
				Selector: st.Selector,
				Label:    st.Label,
				Timeout:  timeout,
			})
		}
		specs[name] = spec
	}
	return &Catalog{specs: specs}, nil
}

// Spec returns the spec for an element name.
func (c *Catalog) Spec(name string) (*locator.Spec, error) {
	spec, ok := c.specs[name]
	if !ok {
		return nil, fmt.Errorf("no element named %q in catalog", name)
	}
	return spec, nil
}

// Names returns every element name in the catalog, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of elements in the catalog.
func (c *Catalog) Len() int { return len(c.specs) }

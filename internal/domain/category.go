package domain

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Category is one of the fixed analysis buckets rendered on the dashboard.
type Category string

const (
	CategoryPerson      Category = "person-related"
	CategoryProperty    Category = "property-related"
	CategoryDrugAlcohol Category = "drug-alcohol-related"
	CategoryMisc        Category = "miscellaneous"

	// CategoryUnclassified is the sentinel bucket for rows whose category
	// cell was empty. A missing value degrades; only a present-but-unmapped
	// label is fatal.
	CategoryUnclassified Category = "unclassified"
)

// Categories lists every canonical bucket in display order.
func Categories() []Category {
	return []Category{CategoryPerson, CategoryProperty, CategoryDrugAlcohol, CategoryMisc}
}

func validCategory(c Category) bool {
	switch c {
	case CategoryPerson, CategoryProperty, CategoryDrugAlcohol, CategoryMisc:
		return true
	}
	return false
}

//go:embed categories.yaml
var defaultMappingYAML []byte

// CategoryMapping is a total mapping from raw offense labels to canonical
// buckets. Totality over the labels actually present in the data is enforced
// by Validate before any record is bucketed; lookups after a successful
// Validate cannot miss.
type CategoryMapping struct {
	byLabel map[string]Category // cleaned raw label -> bucket
	raw     map[Category][]string
}

// mappingFile mirrors the YAML layout: bucket name -> raw label list.
type mappingFile struct {
	Categories map[string][]string `yaml:"categories"`
}

// DefaultCategoryMapping returns the embedded taxonomy.
func DefaultCategoryMapping() *CategoryMapping {
	m, err := ParseCategoryMapping(defaultMappingYAML)
	if err != nil {
		// The embedded file is part of the build; failing to parse it is a bug.
		panic(fmt.Sprintf("embedded category mapping invalid: %v", err))
	}
	return m
}

// LoadCategoryMapping reads a mapping from a YAML file, or returns the
// embedded default when path is empty.
func LoadCategoryMapping(path string) (*CategoryMapping, error) {
	if path == "" {
		return DefaultCategoryMapping(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category mapping: %w", err)
	}
	m, err := ParseCategoryMapping(data)
	if err != nil {
		return nil, fmt.Errorf("parse category mapping %s: %w", path, err)
	}
	return m, nil
}

// ParseCategoryMapping parses YAML mapping data. Unknown bucket names and
// raw labels assigned to more than one bucket are configuration errors.
func ParseCategoryMapping(data []byte) (*CategoryMapping, error) {
	var file mappingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("mapping has no categories")
	}

	m := &CategoryMapping{
		byLabel: make(map[string]Category),
		raw:     make(map[Category][]string),
	}
	for name, labels := range file.Categories {
		cat := Category(name)
		if !validCategory(cat) {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		for _, label := range labels {
			key := CleanLabel(label)
			if key == "" {
				return nil, fmt.Errorf("category %q contains an empty label", name)
			}
			if prev, ok := m.byLabel[key]; ok && prev != cat {
				return nil, fmt.Errorf("label %q assigned to both %q and %q", label, prev, cat)
			}
			m.byLabel[key] = cat
			m.raw[cat] = append(m.raw[cat], label)
		}
	}
	return m, nil
}

// Validate checks that every observed raw label resolves to a bucket.
// It fails loudly with the full list of gaps so the taxonomy can be fixed
// before a run produces output.
func (m *CategoryMapping) Validate(observed []string) error {
	missing := map[string]bool{}
	for _, label := range observed {
		if _, ok := m.byLabel[CleanLabel(label)]; !ok {
			missing[label] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}

	labels := make([]string, 0, len(missing))
	for l := range missing {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return &UnmappedCategoryError{Labels: labels}
}

// Lookup resolves a raw label to its bucket. The boolean is false only when
// Validate was skipped or the label was never observed during validation.
func (m *CategoryMapping) Lookup(rawLabel string) (Category, bool) {
	c, ok := m.byLabel[CleanLabel(rawLabel)]
	return c, ok
}

// Labels returns the raw labels configured for a bucket, sorted.
func (m *CategoryMapping) Labels(c Category) []string {
	out := append([]string(nil), m.raw[c]...)
	sort.Strings(out)
	return out
}

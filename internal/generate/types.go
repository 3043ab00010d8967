// Package generate synthesizes test cases from a crawled site model, using
// the text-generation capability for test code and component classification.
package generate

import (
	"encoding/json"
	"fmt"

	"github.com/skyhookqa/skyhook/internal/selector"
)

// Category is the closed set of test-case categories.
type Category int

// Test-case categories.
const (
	CategoryFunctional Category = iota
	CategoryVisual
	CategoryAPI
)

var categoryNames = map[Category]string{
	CategoryFunctional: "functional",
	CategoryVisual:     "visual",
	CategoryAPI:        "api",
}

var categoryValues = map[string]Category{
	"functional": CategoryFunctional,
	"visual":     CategoryVisual,
	"api":        CategoryAPI,
}

// String returns the wire name of the category.
func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCategory maps a wire string back to a Category.
func ParseCategory(name string) (Category, error) {
	if c, ok := categoryValues[name]; ok {
		return c, nil
	}
	return 0, fmt.Errorf("unknown test category %q", name)
}

// MarshalJSON encodes the category as its wire string.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON decodes the category from its wire string.
func (c *Category) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("decode test category: %w", err)
	}
	parsed, err := ParseCategory(name)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// IsUI reports whether cases of this category drive a browser page.
func (c Category) IsUI() bool {
	return c == CategoryFunctional || c == CategoryVisual
}

// TestStep is one action or assertion within a test case.
type TestStep struct {
	Action    string               `json:"action"` // navigate, click, fill, assert_visible, compare_screenshot, http_get
	Target    string               `json:"target,omitempty"`
	Value     string               `json:"value,omitempty"`
	Selectors []selector.Resilient `json:"selectors,omitempty"`
}

// TestCase is one synthesized test. Immutable once produced.
type TestCase struct {
	Name     string     `json:"name"`
	Category Category   `json:"category"`
	Route    string     `json:"route"`
	Steps    []TestStep `json:"steps"`
	Code     string     `json:"code,omitempty"`
}

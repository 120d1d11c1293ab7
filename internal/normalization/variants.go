package normalization

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed variants.yaml
var defaultVariantsYAML []byte

// VariantGroup maps a set of aliases onto one canonical spelling.
type VariantGroup struct {
	Canonical string   `yaml:"canonical"`
	Aliases   []string `yaml:"aliases"`
}

type variantFile struct {
	Variants []VariantGroup `yaml:"variants"`
}

// ParseVariants decodes a variants document.
func ParseVariants(r io.Reader) ([]VariantGroup, error) {
	var f variantFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("decode variants: %w", err)
	}
	for i, g := range f.Variants {
		if strings.TrimSpace(g.Canonical) == "" {
			return nil, fmt.Errorf("variants[%d]: canonical is required", i)
		}
	}
	return f.Variants, nil
}

// DefaultVariants returns the built-in variant table.
func DefaultVariants() []VariantGroup {
	groups, err := ParseVariants(strings.NewReader(string(defaultVariantsYAML)))
	if err != nil {
		panic(fmt.Sprintf("normalization: embedded variants are invalid: %v", err))
	}
	return groups
}

// LoadVariantsFile reads an override table from disk.
func LoadVariantsFile(path string) ([]VariantGroup, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open variants file: %w", err)
	}
	defer f.Close()
	return ParseVariants(f)
}

// NewDefault builds a Normalizer seeded with the built-in table, then with
// the groups from extraPath when it is non-empty.
func NewDefault(extraPath string) (*Normalizer, error) {
	n := New()
	if err := n.RegisterGroups(DefaultVariants()); err != nil {
		return nil, err
	}
	if strings.TrimSpace(extraPath) == "" {
		return n, nil
	}
	extra, err := LoadVariantsFile(extraPath)
	if err != nil {
		return nil, err
	}
	if err := n.RegisterGroups(extra); err != nil {
		return nil, err
	}
	return n, nil
}

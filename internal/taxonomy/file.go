package taxonomy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"CaseCurator/internal/domain"
)

// fileLayout is the YAML shape of a taxonomy definition.
type fileLayout struct {
	Totals map[domain.Tier]int `yaml:"totals"`
	Rules  []PrefixRule        `yaml:"rules"`
	Cells  []CellSpec          `yaml:"cells"`
}

// LoadFile reads a taxonomy definition from YAML.
func LoadFile(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a registry from YAML bytes.
func Parse(raw []byte) (*Registry, error) {
	var layout fileLayout
	if err := yaml.Unmarshal(raw, &layout); err != nil {
		return nil, registryErr("parse definition: %v", err)
	}
	return New(layout.Cells, layout.Totals, layout.Rules)
}

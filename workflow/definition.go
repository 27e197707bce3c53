package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadDefinition loads a Definition from a YAML file, grounded on the
// orchestrator's LoadRules pattern: read the whole file, then unmarshal.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow definition: %w", err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}
	return &def, nil
}

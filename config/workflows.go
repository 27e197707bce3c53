package config

import "github.com/c360studio/maestro/workflow"

// LoadWorkflowDefinition reads a declarative workflow definition from path,
// the concrete form of the Workflow Engine's "loads a declarative workflow"
// input named in spec.md §4.H.
func LoadWorkflowDefinition(path string) (*workflow.Definition, error) {
	return workflow.LoadDefinition(path)
}

// LoadWorkflowDefinitions resolves every stage's definition path in
// cfg.Workflows, for use by the coordinator's stage-to-definition map.
func LoadWorkflowDefinitions(cfg *Config) (map[string]workflow.Definition, error) {
	definitions := make(map[string]workflow.Definition, len(cfg.Workflows))
	for stage, path := range cfg.Workflows {
		def, err := workflow.LoadDefinition(path)
		if err != nil {
			return nil, err
		}
		definitions[stage] = *def
	}
	return definitions, nil
}

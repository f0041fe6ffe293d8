package commands

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

// changesDocument is the on-disk format for a change batch, a YAML file with
// a single top-level changes list.
type changesDocument struct {
	Changes []changeSpec `yaml:"changes"`
}

type changeSpec struct {
	ResourceType string                 `yaml:"resource_type"`
	ResourceID   string                 `yaml:"resource_id"`
	Action       string                 `yaml:"action"`
	CurrentValue interface{}            `yaml:"current_value"`
	NewValue     interface{}            `yaml:"new_value"`
	Metadata     map[string]interface{} `yaml:"metadata"`
}

func loadChangesFile(path string) ([]controlplane.ResourceChange, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read changes file: %w", err)
	}

	var doc changesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse changes file: %w", err)
	}
	if len(doc.Changes) == 0 {
		return nil, fmt.Errorf("no changes found in %s", path)
	}

	changes := make([]controlplane.ResourceChange, 0, len(doc.Changes))
	for _, c := range doc.Changes {
		changes = append(changes, controlplane.ResourceChange{
			ResourceType: controlplane.ResourceType(c.ResourceType),
			ResourceID:   c.ResourceID,
			Action:       controlplane.ChangeAction(c.Action),
			CurrentValue: c.CurrentValue,
			NewValue:     c.NewValue,
			Metadata:     c.Metadata,
		})
	}
	return changes, nil
}

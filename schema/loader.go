package schema

import (
	"encoding/json"
	"fmt"

	"github.com/flowlattice/engine/runtime"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// LoadJSON parses JSON flow document bytes, migrates it to
// CurrentSchemaVersion if needed, and converts it into a validated
// *runtime.Flow.
func LoadJSON(data []byte) (*runtime.Flow, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: invalid JSON document: %w", err)
	}
	return loadRaw(raw)
}

// LoadYAML parses YAML flow document bytes (gopkg.in/yaml.v3), migrates
// it if needed, and converts it into a validated *runtime.Flow.
func LoadYAML(data []byte) (*runtime.Flow, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("schema: invalid YAML document: %w", err)
	}
	// yaml.v3 decodes nested maps as map[string]interface{} already (unlike
	// yaml.v2's map[interface{}]interface{}), so raw is directly usable by
	// the gabs-based migration and mapstructure decode below.
	return loadRaw(raw)
}

func loadRaw(raw map[string]any) (*runtime.Flow, error) {
	migrated, err := NewVersionManager().Migrate(raw)
	if err != nil {
		return nil, err
	}

	var doc Document
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &doc,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("schema: failed to build document decoder: %w", err)
	}
	if err := decoder.Decode(migrated); err != nil {
		return nil, fmt.Errorf("schema: failed to decode document: %w", err)
	}

	return doc.ToFlow()
}

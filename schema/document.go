// Package schema defines the on-disk/over-the-wire flow document format
// (the Flow/Component/Connection graph, serialized) and the version
// migration between the legacy 0.9.x document shape and the current
// 1.x one.
package schema

import (
	"fmt"

	"github.com/flowlattice/engine/runtime"
)

// CurrentSchemaVersion is the schema version this package writes and
// prefers to read.
const CurrentSchemaVersion = "1.0"

// Document is the root of a flow document as decoded from JSON or YAML.
type Document struct {
	SchemaVersion string         `json:"schemaVersion" yaml:"schemaVersion"`
	Flow          FlowDocument   `json:"flow" yaml:"flow"`
}

// FlowDocument mirrors runtime.Flow's shape in wire form: properties
// are still plain decoded values (map[string]any/[]any/scalars) until
// ToFlow converts them into runtime.ComponentProperty trees.
type FlowDocument struct {
	ID          string              `json:"id" yaml:"id"`
	Name        string              `json:"name" yaml:"name"`
	Version     string              `json:"version" yaml:"version"`
	Components  []ComponentDocument `json:"components" yaml:"components"`
	Connections []ConnectionDocument `json:"connections" yaml:"connections"`
	Metadata    map[string]string   `json:"metadata" yaml:"metadata"`
}

// ComponentDocument is one component as decoded from the document,
// before its Properties are lifted into runtime.ComponentProperty.
type ComponentDocument struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Type       string            `json:"type" yaml:"type"`
	Properties map[string]any    `json:"properties" yaml:"properties"`
	Metadata   map[string]string `json:"metadata" yaml:"metadata"`
}

// ConnectionDocument is one connection in the current (1.x) document
// shape.
type ConnectionDocument struct {
	ID                string `json:"id" yaml:"id"`
	SourceComponentID string `json:"sourceComponentId" yaml:"sourceComponentId"`
	SourcePortID      string `json:"sourcePortId" yaml:"sourcePortId"`
	TargetComponentID string `json:"targetComponentId" yaml:"targetComponentId"`
	TargetPortID      string `json:"targetPortId" yaml:"targetPortId"`
}

// ToFlow converts a decoded, current-schema Document into a validated
// *runtime.Flow.
func (d Document) ToFlow() (*runtime.Flow, error) {
	components := make([]runtime.Component, len(d.Flow.Components))
	for i, cd := range d.Flow.Components {
		props := make(map[string]runtime.ComponentProperty, len(cd.Properties))
		for k, v := range cd.Properties {
			props[k] = runtime.PropertyFromNative(v)
		}
		components[i] = runtime.Component{
			ID:         cd.ID,
			Name:       cd.Name,
			Type:       runtime.ComponentType(cd.Type),
			Properties: props,
			Metadata:   cd.Metadata,
		}
	}

	connections := make([]runtime.Connection, len(d.Flow.Connections))
	for i, conn := range d.Flow.Connections {
		connections[i] = runtime.Connection{
			ID:                conn.ID,
			SourceComponentID: conn.SourceComponentID,
			SourcePortID:      conn.SourcePortID,
			TargetComponentID: conn.TargetComponentID,
			TargetPortID:      conn.TargetPortID,
		}
	}

	flow, err := runtime.NewFlow(d.Flow.ID, d.Flow.Name, d.Flow.Version, components, connections, d.Flow.Metadata)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	return flow, nil
}

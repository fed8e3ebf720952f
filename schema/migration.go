package schema

import (
	"fmt"
	"log/slog"

	"github.com/Jeffail/gabs/v2"
)

// VersionManager loads a document of any supported schema version and
// migrates it forward to CurrentSchemaVersion. 1.x documents are read
// and written as-is; 0.9.x documents are migrated with a deprecation
// warning logged through slog (read-only: the engine never writes 0.9.x
// back out); anything older is rejected.
type VersionManager struct{}

// NewVersionManager constructs a VersionManager.
func NewVersionManager() *VersionManager { return &VersionManager{} }

// Migrate takes raw decoded JSON (map[string]any, as produced by
// encoding/json or yaml.v3's mapstructure-compatible decode) and
// returns an equivalent document at CurrentSchemaVersion. Migration is
// structural (parsed-tree renames via gabs), never string substitution,
// so string values containing the renamed tokens are never corrupted.
func (VersionManager) Migrate(raw map[string]any) (map[string]any, error) {
	version, _ := raw["schemaVersion"].(string)
	switch {
	case version == "" :
		return nil, fmt.Errorf("schema: document missing schemaVersion")
	case version == CurrentSchemaVersion || isMinorOf1x(version):
		return raw, nil
	case is09x(version):
		slog.Warn("schema: 0.9.x documents are deprecated and read-only; migrating",
			"schemaVersion", version, "target", CurrentSchemaVersion)
		return migrate09To10(raw)
	default:
		return nil, fmt.Errorf("schema: unsupported schemaVersion %q (oldest supported is 0.9.x)", version)
	}
}

func isMinorOf1x(version string) bool {
	return len(version) >= 2 && version[0] == '1' && version[1] == '.'
}

func is09x(version string) bool {
	return len(version) >= 4 && version[:3] == "0.9"
}

// migrate09To10 renames the 0.9.x document shape (nodes/edges, from/to)
// into the current components/connections, sourceComponentId/
// targetComponentId shape, by walking a parsed gabs container rather
// than doing text replacement on the source bytes.
func migrate09To10(raw map[string]any) (map[string]any, error) {
	doc := gabs.Wrap(deepCopyAny(raw))

	flow := doc.S("flow")
	if flow == nil {
		return nil, fmt.Errorf("schema: 0.9.x document missing \"flow\" object")
	}

	if nodes := flow.S("nodes"); nodes != nil {
		if _, err := flow.Set(nodes.Data(), "components"); err != nil {
			return nil, fmt.Errorf("schema: migration failed renaming nodes: %w", err)
		}
		flow.Delete("nodes")
	}

	if edges, ok := flow.S("edges").Data().([]any); ok {
		connections := make([]any, 0, len(edges))
		for i, e := range edges {
			edge := gabs.Wrap(e)
			id, _ := edge.S("id").Data().(string)
			if id == "" {
				id = fmt.Sprintf("edge-%d", i)
			}
			from, _ := edge.S("from").Data().(string)
			to, _ := edge.S("to").Data().(string)
			fromPort, _ := edge.S("fromPort").Data().(string)
			toPort, _ := edge.S("toPort").Data().(string)
			if fromPort == "" {
				fromPort = "out"
			}
			if toPort == "" {
				toPort = "in"
			}
			connections = append(connections, map[string]any{
				"id":                id,
				"sourceComponentId": from,
				"sourcePortId":      fromPort,
				"targetComponentId": to,
				"targetPortId":      toPort,
			})
		}
		if _, err := flow.Set(connections, "connections"); err != nil {
			return nil, fmt.Errorf("schema: migration failed building connections: %w", err)
		}
		flow.Delete("edges")
	}

	if _, err := doc.Set(CurrentSchemaVersion, "schemaVersion"); err != nil {
		return nil, fmt.Errorf("schema: migration failed setting schemaVersion: %w", err)
	}

	out, ok := doc.Data().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema: migration produced a non-object document")
	}
	return out, nil
}

// deepCopyAny is a minimal structural deep copy for the map/slice/scalar
// shapes JSON and YAML decoders produce, so migration never mutates the
// caller's original decoded document.
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, f := range val {
			out[k] = deepCopyAny(f)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, f := range val {
			out[i] = deepCopyAny(f)
		}
		return out
	default:
		return val
	}
}

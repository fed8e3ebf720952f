package schema

import "testing"

func TestMigrateRejectsMissingSchemaVersion(t *testing.T) {
	_, err := NewVersionManager().Migrate(map[string]any{"flow": map[string]any{}})
	if err == nil {
		t.Fatal("expected an error for a document with no schemaVersion")
	}
}

func TestMigrateRejectsUnsupportedVersion(t *testing.T) {
	_, err := NewVersionManager().Migrate(map[string]any{"schemaVersion": "0.5"})
	if err == nil {
		t.Fatal("expected an error for a schemaVersion older than 0.9.x")
	}
}

func TestMigrateCurrentVersionIsPassthrough(t *testing.T) {
	raw := map[string]any{
		"schemaVersion": CurrentSchemaVersion,
		"flow": map[string]any{
			"id":         "f1",
			"components": []any{},
			"connections": []any{},
		},
	}
	out, err := NewVersionManager().Migrate(raw)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if out["schemaVersion"] != CurrentSchemaVersion {
		t.Errorf("schemaVersion = %v, want %v", out["schemaVersion"], CurrentSchemaVersion)
	}
}

func TestMigrate09To10RenamesNodesAndEdges(t *testing.T) {
	raw := map[string]any{
		"schemaVersion": "0.9.3",
		"flow": map[string]any{
			"id": "f1",
			"nodes": []any{
				map[string]any{"id": "start", "type": "START"},
				map[string]any{"id": "end", "type": "END"},
			},
			"edges": []any{
				map[string]any{"id": "e1", "from": "start", "to": "end"},
			},
		},
	}

	out, err := NewVersionManager().Migrate(raw)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if out["schemaVersion"] != CurrentSchemaVersion {
		t.Errorf("schemaVersion = %v, want %v", out["schemaVersion"], CurrentSchemaVersion)
	}

	flow, ok := out["flow"].(map[string]any)
	if !ok {
		t.Fatalf("flow is not a map: %T", out["flow"])
	}
	if _, hasNodes := flow["nodes"]; hasNodes {
		t.Error("migrated document should not carry a \"nodes\" key")
	}
	components, ok := flow["components"].([]any)
	if !ok || len(components) != 2 {
		t.Fatalf("components = %v, want 2 entries", flow["components"])
	}

	if _, hasEdges := flow["edges"]; hasEdges {
		t.Error("migrated document should not carry an \"edges\" key")
	}
	connections, ok := flow["connections"].([]any)
	if !ok || len(connections) != 1 {
		t.Fatalf("connections = %v, want 1 entry", flow["connections"])
	}
	conn, ok := connections[0].(map[string]any)
	if !ok {
		t.Fatalf("connection entry is not a map: %T", connections[0])
	}
	if conn["sourceComponentId"] != "start" || conn["targetComponentId"] != "end" {
		t.Errorf("connection = %+v, want source=start target=end", conn)
	}
	if conn["sourcePortId"] != "out" || conn["targetPortId"] != "in" {
		t.Errorf("connection ports = %+v, want default out/in", conn)
	}
}

func TestMigrateDoesNotMutateCallerInput(t *testing.T) {
	raw := map[string]any{
		"schemaVersion": "0.9.0",
		"flow": map[string]any{
			"id":    "f1",
			"nodes": []any{map[string]any{"id": "start", "type": "START"}},
			"edges": []any{},
		},
	}

	if _, err := NewVersionManager().Migrate(raw); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	flow := raw["flow"].(map[string]any)
	if _, ok := flow["nodes"]; !ok {
		t.Error("caller's original document should be untouched by migration")
	}
	if _, ok := flow["components"]; ok {
		t.Error("caller's original document should not have gained a components key")
	}
}

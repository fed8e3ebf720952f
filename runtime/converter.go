package runtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// mapToStructWithTag converts a map[string]any to a struct using
// mapstructure, matching fields by the given struct tag name, so config
// structs tagged for YAML documents (yaml.v3) decode the same way as
// ones tagged for JSON.
func mapToStructWithTag(m map[string]any, target any, tagName string) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: tagName,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true, // Allow type coercion (e.g., int -> float64)
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}

// ValueMapToStruct decodes a host service's VariableValue params into a
// typed Go struct, letting hostservices/http.go and
// hostservices/storage.go accept a strongly-typed request struct
// instead of hand-walking the map. Fields are matched by "mapstructure"
// tag (falling back to the field name), the same library and
// WeaklyTypedInput convention as mapToStructWithTag above.
func ValueMapToStruct(params map[string]VariableValue, target any) error {
	native := make(map[string]any, len(params))
	for k, v := range params {
		native[k] = v.ToNative()
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(native); err != nil {
		return fmt.Errorf("failed to decode params into %T: %w", target, err)
	}
	return nil
}

// StructToValueMap is ValueMapToStruct's inverse: it round-trips a
// struct through JSON (respecting its json tags, same approach as
// structToMap) and lifts the result into a VariableValue Object, so a
// host service handler's typed response struct can be returned as an
// ACTION's result variable.
func StructToValueMap(s any) (map[string]VariableValue, error) {
	native, err := structToMap(s)
	if err != nil {
		return nil, err
	}
	obj, _ := FromNative(native).AsObject()
	return obj, nil
}

// structToMap converts a struct to map[string]any using JSON round-trip.
// This respects json tags and properly handles nested structs.
func structToMap(s any) (map[string]any, error) {
	// Marshal to JSON first (respects json tags)
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal struct: %w", err)
	}

	// Unmarshal to map
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to map: %w", err)
	}

	return result, nil
}

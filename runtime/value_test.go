package runtime

import "testing"

func TestVariableValueEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b VariableValue
		want bool
	}{
		{"equal strings", String("a"), String("a"), true},
		{"different strings", String("a"), String("b"), false},
		{"equal numbers", Number(1), Number(1), true},
		{"number vs string", Number(1), String("1"), false},
		{"null equals null", Null, Null, true},
		{"equal objects", Object(map[string]VariableValue{"x": Number(1)}), Object(map[string]VariableValue{"x": Number(1)}), true},
		{"objects differ by value", Object(map[string]VariableValue{"x": Number(1)}), Object(map[string]VariableValue{"x": Number(2)}), false},
		{"objects differ by key count", Object(map[string]VariableValue{"x": Number(1)}), Object(map[string]VariableValue{"x": Number(1), "y": Null}), false},
		{"equal arrays", Array([]VariableValue{String("a"), Number(2)}), Array([]VariableValue{String("a"), Number(2)}), true},
		{"arrays differ by order", Array([]VariableValue{String("a"), Number(2)}), Array([]VariableValue{Number(2), String("a")}), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.a.Equal(c.b); got != c.want {
				t.Errorf("Equal() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestVariableValueToNativeFromNativeRoundTrip(t *testing.T) {
	original := Object(map[string]VariableValue{
		"name":   String("alice"),
		"age":    Number(30),
		"active": Boolean(true),
		"tags":   Array([]VariableValue{String("a"), String("b")}),
		"meta":   Null,
	})
	roundTripped := FromNative(original.ToNative())
	if !original.Equal(roundTripped) {
		t.Errorf("round trip produced a different value: %+v vs %+v", original.ToNative(), roundTripped.ToNative())
	}
}

func TestObjectAndArrayAreDefensivelyCopied(t *testing.T) {
	fields := map[string]VariableValue{"x": Number(1)}
	v := Object(fields)
	fields["x"] = Number(999)
	if got, _ := v.Field("x"); !got.Equal(Number(1)) {
		t.Errorf("Object value was mutated by changing the source map: got %v", got.ToNative())
	}

	items := []VariableValue{Number(1)}
	arr := Array(items)
	items[0] = Number(999)
	out, _ := arr.AsArray()
	if !out[0].Equal(Number(1)) {
		t.Errorf("Array value was mutated by changing the source slice: got %v", out[0].ToNative())
	}
}

func TestEstimatedSize(t *testing.T) {
	if Null.EstimatedSize() == 0 {
		t.Errorf("Null should contribute a nonzero scalar weight")
	}
	small := String("ab")
	large := String("abcdefghij")
	if small.EstimatedSize() >= large.EstimatedSize() {
		t.Errorf("longer string should have a larger estimated size")
	}
	obj := Object(map[string]VariableValue{"a": String("xx"), "b": String("yy")})
	if obj.EstimatedSize() <= String("xx").EstimatedSize() {
		t.Errorf("object size should account for all fields, got %d", obj.EstimatedSize())
	}
}

func TestVariableValueJSONRoundTrip(t *testing.T) {
	v := Object(map[string]VariableValue{"a": Number(1), "b": Array([]VariableValue{String("x")})})
	data, err := v.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	var decoded VariableValue
	if err := decoded.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}
	if !v.Equal(decoded) {
		t.Errorf("JSON round trip produced a different value: %v vs %v", v.ToNative(), decoded.ToNative())
	}
}

package runtime

// PropertyKind discriminates the variants of ComponentProperty.
type PropertyKind int

const (
	PropString PropertyKind = iota
	PropNumber
	PropBoolean
	PropExpression
	PropObject
	PropArray
)

// ComponentProperty is the tagged sum backing a Component's declared
// properties. It distinguishes literal values, which are
// used as-is, from Expression properties, which must be evaluated
// against an ExecutionContext by the expression evaluator before use.
type ComponentProperty struct {
	kind PropertyKind
	str  string // literal string, or the expression source for PropExpression
	num  float64
	b    bool
	obj  map[string]ComponentProperty
	arr  []ComponentProperty
}

func PropertyString(s string) ComponentProperty { return ComponentProperty{kind: PropString, str: s} }
func PropertyNumber(n float64) ComponentProperty { return ComponentProperty{kind: PropNumber, num: n} }
func PropertyBoolean(b bool) ComponentProperty   { return ComponentProperty{kind: PropBoolean, b: b} }
func PropertyExpression(src string) ComponentProperty {
	return ComponentProperty{kind: PropExpression, str: src}
}

func PropertyObject(fields map[string]ComponentProperty) ComponentProperty {
	copied := make(map[string]ComponentProperty, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return ComponentProperty{kind: PropObject, obj: copied}
}

func PropertyArray(items []ComponentProperty) ComponentProperty {
	copied := make([]ComponentProperty, len(items))
	copy(copied, items)
	return ComponentProperty{kind: PropArray, arr: copied}
}

func (p ComponentProperty) Kind() PropertyKind { return p.kind }

// IsExpression reports whether this property must be evaluated against a
// context rather than used literally.
func (p ComponentProperty) IsExpression() bool { return p.kind == PropExpression }

// ExpressionSource returns the raw expression text for a PropExpression
// property.
func (p ComponentProperty) ExpressionSource() (string, bool) {
	if p.kind != PropExpression {
		return "", false
	}
	return p.str, true
}

// Literal converts a non-expression property directly into a
// VariableValue. Calling Literal on a PropExpression property is a
// programming error (expressions must go through the evaluator) and
// returns Null.
func (p ComponentProperty) Literal() VariableValue {
	switch p.kind {
	case PropString:
		return String(p.str)
	case PropNumber:
		return Number(p.num)
	case PropBoolean:
		return Boolean(p.b)
	case PropObject:
		fields := make(map[string]VariableValue, len(p.obj))
		for k, v := range p.obj {
			fields[k] = v.Literal()
		}
		return Object(fields)
	case PropArray:
		items := make([]VariableValue, len(p.arr))
		for i, v := range p.arr {
			items[i] = v.Literal()
		}
		return Array(items)
	default:
		return Null
	}
}

// PropertyFromNative builds a ComponentProperty tree from a decoded
// document value (map[string]any/[]any/scalars), recognizing the
// `${...}` wrapper convention for expressions: a plain string wrapped as
// `${expr}` becomes a PropExpression carrying `expr`; any other string is
// a literal.
func PropertyFromNative(v any) ComponentProperty {
	switch val := v.(type) {
	case nil:
		return PropertyString("")
	case string:
		if src, ok := stripExpressionWrapper(val); ok {
			return PropertyExpression(src)
		}
		return PropertyString(val)
	case bool:
		return PropertyBoolean(val)
	case float64:
		return PropertyNumber(val)
	case int:
		return PropertyNumber(float64(val))
	case map[string]any:
		fields := make(map[string]ComponentProperty, len(val))
		for k, f := range val {
			fields[k] = PropertyFromNative(f)
		}
		return PropertyObject(fields)
	case []any:
		items := make([]ComponentProperty, len(val))
		for i, f := range val {
			items[i] = PropertyFromNative(f)
		}
		return PropertyArray(items)
	default:
		return PropertyString("")
	}
}

// stripExpressionWrapper recognizes the `${...}` convention used by flow
// documents to mark a property as a deferred expression.
func stripExpressionWrapper(s string) (string, bool) {
	if len(s) > 3 && s[:2] == "${" && s[len(s)-1] == '}' {
		return s[2 : len(s)-1], true
	}
	return "", false
}

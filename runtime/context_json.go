package runtime

import "encoding/json"

// contextDocument is ExecutionContext's persisted wire shape, used by
// hosts that checkpoint a paused execution and hand it back to
// Executor.Resume later. The unexported variables map and output-name
// filter round-trip through it.
type contextDocument struct {
	FlowID             string                   `json:"flowId"`
	ExecutionID        string                   `json:"executionId"`
	CurrentComponentID string                   `json:"currentComponentId,omitempty"`
	Variables          map[string]VariableValue `json:"variables"`
	ExecutionStack     []stackFrameDocument     `json:"executionStack,omitempty"`
	AuditTrail         []auditEntryDocument     `json:"auditTrail,omitempty"`
	Metadata           map[string]string        `json:"metadata,omitempty"`
	Status             Status                   `json:"status"`
	OutputNames        []string                 `json:"outputNames,omitempty"`
}

type stackFrameDocument struct {
	ComponentID   string        `json:"componentId"`
	ComponentType ComponentType `json:"componentType"`
	EnteredAtMs   int64         `json:"enteredAtMs"`
	ExitedAtMs    int64         `json:"exitedAtMs,omitempty"`
}

type auditEntryDocument struct {
	TimestampMs     int64                    `json:"timestampMs"`
	ComponentID     string                   `json:"componentId,omitempty"`
	Action          AuditAction              `json:"action"`
	ContextSnapshot map[string]VariableValue `json:"contextSnapshot,omitempty"`
	Result          string                   `json:"result,omitempty"`
	Message         string                   `json:"message,omitempty"`
}

// MarshalJSON persists the context, including the variables map hidden
// behind the copy-on-write wrapper.
func (c ExecutionContext) MarshalJSON() ([]byte, error) {
	doc := contextDocument{
		FlowID:             c.FlowID,
		ExecutionID:        c.ExecutionID,
		CurrentComponentID: c.CurrentComponentID,
		Variables:          c.Variables(),
		Metadata:           c.Metadata,
		Status:             c.Status,
		OutputNames:        c.outputNames,
	}
	for _, f := range c.ExecutionStack {
		doc.ExecutionStack = append(doc.ExecutionStack, stackFrameDocument(f))
	}
	for _, a := range c.AuditTrail {
		doc.AuditTrail = append(doc.AuditTrail, auditEntryDocument(a))
	}
	return json.Marshal(doc)
}

// UnmarshalJSON rebuilds a context from its persisted form. The result
// is a fresh snapshot: no structural sharing with whatever context was
// originally marshalled, which is exactly what a resumed run needs.
func (c *ExecutionContext) UnmarshalJSON(data []byte) error {
	var doc contextDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	restored := ExecutionContext{
		FlowID:             doc.FlowID,
		ExecutionID:        doc.ExecutionID,
		CurrentComponentID: doc.CurrentComponentID,
		variables:          newVarMap(),
		Metadata:           doc.Metadata,
		Status:             doc.Status,
		outputNames:        doc.OutputNames,
	}
	if restored.Metadata == nil {
		restored.Metadata = map[string]string{}
	}
	restored = restored.WithVariables(doc.Variables)
	for _, f := range doc.ExecutionStack {
		restored.ExecutionStack = append(restored.ExecutionStack, StackFrame(f))
	}
	for _, a := range doc.AuditTrail {
		restored.AuditTrail = append(restored.AuditTrail, AuditEntry(a))
	}
	*c = restored
	return nil
}

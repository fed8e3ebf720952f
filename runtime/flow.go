package runtime

import "fmt"

// Flow is a directed graph of Components linked by Connections. Flow
// values are treated as immutable once constructed: NewFlow validates
// every structural invariant up front so a *Flow handed to the
// executor never needs re-checking mid-run.
type Flow struct {
	ID          string
	Name        string
	Version     string
	Components  []Component
	Connections []Connection
	Metadata    map[string]string

	byID       map[string]Component
	startID    string
	endIDs     map[string]bool
	inbound    map[string][]Connection // targetComponentID -> connections landing on it
	outbound   map[string][]Connection // sourceComponentID -> connections leaving it
}

// NewFlow validates and constructs a Flow. All six structural
// invariants are checked here; construction fails loudly rather than
// producing a graph an executor could get stuck on.
func NewFlow(id, name, version string, components []Component, connections []Connection, metadata map[string]string) (*Flow, error) {
	f := &Flow{
		ID:          id,
		Name:        name,
		Version:     version,
		Components:  append([]Component(nil), components...),
		Connections: append([]Connection{}, connections...),
		Metadata:    metadata,
	}
	if err := f.build(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Flow) build() error {
	f.byID = make(map[string]Component, len(f.Components))
	f.endIDs = make(map[string]bool)
	f.inbound = make(map[string][]Connection)
	f.outbound = make(map[string][]Connection)

	startCount := 0
	for _, c := range f.Components {
		if c.ID == "" {
			return fmt.Errorf("flow %s: component id must not be blank", f.ID)
		}
		if _, dup := f.byID[c.ID]; dup {
			return fmt.Errorf("flow %s: duplicate component id %q", f.ID, c.ID)
		}
		if err := c.validate(); err != nil {
			return fmt.Errorf("flow %s: %w", f.ID, err)
		}
		f.byID[c.ID] = c
		switch c.Type {
		case TypeStart:
			startCount++
			f.startID = c.ID
		case TypeEnd:
			f.endIDs[c.ID] = true
		}
	}

	// Invariant 1: exactly one START.
	if startCount != 1 {
		return fmt.Errorf("flow %s: must have exactly one START component, found %d", f.ID, startCount)
	}
	// Invariant 2: at least one END.
	if len(f.endIDs) == 0 {
		return fmt.Errorf("flow %s: must have at least one END component", f.ID)
	}

	connIDs := make(map[string]bool, len(f.Connections))
	fanout := make(map[string]int) // "componentID\x00portID" -> count
	for _, conn := range f.Connections {
		if err := conn.validate(); err != nil {
			return fmt.Errorf("flow %s: %w", f.ID, err)
		}
		// Invariant 3: unique connection ids.
		if connIDs[conn.ID] {
			return fmt.Errorf("flow %s: duplicate connection id %q", f.ID, conn.ID)
		}
		connIDs[conn.ID] = true

		// Invariant 4: connections reference existing components and ports.
		src, ok := f.byID[conn.SourceComponentID]
		if !ok {
			return fmt.Errorf("flow %s: connection %s references unknown source component %q", f.ID, conn.ID, conn.SourceComponentID)
		}
		tgt, ok := f.byID[conn.TargetComponentID]
		if !ok {
			return fmt.Errorf("flow %s: connection %s references unknown target component %q", f.ID, conn.ID, conn.TargetComponentID)
		}
		srcPort, ok := findPort(src, conn.SourcePortID)
		if !ok {
			return fmt.Errorf("flow %s: connection %s references unknown source port %q on %s", f.ID, conn.ID, conn.SourcePortID, src.ID)
		}
		tgtPort, ok := findPort(tgt, conn.TargetPortID)
		if !ok {
			return fmt.Errorf("flow %s: connection %s references unknown target port %q on %s", f.ID, conn.ID, conn.TargetPortID, tgt.ID)
		}

		// Invariant 5: source port OUTPUT, target port INPUT.
		if srcPort.Direction != DirectionOutput {
			return fmt.Errorf("flow %s: connection %s source port %q is not an OUTPUT port", f.ID, conn.ID, srcPort.ID)
		}
		if tgtPort.Direction != DirectionInput {
			return fmt.Errorf("flow %s: connection %s target port %q is not an INPUT port", f.ID, conn.ID, tgtPort.ID)
		}

		// Invariant 6: CONTROL outputs fan out at most once (FORK's
		// branch_N ports are each distinct ports, so this naturally
		// allows FORK to fan out across branches without exception code).
		if srcPort.Type == PortControl {
			key := src.ID + "\x00" + srcPort.ID
			fanout[key]++
			if fanout[key] > 1 {
				return fmt.Errorf("flow %s: CONTROL output %s.%s fans out to more than one connection", f.ID, src.ID, srcPort.ID)
			}
		}

		f.inbound[conn.TargetComponentID] = append(f.inbound[conn.TargetComponentID], conn)
		f.outbound[conn.SourceComponentID] = append(f.outbound[conn.SourceComponentID], conn)
	}

	return nil
}

func findPort(c Component, portID string) (Port, bool) {
	for _, p := range c.Ports() {
		if p.ID == portID {
			return p, true
		}
	}
	return Port{}, false
}

// Component looks up a component by id.
func (f *Flow) Component(id string) (Component, bool) {
	c, ok := f.byID[id]
	return c, ok
}

// StartComponentID returns the id of the flow's sole START component.
func (f *Flow) StartComponentID() string { return f.startID }

// IsEnd reports whether the given component id is an END component.
func (f *Flow) IsEnd(id string) bool { return f.endIDs[id] }

// OutgoingByPort returns the single connection leaving componentID on
// portID, if any. Flow construction guarantees at most one exists for
// CONTROL ports.
func (f *Flow) OutgoingByPort(componentID, portID string) (Connection, bool) {
	for _, conn := range f.outbound[componentID] {
		if conn.SourcePortID == portID {
			return conn, true
		}
	}
	return Connection{}, false
}

// Outgoing returns every connection leaving componentID.
func (f *Flow) Outgoing(componentID string) []Connection {
	return f.outbound[componentID]
}

// Incoming returns every connection landing on componentID. Used to
// determine a JOIN's fan-in, which is implied by topology rather than
// separately validated.
func (f *Flow) Incoming(componentID string) []Connection {
	return f.inbound[componentID]
}

package runtime

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// RunFork executes every branch of a FORK component as a task-per-branch
// goroutine, waits for the configured convergence (AND: every branch
// reaches the JOIN; OR: first branch wins and the rest are cancelled),
// merges the winning branch(es)' ExecutionContext, and returns the
// ExecutionContext already advanced past the JOIN's output port. It is
// the one place in the engine where goroutines and channels appear:
// one task per branch reporting into a result channel.
func RunFork(goCtx context.Context, flow *Flow, dispatcher *Dispatcher, limiter *ResourceLimiter, observer ExecutionObserver, execCtx ExecutionContext, forkComponent Component) (ExecutionContext, string, error) {
	branchCount := forkComponent.BranchCount()
	execID := execCtx.ExecutionID

	if limiter != nil {
		if err := limiter.RecordParallelBranches(execID, branchCount); err != nil {
			return execCtx, "", err
		}
	}

	targets := make([]string, branchCount)
	for i := 0; i < branchCount; i++ {
		portID := fmt.Sprintf("branch_%d", i)
		conn, ok := flow.OutgoingByPort(forkComponent.ID, portID)
		if !ok {
			return execCtx, "", newExecError(ErrNoOutgoingConnection, forkComponent.ID,
				fmt.Sprintf("FORK has no outgoing connection on port %q", portID), nil)
		}
		targets[i] = conn.TargetComponentID
	}

	branchGoCtx, cancel := context.WithCancel(goCtx)
	defer cancel()

	results := make(chan forkBranchResult, branchCount)
	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			branchCtx := execCtx.Fork(target)
			finalCtx, joinID, err := runUntilJoin(branchGoCtx, flow, dispatcher, limiter, observer, branchCtx, target)
			select {
			case results <- forkBranchResult{execCtx: finalCtx, branchHead: target, joinID: joinID, err: err}:
			case <-branchGoCtx.Done():
			}
		}(target)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var joinComp Component
	joinFound := false
	var timeoutCh <-chan time.Time
	var merges []forkBranchResult
	baseLen := len(execCtx.AuditTrail)

collect:
	for {
		select {
		case res, ok := <-results:
			if !ok {
				if !joinFound {
					return execCtx, "", newExecError(ErrInvalidSuccessor, forkComponent.ID,
						"no FORK branch reached a JOIN component", nil)
				}
				break collect
			}
			if res.err != nil {
				cancel()
				return execCtx, "", res.err
			}
			if !joinFound {
				joinFound = true
				joinComp, _ = flow.Component(res.joinID)
				if observer != nil {
					observer.OnEvent(ExecutionEvent{
						Kind:        EventComponentEnter,
						ExecutionID: execID,
						FlowID:      execCtx.FlowID,
						ComponentID: joinComp.ID,
						TimestampMs: NowMs(),
					})
				}
				if timeoutMs := joinComp.JoinTimeoutMs(); timeoutMs > 0 {
					timer := time.NewTimer(time.Duration(timeoutMs) * time.Millisecond)
					defer timer.Stop()
					timeoutCh = timer.C
				}
			}
			merges = append(merges, res)

			if joinComp.JoinMode() == JoinOR {
				cancel()
				break collect
			}
			expected := len(flow.Incoming(joinComp.ID))
			if expected == 0 {
				expected = branchCount
			}
			if len(merges) >= expected {
				break collect
			}
		case <-timeoutCh:
			cancel()
			return execCtx, "", newExecError(ErrJoinTimeout, joinComp.ID,
				fmt.Sprintf("JOIN timed out after %dms waiting for sibling branches", joinComp.JoinTimeoutMs()), nil)
		case <-goCtx.Done():
			cancel()
			return execCtx, "", newExecError(ErrCancelled, forkComponent.ID,
				"execution cancelled while waiting on FORK/JOIN", nil)
		}
	}

	finalCtx := mergeBranches(execCtx, merges, baseLen)
	// The merge is last-writer-wins over branch completion order; the
	// order is recorded here so a recorded schedule can reproduce it.
	order := make([]string, len(merges))
	for i, r := range merges {
		order[i] = r.branchHead
	}
	finalCtx = finalCtx.AppendAudit(AuditEntry{TimestampMs: NowMs(), ComponentID: joinComp.ID, Action: AuditComponentEnter,
		Message: fmt.Sprintf("merged branches in completion order: %s", strings.Join(order, ", "))})
	finalCtx = finalCtx.AppendAudit(AuditEntry{TimestampMs: NowMs(), ComponentID: joinComp.ID, Action: AuditComponentExit})

	if observer != nil {
		observer.OnEvent(ExecutionEvent{
			Kind:        EventComponentExit,
			ExecutionID: execID,
			FlowID:      execCtx.FlowID,
			ComponentID: joinComp.ID,
			Port:        PortOut,
			TimestampMs: NowMs(),
		})
	}

	conn, ok := flow.OutgoingByPort(joinComp.ID, PortOut)
	if !ok {
		return finalCtx, "", newExecError(ErrNoOutgoingConnection, joinComp.ID, "JOIN has no outgoing connection", nil)
	}
	finalCtx = finalCtx.WithCurrentComponent(conn.TargetComponentID)
	return finalCtx, conn.TargetComponentID, nil
}

// forkBranchResult is what a single FORK branch goroutine reports back
// to RunFork once it halts at a JOIN (or fails). branchHead is the
// first component of the branch, naming it in the merge-order audit
// entry.
type forkBranchResult struct {
	execCtx    ExecutionContext
	branchHead string
	joinID     string
	err        error
}

func mergeBranches(base ExecutionContext, merges []forkBranchResult, baseAuditLen int) ExecutionContext {
	merged := make(map[string]VariableValue)
	for _, r := range merges {
		for k, v := range r.execCtx.Variables() {
			if prev, ok := base.Variable(k); ok && prev.Equal(v) {
				continue // inherited from the parent, not written by this branch
			}
			merged[k] = v
		}
	}
	finalCtx := base.WithVariables(merged)

	var auditAppend []AuditEntry
	for _, r := range merges {
		if baseAuditLen <= len(r.execCtx.AuditTrail) {
			auditAppend = append(auditAppend, r.execCtx.AuditTrail[baseAuditLen:]...)
		}
	}
	finalCtx.AuditTrail = append(append([]AuditEntry{}, base.AuditTrail...), auditAppend...)
	return finalCtx
}

// runUntilJoin advances a single FORK branch, component by component,
// until it reaches a JOIN (returned as joinComponentID) or fails.
// Nested FORKs are handled recursively via RunFork so a branch may
// itself fan out before converging. Reaching an END without first
// reaching a JOIN is a graph-authoring error: every FORK branch must
// converge at a JOIN.
func runUntilJoin(goCtx context.Context, flow *Flow, dispatcher *Dispatcher, limiter *ResourceLimiter, observer ExecutionObserver, execCtx ExecutionContext, startComponentID string) (ExecutionContext, string, error) {
	currentID := startComponentID
	execID := execCtx.ExecutionID

	for {
		select {
		case <-goCtx.Done():
			return execCtx, "", newExecError(ErrCancelled, currentID, "branch cancelled", nil)
		default:
		}

		comp, ok := flow.Component(currentID)
		if !ok {
			return execCtx, "", fmt.Errorf("fork branch: unknown component %q", currentID)
		}
		if comp.Type == TypeJoin {
			return execCtx, currentID, nil
		}
		if flow.IsEnd(currentID) {
			return execCtx, "", newExecError(ErrInvalidSuccessor, currentID,
				"FORK branch reached END without converging at a JOIN", nil)
		}
		if !comp.Type.IsImplemented() {
			return execCtx, "", newExecError(ErrUnsupportedComponent, currentID,
				fmt.Sprintf("component type %s is not implemented", comp.Type), nil)
		}
		if limiter != nil {
			if err := limiter.RecordStep(execID); err != nil {
				return execCtx, "", err
			}
		}

		if comp.Type == TypeFork {
			nextCtx, nextID, err := RunFork(goCtx, flow, dispatcher, limiter, observer, execCtx, comp)
			if err != nil {
				return execCtx, "", err
			}
			execCtx = nextCtx
			currentID = nextID
			continue
		}

		nextCtx, outPort, err := dispatcher.Advance(goCtx, flow, comp, execCtx)
		if err != nil {
			return execCtx, "", err
		}
		conn, ok := flow.OutgoingByPort(currentID, outPort)
		if !ok {
			return execCtx, "", newExecError(ErrNoOutgoingConnection, currentID,
				fmt.Sprintf("no outgoing connection on port %q", outPort), nil)
		}
		execCtx = nextCtx.WithCurrentComponent(conn.TargetComponentID)
		currentID = conn.TargetComponentID
	}
}

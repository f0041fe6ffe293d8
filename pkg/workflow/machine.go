// Package workflow tracks workflow instances and drives their lifecycle
// through a fixed finite-state machine. Operations that the machine forbids
// are refused with structured responses; the transition table itself never
// changes at runtime.
package workflow

import (
	"strings"

	"github.com/looplab/fsm"

	"github.com/openswitchboard/switchboard/pkg/controlplane"
)

// Event names driving the state machine.
const (
	eventStart    = "start"
	eventPause    = "pause"
	eventResume   = "resume"
	eventComplete = "complete"
	eventFail     = "fail"
	eventCancel   = "cancel"
	eventRetry    = "retry"
	eventReset    = "reset"
)

// Machine holds the workflow transition table. The event list is the single
// source of truth; the lookup indexes are derived from it at construction.
// A Machine is immutable and safe for concurrent use.
type Machine struct {
	events  fsm.Events
	allowed map[controlplane.WorkflowStatus][]controlplane.WorkflowStatus
	byEdge  map[edge]string
}

type edge struct {
	from controlplane.WorkflowStatus
	to   controlplane.WorkflowStatus
}

// NewMachine builds the workflow state machine.
//
// The table reads: idle workflows can only start; running workflows can
// pause, complete, fail or be cancelled; paused workflows resume or cancel;
// completed workflows reset to idle; failed and cancelled workflows retry
// back to running or reset to idle.
func NewMachine() *Machine {
	events := fsm.Events{
		{Name: eventStart, Src: []string{string(controlplane.WorkflowStatusIdle)}, Dst: string(controlplane.WorkflowStatusRunning)},
		{Name: eventPause, Src: []string{string(controlplane.WorkflowStatusRunning)}, Dst: string(controlplane.WorkflowStatusPaused)},
		{Name: eventResume, Src: []string{string(controlplane.WorkflowStatusPaused)}, Dst: string(controlplane.WorkflowStatusRunning)},
		{Name: eventComplete, Src: []string{string(controlplane.WorkflowStatusRunning)}, Dst: string(controlplane.WorkflowStatusCompleted)},
		{Name: eventFail, Src: []string{string(controlplane.WorkflowStatusRunning)}, Dst: string(controlplane.WorkflowStatusFailed)},
		{Name: eventCancel, Src: []string{
			string(controlplane.WorkflowStatusRunning),
			string(controlplane.WorkflowStatusPaused),
		}, Dst: string(controlplane.WorkflowStatusCancelled)},
		{Name: eventRetry, Src: []string{
			string(controlplane.WorkflowStatusFailed),
			string(controlplane.WorkflowStatusCancelled),
		}, Dst: string(controlplane.WorkflowStatusRunning)},
		{Name: eventReset, Src: []string{
			string(controlplane.WorkflowStatusCompleted),
			string(controlplane.WorkflowStatusFailed),
			string(controlplane.WorkflowStatusCancelled),
		}, Dst: string(controlplane.WorkflowStatusIdle)},
	}

	m := &Machine{
		events:  events,
		allowed: make(map[controlplane.WorkflowStatus][]controlplane.WorkflowStatus),
		byEdge:  make(map[edge]string),
	}
	for _, ev := range events {
		dst := controlplane.WorkflowStatus(ev.Dst)
		for _, src := range ev.Src {
			from := controlplane.WorkflowStatus(src)
			m.allowed[from] = append(m.allowed[from], dst)
			m.byEdge[edge{from: from, to: dst}] = ev.Name
		}
	}
	return m
}

// IsValidTransition reports whether the table allows moving from one status
// to another. Pure lookup, no side effects.
func (m *Machine) IsValidTransition(from, to controlplane.WorkflowStatus) bool {
	_, ok := m.byEdge[edge{from: from, to: to}]
	return ok
}

// AllowedTransitions returns the statuses reachable from the given status,
// in table declaration order. Unknown statuses have no transitions.
func (m *Machine) AllowedTransitions(from controlplane.WorkflowStatus) []controlplane.WorkflowStatus {
	return append([]controlplane.WorkflowStatus(nil), m.allowed[from]...)
}

// EventFor returns the event name that performs the given transition.
func (m *Machine) EventFor(from, to controlplane.WorkflowStatus) (string, bool) {
	name, ok := m.byEdge[edge{from: from, to: to}]
	return name, ok
}

// NewInstance creates a per-workflow FSM starting at the given status.
func (m *Machine) NewInstance(initial controlplane.WorkflowStatus, callbacks fsm.Callbacks) *fsm.FSM {
	return fsm.NewFSM(string(initial), m.events, callbacks)
}

func formatStatuses(statuses []controlplane.WorkflowStatus) string {
	parts := make([]string, len(statuses))
	for i, s := range statuses {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}

package operation

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies the financial operation type an entity belongs to.
type Kind string

const (
	KindPayment           Kind = "PAYMENT"
	KindDevolution        Kind = "DEVOLUTION"
	KindInfraction        Kind = "INFRACTION"
	KindRefund            Kind = "REFUND"
	KindWarningDeposit    Kind = "WARNING_DEPOSIT"
	KindWarningDevolution Kind = "WARNING_DEVOLUTION"
	KindQRCode            Kind = "QRCODE"
)

// State represents operation state.
type State string

const (
	StatePending      State = "PENDING"
	StateWaiting      State = "WAITING"
	StateAcknowledged State = "ACKNOWLEDGED"
	StateRegistered   State = "REGISTERED"
	StateCompleted    State = "COMPLETED"
	StateClosed       State = "CLOSED"
	StateCancelled    State = "CANCELLED"
	StateReverted     State = "REVERTED"
	StateFailed       State = "FAILED"
)

// Failure records why an operation entered a terminal failure state.
// It is written once and never cleared.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Machine is the directed transition graph for one operation kind.
type Machine struct {
	transitions map[State][]State
	failure     map[State]bool
}

var machines = map[Kind]Machine{
	KindPayment: {
		transitions: map[State][]State{
			StatePending: {StateWaiting, StateReverted, StateFailed},
			StateWaiting: {StateCompleted, StateReverted, StateFailed},
		},
		failure: map[State]bool{StateReverted: true, StateFailed: true},
	},
	KindDevolution: {
		transitions: map[State][]State{
			StatePending: {StateCompleted, StateReverted, StateFailed},
		},
		failure: map[State]bool{StateReverted: true, StateFailed: true},
	},
	KindInfraction: {
		transitions: map[State][]State{
			StatePending:      {StateAcknowledged, StateCancelled, StateFailed},
			StateAcknowledged: {StateClosed, StateCancelled, StateFailed},
		},
		failure: map[State]bool{StateFailed: true},
	},
	KindRefund: {
		transitions: map[State][]State{
			StatePending: {StateWaiting, StateReverted, StateFailed},
			StateWaiting: {StateCompleted, StateReverted, StateFailed},
		},
		failure: map[State]bool{StateReverted: true, StateFailed: true},
	},
	KindWarningDeposit: {
		transitions: map[State][]State{
			StatePending: {StateCompleted, StateReverted, StateFailed},
		},
		failure: map[State]bool{StateReverted: true, StateFailed: true},
	},
	KindWarningDevolution: {
		transitions: map[State][]State{
			StatePending: {StateCompleted, StateFailed},
		},
		failure: map[State]bool{StateFailed: true},
	},
	KindQRCode: {
		transitions: map[State][]State{
			StatePending: {StateRegistered, StateFailed},
		},
		failure: map[State]bool{StateFailed: true},
	},
}

// MachineFor returns the transition graph for a kind.
func MachineFor(kind Kind) Machine {
	return machines[kind]
}

// CanTransition reports whether target is directly reachable from current.
func (m Machine) CanTransition(current, target State) bool {
	for _, s := range m.transitions[current] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the state.
func (m Machine) IsTerminal(s State) bool {
	return len(m.transitions[s]) == 0
}

// IsFailure reports whether the state is a terminal failure state.
func (m Machine) IsFailure(s State) bool {
	return m.failure[s]
}

// Entity is the persisted shape shared by all operation kinds.
type Entity struct {
	ID          uuid.UUID  `json:"id"`
	Kind        Kind       `json:"kind"`
	State       State      `json:"state"`
	Failed      *Failure   `json:"failed,omitempty"`
	AmountCents int64      `json:"amountCents"`
	EndToEndID  string     `json:"endToEndId"`
	ExternalID  *string    `json:"externalId,omitempty"`
	RequestID   string     `json:"requestId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// New creates a pending entity of the given kind.
func New(kind Kind, amountCents int64, endToEndID, requestID string) *Entity {
	now := time.Now().UTC()
	return &Entity{
		ID:          uuid.New(),
		Kind:        kind,
		State:       StatePending,
		AmountCents: amountCents,
		EndToEndID:  endToEndID,
		RequestID:   requestID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Apply moves the entity to target if the kind's graph allows it.
// It returns false and leaves the entity unchanged on an illegal or
// duplicate transition, and on any attempt to enter a failure state
// without a failure reason.
func (e *Entity) Apply(target State) bool {
	m := MachineFor(e.Kind)
	if !m.CanTransition(e.State, target) {
		return false
	}
	if m.IsFailure(target) {
		return false
	}
	e.State = target
	e.UpdatedAt = time.Now().UTC()
	return true
}

// ApplyFailed moves the entity to a terminal failure state, recording
// the failure reason. Non-failure targets are rejected; Failed is never
// overwritten once set.
func (e *Entity) ApplyFailed(target State, failure Failure) bool {
	m := MachineFor(e.Kind)
	if !m.CanTransition(e.State, target) {
		return false
	}
	if !m.IsFailure(target) {
		return false
	}
	e.State = target
	if e.Failed == nil {
		e.Failed = &failure
	}
	e.UpdatedAt = time.Now().UTC()
	return true
}

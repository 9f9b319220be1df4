package saga

import (
	"context"

	"github.com/settleflow/settleflow/internal/application/outbox"
	"github.com/settleflow/settleflow/internal/domain/operation"
)

// Outcome tags the result of a gateway dispatch. The handler pattern
// matches on it to choose success, dead-letter, or compensation; it
// never inspects error types.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeRetryable
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of one gateway dispatch.
type Result struct {
	Outcome Outcome
	// Err is set for OutcomeRetryable: a classified transient or
	// infrastructure error.
	Err error
	// Failure is set for OutcomeRejected: a translated business
	// rejection.
	Failure *operation.Failure
	// Derived carries events spawned by a successful dispatch, e.g. a
	// devolution opened while completing a payment. They are buffered
	// through the outbox with the entity transition.
	Derived []outbox.Event
}

// Ok builds a success result with optional derived events.
func Ok(derived ...outbox.Event) Result {
	return Result{Outcome: OutcomeOK, Derived: derived}
}

// Retryable builds an infrastructure-failure result.
func Retryable(err error) Result {
	return Result{Outcome: OutcomeRetryable, Err: err}
}

// Rejected builds a business-failure result.
func Rejected(failure operation.Failure) Result {
	return Result{Outcome: OutcomeRejected, Failure: &failure}
}

// Gateway invokes the external payment-scheme or exchange rail for one
// operation. Implementations classify their own errors into the tagged
// result; the handler only routes.
type Gateway interface {
	Dispatch(ctx context.Context, e *operation.Entity) Result
}

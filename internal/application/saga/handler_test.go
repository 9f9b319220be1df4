package saga

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/settleflow/settleflow/internal/application/outbox"
	"github.com/settleflow/settleflow/internal/domain/event"
	eventMocks "github.com/settleflow/settleflow/internal/domain/event/mocks"
	"github.com/settleflow/settleflow/internal/domain/ledger"
	ledgerMocks "github.com/settleflow/settleflow/internal/domain/ledger/mocks"
	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage/storagetest"
)

type stubGateway struct {
	result Result
	calls  int
}

func (g *stubGateway) Dispatch(context.Context, *operation.Entity) Result {
	g.calls++
	return g.result
}

func paymentConfig() Config {
	return Config{
		Kind:          operation.KindPayment,
		Domain:        "settlement",
		Entity:        "payment",
		SuccessState:  operation.StateWaiting,
		SuccessEvent:  "waiting",
		RevertedState: operation.StateReverted,
	}
}

func envelopeFor(e *operation.Entity) event.Envelope {
	value, _ := json.Marshal(map[string]any{"operationId": e.ID})
	return event.Envelope{
		Key:     e.EndToEndID,
		Headers: event.Headers{RequestID: e.RequestID},
		Value:   value,
	}
}

func TestHandleReceivedRoutesToDispatchTopic(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	store := storagetest.New()
	h := NewHandler(paymentConfig(), store, &stubGateway{}, pub, nil, zerolog.Nop())

	e := operation.New(operation.KindPayment, 1000, "E2E-1", "req-1")
	env := envelopeFor(e)

	pub.EXPECT().
		Publish(gomock.Any(), "settlement.payment.hub.dispatch", env).
		Return(nil)

	require.NoError(t, h.HandleReceived(context.Background(), env))
}

func TestHandleDispatchSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	store := storagetest.New()

	e := operation.New(operation.KindPayment, 1000, "E2E-2", "req-2")
	store.PutOperation(e)
	env := envelopeFor(e)

	derivedValue, _ := json.Marshal(map[string]any{"operationId": uuid.New()})
	derived := outbox.Event{
		Topic:    "settlement.devolution.pending",
		Envelope: event.Envelope{Key: "E2E-D", Value: derivedValue},
	}

	gw := &stubGateway{result: Ok(derived)}
	h := NewHandler(paymentConfig(), store, gw, pub, nil, zerolog.Nop())

	gomock.InOrder(
		pub.EXPECT().Publish(gomock.Any(), "settlement.payment.waiting", gomock.Any()).Return(nil),
		pub.EXPECT().Publish(gomock.Any(), "settlement.devolution.pending", derived.Envelope).Return(nil),
	)

	require.NoError(t, h.HandleDispatch(context.Background(), env))

	got := store.Operation(e.ID)
	assert.Equal(t, operation.StateWaiting, got.State)
	assert.Nil(t, got.Failed)
	assert.Equal(t, 1, gw.calls)
}

func TestHandleDispatchSkipsNonTransitionableEntity(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	store := storagetest.New()

	e := operation.New(operation.KindPayment, 1000, "E2E-3", "req-3")
	e.Apply(operation.StateWaiting)
	e.Apply(operation.StateCompleted)
	store.PutOperation(e)

	gw := &stubGateway{result: Ok()}
	h := NewHandler(paymentConfig(), store, gw, pub, nil, zerolog.Nop())

	// No publish expectations: a replayed event for a terminal entity
	// must not reach the gateway at all.
	require.NoError(t, h.HandleDispatch(context.Background(), envelopeFor(e)))
	assert.Zero(t, gw.calls)
	assert.Equal(t, operation.StateCompleted, store.Operation(e.ID).State)
}

func TestHandleDispatchInfraFailureDeadLetters(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	store := storagetest.New()

	e := operation.New(operation.KindPayment, 1000, "E2E-4", "req-4")
	store.PutOperation(e)
	env := envelopeFor(e)

	h := NewHandler(paymentConfig(), store, &stubGateway{result: Retryable(errors.New("rail timeout"))}, pub, nil, zerolog.Nop())

	// The original event is forwarded unchanged.
	pub.EXPECT().
		Publish(gomock.Any(), "settlement.payment.hub.deadletter", env).
		Return(nil)

	require.NoError(t, h.HandleDispatch(context.Background(), env))
	assert.Equal(t, operation.StatePending, store.Operation(e.ID).State)
}

func TestHandleDispatchBusinessRejectionEmitsCompensation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	store := storagetest.New()

	e := operation.New(operation.KindPayment, 1000, "E2E-5", "req-5")
	store.PutOperation(e)
	env := envelopeFor(e)

	failure := operation.Failure{Code: "AC04", Message: "account closed"}
	h := NewHandler(paymentConfig(), store, &stubGateway{result: Rejected(failure)}, pub, nil, zerolog.Nop())

	pub.EXPECT().
		Publish(gomock.Any(), "settlement.payment.hub.compensate", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, out event.Envelope) error {
			var p Payload
			require.NoError(t, json.Unmarshal(out.Value, &p))
			assert.Equal(t, e.ID, p.OperationID)
			require.NotNil(t, p.Failed)
			assert.Equal(t, "AC04", p.Failed.Code)
			return nil
		})

	require.NoError(t, h.HandleDispatch(context.Background(), env))
	// Compensation is applied by the downstream handler, not here.
	assert.Equal(t, operation.StatePending, store.Operation(e.ID).State)
}

func compensationEnvelope(e *operation.Entity, failure operation.Failure) event.Envelope {
	value, _ := json.Marshal(map[string]any{"operationId": e.ID, "failed": failure})
	return event.Envelope{Key: e.EndToEndID, Headers: event.Headers{RequestID: e.RequestID}, Value: value}
}

func TestHandleCompensationRevertsAndReversesLedgerOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	reversal := ledgerMocks.NewMockReversalGateway(ctrl)
	store := storagetest.New()

	e := operation.New(operation.KindPayment, 1000, "E2E-6", "req-6")
	store.PutOperation(e)
	entry := &ledger.Entry{
		ID:          uuid.New(),
		OperationID: e.ID,
		Direction:   ledger.DirectionCredit,
		AmountCents: 1000,
		CreatedAt:   time.Now().UTC(),
	}
	store.PutEntry(entry)

	h := NewHandler(paymentConfig(), store, &stubGateway{}, pub, reversal, zerolog.Nop())

	failure := operation.Failure{Code: "AC04", Message: "account closed"}
	env := compensationEnvelope(e, failure)

	reversal.EXPECT().Reverse(gomock.Any(), e.ID).Return(nil).Times(1)
	pub.EXPECT().Publish(gomock.Any(), "settlement.payment.reverted", env).Return(nil)

	require.NoError(t, h.HandleCompensation(context.Background(), env))

	got := store.Operation(e.ID)
	assert.Equal(t, operation.StateReverted, got.State)
	require.NotNil(t, got.Failed)
	assert.Equal(t, "AC04", got.Failed.Code)
	require.NotNil(t, store.Entry(entry.ID).ReversedAt)

	// Duplicate delivery: guarded no-op, no second reversal, no event.
	require.NoError(t, h.HandleCompensation(context.Background(), env))
}

func TestHandleCompensationWithoutLedgerEntrySkipsReversal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	reversal := ledgerMocks.NewMockReversalGateway(ctrl)
	store := storagetest.New()

	e := operation.New(operation.KindPayment, 1000, "E2E-7", "req-7")
	store.PutOperation(e)

	h := NewHandler(paymentConfig(), store, &stubGateway{}, pub, reversal, zerolog.Nop())
	env := compensationEnvelope(e, operation.Failure{Code: "AM04", Message: "insufficient funds"})

	pub.EXPECT().Publish(gomock.Any(), "settlement.payment.reverted", env).Return(nil)

	require.NoError(t, h.HandleCompensation(context.Background(), env))
	assert.Equal(t, operation.StateReverted, store.Operation(e.ID).State)
}

func TestHandleDispatchRollbackPublishesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	store := storagetest.New()

	e := operation.New(operation.KindPayment, 1000, "E2E-8", "req-8")
	store.PutOperation(e)
	store.UpdateErr = errors.New("connection reset")

	h := NewHandler(paymentConfig(), store, &stubGateway{result: Ok()}, pub, nil, zerolog.Nop())

	// No publish expectations: the buffered success event must be
	// discarded with the rolled-back transaction.
	require.Error(t, h.HandleDispatch(context.Background(), envelopeFor(e)))
	assert.Equal(t, operation.StatePending, store.Operation(e.ID).State)
}

func TestReplayerRequeuesDeadLetteredEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	r := NewReplayer("settlement", "payment", pub, zerolog.Nop())

	env := event.Envelope{Key: "E2E-9", Value: json.RawMessage(`{}`)}
	pub.EXPECT().Publish(gomock.Any(), "settlement.payment.hub.dispatch", env).Return(nil)

	require.NoError(t, r.Replay(context.Background(), env))
}

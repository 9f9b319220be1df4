package operations

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	eventMocks "github.com/settleflow/settleflow/internal/domain/event/mocks"
	"github.com/settleflow/settleflow/internal/domain/operation"
	"github.com/settleflow/settleflow/internal/domain/storage/storagetest"
)

func TestCreateOperationIsIdempotentPerEndToEndID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	store := storagetest.New()
	uc := NewCreateOperation(store, pub, "settlement", zerolog.Nop())

	pub.EXPECT().
		Publish(gomock.Any(), "settlement.payment.pending", gomock.Any()).
		Return(nil).
		Times(1)

	req := CreateRequest{
		Kind:        operation.KindPayment,
		AmountCents: 2_500,
		EndToEndID:  "E2E-10",
		RequestID:   "req-10",
	}
	first, err := uc.Execute(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, operation.StatePending, first.State)

	second, err := uc.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateOperationRejectsMalformedRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	uc := NewCreateOperation(storagetest.New(), eventMocks.NewMockPublisher(ctrl), "settlement", zerolog.Nop())

	_, err := uc.Execute(context.Background(), CreateRequest{Kind: operation.KindPayment})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = uc.Execute(context.Background(), CreateRequest{
		Kind:        operation.KindPayment,
		EndToEndID:  "E2E-11",
		AmountCents: -1,
	})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCompleteMutatesLedgerExactlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	pub := eventMocks.NewMockPublisher(ctrl)
	store := storagetest.New()
	uc := NewCompleteOperation(store, pub, "settlement", zerolog.Nop())

	e := operation.New(operation.KindPayment, 1_000, "E2E-12", "req-12")
	e.Apply(operation.StateWaiting)
	store.PutOperation(e)

	pub.EXPECT().
		Publish(gomock.Any(), "settlement.payment.completed", gomock.Any()).
		Return(nil).
		Times(1)

	resp, err := uc.Execute(context.Background(), CompleteRequest{OperationID: e.ID, RequestID: "req-12"})
	require.NoError(t, err)
	assert.True(t, resp.Changed)
	assert.Equal(t, operation.StateCompleted, resp.Entity.State)

	entry, err := store.Ledger().GetByOperationID(context.Background(), e.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, int64(1_000), entry.AmountCents)

	// Second delivery of the same completed event: guarded no-op.
	resp, err = uc.Execute(context.Background(), CompleteRequest{OperationID: e.ID, RequestID: "req-12"})
	require.NoError(t, err)
	assert.False(t, resp.Changed)

	again, err := store.Ledger().GetByOperationID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)
}

func TestCompleteUnknownOperation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	uc := NewCompleteOperation(storagetest.New(), eventMocks.NewMockPublisher(ctrl), "settlement", zerolog.Nop())

	e := operation.New(operation.KindPayment, 1, "E2E-13", "req-13")
	_, err := uc.Execute(context.Background(), CompleteRequest{OperationID: e.ID})
	require.ErrorIs(t, err, ErrOperationNotFound)
}

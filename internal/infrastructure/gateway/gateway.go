// Package gateway is the HTTP client for the settlement rail. Dispatch
// outcomes are classified for the saga: transport and server errors are
// retryable, business rejections carry the rail's failure code.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/settleflow/settleflow/internal/application/saga"
	"github.com/settleflow/settleflow/internal/domain/operation"
)

// Client talks to one settlement rail.
type Client struct {
	baseURL string
	http    *http.Client
	logger  zerolog.Logger
}

// NewClient creates a rail client.
func NewClient(baseURL string, logger zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With().Str("service", "rail-gateway").Logger(),
	}
}

type dispatchRequest struct {
	OperationID string `json:"operationId"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amountCents"`
	EndToEndID  string `json:"endToEndId"`
}

type rejectionResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Dispatch submits the operation to the rail.
func (c *Client) Dispatch(ctx context.Context, e *operation.Entity) saga.Result {
	body, err := json.Marshal(dispatchRequest{
		OperationID: e.ID.String(),
		Kind:        string(e.Kind),
		AmountCents: e.AmountCents,
		EndToEndID:  e.EndToEndID,
	})
	if err != nil {
		return saga.Retryable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/operations", bytes.NewReader(body))
	if err != nil {
		return saga.Retryable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", e.EndToEndID)

	resp, err := c.http.Do(req)
	if err != nil {
		return saga.Retryable(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return saga.Ok()
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var rejection rejectionResponse
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &rejection); err != nil || rejection.Code == "" {
			rejection = rejectionResponse{Code: "REJECTED", Message: string(data)}
		}
		return saga.Rejected(operation.Failure{Code: rejection.Code, Message: rejection.Message})
	default:
		return saga.Retryable(fmt.Errorf("rail returned status %d", resp.StatusCode))
	}
}

// Reverse issues a compensating reversal for an operation whose funds
// already moved. The rail treats the operation id as the idempotency
// key, so a redelivered compensation cannot double-reverse.
func (c *Client) Reverse(ctx context.Context, operationID uuid.UUID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/operations/"+operationID.String()+"/reverse", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Idempotency-Key", operationID.String())

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("rail reversal returned status %d", resp.StatusCode)
	}
	c.logger.Info().Str("operation", operationID.String()).Msg("ledger reversal issued")
	return nil
}

package acquirer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"paygate-backend/internal/domains/payment/model"
	"paygate-backend/internal/shared/errcodes"
)

// ================================================
// HTTP ACQUIRER (for production)
// ================================================
// Talks to the card processor over its REST API. Declines come back as
// payment errors carrying the processor's code so the retry policies
// can classify them.

type HTTPAcquirer struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPAcquirer(baseURL, apiKey string, timeout time.Duration) *HTTPAcquirer {
	return &HTTPAcquirer{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type authorizeRequest struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

type authorizeResponse struct {
	Approved bool   `json:"approved"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Status   string `json:"status"`
}

// Authorize implements payment service Authorizer.
func (a *HTTPAcquirer) Authorize(ctx context.Context, payment *model.Payment) error {
	resp, err := a.post(ctx, "/v1/authorize", authorizeRequest{
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
		Amount:    payment.Amount,
		Currency:  payment.Currency,
	})
	if err != nil {
		return err
	}
	if resp.Approved {
		return nil
	}

	code := resp.Code
	if code == "" {
		code = errcodes.BankDeclined
	}
	return model.NewPaymentError(code, resp.Message, nil)
}

// Reconcile implements payment service Reconciler. It asks the
// processor for its view of the payment and maps it onto our status
// set; an empty answer means the states already agree.
func (a *HTTPAcquirer) Reconcile(ctx context.Context, payment *model.Payment) (model.Status, error) {
	resp, err := a.post(ctx, "/v1/status", authorizeRequest{
		PaymentID: payment.PaymentID,
		OrderID:   payment.OrderID,
	})
	if err != nil {
		return "", err
	}

	switch resp.Status {
	case "authorized":
		if payment.Status != model.StatusAuthorized {
			return model.StatusAuthorized, nil
		}
	case "declined":
		if payment.Status != model.StatusAuthFail {
			return model.StatusAuthFail, nil
		}
	}
	return "", nil
}

func (a *HTTPAcquirer) post(ctx context.Context, path string, body authorizeRequest) (*authorizeResponse, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode acquirer request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build acquirer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("acquirer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("acquirer answered status %d", resp.StatusCode)
	}

	var decoded authorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode acquirer response: %w", err)
	}
	return &decoded, nil
}

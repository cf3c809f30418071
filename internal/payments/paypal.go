package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// PayPalGateway captures payments through the PayPal orders API.
type PayPalGateway struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewPayPalGateway(baseURL, apiKey string) *PayPalGateway {
	return &PayPalGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *PayPalGateway) do(ctx context.Context, path, requestID string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("paypal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("paypal: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}

	res, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("paypal: read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("paypal: %s: %s", res.Status, body)
	}
	return string(body), nil
}

func (g *PayPalGateway) Charge(ctx context.Context, amount float64, currency, idempotencyKey string, metadata map[string]string) (*ChargeResult, error) {
	payload := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"amount": map[string]string{
				"currency_code": strings.ToUpper(currency),
				"value":         fmt.Sprintf("%.2f", amount),
			},
			"custom_id": metadata["payment_id"],
		}},
	}

	raw, err := g.do(ctx, "/v2/checkout/orders", idempotencyKey, payload)
	if err != nil {
		return nil, err
	}

	id, err := jsonStringField(raw, "id")
	if err != nil {
		return nil, fmt.Errorf("paypal: %w", err)
	}
	return &ChargeResult{TransactionID: id, RawResponse: raw}, nil
}

func (g *PayPalGateway) Refund(ctx context.Context, transactionID string, amount float64) (*RefundResult, error) {
	payload := map[string]any{
		"amount": map[string]string{
			"value": fmt.Sprintf("%.2f", amount),
		},
	}

	raw, err := g.do(ctx, "/v2/payments/captures/"+transactionID+"/refund", "", payload)
	if err != nil {
		return nil, err
	}
	return &RefundResult{RawResponse: raw}, nil
}

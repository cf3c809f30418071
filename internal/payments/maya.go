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

// MayaGateway charges through the Maya payments API.
type MayaGateway struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewMayaGateway(baseURL, apiKey string) *MayaGateway {
	return &MayaGateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *MayaGateway) do(ctx context.Context, path, requestID string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("maya: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("maya: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("Request-Reference-Number", requestID)
	}

	res, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("maya: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("maya: read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("maya: %s: %s", res.Status, body)
	}
	return string(body), nil
}

func (g *MayaGateway) Charge(ctx context.Context, amount float64, currency, idempotencyKey string, metadata map[string]string) (*ChargeResult, error) {
	payload := map[string]any{
		"totalAmount": map[string]any{
			"value":    amount,
			"currency": strings.ToUpper(currency),
		},
		"metadata": metadata,
	}

	raw, err := g.do(ctx, "/payments/v1/payments", idempotencyKey, payload)
	if err != nil {
		return nil, err
	}

	id, err := jsonStringField(raw, "paymentId")
	if err != nil {
		return nil, fmt.Errorf("maya: %w", err)
	}
	return &ChargeResult{TransactionID: id, RawResponse: raw}, nil
}

func (g *MayaGateway) Refund(ctx context.Context, transactionID string, amount float64) (*RefundResult, error) {
	payload := map[string]any{
		"totalAmount": map[string]any{"value": amount},
		"reason":      "customer refund",
	}

	raw, err := g.do(ctx, "/payments/v1/payments/"+transactionID+"/refunds", "", payload)
	if err != nil {
		return nil, err
	}
	return &RefundResult{RawResponse: raw}, nil
}

// jsonStringField pulls one top-level string field out of a raw gateway
// response.
func jsonStringField(raw, field string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	v, ok := m[field].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("response missing %q", field)
	}
	return v, nil
}

package payments

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// StripeGateway charges through the Stripe charges API. Amounts are sent
// in the smallest currency unit, as Stripe expects.
type StripeGateway struct {
	BaseURL   string
	SecretKey string
	Client    *http.Client
}

func NewStripeGateway(baseURL, secretKey string) *StripeGateway {
	return &StripeGateway{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		SecretKey: secretKey,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (g *StripeGateway) do(ctx context.Context, method, path, idempotencyKey string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("stripe: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	res, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("stripe: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("stripe: read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return "", fmt.Errorf("stripe: %s: %s", res.Status, body)
	}
	return string(body), nil
}

func (g *StripeGateway) Charge(ctx context.Context, amount float64, currency, idempotencyKey string, metadata map[string]string) (*ChargeResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(int64(math.Round(amount*100)), 10))
	form.Set("currency", strings.ToLower(currency))
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}

	raw, err := g.do(ctx, http.MethodPost, "/v1/charges", idempotencyKey, form)
	if err != nil {
		return nil, err
	}

	id, err := jsonStringField(raw, "id")
	if err != nil {
		return nil, fmt.Errorf("stripe: %w", err)
	}
	return &ChargeResult{TransactionID: id, RawResponse: raw}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, transactionID string, amount float64) (*RefundResult, error) {
	form := url.Values{}
	form.Set("charge", transactionID)
	form.Set("amount", strconv.FormatInt(int64(math.Round(amount*100)), 10))

	raw, err := g.do(ctx, http.MethodPost, "/v1/refunds", "", form)
	if err != nil {
		return nil, err
	}
	return &RefundResult{RawResponse: raw}, nil
}

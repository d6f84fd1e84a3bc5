package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrStripeNotConfigured = errors.New("stripe_not_configured")

type stripeCharge struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Paid   bool   `json:"paid"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type stripeErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// StripeGateway charges and refunds through the Stripe HTTP API using
// form-encoded requests.
type StripeGateway struct {
	apiKey string
	client *http.Client
}

func NewStripe(apiKey string) *StripeGateway {
	return &StripeGateway{
		apiKey: strings.TrimSpace(apiKey),
		client: &http.Client{Timeout: 12 * time.Second},
	}
}

func (g *StripeGateway) Provider() string { return "stripe" }

func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) (Confirmation, error) {
	values := url.Values{}
	values.Set("amount", strconv.FormatInt(toMinorUnits(req.Amount), 10))
	values.Set("currency", strings.ToLower(req.Currency))
	values.Set("source", "tok_invoice")
	values.Set("description", req.Description)
	values.Set("metadata[invoice_id]", req.InvoiceID)
	values.Set("metadata[customer_id]", req.CustomerID)

	var charge stripeCharge
	err := g.doRequest(ctx, "/v1/charges", values, "invoice:"+req.InvoiceID, &charge)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{
		Reference: charge.ID,
		Approved:  charge.Paid || charge.Status == "succeeded",
		Message:   charge.Status,
	}, nil
}

func (g *StripeGateway) Refund(ctx context.Context, reference string, amount decimal.Decimal, currency string) (Confirmation, error) {
	values := url.Values{}
	values.Set("charge", reference)
	values.Set("amount", strconv.FormatInt(toMinorUnits(amount), 10))

	var refund stripeRefund
	err := g.doRequest(ctx, "/v1/refunds", values, "refund:"+reference, &refund)
	if err != nil {
		return Confirmation{}, err
	}
	return Confirmation{
		Reference: refund.ID,
		Approved:  refund.Status == "succeeded" || refund.Status == "pending",
		Message:   refund.Status,
	}, nil
}

func (g *StripeGateway) doRequest(
	ctx context.Context,
	path string,
	values url.Values,
	idempotencyKey string,
	out any,
) error {
	if g.apiKey == "" {
		return ErrStripeNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.stripe.com"+path, strings.NewReader(values.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var stripeErr stripeErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&stripeErr); err != nil || stripeErr.Error.Message == "" {
			return errors.New("stripe request failed with status " + strconv.Itoa(resp.StatusCode))
		}
		return errors.New(stripeErr.Error.Message)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// toMinorUnits converts a major-unit amount to the integer minor units the
// Stripe API expects.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

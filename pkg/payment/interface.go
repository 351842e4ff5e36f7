package payment

import (
	"context"
)

// Gateway abstracts the external payment provider. All amounts are integer
// minor currency units. Calls carry an idempotency key derived from the
// owning transaction id so a retried call cannot double-charge.
type Gateway interface {
	Authorize(ctx context.Context, request *AuthorizeRequest) (*AuthorizeResponse, error)
	Capture(ctx context.Context, authRef string) error
	CancelAuthorization(ctx context.Context, authRef string) error
	Refund(ctx context.Context, request *RefundRequest) (*RefundResponse, error)
	Payout(ctx context.Context, request *PayoutRequest) (*PayoutResponse, error)
}

type AuthorizeRequest struct {
	CustomerRef     string            `json:"customer_ref"`
	PaymentMethodID string            `json:"payment_method_id"`
	AmountMinor     int64             `json:"amount_minor"`
	Currency        string            `json:"currency"`
	Description     string            `json:"description"`
	IdempotencyKey  string            `json:"idempotency_key"`
	Metadata        map[string]string `json:"metadata"`
}

type AuthorizeResponse struct {
	AuthRef      string `json:"auth_ref"`
	Status       string `json:"status"`
	AmountMinor  int64  `json:"amount_minor"`
	Currency     string `json:"currency"`
	ClientSecret string `json:"client_secret,omitempty"`
	CreatedAt    int64  `json:"created_at"`
}

type RefundRequest struct {
	AuthRef        string `json:"auth_ref"`
	AmountMinor    int64  `json:"amount_minor"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key"`
}

type RefundResponse struct {
	RefundRef   string `json:"refund_ref"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	CreatedAt   int64  `json:"created_at"`
}

type PayoutRequest struct {
	DestinationRef string `json:"destination_ref"`
	AmountMinor    int64  `json:"amount_minor"`
	Currency       string `json:"currency"`
	IdempotencyKey string `json:"idempotency_key"`
}

type PayoutResponse struct {
	PayoutRef   string `json:"payout_ref"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amount_minor"`
	Currency    string `json:"currency"`
	CreatedAt   int64  `json:"created_at"`
}

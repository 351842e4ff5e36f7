package payment

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type StripeGateway struct {
	client *client.API
}

func NewStripeGateway(secretKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(secretKey, nil)

	return &StripeGateway{
		client: sc,
	}
}

func (s *StripeGateway) Authorize(ctx context.Context, request *AuthorizeRequest) (*AuthorizeResponse, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(request.AmountMinor),
		Currency:      stripe.String(request.Currency),
		Customer:      stripe.String(request.CustomerRef),
		PaymentMethod: stripe.String(request.PaymentMethodID),
		Description:   stripe.String(request.Description),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
		Confirm:       stripe.Bool(true),
	}
	if request.IdempotencyKey != "" {
		params.SetIdempotencyKey(request.IdempotencyKey)
	}
	for key, value := range request.Metadata {
		params.AddMetadata(key, value)
	}

	pi, err := s.client.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	return &AuthorizeResponse{
		AuthRef:      pi.ID,
		Status:       string(pi.Status),
		AmountMinor:  pi.Amount,
		Currency:     string(pi.Currency),
		ClientSecret: pi.ClientSecret,
		CreatedAt:    pi.Created,
	}, nil
}

func (s *StripeGateway) Capture(ctx context.Context, authRef string) error {
	_, err := s.client.PaymentIntents.Capture(authRef, &stripe.PaymentIntentCaptureParams{})
	if err != nil {
		return fmt.Errorf("failed to capture payment intent: %w", err)
	}
	return nil
}

func (s *StripeGateway) CancelAuthorization(ctx context.Context, authRef string) error {
	_, err := s.client.PaymentIntents.Cancel(authRef, &stripe.PaymentIntentCancelParams{})
	if err != nil {
		return fmt.Errorf("failed to cancel payment intent: %w", err)
	}
	return nil
}

func (s *StripeGateway) Refund(ctx context.Context, request *RefundRequest) (*RefundResponse, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(request.AuthRef),
	}
	if request.AmountMinor > 0 {
		params.Amount = stripe.Int64(request.AmountMinor)
	}
	if request.Reason != "" {
		params.AddMetadata("reason", request.Reason)
	}
	if request.IdempotencyKey != "" {
		params.SetIdempotencyKey(request.IdempotencyKey)
	}

	refund, err := s.client.Refunds.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	return &RefundResponse{
		RefundRef:   refund.ID,
		Status:      string(refund.Status),
		AmountMinor: refund.Amount,
		Currency:    string(refund.Currency),
		CreatedAt:   refund.Created,
	}, nil
}

func (s *StripeGateway) Payout(ctx context.Context, request *PayoutRequest) (*PayoutResponse, error) {
	params := &stripe.PayoutParams{
		Amount:      stripe.Int64(request.AmountMinor),
		Currency:    stripe.String(request.Currency),
		Destination: stripe.String(request.DestinationRef),
	}
	if request.IdempotencyKey != "" {
		params.SetIdempotencyKey(request.IdempotencyKey)
	}

	payout, err := s.client.Payouts.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	return &PayoutResponse{
		PayoutRef:   payout.ID,
		Status:      string(payout.Status),
		AmountMinor: payout.Amount,
		Currency:    string(payout.Currency),
		CreatedAt:   payout.Created,
	}, nil
}

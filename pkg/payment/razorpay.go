package payment

import (
	"context"
	"fmt"

	"github.com/razorpay/razorpay-go"
)

type RazorpayGateway struct {
	client *razorpay.Client
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		client: razorpay.NewClient(keyID, keySecret),
	}
}

func (r *RazorpayGateway) Authorize(ctx context.Context, request *AuthorizeRequest) (*AuthorizeResponse, error) {
	// Razorpay authorizes on the client side; the order created here is what
	// the frontend confirms against.
	orderData := map[string]interface{}{
		"amount":          request.AmountMinor,
		"currency":        request.Currency,
		"receipt":         request.IdempotencyKey,
		"payment_capture": 0,
	}
	if request.Metadata != nil {
		notes := map[string]interface{}{}
		for k, v := range request.Metadata {
			notes[k] = v
		}
		orderData["notes"] = notes
	}

	order, err := r.client.Order.Create(orderData, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	return &AuthorizeResponse{
		AuthRef:     order["id"].(string),
		Status:      "created",
		AmountMinor: request.AmountMinor,
		Currency:    request.Currency,
	}, nil
}

func (r *RazorpayGateway) Capture(ctx context.Context, authRef string) error {
	// Capture needs the authorized amount; fetch the payment first.
	p, err := r.client.Payment.Fetch(authRef, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch payment: %w", err)
	}

	amount := int(p["amount"].(float64))
	_, err = r.client.Payment.Capture(authRef, amount, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to capture payment: %w", err)
	}
	return nil
}

func (r *RazorpayGateway) CancelAuthorization(ctx context.Context, authRef string) error {
	// Razorpay has no explicit void; an uncaptured authorization is released
	// by a full refund of the authorized payment.
	p, err := r.client.Payment.Fetch(authRef, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch payment: %w", err)
	}

	amount := int(p["amount"].(float64))
	_, err = r.client.Payment.Refund(authRef, amount, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to release authorization: %w", err)
	}
	return nil
}

func (r *RazorpayGateway) Refund(ctx context.Context, request *RefundRequest) (*RefundResponse, error) {
	refundData := map[string]interface{}{
		"notes": map[string]interface{}{
			"reason": request.Reason,
		},
	}

	refund, err := r.client.Payment.Refund(request.AuthRef, int(request.AmountMinor), refundData, map[string]string{})
	if err != nil {
		return nil, fmt.Errorf("failed to create refund: %w", err)
	}

	return &RefundResponse{
		RefundRef:   refund["id"].(string),
		Status:      refund["status"].(string),
		AmountMinor: request.AmountMinor,
	}, nil
}

func (r *RazorpayGateway) Payout(ctx context.Context, request *PayoutRequest) (*PayoutResponse, error) {
	// Payouts live in RazorpayX, which this SDK does not cover.
	return nil, fmt.Errorf("razorpay gateway does not support payouts")
}

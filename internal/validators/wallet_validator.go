package validators

import (
	"carpool-pay/internal/utils"
)

type TopUpRequest struct {
	UserID          string `json:"user_id" validate:"required,object_id"`
	AmountMinor     int64  `json:"amount_minor" validate:"required,minor_amount"`
	Currency        string `json:"currency" validate:"omitempty,currency_code"`
	PaymentMethodID string `json:"payment_method_id" validate:"required"`
}

type ConfirmTopUpRequest struct {
	TransactionID string `json:"transaction_id" validate:"required,object_id"`
}

type WithdrawRequest struct {
	UserID          string `json:"user_id" validate:"required,object_id"`
	AmountMinor     int64  `json:"amount_minor" validate:"required,minor_amount"`
	Currency        string `json:"currency" validate:"omitempty,currency_code"`
	PayoutAccountID string `json:"payout_account_id" validate:"omitempty"`
}

type TransferRequest struct {
	FromUserID  string `json:"from_user_id" validate:"required,object_id"`
	ToUserID    string `json:"to_user_id" validate:"required,object_id"`
	AmountMinor int64  `json:"amount_minor" validate:"required,minor_amount"`
}

func ValidateTopUp(req *TopUpRequest) ValidationErrors {
	errors := ValidateStruct(req)

	if req.AmountMinor > 0 && req.AmountMinor < utils.MinTopUpAmountMinor {
		errors = append(errors, ValidationError{
			Field:   "amount_minor",
			Message: "Top-up amount is below the minimum",
		})
	}
	if req.AmountMinor > utils.MaxTopUpAmountMinor {
		errors = append(errors, ValidationError{
			Field:   "amount_minor",
			Message: "Top-up amount exceeds the maximum",
		})
	}

	return errors
}

func ValidateWithdraw(req *WithdrawRequest) ValidationErrors {
	errors := ValidateStruct(req)

	if req.AmountMinor > 0 && req.AmountMinor < utils.MinWithdrawAmountMinor {
		errors = append(errors, ValidationError{
			Field:   "amount_minor",
			Message: "Withdrawal amount is below the minimum",
		})
	}

	return errors
}

func ValidateTransfer(req *TransferRequest) ValidationErrors {
	errors := ValidateStruct(req)

	if req.FromUserID != "" && req.FromUserID == req.ToUserID {
		errors = append(errors, ValidationError{
			Field:   "to_user_id",
			Message: "Transfer source and destination must differ",
		})
	}

	return errors
}

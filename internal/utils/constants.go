package utils

import "time"

// Application Constants
const (
	AppName    = "CarpoolPay"
	AppVersion = "1.0.0"

	DefaultCurrency = "USD"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// EscalationWindow is how long a session may wait on a missing response
	// before it is handed to an operator.
	EscalationWindow = 14 * 24 * time.Hour

	// Wallet Constants
	MinWithdrawAmountMinor = int64(1000) // $10.00
	MaxTopUpAmountMinor    = int64(100000)
	MinTopUpAmountMinor    = int64(500)
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrValidationFailed = "validation failed"
)

// Cache Keys
const (
	CacheEscrowPrefix  = "escrow:"
	CacheSessionPrefix = "session:"
)

package validators

type OpenEscrowRequest struct {
	RiderID     string `json:"rider_id" validate:"required,object_id"`
	DriverID    string `json:"driver_id" validate:"required,object_id"`
	AmountMinor int64  `json:"amount_minor" validate:"required,minor_amount"`
	Currency    string `json:"currency" validate:"omitempty,currency_code"`
	MatchID     string `json:"match_id" validate:"required,max=64"`
	AuthRef     string `json:"auth_ref" validate:"omitempty,max=255"`
}

type ReverseEscrowRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

type CancelEscrowRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

func ValidateOpenEscrow(req *OpenEscrowRequest) ValidationErrors {
	errors := ValidateStruct(req)

	if req.RiderID != "" && req.RiderID == req.DriverID {
		errors = append(errors, ValidationError{
			Field:   "driver_id",
			Message: "Rider and driver must differ",
		})
	}

	return errors
}

func ValidateReverseEscrow(req *ReverseEscrowRequest) ValidationErrors {
	return ValidateStruct(req)
}

func ValidateCancelEscrow(req *CancelEscrowRequest) ValidationErrors {
	return ValidateStruct(req)
}

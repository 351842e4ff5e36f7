package validators

type CreateSessionRequest struct {
	MatchID       string `json:"match_id" validate:"required,max=64"`
	SessionID     string `json:"session_id" validate:"required,max=64"`
	TransactionID string `json:"transaction_id" validate:"omitempty,object_id"`
	AuthRef       string `json:"auth_ref" validate:"omitempty,max=255"`
}

type SubmitResponseRequest struct {
	Party       string `json:"party" validate:"required,oneof=rider driver"`
	Response    string `json:"response" validate:"required,oneof=accepted refused"`
	AmountMinor int64  `json:"amount_minor" validate:"required,minor_amount"`
}

type ResolveSessionRequest struct {
	Outcome string `json:"outcome" validate:"required,oneof=approve reject"`
	Reason  string `json:"reason" validate:"required,max=255"`
}

func ValidateCreateSession(req *CreateSessionRequest) ValidationErrors {
	return ValidateStruct(req)
}

func ValidateSubmitResponse(req *SubmitResponseRequest) ValidationErrors {
	return ValidateStruct(req)
}

func ValidateResolveSession(req *ResolveSessionRequest) ValidationErrors {
	return ValidateStruct(req)
}

package model

// IssueTokenRequest is the DTO for POST /api/tokens
type IssueTokenRequest struct {
	User      string `json:"user" validate:"required,notblank,max=255,payloadsafe"`
	Type      string `json:"type" validate:"required,tokentype"`
	Start     string `json:"start" validate:"required,datetime=2006-01-02"`
	End       string `json:"end" validate:"required,datetime=2006-01-02"`
	Allowance *int   `json:"allowance" validate:"required,gte=1"`
	Email     string `json:"email,omitempty" validate:"omitempty,email,max=255"`
}

// IssueTokenResponse wraps the issued token with the optional delivery outcome.
type IssueTokenResponse struct {
	Token    *Token          `json:"token"`
	Delivery *DeliveryResult `json:"delivery,omitempty"`
}

// RedeemTokenRequest is the DTO for POST /api/redemptions
type RedeemTokenRequest struct {
	Payload string `json:"payload" validate:"required,notblank,max=2048"`
	AsOf    string `json:"as_of,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// DeliverTokenRequest is the DTO for POST /api/tokens/:id/deliver
type DeliverTokenRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
}

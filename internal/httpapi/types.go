package httpapi

import "factorlab/internal/domain"

// GenerateRequest asks for one generated factor.
type GenerateRequest struct {
	Prompt string                  `json:"prompt"`
	Config domain.GenerationConfig `json:"config"`
}

// GenerateBulkRequest asks for a batch of generated factors.
type GenerateBulkRequest struct {
	Count  int                     `json:"count"`
	Config domain.GenerationConfig `json:"config"`
}

// AuthExchangeRequest carries a GitHub OAuth authorization code.
type AuthExchangeRequest struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirectUri"`
}

// SaveUserRequest persists a verified identity.
type SaveUserRequest struct {
	User domain.User `json:"user"`
}

// SaveFactorRequest persists one factor for an owner.
type SaveFactorRequest struct {
	UserID string             `json:"userId"`
	Factor domain.AlphaFactor `json:"factor"`
}

// SyncFactorsRequest upserts an owner's full factor list.
type SyncFactorsRequest struct {
	UserID  string               `json:"userId"`
	Factors []domain.AlphaFactor `json:"factors"`
}

// DeleteFactorRequest authorizes a factor deletion.
type DeleteFactorRequest struct {
	UserID string `json:"userId"`
}

// SaveResultRequest persists a completed backtest result.
type SaveResultRequest struct {
	UserID   string                `json:"userId"`
	FactorID string                `json:"factorId"`
	Result   domain.BacktestResult `json:"result"`
}

// SuccessResponse acknowledges a write.
type SuccessResponse struct {
	Success bool `json:"success"`
}

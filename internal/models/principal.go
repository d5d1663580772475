package models

// Principal is the identity established by an API key.
//
// After the format stage only APIKey and UserID are known. A stored-key
// validation also fills SubscriptionID, APIKeyID and the key's settings.
type Principal struct {
	APIKey         string  `json:"-"`
	UserID         int64   `json:"user_id"`
	SubscriptionID *int64  `json:"subscription_id"`
	APIKeyID       *string `json:"api_key_id"`
	Environment    string  `json:"environment,omitempty"`
	Permissions    string  `json:"permissions,omitempty"`
	APIConfigID    *int64  `json:"-"`
	KeyDigest      string  `json:"-"`
}

// KeyID returns the stored key id, or "" for a format-stage principal.
func (p *Principal) KeyID() string {
	if p.APIKeyID == nil {
		return ""
	}
	return *p.APIKeyID
}

// ValidateKeyResponse is the body of a successful key validation.
type ValidateKeyResponse struct {
	Valid          bool    `json:"valid"`
	UserID         int64   `json:"user_id"`
	SubscriptionID *int64  `json:"subscription_id"`
	APIKeyID       *string `json:"api_key_id"`
	Environment    string  `json:"environment,omitempty"`
	Permissions    string  `json:"permissions,omitempty"`
}

// NewValidateKeyResponse builds the validation body for a principal.
func NewValidateKeyResponse(p *Principal) *ValidateKeyResponse {
	return &ValidateKeyResponse{
		Valid:          true,
		UserID:         p.UserID,
		SubscriptionID: p.SubscriptionID,
		APIKeyID:       p.APIKeyID,
		Environment:    p.Environment,
		Permissions:    p.Permissions,
	}
}

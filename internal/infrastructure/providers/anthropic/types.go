package anthropic

import "github.com/shopspring/decimal"

const (
	actorUser   = "user_actor"
	actorAPIKey = "api_actor"
)

type usageReport struct {
	Data     []reportRow `json:"data"`
	HasMore  bool        `json:"has_more"`
	NextPage *string     `json:"next_page"`
}

type reportRow struct {
	Date           string           `json:"date"`
	Actor          actor            `json:"actor"`
	OrganizationID string           `json:"organization_id"`
	CustomerType   string           `json:"customer_type"`
	TerminalType   string           `json:"terminal_type"`
	ModelBreakdown []modelBreakdown `json:"model_breakdown"`
}

type actor struct {
	Type         string `json:"type"`
	EmailAddress string `json:"email_address,omitempty"`
	APIKeyName   string `json:"api_key_name,omitempty"`
}

type modelBreakdown struct {
	Model         string        `json:"model"`
	Tokens        tokenCounts   `json:"tokens"`
	EstimatedCost estimatedCost `json:"estimated_cost"`
}

type tokenCounts struct {
	Input         int64 `json:"input"`
	Output        int64 `json:"output"`
	CacheRead     int64 `json:"cache_read"`
	CacheCreation int64 `json:"cache_creation"`
}

// estimatedCost.Amount is in cents.
type estimatedCost struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

// listResponse is the shape of the users and api keys listings.
type listResponse[T any] struct {
	Data    []T    `json:"data"`
	HasMore bool   `json:"has_more"`
	FirstID string `json:"first_id"`
	LastID  string `json:"last_id"`
}

type orgUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type apiKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
	CreatedBy struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	} `json:"created_by"`
}

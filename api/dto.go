/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

AMOUNTS:
  Coin amounts are JSON numbers (json.Number built from the decimal
  string), so 0.5 stays 0.5 and 30 stays 30.

TIMES:
  RFC 3339 in UTC. Absent cooldowns are omitted.
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/oracoin/reward-engine/generic"
	"github.com/oracoin/reward-engine/rewards"
)

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountDTO struct {
	ID          string              `json:"id"`
	Email       string              `json:"email"`
	DisplayName string              `json:"displayName"`
	PhotoURL    string              `json:"photoURL,omitempty"`
	CoinBalance json.Number         `json:"coinBalance"`
	Activities  []ActivityStatusDTO `json:"activities,omitempty"`
}

type ActivityStatusDTO struct {
	Kind        string  `json:"kind"`
	Limit       int     `json:"limit"`
	Used        int     `json:"used"`
	Remaining   int     `json:"remaining"`
	CooldownEnd *string `json:"cooldownEnd,omitempty"`
}

type SessionResponse struct {
	Account AccountDTO `json:"account"`
	Created bool       `json:"created"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Amount       json.Number `json:"amount"`
	Delta        json.Number `json:"delta"`
	Counterparty string      `json:"counterparty,omitempty"`
	Timestamp    string      `json:"timestamp"`
}

type TransactionsResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
}

// =============================================================================
// REWARDS
// =============================================================================

type RewardResponse struct {
	Kind        string         `json:"kind"`
	Prize       json.Number    `json:"prize"`
	CoinBalance json.Number    `json:"coinBalance"`
	Count       int            `json:"count,omitempty"`
	Limit       int            `json:"limit,omitempty"`
	Remaining   int            `json:"remaining,omitempty"`
	CooldownEnd *string        `json:"cooldownEnd,omitempty"`
	Transaction TransactionDTO `json:"transaction"`
}

// SolveCaptchaRequest identifies the captcha either by challenge id or by
// the image data URI, depending on the configured oracle.
type SolveCaptchaRequest struct {
	CaptchaID string `json:"captcha_id,omitempty"`
	Image     string `json:"image,omitempty"`
	Answer    string `json:"answer"`
}

// =============================================================================
// TRANSFERS
// =============================================================================

type TransferRequest struct {
	RecipientEmail string      `json:"recipient_email"`
	Amount         json.Number `json:"amount"`
}

type TransferResponse struct {
	CoinBalance    json.Number    `json:"coinBalance"`
	RecipientEmail string         `json:"recipientEmail"`
	Transaction    TransactionDTO `json:"transaction"`
}

// =============================================================================
// MISC
// =============================================================================

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func amountJSON(a generic.Amount) json.Number {
	return json.Number(a.String())
}

func timeJSON(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func toAccountDTO(acct generic.Account) AccountDTO {
	return AccountDTO{
		ID:          string(acct.ID),
		Email:       acct.Profile.Email,
		DisplayName: acct.Profile.DisplayName,
		PhotoURL:    acct.Profile.PhotoURL,
		CoinBalance: amountJSON(acct.Balance),
	}
}

func toStatusDTO(st rewards.Status) AccountDTO {
	dto := toAccountDTO(st.Account)
	for _, a := range st.Activities {
		dto.Activities = append(dto.Activities, ActivityStatusDTO{
			Kind:        string(a.Kind),
			Limit:       a.Limit,
			Used:        a.Used,
			Remaining:   a.Remaining,
			CooldownEnd: timeJSON(a.CooldownEnd),
		})
	}
	return dto
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:           string(tx.ID),
		Type:         string(tx.Kind),
		Amount:       amountJSON(tx.Amount),
		Delta:        amountJSON(tx.Delta()),
		Counterparty: tx.Counterparty,
		Timestamp:    tx.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func toRewardResponse(out rewards.Outcome) RewardResponse {
	return RewardResponse{
		Kind:        string(out.Kind),
		Prize:       amountJSON(out.Prize),
		CoinBalance: amountJSON(out.Balance),
		Count:       out.Count,
		Limit:       out.Limit,
		Remaining:   out.Remaining,
		CooldownEnd: timeJSON(out.CooldownEnd),
		Transaction: toTransactionDTO(out.Record),
	}
}

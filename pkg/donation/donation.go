// Package donation defines the core settlement record domain model shared by
// the store, the reconciliation drivers and the HTTP service.
package donation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the current state of a donation settlement
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusForwarding Status = "FORWARDING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known settlement states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusForwarding, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// MaxMessageLen caps donor-supplied messages, counted in runes.
const MaxMessageLen = 200

// Donation is one settlement record: a donor's burn transaction on a source
// chain being forwarded to the streamer's wallet on the destination chain.
// All fields except Status and ForwardTxHash are immutable after creation.
type Donation struct {
	ID            string
	StreamerID    string
	DonorAddress  string
	DonorName     string
	Amount        decimal.Decimal
	Message       string
	SourceChain   string
	SourceTxHash  string
	ForwardTxHash string
	Status        Status
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AlertEvent is the payload fanned out to overlay subscribers when a
// settlement completes.
type AlertEvent struct {
	ID           string          `json:"id"`
	DonorAddress string          `json:"donorAddress"`
	DonorName    string          `json:"donorName,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Message      string          `json:"message"`
	SourceChain  string          `json:"sourceChain"`
}

// AlertFor builds the alert payload for a completed donation.
func AlertFor(d *Donation) AlertEvent {
	return AlertEvent{
		ID:           d.ID,
		DonorAddress: d.DonorAddress,
		DonorName:    d.DonorName,
		Amount:       d.Amount,
		Message:      d.Message,
		SourceChain:  d.SourceChain,
	}
}

// TruncateMessage enforces MaxMessageLen on donor messages.
func TruncateMessage(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxMessageLen {
		return msg
	}
	return string(runes[:MaxMessageLen])
}

// ClassifyClientError maps a raw wallet/RPC error message from the donor flow
// to a human-readable classification. Raw error text is never shown to donors.
func ClassifyClientError(err error) string {
	if err == nil {
		return ""
	}
	lower := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lower, "user rejected") || strings.Contains(lower, "user denied"):
		return "Transaction was cancelled."
	case strings.Contains(lower, "insufficient funds") || strings.Contains(lower, "insufficient balance"):
		return "Insufficient funds. Please check your USDC balance."
	case strings.Contains(lower, "exceeds allowance"):
		return "Token allowance too low. Please try again."
	case strings.Contains(lower, "network") || strings.Contains(lower, "disconnected"):
		return "Network error. Please check your connection and try again."
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return "Request timed out. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}

// Streamer holds the identity/profile fields the settlement core reads but
// does not own (managed by the user-facing subsystem).
type Streamer struct {
	ID            string
	WalletAddress string
	DisplayName   string
	MinDonation   decimal.Decimal
	CreatedAt     time.Time
}

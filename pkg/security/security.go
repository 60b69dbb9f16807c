// Package security records and aggregates security events for the bridge.
// Events feed the admin dashboard and, for critical severities, the
// circuit-breaker auto-trip policy.
package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrEventNotFound is returned when resolving an unknown event.
var ErrEventNotFound = errors.New("security event not found")

// Severity classifies how serious an event is. Only CRITICAL events can
// trigger automatic action; everything else is advisory.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// EventType identifies what happened. Each type carries its own details
// payload variant.
type EventType string

const (
	TypeBlacklistHit         EventType = "BLACKLIST_HIT"
	TypeRepeatedFailedUnlock EventType = "REPEATED_FAILED_UNLOCK"
	TypeRateAnomaly          EventType = "RATE_ANOMALY"
	TypeStaleTransaction     EventType = "STALE_TRANSACTION"
	TypeRefundFailed         EventType = "REFUND_FAILED"
	TypeBreakerClosed        EventType = "BREAKER_CLOSED"
)

// Details is the sealed payload union. Each event type has exactly one
// variant so consumers can switch exhaustively instead of poking at an
// untyped blob.
type Details interface {
	isDetails()
}

// BlacklistHitDetails records a rejected request from a blocked identity or
// address.
type BlacklistHitDetails struct {
	UserID    string `json:"user_id"`
	EntryType string `json:"entry_type"`
	Value     string `json:"value"`
	Reason    string `json:"reason"`
}

func (BlacklistHitDetails) isDetails() {}

// RepeatedFailedUnlockDetails records a user repeatedly failing burn
// verification inside the rolling window.
type RepeatedFailedUnlockDetails struct {
	UserID    string `json:"user_id"`
	ChainCode string `json:"chain_code"`
	Failures  int    `json:"failures"`
	Window    string `json:"window"`
}

func (RepeatedFailedUnlockDetails) isDetails() {}

// RateAnomalyDetails records an unusual request rate from one actor.
type RateAnomalyDetails struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
	Window string `json:"window"`
}

func (RateAnomalyDetails) isDetails() {}

// StaleTransactionDetails records a transaction stuck in a non-terminal
// state beyond the staleness threshold.
type StaleTransactionDetails struct {
	TransactionID string `json:"transaction_id"`
	Direction     string `json:"direction"`
	Status        string `json:"status"`
	Age           string `json:"age"`
}

func (StaleTransactionDetails) isDetails() {}

// RefundFailedDetails records a refund that exhausted its retries after a
// failed mint. This is the page-an-operator case: funds are debited with no
// corresponding mint.
type RefundFailedDetails struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id"`
	Amount        string `json:"amount"`
	Attempts      int    `json:"attempts"`
	LastError     string `json:"last_error"`
}

func (RefundFailedDetails) isDetails() {}

// BreakerClosedDetails records a manual breaker close.
type BreakerClosedDetails struct {
	PreviousReason string `json:"previous_reason"`
}

func (BreakerClosedDetails) isDetails() {}

// Event is one recorded security occurrence. Immutable except for the
// resolved flag.
type Event struct {
	ID         string
	Type       EventType
	Severity   Severity
	Details    Details
	CreatedAt  time.Time
	Resolved   bool
	ResolvedAt *time.Time
}

// DecodeDetails unmarshals a stored details payload into the variant for the
// given event type.
func DecodeDetails(eventType EventType, raw json.RawMessage) (Details, error) {
	var details Details
	switch eventType {
	case TypeBlacklistHit:
		details = &BlacklistHitDetails{}
	case TypeRepeatedFailedUnlock:
		details = &RepeatedFailedUnlockDetails{}
	case TypeRateAnomaly:
		details = &RateAnomalyDetails{}
	case TypeStaleTransaction:
		details = &StaleTransactionDetails{}
	case TypeRefundFailed:
		details = &RefundFailedDetails{}
	case TypeBreakerClosed:
		details = &BreakerClosedDetails{}
	default:
		return nil, fmt.Errorf("unknown security event type: %s", eventType)
	}
	if err := json.Unmarshal(raw, details); err != nil {
		return nil, fmt.Errorf("failed to decode %s details: %w", eventType, err)
	}
	return details, nil
}

// Store defines the persistence interface for security events.
type Store interface {
	InsertEvent(ctx context.Context, event *Event) error
	ListEvents(ctx context.Context, limit int) ([]*Event, error)
	ListEventsSince(ctx context.Context, since time.Time) ([]*Event, error)
	CountEvents(ctx context.Context) (int64, error)
	ResolveEvent(ctx context.Context, id string) error
}

package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	AggregateClaim = "claim"

	EventClaimConfirmed = "claim.confirmed"
)

// Event is a row in the transactional outbox. It is written in the same
// transaction as the state change it describes and published later.
type Event struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       json.RawMessage
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// NewEvent marshals payload into a new unpublished event.
func NewEvent(aggregateType, aggregateID, eventType string, payload any, now time.Time) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		CreatedAt:     now,
	}, nil
}

// ClaimConfirmed is the payload of EventClaimConfirmed. Amounts are decimal
// strings so consumers never lose precision.
type ClaimConfirmed struct {
	ClaimID       int64     `json:"claim_id"`
	ApplicationID int64     `json:"application_id"`
	UserAddress   string    `json:"user_address"`
	RegionID      int64     `json:"region_id"`
	TxReference   string    `json:"tx_reference"`
	VerifiedValue string    `json:"verified_value"`
	Score         string    `json:"score"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
	RequestID     string    `json:"request_id,omitempty"`
}

package event

import "time"

// Metadata carries cross-cutting event metadata
type Metadata struct {
	UserID        string    `json:"user_id,omitempty"        bson:"user_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty" bson:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"   bson:"causation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitempty"      bson:"timestamp,omitempty"`
}

// NewMetadata creates metadata with the current timestamp
func NewMetadata(userID, correlationID, causationID string) Metadata {
	return Metadata{
		UserID:        userID,
		CorrelationID: correlationID,
		CausationID:   causationID,
		Timestamp:     time.Now(),
	}
}

// WithUserID returns a copy with the user ID set
func (m Metadata) WithUserID(userID string) Metadata {
	m.UserID = userID
	return m
}

// WithCausationID returns a copy with the causation ID set
func (m Metadata) WithCausationID(causationID string) Metadata {
	m.CausationID = causationID
	return m
}

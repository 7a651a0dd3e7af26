package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventLoginSucceeded EventType = "login_succeeded"
	EventLoginFailed    EventType = "login_failed"
	EventTokenRefreshed EventType = "token_refreshed"
)

// Event represents an authentication event emitted by services. It never
// carries passwords or token strings.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	MSSV      string      `json:"mssv"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(eventType EventType, mssv string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		MSSV:      mssv,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// LoginFailedPayload describes why a login was refused.
type LoginFailedPayload struct {
	Reason string `json:"reason"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// LoginSucceededPayload payload.
type LoginSucceededPayload struct {
	Role string `json:"role"`
}

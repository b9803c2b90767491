package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mto-maintenance/apiserver/internal/mq"
	"go.uber.org/zap"
)

// Auth event types.
const (
	EventUserRegistered      = "user.registered"
	EventUserActivated       = "user.activated"
	EventUserDeactivated     = "user.deactivated"
	EventPasswordChanged     = "user.password_changed"
	EventSessionCreated      = "session.created"
	EventSessionInvalidated  = "session.invalidated"
	EventSessionsInvalidated = "session.invalidated_all"
	EventSessionRevoked      = "session.revoked"
)

// Publisher is the subset of *mq.MQ the services need.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// AuthEvent is the payload published for every auth state change.
type AuthEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     int       `json:"userId"`
	SessionID  int64     `json:"sessionId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Events publishes auth events to one channel. A nil *Events, or one without
// a publisher, drops everything.
type Events struct {
	publisher Publisher
	channel   string
	logger    *zap.Logger
}

func NewEvents(publisher Publisher, channel string, logger *zap.Logger) *Events {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Events{publisher: publisher, channel: channel, logger: logger}
}

// Emit publishes an event. Failures are logged and otherwise ignored.
func (e *Events) Emit(ctx context.Context, eventType string, userID int, sessionID int64, at time.Time) {
	if e == nil || e.publisher == nil {
		return
	}

	event := AuthEvent{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		SessionID:  sessionID,
		OccurredAt: at.UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		e.logger.Error("encode auth event", zap.String("type", eventType), zap.Error(err))
		return
	}

	attrs := map[string]string{
		"type":             eventType,
		mq.AttrContentType: "application/json",
	}
	if _, err := e.publisher.Publish(ctx, e.channel, data, attrs); err != nil {
		e.logger.Warn("publish auth event",
			zap.String("type", eventType),
			zap.Int("user_id", userID),
			zap.String("channel", e.channel),
			zap.Error(err),
		)
	}
}

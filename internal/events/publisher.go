// Package events publishes session lifecycle notifications.
package events

import (
	"context"
	"time"
)

// Type names a session lifecycle event.
type Type string

const (
	SessionCreated    Type = "session.created"
	SessionRefreshed  Type = "session.refreshed"
	SessionTerminated Type = "session.terminated"
	SessionsExpired   Type = "sessions.expired"
)

// Event describes something that happened to one or more device sessions.
type Event struct {
	Type       Type      `json:"type"`
	UserID     string    `json:"userId,omitempty"`
	DeviceID   string    `json:"deviceId,omitempty"`
	IPAddress  string    `json:"ip,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Count      int64     `json:"count,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

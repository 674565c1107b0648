package models

import (
	"encoding/base64"
	"time"
)

// NotificationType classifies a notification recorded for a user
type NotificationType string

// NotificationType constants
const (
	NotificationNewBid     NotificationType = "new_bid"
	NotificationOutbid     NotificationType = "outbid"
	NotificationWin        NotificationType = "win"
	NotificationSold       NotificationType = "sold"
	NotificationExpired    NotificationType = "expired"
	NotificationLotDeleted NotificationType = "lot_deleted"
)

// Notification is a message addressed to a single user
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	LotID     string           `json:"lot_id,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationStream is the JetStream stream carrying notifications to the archive
const NotificationStream = "NOTIFICATIONS"

// NotificationSubjects matches the subject of every user's notifications
const NotificationSubjects = "notifications.*"

// NotificationSubject is the JetStream subject for notifications to userID.
// The id is base64url encoded so dots and wildcards in it stay one token.
func NotificationSubject(userID string) string {
	return "notifications." + base64.RawURLEncoding.EncodeToString([]byte(userID))
}

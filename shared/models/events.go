package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LotEventType names a change to a lot
type LotEventType string

// LotEventType constants
const (
	LotEventCreated       LotEventType = "lot_created"
	LotEventBidPlaced     LotEventType = "bid_placed"
	LotEventBidDeleted    LotEventType = "bid_deleted"
	LotEventStatusChanged LotEventType = "lot_status_changed"
	LotEventDeleted       LotEventType = "lot_deleted"
)

// LotEvent is published whenever a lot changes.
// This is sent to:
// 1. the in-process broadcast hub and Redis Pub/Sub (real-time WebSocket fan-out)
// 2. NATS JetStream (archival to PostgreSQL)
type LotEvent struct {
	EventID   string          `json:"event_id"`
	Type      LotEventType    `json:"type"`
	LotID     string          `json:"lot_id"`
	Seq       int64           `json:"seq"` // lot version after the change
	NewPrice  decimal.Decimal `json:"new_price"`
	Status    LotStatus       `json:"status"`
	Bid       *Bid            `json:"bid,omitempty"`
	Lot       *Lot            `json:"lot,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// LotEventChannelPrefix prefixes the Redis Pub/Sub channel of every lot
const LotEventChannelPrefix = "lot_events:"

// LotEventChannel is the Redis Pub/Sub channel carrying events for lotID
func LotEventChannel(lotID string) string {
	return LotEventChannelPrefix + lotID
}

// LotEventStream is the JetStream stream carrying lot events to the archive
const LotEventStream = "LOT_EVENTS"

// LotEventSubject is the JetStream subject for events of lotID
func LotEventSubject(lotID string) string {
	return "lot.events." + lotID
}

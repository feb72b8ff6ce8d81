// Package domain contains core concepts of the chat relay.
// This file defines message values and related rules.
// Messages are immutable once stamped by the router.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// InboundMessage is one frame received from a sender's connection, already
// decoded and validated by the transport. Consumed once per receive.
type InboundMessage struct {
	Receiver *Identity // nil means broadcast
	Text     string
}

// Broadcast reports whether the message addresses every connected identity.
func (m InboundMessage) Broadcast() bool {
	return m.Receiver == nil
}

// DeliveredMessage is the canonical record of a routed message: the same
// value is wire-delivered and persisted. At is assigned exactly once, at
// router ingestion, and is authoritative for ordering.
type DeliveredMessage struct {
	ID         uuid.UUID
	Sender     Identity
	SenderName string
	Receiver   *Identity // nil means broadcast
	Text       string
	Lang       string
	At         time.Time
}

// Broadcast reports whether the message addresses every connected identity.
func (m DeliveredMessage) Broadcast() bool {
	return m.Receiver == nil
}

// Package transport bridges websocket connections to the router and the
// registry: per-connection lifecycle, wire frames, and the HTTP surfaces
// around them.
package transport

import (
	"chat-relay/domain"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// InboundFrame is the client-to-server wire message.
// The receiver is either a numeric identity or the literal "all".
type InboundFrame struct {
	Receiver string `json:"receiver" validate:"required"`
	Text     string `json:"text" validate:"required,max=4096"`
}

// OutboundFrame is the server-to-client wire message.
type OutboundFrame struct {
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
}

// ToInbound validates the frame and resolves its addressing scope. A failure
// here is treated as a disconnect signal by the session, like any other
// malformed frame.
func (f InboundFrame) ToInbound() (domain.InboundMessage, error) {
	if err := validate.Struct(f); err != nil {
		return domain.InboundMessage{}, err
	}
	if f.Receiver == domain.BroadcastScope {
		return domain.InboundMessage{Text: f.Text}, nil
	}
	id, err := domain.ParseIdentity(f.Receiver)
	if err != nil {
		return domain.InboundMessage{}, err
	}
	return domain.InboundMessage{Receiver: &id, Text: f.Text}, nil
}

func toFrame(msg domain.DeliveredMessage) OutboundFrame {
	receiver := domain.BroadcastScope
	if msg.Receiver != nil {
		receiver = msg.Receiver.String()
	}
	return OutboundFrame{
		Sender:   msg.Sender.String(),
		Receiver: receiver,
		Text:     msg.Text,
	}
}

package transport

import (
	"chat-relay/domain"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInboundFrame_ToInbound(t *testing.T) {
	req := require.New(t)

	// Given a frame addressed to everyone
	inbound, err := InboundFrame{Receiver: "all", Text: "hello"}.ToInbound()
	req.NoError(err)
	req.True(inbound.Broadcast())
	req.Equal("hello", inbound.Text)

	// Given a frame addressed to one identity
	inbound, err = InboundFrame{Receiver: "42", Text: "hi"}.ToInbound()
	req.NoError(err)
	req.NotNil(inbound.Receiver)
	req.Equal(domain.Identity(42), *inbound.Receiver)
}

func TestInboundFrame_Rejects_Invalid(t *testing.T) {
	req := require.New(t)

	tests := []struct {
		name  string
		frame InboundFrame
	}{
		{"Missing receiver", InboundFrame{Text: "hello"}},
		{"Missing text", InboundFrame{Receiver: "all"}},
		{"Non numeric receiver", InboundFrame{Receiver: "bob", Text: "hello"}},
		{"Negative receiver", InboundFrame{Receiver: "-1", Text: "hello"}},
		{"Oversized text", InboundFrame{Receiver: "all", Text: strings.Repeat("a", 5000)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.frame.ToInbound()
			req.Error(err, "frame=%+v", tt.frame)
		})
	}
}

func TestToFrame(t *testing.T) {
	req := require.New(t)
	bob := domain.Identity(2)

	frame := toFrame(domain.DeliveredMessage{Sender: domain.Identity(1), Receiver: &bob, Text: "hi"})
	req.Equal(OutboundFrame{Sender: "1", Receiver: "2", Text: "hi"}, frame)

	frame = toFrame(domain.DeliveredMessage{Sender: domain.System, Text: "bob joined the chat"})
	req.Equal(OutboundFrame{Sender: "system", Receiver: "all", Text: "bob joined the chat"}, frame)
}

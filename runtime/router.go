package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/repositories"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abadojack/whatlanggo"
	"github.com/google/uuid"
)

// Router decides fan-out for inbound messages, persists them, and delivers
// through the connection registry.
//
// Delivery never surfaces an error to the sender: a broken or slow recipient
// is pushed onto its own teardown path and must not abort routing to anyone
// else. Durability is best-effort relative to live delivery; a store or index
// failure is reported and routing continues.
type Router struct {
	log          *slog.Logger
	registry     contract.IRegistry
	messages     repositories.IMessageLog
	index        repositories.ISearchIndex
	moderator    *moderation.Moderator
	stats        *observability.RelayStats
	echoToSender bool
}

// NewRouter wires the router. moderator and index are optional; echoToSender
// controls whether a sender receives its own messages back as a delivery
// confirmation (applies to direct and broadcast messages alike).
func NewRouter(log *slog.Logger, registry contract.IRegistry,
	messages repositories.IMessageLog, index repositories.ISearchIndex,
	moderator *moderation.Moderator, stats *observability.RelayStats,
	echoToSender bool) *Router {
	return &Router{
		log:          log,
		registry:     registry,
		messages:     messages,
		index:        index,
		moderator:    moderator,
		stats:        stats,
		echoToSender: echoToSender,
	}
}

// Route stamps, persists, and fans out one inbound message, and returns the
// stamped message. An offline direct recipient is normal behavior: the
// message is persisted for later history queries and no live delivery
// happens.
func (r *Router) Route(ctx context.Context, sender domain.Identity,
	senderName string, in domain.InboundMessage) domain.DeliveredMessage {
	text := in.Text
	if r.moderator != nil {
		censored, found := r.moderator.Censor(text)
		if len(found) > 0 {
			r.log.Warn("Censored message content", "sender", sender, "words", len(found))
		}
		text = censored
	}

	msg := r.stamp(sender, senderName, in.Receiver, text)
	r.persist(msg)
	r.fanout(ctx, msg)
	return msg
}

// AnnounceJoin broadcasts a system-originated presence message to everyone
// except the identity that just connected.
func (r *Router) AnnounceJoin(ctx context.Context, id domain.Identity, name string) {
	r.announce(ctx, id, fmt.Sprintf("%s joined the chat", name))
}

// AnnounceDeparture broadcasts a system-originated departure message through
// the regular broadcast path. The departed identity is already unregistered;
// the explicit exclusion only guards the replacement race where the same
// identity reconnected before the old session finished tearing down.
func (r *Router) AnnounceDeparture(ctx context.Context, id domain.Identity, name string) {
	r.announce(ctx, id, fmt.Sprintf("%s left the chat", name))
}

func (r *Router) announce(ctx context.Context, exclude domain.Identity, text string) {
	msg := r.stamp(domain.System, domain.System.String(), nil, text)
	r.persist(msg)
	r.broadcast(ctx, msg, exclude)
}

// stamp assigns the message identity, the authoritative timestamp, and the
// detected language tag exactly once.
func (r *Router) stamp(sender domain.Identity, senderName string,
	receiver *domain.Identity, text string) domain.DeliveredMessage {
	info := whatlanggo.Detect(text)
	return domain.DeliveredMessage{
		ID:         uuid.New(),
		Sender:     sender,
		SenderName: senderName,
		Receiver:   receiver,
		Text:       text,
		Lang:       info.Lang.Iso6391(),
		At:         time.Now().UTC(),
	}
}

// persist appends the message to the durable log and, for broadcasts, to the
// search index. Failures are logged and counted, never propagated: chat is
// best-effort-durable but delivery is the primary promise.
func (r *Router) persist(msg domain.DeliveredMessage) {
	record := repositories.FromDelivered(msg)
	if err := r.messages.StoreMessage(record); err != nil {
		r.stats.IncrPersistFailures()
		r.log.Error("Failed to persist message", "id", msg.ID, "error", err)
	}
	if r.index != nil && msg.Broadcast() {
		if err := r.index.Index(record); err != nil {
			r.log.Error("Failed to index message", "id", msg.ID, "error", err)
		}
	}
}

func (r *Router) fanout(ctx context.Context, msg domain.DeliveredMessage) {
	if msg.Broadcast() {
		r.broadcast(ctx, msg, msg.Sender)
		if r.echoToSender {
			r.deliver(ctx, msg.Sender, msg)
		}
		return
	}

	target := *msg.Receiver
	if target != msg.Sender {
		r.deliver(ctx, target, msg)
	}
	// A message to oneself is delivered once, whatever the echo policy.
	if r.echoToSender || target == msg.Sender {
		r.deliver(ctx, msg.Sender, msg)
	}
}

func (r *Router) broadcast(ctx context.Context, msg domain.DeliveredMessage, exclude domain.Identity) {
	for _, id := range r.registry.Snapshot() {
		if id == exclude {
			continue
		}
		r.deliver(ctx, id, msg)
	}
}

// deliver hands the message to one recipient's sink. A write failure is an
// implicit disconnect of the target: its teardown runs on its own goroutine
// so a single broken recipient never blocks or fails the rest of a fan-out.
func (r *Router) deliver(ctx context.Context, target domain.Identity, msg domain.DeliveredMessage) {
	sink, ok := r.registry.Lookup(target)
	if !ok {
		return
	}
	if err := sink.Consume(ctx, msg); err != nil {
		r.stats.IncrDropped()
		r.log.Warn("Dropping recipient after failed delivery",
			"target", target, "message", msg.ID, "error", err)
		go sink.Close("outbound delivery failure")
		return
	}
	r.stats.IncrDelivered()
}

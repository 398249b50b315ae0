package services

import (
	"context"
	"fmt"
	"time"

	"github.com/careline/realtime/internal/database"
	"github.com/careline/realtime/internal/models"

	"github.com/rs/zerolog"
)

// DeliveryPipeline moves messages through Sent -> Delivered -> Read and
// relays them to live connections. Every transition is persisted before
// anyone is told about it. Work is serialized per conversation so a sender
// never sees Read before Delivered for the same stream.
type DeliveryPipeline struct {
	store    database.MessageStore
	registry *ConnectionRegistry
	typing   *TypingTracker
	push     Pusher
	locks    stripedLock
	now      func() time.Time
	log      zerolog.Logger
}

func NewDeliveryPipeline(store database.MessageStore, registry *ConnectionRegistry, typing *TypingTracker, push Pusher, log zerolog.Logger) *DeliveryPipeline {
	return &DeliveryPipeline{
		store:    store,
		registry: registry,
		typing:   typing,
		push:     push,
		now:      time.Now,
		log:      log.With().Str("component", "delivery").Logger(),
	}
}

// Send relays an already persisted message to the receiver's connections.
// An offline receiver leaves the message Sent; it is picked up from history
// on their next connect.
func (d *DeliveryPipeline) Send(ctx context.Context, senderID, messageID, receiverID string) error {
	msg, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message %s: %w", messageID, err)
	}
	if msg.SenderID != senderID {
		return ErrNotSender
	}
	if receiverID != "" && msg.ReceiverID != receiverID {
		return fmt.Errorf("%w: message %s is addressed to another user", ErrInvalidArgs, messageID)
	}

	d.typing.StopTyping(senderID, msg.ReceiverID)

	unlock := d.locks.lock(msg.ConversationID)
	defer unlock()

	conns := d.registry.ConnectionsFor(msg.ReceiverID)
	if len(conns) == 0 {
		d.log.Debug().Str("message_id", msg.ID).Str("receiver_id", msg.ReceiverID).Msg("receiver offline, message stays sent")
		return nil
	}
	if msg.Status != models.StatusSent {
		return nil
	}

	if pushAll(d.push, conns, models.NewEvent(models.EventReceiveMessage, msg)) == 0 {
		return nil
	}

	at := d.now().UTC()
	changed, err := d.store.SetStatus(ctx, msg.ID, models.StatusDelivered, at)
	if err != nil {
		return fmt.Errorf("mark message %s delivered: %w", msg.ID, err)
	}
	if !changed {
		return nil
	}

	d.notifyStatus(msg.SenderID, msg.ID, models.StatusDelivered, at)
	return nil
}

// MarkRead marks one message read on behalf of its receiver. Repeating the
// call, or calling it concurrently, changes nothing after the first success.
func (d *DeliveryPipeline) MarkRead(ctx context.Context, messageID, readerID string) error {
	msg, err := d.store.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message %s: %w", messageID, err)
	}
	if msg.ReceiverID != readerID {
		return ErrNotReceiver
	}
	if msg.Status == models.StatusRead {
		return nil
	}

	unlock := d.locks.lock(msg.ConversationID)
	defer unlock()

	at := d.now().UTC()
	changed, err := d.store.SetStatus(ctx, msg.ID, models.StatusRead, at)
	if err != nil {
		return fmt.Errorf("mark message %s read: %w", msg.ID, err)
	}
	if !changed {
		return nil
	}

	d.notifyStatus(msg.SenderID, msg.ID, models.StatusRead, at)
	return nil
}

// MarkConversationRead reads every unread message addressed to readerID in
// the conversation. Each original sender gets a single ConversationRead
// event carrying the batch timestamp and the ids it covered.
func (d *DeliveryPipeline) MarkConversationRead(ctx context.Context, conversationID, readerID string) error {
	if conversationID == "" {
		return fmt.Errorf("%w: empty conversation id", ErrInvalidArgs)
	}

	unlock := d.locks.lock(conversationID)
	defer unlock()

	at := d.now().UTC()
	changed, err := d.store.BulkSetRead(ctx, conversationID, readerID, at)
	if err != nil {
		return fmt.Errorf("mark conversation %s read: %w", conversationID, err)
	}
	if len(changed) == 0 {
		return nil
	}

	bySender := make(map[string][]string)
	var order []string
	for _, msg := range changed {
		if _, seen := bySender[msg.SenderID]; !seen {
			order = append(order, msg.SenderID)
		}
		bySender[msg.SenderID] = append(bySender[msg.SenderID], msg.ID)
	}

	for _, senderID := range order {
		ev := models.NewEvent(models.EventConversationRead, conversationID, readerID, at, bySender[senderID])
		pushAll(d.push, d.registry.ConnectionsFor(senderID), ev)
	}
	d.log.Debug().Str("conversation_id", conversationID).Int("messages", len(changed)).Msg("conversation read")
	return nil
}

func (d *DeliveryPipeline) notifyStatus(senderID, messageID string, status models.MessageStatus, at time.Time) {
	ev := models.NewEvent(models.EventMessageStatusUpdated, messageID, status, at)
	pushAll(d.push, d.registry.ConnectionsFor(senderID), ev)
}

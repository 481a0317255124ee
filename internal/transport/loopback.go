package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gabepages/botkit/internal/models"
)

// Outbound is one message the bot produced through the Loopback transport.
type Outbound struct {
	Channel  models.ChannelRef
	Text     string
	Rich     *models.RichMessage
	Reaction string // emoji name; set only for reactions
	ToMsgID  string // message the reaction targets
}

// Loopback is an in-memory Sender used by tests and the console transport.
// Everything the bot sends is recorded in order; an optional Notify callback
// observes each send as it happens.
type Loopback struct {
	// Notify, when set, is invoked synchronously for every outbound item.
	Notify func(Outbound)

	mu     sync.Mutex
	outbox []Outbound
}

// NewLoopback creates an empty loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Send records a plain text message.
func (l *Loopback) Send(ctx context.Context, ch models.ChannelRef, text string) error {
	l.record(Outbound{Channel: ch, Text: text})
	return nil
}

// SendRich records a structured payload.
func (l *Loopback) SendRich(ctx context.Context, ch models.ChannelRef, rich *models.RichMessage) error {
	l.record(Outbound{Channel: ch, Rich: rich})
	return nil
}

// React records an emoji reaction.
func (l *Loopback) React(ctx context.Context, msg *models.Message, emoji string) error {
	l.record(Outbound{Channel: msg.Channel, Reaction: emoji, ToMsgID: msg.ID})
	return nil
}

// OpenDirect maps an identity to its DM channel. The loopback convention is
// "D." followed by the identity.
func (l *Loopback) OpenDirect(ctx context.Context, id models.Identity) (models.ChannelRef, error) {
	return DirectChannel(id), nil
}

// DirectChannel returns the loopback DM channel for an identity.
func DirectChannel(id models.Identity) models.ChannelRef {
	return models.ChannelRef(fmt.Sprintf("D.%s", id))
}

// Inbound builds an inbound message the way the loopback platform would
// deliver it, with a fresh ULID and the current time.
func Inbound(sender models.Identity, ch models.ChannelRef, text string, scope models.DispatchScope) *models.Message {
	return &models.Message{
		ID:        ulid.Make().String(),
		Sender:    sender,
		Channel:   ch,
		Text:      text,
		Timestamp: time.Now(),
		Scope:     scope,
	}
}

// Outbox returns a snapshot of everything sent so far.
func (l *Loopback) Outbox() []Outbound {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Outbound, len(l.outbox))
	copy(out, l.outbox)
	return out
}

// Reset clears the recorded outbox.
func (l *Loopback) Reset() {
	l.mu.Lock()
	l.outbox = nil
	l.mu.Unlock()
}

func (l *Loopback) record(o Outbound) {
	l.mu.Lock()
	l.outbox = append(l.outbox, o)
	notify := l.Notify
	l.mu.Unlock()

	if notify != nil {
		notify(o)
	}
}

package transport

import (
	"context"

	"github.com/gabepages/botkit/internal/models"
)

// Sender is the outbound half of a chat transport. It is everything the
// conversation engine needs from the platform; the connection lifecycle
// (dialing, auth, reconnects) stays inside the adapter.
type Sender interface {
	// Send posts plain text to a channel.
	Send(ctx context.Context, ch models.ChannelRef, text string) error
	// SendRich posts a structured payload to a channel, passing the wire
	// format through unchanged.
	SendRich(ctx context.Context, ch models.ChannelRef, rich *models.RichMessage) error
	// React attaches a named emoji reaction to a message.
	React(ctx context.Context, msg *models.Message, emoji string) error
	// OpenDirect resolves (opening if needed) the DM channel for an identity.
	OpenDirect(ctx context.Context, id models.Identity) (models.ChannelRef, error)
}

// Package rtm implements the websocket transport: a single long-lived
// socket carrying JSON frames in both directions, with automatic
// reconnection.
package rtm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gabepages/botkit/internal/models"
	"github.com/gabepages/botkit/internal/transport"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second

	reconnectMin = time.Second
	reconnectMax = 30 * time.Second
)

// Frame is one JSON message on the socket, inbound or outbound.
type Frame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text,omitempty"`

	// Outbound extras.
	Attachments []models.RichMessage `json:"attachments,omitempty"`
	Emoji       string               `json:"emoji,omitempty"`
	MessageID   string               `json:"msg_id,omitempty"`
}

// Frame types understood by the client.
const (
	frameMessage  = "message"
	frameReaction = "reaction_add"
)

// Handler consumes one classified inbound message.
type Handler func(ctx context.Context, msg *models.Message)

// Options configures a Client.
type Options struct {
	// URL is the websocket endpoint (ws:// or wss://).
	URL string
	// BotID is the bot's own identity on the platform; it drives scope
	// classification and self-message filtering.
	BotID models.Identity
	Log   zerolog.Logger
}

// Client is a websocket transport. It implements transport.Sender for the
// outbound side; Run pumps inbound frames into the handler until the
// context is cancelled, redialing on socket failure.
type Client struct {
	url   string
	botID models.Identity
	log   zerolog.Logger

	handler Handler

	mu   sync.Mutex // guards conn for writes and swaps
	conn *websocket.Conn
}

var _ transport.Sender = (*Client)(nil)

// NewClient creates a Client; the socket is dialed by Run.
func NewClient(opts Options, handler Handler) *Client {
	return &Client{
		url:     opts.URL,
		botID:   opts.BotID,
		log:     opts.Log,
		handler: handler,
	}
}

// Run dials the socket and pumps inbound frames until ctx is cancelled.
// Socket errors trigger a redial with exponential backoff; Run only
// returns the context's error.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectMin
	for {
		if err := c.dial(ctx); err != nil {
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("websocket dial failed")
		} else {
			backoff = reconnectMin
			err := c.readLoop(ctx)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn().Err(err).Dur("retry_in", backoff).Msg("websocket read loop ended, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > reconnectMax {
			backoff = reconnectMax
		}
	}
}

func (c *Client) dial(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("websocket connected")
	return nil
}

func (c *Client) readLoop(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("no connection")
	}

	// Unblock ReadJSON when the context ends.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			return err
		}
		if f.Type != frameMessage {
			continue
		}
		if models.Identity(f.User) == c.botID {
			// our own echo
			continue
		}
		msg := c.classify(&f)
		c.handler(ctx, msg)
	}
}

// classify builds the inbound Message, assigning the dispatch scope from
// the channel shape and mention placement. A bot-mention prefix is
// stripped from the text so patterns see the command itself.
func (c *Client) classify(f *Frame) *models.Message {
	text := strings.TrimSpace(f.Text)
	scope := models.ScopeAmbient
	mention := fmt.Sprintf("<@%s>", c.botID)

	switch {
	case strings.HasPrefix(f.Channel, "D"):
		scope = models.ScopeDirectMessage
	case strings.HasPrefix(text, mention):
		scope = models.ScopeDirectMention
		text = strings.TrimSpace(strings.TrimPrefix(text, mention))
	case strings.Contains(text, mention):
		scope = models.ScopeMention
	}

	m := transport.Inbound(models.Identity(f.User), models.ChannelRef(f.Channel), text, scope)
	return m
}

func (c *Client) writeFrame(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return errors.New("websocket not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(f)
}

// Send writes a plain message frame.
func (c *Client) Send(ctx context.Context, ch models.ChannelRef, text string) error {
	return c.writeFrame(&Frame{Type: frameMessage, Channel: string(ch), Text: text})
}

// SendRich writes a message frame carrying the structured payload as an
// attachment. The payload passes through unchanged.
func (c *Client) SendRich(ctx context.Context, ch models.ChannelRef, rich *models.RichMessage) error {
	return c.writeFrame(&Frame{
		Type:        frameMessage,
		Channel:     string(ch),
		Attachments: []models.RichMessage{*rich},
	})
}

// React writes a reaction frame targeting the original message.
func (c *Client) React(ctx context.Context, msg *models.Message, emoji string) error {
	return c.writeFrame(&Frame{
		Type:      frameReaction,
		Channel:   string(msg.Channel),
		Emoji:     emoji,
		MessageID: msg.ID,
	})
}

// OpenDirect returns the DM channel for an identity. The wire convention
// is "D" followed by the identity; no round trip is needed.
func (c *Client) OpenDirect(ctx context.Context, id models.Identity) (models.ChannelRef, error) {
	if id == "" {
		return "", errors.New("empty identity")
	}
	return models.ChannelRef("D" + string(id)), nil
}

// Close tears down the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

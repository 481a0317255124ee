// Package discord adapts a Discord gateway session to the bot's transport
// contract. Inbound messages are classified into dispatch scopes; outbound
// rich payloads map onto message embeds.
package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/gabepages/botkit/internal/models"
	"github.com/gabepages/botkit/internal/transport"
)

// Handler consumes one classified inbound message.
type Handler func(ctx context.Context, msg *models.Message)

// Options configures an Adapter.
type Options struct {
	Token string
	Log   zerolog.Logger
}

// Adapter is the Discord transport. Start opens the gateway session and
// feeds inbound messages to the handler; the Sender methods cover the
// outbound side.
type Adapter struct {
	token   string
	log     zerolog.Logger
	handler Handler

	mu      sync.Mutex
	session *discordgo.Session
	selfID  string
}

var _ transport.Sender = (*Adapter)(nil)

// NewAdapter creates an Adapter; the session is opened by Start.
func NewAdapter(opts Options, handler Handler) *Adapter {
	return &Adapter{
		token:   strings.TrimSpace(opts.Token),
		log:     opts.Log,
		handler: handler,
	}
}

// Start opens the gateway session with the message intents the dialogue
// needs. It returns once the session is connected.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session != nil {
		return fmt.Errorf("discord adapter already started")
	}

	s, err := discordgo.New(normalizeToken(a.token))
	if err != nil {
		return fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent
	s.AddHandler(a.handleMessageCreate)

	if err := s.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	a.session = s
	if s.State != nil && s.State.User != nil {
		a.selfID = s.State.User.ID
	}
	a.log.Info().Str("self_id", a.selfID).Msg("discord session open")
	return nil
}

// Stop closes the gateway session.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	s := a.session
	a.session = nil
	a.mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Close(); err != nil {
		return fmt.Errorf("close discord session: %w", err)
	}
	a.log.Info().Msg("discord session closed")
	return nil
}

func (a *Adapter) handleMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil {
		return
	}
	if m.Author.Bot {
		return
	}

	msg := a.classify(m)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	a.handler(ctx, msg)
}

// classify maps a Discord message onto the dialogue scopes: DMs carry no
// guild, a leading bot mention is a direct mention (and is stripped), any
// other bot mention is a plain mention, the rest is ambient.
func (a *Adapter) classify(m *discordgo.MessageCreate) *models.Message {
	text := strings.TrimSpace(m.Content)
	scope := models.ScopeAmbient

	mention := "<@" + a.selfID + ">"
	nickMention := "<@!" + a.selfID + ">"

	switch {
	case m.GuildID == "":
		scope = models.ScopeDirectMessage
	case strings.HasPrefix(text, mention):
		scope = models.ScopeDirectMention
		text = strings.TrimSpace(strings.TrimPrefix(text, mention))
	case strings.HasPrefix(text, nickMention):
		scope = models.ScopeDirectMention
		text = strings.TrimSpace(strings.TrimPrefix(text, nickMention))
	case a.mentionsSelf(m):
		scope = models.ScopeMention
	}

	msg := transport.Inbound(models.Identity(m.Author.ID), models.ChannelRef(m.ChannelID), text, scope)
	msg.ID = m.ID
	if ts := m.Timestamp; !ts.IsZero() {
		msg.Timestamp = ts.UTC()
	}
	return msg
}

func (a *Adapter) mentionsSelf(m *discordgo.MessageCreate) bool {
	for _, u := range m.Mentions {
		if u != nil && u.ID == a.selfID {
			return true
		}
	}
	return false
}

func (a *Adapter) live() (*discordgo.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil, fmt.Errorf("discord session not open")
	}
	return a.session, nil
}

// Send posts plain text to a channel.
func (a *Adapter) Send(ctx context.Context, ch models.ChannelRef, text string) error {
	s, err := a.live()
	if err != nil {
		return err
	}
	if _, err := s.ChannelMessageSend(string(ch), text); err != nil {
		return fmt.Errorf("send to %s: %w", ch, err)
	}
	return nil
}

// SendRich posts the structured payload as an embed. The mapping is
// field-for-field; unknown payload fields simply have no embed slot.
func (a *Adapter) SendRich(ctx context.Context, ch models.ChannelRef, rich *models.RichMessage) error {
	s, err := a.live()
	if err != nil {
		return err
	}
	if _, err := s.ChannelMessageSendEmbed(string(ch), toEmbed(rich)); err != nil {
		return fmt.Errorf("send embed to %s: %w", ch, err)
	}
	return nil
}

// React adds an emoji reaction to the original message.
func (a *Adapter) React(ctx context.Context, msg *models.Message, emoji string) error {
	s, err := a.live()
	if err != nil {
		return err
	}
	if err := s.MessageReactionAdd(string(msg.Channel), msg.ID, emoji); err != nil {
		return fmt.Errorf("react %s: %w", emoji, err)
	}
	return nil
}

// OpenDirect resolves (or creates) the DM channel for a user.
func (a *Adapter) OpenDirect(ctx context.Context, id models.Identity) (models.ChannelRef, error) {
	s, err := a.live()
	if err != nil {
		return "", err
	}
	ch, err := s.UserChannelCreate(string(id))
	if err != nil {
		return "", fmt.Errorf("open dm with %s: %w", id, err)
	}
	return models.ChannelRef(ch.ID), nil
}

func toEmbed(rich *models.RichMessage) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       rich.Title,
		URL:         rich.TitleLink,
		Description: rich.Pretext,
		Color:       parseColor(rich.Color),
	}
	if rich.AuthorName != "" {
		e.Author = &discordgo.MessageEmbedAuthor{Name: rich.AuthorName}
	}
	if rich.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: rich.Footer, IconURL: rich.FooterIcon}
	}
	for _, f := range rich.Fields {
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{
			Name:   f.Title,
			Value:  f.Value,
			Inline: f.Short,
		})
	}
	return e
}

// parseColor converts a "#RRGGBB" string to the embed's integer color.
// Unparseable input falls back to zero (no color bar).
func parseColor(c string) int {
	c = strings.TrimPrefix(strings.TrimSpace(c), "#")
	if len(c) != 6 {
		return 0
	}
	var v int
	for _, r := range c {
		var d int
		switch {
		case r >= '0' && r <= '9':
			d = int(r - '0')
		case r >= 'a' && r <= 'f':
			d = int(r-'a') + 10
		case r >= 'A' && r <= 'F':
			d = int(r-'A') + 10
		default:
			return 0
		}
		v = v<<4 | d
	}
	return v
}

func normalizeToken(token string) string {
	if strings.HasPrefix(strings.ToLower(token), "bot ") {
		return token
	}
	return "Bot " + token
}

package dialog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/gabepages/botkit/internal/metrics"
	"github.com/gabepages/botkit/internal/models"
	"github.com/gabepages/botkit/internal/transport"
)

// ErrConversationActive is returned when a conversation is started for a
// (recipient, origin) pair that already has one awaiting a reply. Exactly
// one conversation may own a reply channel at a time; overlapping prompts
// would multiplex two questions onto one answer.
var ErrConversationActive = errors.New("a conversation is already active for this recipient and channel")

const (
	defaultTimeout    = 5 * time.Minute
	defaultMaxRepeats = 20
)

// Options tunes an Engine.
type Options struct {
	// BotName is the bot's display name, used by handlers that identify the bot.
	BotName string
	// Timeout is the idle window for a suspended question before the
	// conversation ends timed_out. Zero means the default (5m); negative
	// disables the timer.
	Timeout time.Duration
	// MaxRepeats bounds how many times one question is re-sent for
	// unmatched or repeated replies before the conversation ends stopped.
	// Zero means the default (20); negative means unbounded.
	MaxRepeats int
}

type convKey struct {
	recipient models.Identity
	origin    models.ChannelRef
}

// Engine is the dialogue orchestrator: it routes inbound messages either to
// the suspended conversation awaiting them or to the pattern router, and it
// is the only path through which handlers touch the outside transport.
// One Engine is constructed at startup and passed to every handler; there
// is no ambient singleton.
type Engine struct {
	log    zerolog.Logger
	sender transport.Sender
	router *Router

	name       string
	timeout    time.Duration
	maxRepeats int

	mu     sync.Mutex
	active map[convKey]*Conversation

	started   atomic.Uint64
	completed atomic.Uint64
	stopped   atomic.Uint64
	timedOut  atomic.Uint64
}

// NewEngine wires an Engine to a transport sender.
func NewEngine(log zerolog.Logger, sender transport.Sender, opts Options) *Engine {
	timeout := opts.Timeout
	switch {
	case timeout == 0:
		timeout = defaultTimeout
	case timeout < 0:
		timeout = 0
	}
	maxRepeats := opts.MaxRepeats
	switch {
	case maxRepeats == 0:
		maxRepeats = defaultMaxRepeats
	case maxRepeats < 0:
		maxRepeats = 0
	}

	return &Engine{
		log:        log,
		sender:     sender,
		router:     NewRouter(),
		name:       opts.BotName,
		timeout:    timeout,
		maxRepeats: maxRepeats,
		active:     make(map[convKey]*Conversation),
	}
}

// Name returns the bot's display name.
func (e *Engine) Name() string { return e.name }

// Hears registers a pattern handler on the engine's router.
func (e *Engine) Hears(patterns []string, scopes []models.DispatchScope, fn HandlerFunc) error {
	return e.router.Register(patterns, scopes, fn)
}

// HandleMessage is the single dispatch path for inbound messages: a
// suspended conversation for (sender, channel) consumes the message as its
// reply, otherwise the pattern router gets it.
func (e *Engine) HandleMessage(ctx context.Context, msg *models.Message) {
	key := convKey{recipient: msg.Sender, origin: msg.Channel}

	e.mu.Lock()
	c := e.active[key]
	e.mu.Unlock()

	if c != nil {
		metrics.MessagesDispatched.WithLabelValues(string(msg.Scope), "conversation").Inc()
		c.handleReply(ctx, msg)
		return
	}

	if e.router.Dispatch(ctx, e, msg) {
		metrics.MessagesDispatched.WithLabelValues(string(msg.Scope), "handler").Inc()
	} else {
		metrics.MessagesDispatched.WithLabelValues(string(msg.Scope), "dropped").Inc()
	}
}

// Reply sends plain text back to the channel a message arrived on.
func (e *Engine) Reply(ctx context.Context, msg *models.Message, text string) {
	if err := e.sender.Send(ctx, msg.Channel, text); err != nil {
		e.log.Error().Err(err).Str("channel", string(msg.Channel)).Msg("failed to send reply")
	}
}

// ReplyRich sends a structured payload back to the message's channel. The
// payload is a collaborator wire contract and passes through unchanged.
func (e *Engine) ReplyRich(ctx context.Context, msg *models.Message, rich *models.RichMessage) {
	if err := e.sender.SendRich(ctx, msg.Channel, rich); err != nil {
		e.log.Error().Err(err).Str("channel", string(msg.Channel)).Msg("failed to send rich reply")
	}
}

// React attaches an emoji reaction to a message. Reaction failures are
// logged, never surfaced: a missing emoji must not break a dialogue.
func (e *Engine) React(ctx context.Context, msg *models.Message, emoji string) {
	if err := e.sender.React(ctx, msg, emoji); err != nil {
		e.log.Error().Err(err).Str("emoji", emoji).Msg("failed to add reaction")
	}
}

// StartConversation opens a conversation with the message's sender on the
// channel the message arrived on. The build callback populates the step
// queue before the conversation activates. Returns ErrConversationActive
// when the (sender, channel) pair already has a conversation awaiting a
// reply.
func (e *Engine) StartConversation(ctx context.Context, msg *models.Message, build func(*Conversation)) error {
	return e.start(ctx, msg.Sender, msg.Channel, false, build)
}

// StartPrivateConversation opens a conversation with an arbitrary identity
// on its direct-message channel. A failure to open the channel aborts the
// attempt with no side effects; sibling conversations are unaffected.
func (e *Engine) StartPrivateConversation(ctx context.Context, id models.Identity, build func(*Conversation)) error {
	ch, err := e.sender.OpenDirect(ctx, id)
	if err != nil {
		return fmt.Errorf("open direct channel to %s: %w", id, err)
	}
	return e.start(ctx, id, ch, true, build)
}

func (e *Engine) start(ctx context.Context, recipient models.Identity, origin models.ChannelRef, private bool, build func(*Conversation)) error {
	c := newConversation(e, recipient, origin, private)

	key := convKey{recipient: recipient, origin: origin}
	e.mu.Lock()
	if _, busy := e.active[key]; busy {
		e.mu.Unlock()
		return ErrConversationActive
	}
	e.active[key] = c
	e.mu.Unlock()

	build(c)

	kind := "channel"
	if private {
		kind = "private"
	}
	metrics.ConversationsStarted.WithLabelValues(kind).Inc()
	e.started.Add(1)
	e.log.Debug().
		Str("conversation_id", c.id.String()).
		Str("recipient", string(recipient)).
		Str("origin", string(origin)).
		Str("kind", kind).
		Msg("conversation started")

	c.activate(ctx)
	return nil
}

// release frees the (recipient, origin) slot when a conversation ends. The
// slot is only cleared when it still belongs to c.
func (e *Engine) release(recipient models.Identity, origin models.ChannelRef, c *Conversation) {
	key := convKey{recipient: recipient, origin: origin}
	e.mu.Lock()
	if e.active[key] == c {
		delete(e.active, key)
	}
	e.mu.Unlock()
}

func (e *Engine) noteEnd(status Status) {
	switch status {
	case StatusCompleted:
		e.completed.Add(1)
	case StatusStopped:
		e.stopped.Add(1)
	case StatusTimedOut:
		e.timedOut.Add(1)
	}
}

// Stats is a snapshot of engine activity for the ops surface.
type Stats struct {
	ActiveConversations int    `json:"active_conversations"`
	Started             uint64 `json:"started"`
	Completed           uint64 `json:"completed"`
	Stopped             uint64 `json:"stopped"`
	TimedOut            uint64 `json:"timed_out"`
}

// Stats returns current engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	active := len(e.active)
	e.mu.Unlock()

	return Stats{
		ActiveConversations: active,
		Started:             e.started.Load(),
		Completed:           e.completed.Load(),
		Stopped:             e.stopped.Load(),
		TimedOut:            e.timedOut.Load(),
	}
}

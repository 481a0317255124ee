// Package script wires the bot's dialogue handlers onto the engine: pattern
// registrations, the reusable nickname-capture flow, and the ping pong
// invite mediation.
package script

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/gabepages/botkit/internal/dialog"
	"github.com/gabepages/botkit/internal/models"
	"github.com/gabepages/botkit/internal/store"
)

const defaultShutdownDelay = 3 * time.Second

// addressed is every scope in which the bot answers: it never reacts to
// ambient channel chatter.
var addressed = []models.DispatchScope{
	models.ScopeDirectMessage,
	models.ScopeDirectMention,
	models.ScopeMention,
}

// Options configures a Script.
type Options struct {
	Log   zerolog.Logger
	Store store.SlotStore

	// Shutdown is invoked (after ShutdownDelay) when a user confirms the
	// shutdown command. Typically it cancels the daemon's root context.
	Shutdown      func()
	ShutdownDelay time.Duration
}

// Script holds the handler set's shared dependencies.
type Script struct {
	log           zerolog.Logger
	store         store.SlotStore
	med           *dialog.Mediator
	shutdown      func()
	shutdownDelay time.Duration
	startedAt     time.Time
}

// New creates a Script. Register must be called to bind it to an engine.
func New(opts Options) *Script {
	delay := opts.ShutdownDelay
	if delay <= 0 {
		delay = defaultShutdownDelay
	}
	return &Script{
		log:           opts.Log,
		store:         opts.Store,
		shutdown:      opts.Shutdown,
		shutdownDelay: delay,
		startedAt:     time.Now(),
	}
}

// Register binds every handler to the engine's router. Registration order
// is the routing precedence.
func (s *Script) Register(eng *dialog.Engine) error {
	s.med = dialog.NewMediator(eng, s.log)

	regs := []struct {
		patterns []string
		fn       dialog.HandlerFunc
	}{
		{[]string{"hello", "hi"}, s.greet},
		{[]string{"call me (.*)", "my name is (.*)"}, s.callMe},
		{[]string{"what is my name", "who am i"}, s.whoAmI},
		{[]string{"shutdown"}, s.confirmShutdown},
		{[]string{"uptime", "identify yourself", "who are you", "what is your name"}, s.identify},
		{[]string{"ask (.*) to play ping pong"}, s.pingPong},
	}
	for _, reg := range regs {
		if err := eng.Hears(reg.patterns, addressed, reg.fn); err != nil {
			return fmt.Errorf("register %q: %w", reg.patterns[0], err)
		}
	}
	return nil
}

// greet reacts to a greeting, using the stored nickname when one exists and
// starting the nickname-capture flow otherwise.
func (s *Script) greet(ctx context.Context, eng *dialog.Engine, msg *models.Message) {
	eng.React(ctx, msg, "robot_face")

	profile, err := s.store.Get(ctx, msg.Sender)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.replyStoreDown(ctx, eng, msg, err)
		return
	}
	if profile != nil && profile.Name != "" {
		eng.Reply(ctx, msg, "Hello "+profile.Name+"!!")
		eng.Reply(ctx, msg, "What can I do for you?")
		return
	}

	s.ensureName(ctx, eng, msg, "Hello! I do not know your name yet!", nil)
}

// callMe stores the nickname from the pattern's capture group.
func (s *Script) callMe(ctx context.Context, eng *dialog.Engine, msg *models.Message) {
	name := msg.MatchGroups[1]
	if _, err := s.saveName(ctx, msg.Sender, name); err != nil {
		s.replyStoreDown(ctx, eng, msg, err)
		return
	}
	eng.Reply(ctx, msg, "Got it. I will call you "+name+" from now on.")
}

// whoAmI answers with the stored nickname, or starts the capture flow.
func (s *Script) whoAmI(ctx context.Context, eng *dialog.Engine, msg *models.Message) {
	profile, err := s.store.Get(ctx, msg.Sender)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.replyStoreDown(ctx, eng, msg, err)
		return
	}
	if profile != nil && profile.Name != "" {
		eng.Reply(ctx, msg, "Your name is "+profile.Name)
		return
	}

	s.ensureName(ctx, eng, msg, "Hello! I do not know your name yet!", nil)
}

// confirmShutdown asks before terminating. Yes schedules the injected
// shutdown after a short delay so the goodbye still goes out.
func (s *Script) confirmShutdown(ctx context.Context, eng *dialog.Engine, msg *models.Message) {
	err := eng.StartConversation(ctx, msg, func(c *dialog.Conversation) {
		c.Ask("Are you sure you want me to shutdown?", []dialog.Branch{
			{Match: dialog.MatchAffirmative, Action: func(_ *models.Message, c *dialog.Conversation) {
				c.Say("Bye!")
				c.Next()
				s.scheduleShutdown()
			}},
			{Match: dialog.MatchNegative, Action: func(_ *models.Message, c *dialog.Conversation) {
				c.Say("*Phew!*")
				c.Next()
			}},
			{Default: true, Action: func(_ *models.Message, c *dialog.Conversation) {
				c.Repeat()
				c.Next()
			}},
		}, "")
	})
	if err != nil {
		s.log.Warn().Err(err).Str("sender", string(msg.Sender)).Msg("could not start shutdown confirmation")
	}
}

func (s *Script) scheduleShutdown() {
	s.log.Info().Dur("delay", s.shutdownDelay).Msg("shutdown confirmed")
	if s.shutdown == nil {
		return
	}
	time.AfterFunc(s.shutdownDelay, s.shutdown)
}

// identify reports the bot's name, host and humanized uptime.
func (s *Script) identify(ctx context.Context, eng *dialog.Engine, msg *models.Message) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown host"
	}
	eng.Reply(ctx, msg, fmt.Sprintf(
		":robot_face: I am a bot named <@%s>. I have been running for %s on %s.",
		eng.Name(), formatUptime(time.Since(s.startedAt)), hostname,
	))
}

// pingPong resolves the mentioned target and mediates the invite. When the
// requester has no stored name yet, the capture flow runs first and the
// invite only goes out after the nickname save has committed.
func (s *Script) pingPong(ctx context.Context, eng *dialog.Engine, msg *models.Message) {
	token := msg.MatchGroups[1]
	target, err := dialog.ParseIdentityRef(token)
	if err != nil {
		eng.Reply(ctx, msg, fmt.Sprintf("Sorry, I can't tell who %q is. Mention them like <@their-handle> and I'll ask.", token))
		return
	}

	profile, err := s.store.Get(ctx, msg.Sender)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.replyStoreDown(ctx, eng, msg, err)
		return
	}

	if profile != nil && profile.Name != "" {
		eng.Reply(ctx, msg, "OK! Give me a minute to see if you have any takers.")
		s.invite(ctx, eng, msg, profile, target)
		return
	}

	intro := "Hey! I do not know your name yet! I can't ask someone to play ping pong with you if I dont know who you are!"
	s.ensureName(ctx, eng, msg, intro, func(saved *models.Profile) {
		eng.Reply(ctx, msg, "Got it. I will call you "+saved.Name+" from now on and I will send your ping pong request.")
		s.invite(ctx, eng, msg, saved, target)
	})
}

func (s *Script) invite(ctx context.Context, eng *dialog.Engine, msg *models.Message, requester *models.Profile, target models.Identity) {
	if err := s.med.Invite(ctx, requester, target, ":ping:"); err != nil {
		s.log.Error().Err(err).Str("target", string(target)).Msg("invite failed")
		eng.Reply(ctx, msg, fmt.Sprintf("I couldn't reach %s, sorry.", target))
	}
}

// ensureName runs the nickname-capture conversation: intro statement,
// open question, confirmation round, then a merged profile save. The same
// flow backs greetings, "who am i" and the ping pong chain; then (when
// non-nil) receives the saved profile once the write has committed.
func (s *Script) ensureName(ctx context.Context, eng *dialog.Engine, msg *models.Message, intro string, then func(*models.Profile)) {
	err := eng.StartConversation(ctx, msg, func(c *dialog.Conversation) {
		c.Say(intro)
		c.Ask("What should I call you?", []dialog.Branch{
			{Default: true, Action: func(reply *models.Message, c *dialog.Conversation) {
				c.Ask("You want me to call you `"+reply.Text+"`?", []dialog.Branch{
					{Match: dialog.MatchAffirmative, Action: func(_ *models.Message, c *dialog.Conversation) {
						// nothing further queued: the conversation ends completed
						c.Next()
					}},
					{Match: dialog.MatchNegative, Action: func(_ *models.Message, c *dialog.Conversation) {
						c.Stop()
					}},
					{Default: true, Action: func(_ *models.Message, c *dialog.Conversation) {
						c.Repeat()
						c.Next()
					}},
				}, "")
				c.Next()
			}},
		}, "nickname")

		c.OnEnd(func(c *dialog.Conversation) {
			if c.Status() != dialog.StatusCompleted {
				eng.Reply(ctx, msg, "OK, nevermind!")
				return
			}

			eng.Reply(ctx, msg, "OK! Let me write that down...")
			name, _ := c.ExtractResponse("nickname")
			saved, err := s.saveName(ctx, msg.Sender, name)
			if err != nil {
				s.replyStoreDown(ctx, eng, msg, err)
				return
			}
			if then != nil {
				then(saved)
				return
			}
			eng.Reply(ctx, msg, "Got it. I will call you "+saved.Name+" from now on.")
		})
	})
	if err != nil {
		s.log.Warn().Err(err).Str("sender", string(msg.Sender)).Msg("could not start nickname capture")
	}
}

// saveName merges the nickname into the existing profile (read-modify-write)
// so unrelated slots survive, then saves the full record.
func (s *Script) saveName(ctx context.Context, id models.Identity, name string) (*models.Profile, error) {
	profile, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		profile = &models.Profile{ID: id}
	} else if err != nil {
		return nil, err
	}

	profile.Name = name
	if _, err := s.store.Save(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// replyStoreDown reports a storage failure as a retryable condition. A
// backend error never masquerades as "profile absent": that would route the
// user into the wrong dialogue branch.
func (s *Script) replyStoreDown(ctx context.Context, eng *dialog.Engine, msg *models.Message, err error) {
	s.log.Error().Err(err).Str("sender", string(msg.Sender)).Msg("slot store unavailable")
	eng.Reply(ctx, msg, "I'm having trouble reaching my memory right now. Please try again in a moment.")
}

// formatUptime humanizes a duration the way the status line expects:
// seconds, then minutes, then hours.
func formatUptime(d time.Duration) string {
	value := d.Seconds()
	unit := "second"
	if value > 60 {
		value /= 60
		unit = "minute"
	}
	if value > 60 {
		value /= 60
		unit = "hour"
	}
	if int(value+0.5) != 1 {
		unit += "s"
	}
	return fmt.Sprintf("%.0f %s", value, unit)
}

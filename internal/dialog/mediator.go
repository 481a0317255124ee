package dialog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/gabepages/botkit/internal/models"
)

// ErrBadIdentityRef is returned when a target reference cannot be resolved
// to an identity. Handlers must report it to the requester rather than
// silently failing to deliver.
var ErrBadIdentityRef = errors.New("malformed identity reference")

// identityRefRe accepts the bare identity inside a mention token.
var identityRefRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ParseIdentityRef resolves a user-supplied target reference to an Identity.
// It accepts decorated mention tokens ("<@U123>") and bare identities; any
// other shape is ErrBadIdentityRef. This replaces blind slicing of the raw
// token, which breaks on undecorated input.
func ParseIdentityRef(token string) (models.Identity, error) {
	ref := strings.TrimSpace(token)
	if strings.HasPrefix(ref, "<@") && strings.HasSuffix(ref, ">") {
		ref = ref[2 : len(ref)-1]
	}
	if !identityRefRe.MatchString(ref) {
		return "", fmt.Errorf("%w: %q", ErrBadIdentityRef, token)
	}
	return models.Identity(ref), nil
}

// Mediator pairs two identities through two independent private
// conversations: a question to the target, then a notification back to the
// requester. Neither party sees the other's session; the only shared
// context is the requester's display name and the activity, threaded into
// the prompt texts.
type Mediator struct {
	eng *Engine
	log zerolog.Logger
}

// NewMediator creates a Mediator on top of an engine.
func NewMediator(eng *Engine, log zerolog.Logger) *Mediator {
	return &Mediator{eng: eng, log: log}
}

// Invite asks target whether they want to join requester for activity (a
// display string such as ":ping:"). The target's yes/no/unmatched replies
// drive the flow:
//
//   - yes: the target's conversation completes, then a second private
//     conversation delivers a ready notification to the requester;
//   - no: symmetric decline notification to the requester;
//   - unmatched: the question repeats to the target only.
//
// The error covers only the failure to open the target's conversation; the
// outcome itself is reported through the notification conversations.
func (m *Mediator) Invite(ctx context.Context, requester *models.Profile, target models.Identity, activity string) error {
	if requester == nil || requester.Name == "" {
		return fmt.Errorf("requester profile with a display name is required")
	}

	accepted := false
	err := m.eng.StartPrivateConversation(ctx, target, func(c *Conversation) {
		c.Ask(fmt.Sprintf("Do you want to play %s with %s?", activity, requester.Name), []Branch{
			{Match: MatchAffirmative, Action: func(reply *models.Message, c *Conversation) {
				accepted = true
				c.Say(fmt.Sprintf("Awesome, I will let %s know, have fun!", requester.Name))
				c.Next()
			}},
			{Match: MatchNegative, Action: func(reply *models.Message, c *Conversation) {
				c.Say(fmt.Sprintf("No worries, I'll be sure to let %s down easy.", requester.Name))
				c.Next()
			}},
			{Default: true, Action: func(reply *models.Message, c *Conversation) {
				c.Repeat()
				c.Next()
			}},
		}, "")

		c.OnEnd(func(c *Conversation) {
			if c.Status() != StatusCompleted {
				m.log.Info().
					Str("target", string(target)).
					Str("status", string(c.Status())).
					Msg("invite conversation ended without an answer")
				return
			}
			m.notifyRequester(ctx, requester, activity, accepted)
		})
	})
	if err != nil {
		return fmt.Errorf("invite %s: %w", target, err)
	}
	return nil
}

// notifyRequester opens the second, independent conversation back to the
// requester. It carries only a statement, no question.
func (m *Mediator) notifyRequester(ctx context.Context, requester *models.Profile, activity string, accepted bool) {
	text := fmt.Sprintf("Sorry %s, your friend is a little busy at the moment and can't play... :disappointed_relieved:", requester.Name)
	if accepted {
		text = fmt.Sprintf("%s, your friend is ready to play some %s. *I'm rooting for you!* :wink:", requester.Name, activity)
	}

	err := m.eng.StartPrivateConversation(ctx, requester.ID, func(c *Conversation) {
		c.Say(text)
	})
	if err != nil {
		m.log.Error().Err(err).
			Str("requester", string(requester.ID)).
			Msg("failed to deliver invite outcome")
	}
}

package dialog

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gabepages/botkit/internal/models"
)

// HandlerFunc is a pattern handler. The message is dispatched with
// MatchGroups populated from the winning pattern's capture groups.
type HandlerFunc func(ctx context.Context, eng *Engine, msg *models.Message)

// registration binds a set of patterns and scopes to one handler.
type registration struct {
	patterns []*regexp.Regexp
	scopes   map[models.DispatchScope]struct{}
	fn       HandlerFunc
}

// Router maps an inbound message to at most one registered handler.
// Matching is first-match-wins in registration order, not best-match.
type Router struct {
	regs []registration
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{}
}

// Register binds patterns (case-insensitive, unanchored regexes) and scopes
// to a handler. Registration order is significant: earlier registrations win.
func (r *Router) Register(patterns []string, scopes []models.DispatchScope, fn HandlerFunc) error {
	if len(patterns) == 0 {
		return fmt.Errorf("at least one pattern is required")
	}
	if fn == nil {
		return fmt.Errorf("handler is required")
	}

	reg := registration{
		scopes: make(map[models.DispatchScope]struct{}, len(scopes)),
		fn:     fn,
	}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("compile pattern %q: %w", p, err)
		}
		reg.patterns = append(reg.patterns, re)
	}
	for _, s := range scopes {
		reg.scopes[s] = struct{}{}
	}

	r.regs = append(r.regs, reg)
	return nil
}

// Dispatch tests the message against registrations in order and invokes the
// first handler whose pattern matches and whose scope set includes the
// message's scope. Returns false when nothing matched; an unrouted message
// is a no-op, not an error.
func (r *Router) Dispatch(ctx context.Context, eng *Engine, msg *models.Message) bool {
	for _, reg := range r.regs {
		if _, ok := reg.scopes[msg.Scope]; !ok {
			continue
		}
		for _, re := range reg.patterns {
			groups := re.FindStringSubmatch(msg.Text)
			if groups == nil {
				continue
			}
			msg.MatchGroups = groups
			reg.fn(ctx, eng, msg)
			return true
		}
	}
	return false
}

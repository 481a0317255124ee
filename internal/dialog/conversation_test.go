package dialog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gabepages/botkit/internal/models"
	"github.com/gabepages/botkit/internal/transport"
)

func newTestEngine(t *testing.T, opts Options) (*Engine, *transport.Loopback) {
	t.Helper()
	if opts.BotName == "" {
		opts.BotName = "botkit"
	}
	if opts.Timeout == 0 {
		opts.Timeout = -1 // no timers unless the test wants them
	}
	lb := transport.NewLoopback()
	return NewEngine(zerolog.Nop(), lb, opts), lb
}

func sentTexts(lb *transport.Loopback) []string {
	var out []string
	for _, o := range lb.Outbox() {
		if o.Text != "" {
			out = append(out, o.Text)
		}
	}
	return out
}

func wantTexts(t *testing.T, lb *transport.Loopback, want ...string) {
	t.Helper()
	got := sentTexts(lb)
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent %v, want %v", got, want)
		}
	}
}

func TestConversationStatementsOnlyCompletes(t *testing.T) {
	eng, lb := newTestEngine(t, Options{})
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	var c *Conversation
	err := eng.StartConversation(context.Background(), msg, func(conv *Conversation) {
		c = conv
		conv.Say("one")
		conv.Say("two")
	})
	if err != nil {
		t.Fatal(err)
	}

	wantTexts(t, lb, "one", "two")
	if c.Status() != StatusCompleted {
		t.Fatalf("status = %s, want %s", c.Status(), StatusCompleted)
	}
	if st := eng.Stats(); st.ActiveConversations != 0 || st.Completed != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestConversationAskBranches(t *testing.T) {
	eng, lb := newTestEngine(t, Options{})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	var c *Conversation
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		c = conv
		conv.Ask("Proceed?", []Branch{
			{Match: MatchAffirmative, Action: func(_ *models.Message, c *Conversation) {
				c.Say("doing it")
				c.Next()
			}},
			{Match: MatchNegative, Action: func(_ *models.Message, c *Conversation) {
				c.Stop()
			}},
		}, "answer")
	})
	if err != nil {
		t.Fatal(err)
	}

	if c.Status() != StatusActive {
		t.Fatalf("status = %s before reply, want %s", c.Status(), StatusActive)
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "yes", models.ScopeDirectMessage))

	wantTexts(t, lb, "Proceed?", "doing it")
	if c.Status() != StatusCompleted {
		t.Fatalf("status = %s, want %s", c.Status(), StatusCompleted)
	}
	if v, ok := c.ExtractResponse("answer"); !ok || v != "yes" {
		t.Fatalf("ExtractResponse = %q, %v", v, ok)
	}
}

func TestConversationStopStillCaptures(t *testing.T) {
	eng, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	var c *Conversation
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		c = conv
		conv.Ask("Last words?", []Branch{
			{Default: true, Action: func(_ *models.Message, c *Conversation) { c.Stop() }},
		}, "words")
	})
	if err != nil {
		t.Fatal(err)
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "goodbye cruel world", models.ScopeDirectMessage))

	if c.Status() != StatusStopped {
		t.Fatalf("status = %s, want %s", c.Status(), StatusStopped)
	}
	if v, ok := c.ExtractResponse("words"); !ok || v != "goodbye cruel world" {
		t.Fatalf("stop discarded the capture: %q, %v", v, ok)
	}
}

func TestConversationRepeatSuppressesCapture(t *testing.T) {
	eng, lb := newTestEngine(t, Options{})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	turns := 0
	var c *Conversation
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		c = conv
		conv.Ask("Name?", []Branch{
			{Default: true, Action: func(_ *models.Message, c *Conversation) {
				turns++
				if turns == 1 {
					c.Repeat()
					return
				}
				c.Next()
			}},
		}, "name")
	})
	if err != nil {
		t.Fatal(err)
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "first try", models.ScopeDirectMessage))
	if _, ok := c.ExtractResponse("name"); ok {
		t.Fatal("repeated turn was captured")
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "second try", models.ScopeDirectMessage))
	if v, ok := c.ExtractResponse("name"); !ok || v != "second try" {
		t.Fatalf("capture = %q, %v", v, ok)
	}
	wantTexts(t, lb, "Name?", "Name?")
}

func TestConversationUnmatchedRepromptsThenStops(t *testing.T) {
	eng, lb := newTestEngine(t, Options{MaxRepeats: 2})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	var c *Conversation
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		c = conv
		conv.Ask("Yes or no?", []Branch{{Match: MatchAffirmative, Action: func(_ *models.Message, c *Conversation) { c.Next() }}}, "")
	})
	if err != nil {
		t.Fatal(err)
	}

	// Two unmatched replies re-ask; the third exceeds the bound.
	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "purple", models.ScopeDirectMessage))
	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "green", models.ScopeDirectMessage))
	wantTexts(t, lb, "Yes or no?", "Yes or no?", "Yes or no?")
	if c.Status() != StatusActive {
		t.Fatalf("status = %s, want still active", c.Status())
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "orange", models.ScopeDirectMessage))
	if c.Status() != StatusStopped {
		t.Fatalf("status = %s after exceeding repeat bound, want %s", c.Status(), StatusStopped)
	}
}

func TestConversationNoNavigationHoldsQuestion(t *testing.T) {
	eng, lb := newTestEngine(t, Options{})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	var c *Conversation
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		c = conv
		conv.Ask("Ready?", []Branch{
			{Match: MatchNegative, Action: func(_ *models.Message, c *Conversation) {
				// no Next/Repeat/Stop: keep waiting on the same question
			}},
			{Match: MatchAffirmative, Action: func(_ *models.Message, c *Conversation) { c.Next() }},
		}, "")
	})
	if err != nil {
		t.Fatal(err)
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "no", models.ScopeDirectMessage))
	// Held, not re-sent.
	wantTexts(t, lb, "Ready?")
	if c.Status() != StatusActive {
		t.Fatalf("status = %s, want active", c.Status())
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "yes", models.ScopeDirectMessage))
	if c.Status() != StatusCompleted {
		t.Fatalf("status = %s, want %s", c.Status(), StatusCompleted)
	}
}

func TestConversationTimeout(t *testing.T) {
	eng, _ := newTestEngine(t, Options{Timeout: 20 * time.Millisecond})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	done := make(chan Status, 1)
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		conv.Ask("Anyone there?", []Branch{{Default: true, Action: func(_ *models.Message, c *Conversation) { c.Next() }}}, "")
		conv.OnEnd(func(c *Conversation) { done <- c.Status() })
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case st := <-done:
		if st != StatusTimedOut {
			t.Fatalf("status = %s, want %s", st, StatusTimedOut)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("conversation never timed out")
	}

	if st := eng.Stats(); st.ActiveConversations != 0 || st.TimedOut != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestConversationReplyCancelsTimeout(t *testing.T) {
	eng, _ := newTestEngine(t, Options{Timeout: 50 * time.Millisecond})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	var c *Conversation
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		c = conv
		conv.Ask("Quick?", []Branch{{Default: true, Action: func(_ *models.Message, c *Conversation) { c.Next() }}}, "")
	})
	if err != nil {
		t.Fatal(err)
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "sure", models.ScopeDirectMessage))
	time.Sleep(100 * time.Millisecond)
	if c.Status() != StatusCompleted {
		t.Fatalf("status = %s, want %s", c.Status(), StatusCompleted)
	}
}

func TestStaleTimerCallbackDoesNotExpire(t *testing.T) {
	// Timer.Stop can miss a callback that already fired and is waiting on
	// the conversation mutex. Such a callback carries the old generation
	// and must be a no-op once a reply has re-armed the window.
	eng, _ := newTestEngine(t, Options{Timeout: time.Hour})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	var c *Conversation
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		c = conv
		conv.Ask("Still there?", []Branch{{Match: MatchAffirmative, Action: func(_ *models.Message, c *Conversation) { c.Next() }}}, "")
	})
	if err != nil {
		t.Fatal(err)
	}

	c.mu.Lock()
	stale := c.timerGen
	c.mu.Unlock()

	// The unmatched reply re-asks the question and arms a fresh timer.
	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "purple", models.ScopeDirectMessage))

	c.expire(stale)
	if got := c.Status(); got != StatusActive {
		t.Fatalf("stale timer callback ended the conversation: status = %s", got)
	}

	// The live generation still expires the suspended question.
	c.mu.Lock()
	live := c.timerGen
	c.mu.Unlock()
	c.expire(live)
	if got := c.Status(); got != StatusTimedOut {
		t.Fatalf("live timer callback did not expire: status = %s", got)
	}
}

func TestUnmatchedReplyWithoutDefaultIsNotCaptured(t *testing.T) {
	eng, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	var c *Conversation
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		c = conv
		conv.Ask("Yes or no?", []Branch{
			{Match: MatchAffirmative, Action: func(_ *models.Message, c *Conversation) { c.Next() }},
		}, "answer")
	})
	if err != nil {
		t.Fatal(err)
	}

	// No branch selected: the turn is a repeat and must leave no capture.
	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "purple", models.ScopeDirectMessage))
	if v, ok := c.ExtractResponse("answer"); ok {
		t.Fatalf("unmatched turn was captured: %q", v)
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "yes", models.ScopeDirectMessage))
	if v, ok := c.ExtractResponse("answer"); !ok || v != "yes" {
		t.Fatalf("capture = %q, %v", v, ok)
	}
}

func TestConversationRejectsOverlap(t *testing.T) {
	eng, _ := newTestEngine(t, Options{})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		conv.Ask("First?", []Branch{{Default: true, Action: func(_ *models.Message, c *Conversation) { c.Next() }}}, "")
	})
	if err != nil {
		t.Fatal(err)
	}

	err = eng.StartConversation(ctx, msg, func(conv *Conversation) {
		conv.Say("should never run")
	})
	if !errors.Is(err, ErrConversationActive) {
		t.Fatalf("second start returned %v, want ErrConversationActive", err)
	}

	// A different channel for the same sender is a different slot.
	other := transport.Inbound("U1", "C2", "hello", models.ScopeDirectMessage)
	if err := eng.StartConversation(ctx, other, func(conv *Conversation) { conv.Say("ok") }); err != nil {
		t.Fatalf("independent channel rejected: %v", err)
	}
}

func TestConversationOnEndCanStartFollowUp(t *testing.T) {
	eng, lb := newTestEngine(t, Options{})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		conv.Ask("Done?", []Branch{{Default: true, Action: func(_ *models.Message, c *Conversation) { c.Next() }}}, "")
		conv.OnEnd(func(c *Conversation) {
			// The slot is released before OnEnd fires, so a follow-up with
			// the same (recipient, origin) must succeed.
			if err := eng.StartConversation(ctx, msg, func(next *Conversation) {
				next.Say("follow-up")
			}); err != nil {
				t.Errorf("follow-up rejected: %v", err)
			}
		})
	})
	if err != nil {
		t.Fatal(err)
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "yep", models.ScopeDirectMessage))
	wantTexts(t, lb, "Done?", "follow-up")
}

func TestHandleMessagePrefersConversationOverRouter(t *testing.T) {
	eng, lb := newTestEngine(t, Options{})
	ctx := context.Background()

	routed := false
	if err := eng.Hears([]string{"yes"}, allScopes, func(ctx context.Context, eng *Engine, msg *models.Message) {
		routed = true
	}); err != nil {
		t.Fatal(err)
	}

	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		conv.Ask("Sure?", []Branch{{Match: MatchAffirmative, Action: func(_ *models.Message, c *Conversation) {
			c.Say("thanks")
			c.Next()
		}}}, "")
	})
	if err != nil {
		t.Fatal(err)
	}

	// "yes" would match the router pattern, but the suspended conversation
	// owns this sender's next message.
	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "yes", models.ScopeDirectMessage))
	if routed {
		t.Fatal("reply leaked to the pattern router")
	}
	wantTexts(t, lb, "Sure?", "thanks")
}

func TestNestedAskFromBranchAction(t *testing.T) {
	eng, lb := newTestEngine(t, Options{})
	ctx := context.Background()
	msg := transport.Inbound("U1", "C1", "hello", models.ScopeDirectMessage)

	var c *Conversation
	err := eng.StartConversation(ctx, msg, func(conv *Conversation) {
		c = conv
		conv.Ask("What should I call you?", []Branch{
			{Default: true, Action: func(reply *models.Message, c *Conversation) {
				c.Ask("Confirm `"+reply.Text+"`?", []Branch{
					{Match: MatchAffirmative, Action: func(_ *models.Message, c *Conversation) { c.Next() }},
					{Match: MatchNegative, Action: func(_ *models.Message, c *Conversation) { c.Stop() }},
				}, "")
				c.Next()
			}},
		}, "nickname")
	})
	if err != nil {
		t.Fatal(err)
	}

	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "Gabe", models.ScopeDirectMessage))
	eng.HandleMessage(ctx, transport.Inbound("U1", "C1", "yes", models.ScopeDirectMessage))

	wantTexts(t, lb, "What should I call you?", "Confirm `Gabe`?")
	if c.Status() != StatusCompleted {
		t.Fatalf("status = %s, want %s", c.Status(), StatusCompleted)
	}
	if v, ok := c.ExtractResponse("nickname"); !ok || v != "Gabe" {
		t.Fatalf("nickname capture = %q, %v", v, ok)
	}
}

func TestAskPanicsOnMalformedBranches(t *testing.T) {
	eng, _ := newTestEngine(t, Options{})
	c := newConversation(eng, "U1", "C1", false)

	defer func() {
		if recover() == nil {
			t.Fatal("Ask accepted two default branches")
		}
	}()
	c.Ask("bad", []Branch{{Default: true}, {Default: true}}, "")
}

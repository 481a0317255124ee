package dialog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gabepages/botkit/internal/metrics"
	"github.com/gabepages/botkit/internal/models"
)

// Status is a conversation lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusStopped   Status = "stopped"
	StatusTimedOut  Status = "timed_out"
)

// BranchAction runs when its branch is selected for a reply. It may navigate
// with Next/Repeat/Stop and may append further steps with Say/Ask.
type BranchAction func(reply *models.Message, c *Conversation)

type stepKind int

const (
	stepSay stepKind = iota
	stepAsk
)

type step struct {
	kind       stepKind
	text       string
	branches   []Branch
	captureKey string
}

// Conversation is one multi-turn exchange with a single recipient. It
// advances strictly forward through its step queue; a question suspends the
// conversation (no goroutine is parked) until the next message from the same
// recipient on the same origin channel resumes it.
//
// Builder-facing methods (Say, Ask, OnEnd) and navigation methods (Next,
// Repeat, Stop) are called either before activation or from inside a branch
// action during a dispatch turn; they are not safe for use from other
// goroutines. Status and ExtractResponse take the conversation mutex, which
// is held while branch actions run: call them from OnEnd or after dispatch
// returns, never from inside a branch action.
type Conversation struct {
	id        uuid.UUID
	recipient models.Identity
	origin    models.ChannelRef
	private   bool

	eng *Engine

	mu        sync.Mutex
	status    Status
	steps     []step
	idx       int
	suspended bool
	repeats   int
	responses map[string]string
	timer     *time.Timer
	timerGen  uint64 // bumped on every arm/stop; stale timer callbacks bail

	// navigation flags set by the branch action of the current turn
	wantNext   bool
	wantRepeat bool
	wantStop   bool

	onEnd []func(*Conversation)
}

func newConversation(eng *Engine, recipient models.Identity, origin models.ChannelRef, private bool) *Conversation {
	return &Conversation{
		id:        uuid.New(),
		recipient: recipient,
		origin:    origin,
		private:   private,
		eng:       eng,
		status:    StatusPending,
		responses: make(map[string]string),
	}
}

// ID returns the conversation's unique ID.
func (c *Conversation) ID() uuid.UUID { return c.id }

// Recipient returns the identity this conversation talks to.
func (c *Conversation) Recipient() models.Identity { return c.recipient }

// Origin returns the channel the conversation runs on.
func (c *Conversation) Origin() models.ChannelRef { return c.origin }

// Status returns the current lifecycle state. It locks the conversation and
// must not be called from inside a branch action, where the lock is already
// held; OnEnd callbacks and code outside a dispatch turn are safe.
func (c *Conversation) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Say appends a statement step; no reply is expected.
func (c *Conversation) Say(text string) {
	c.steps = append(c.steps, step{kind: stepSay, text: text})
}

// Ask appends a question step. When reached, the prompt is sent and the
// conversation suspends until the recipient's next message on the origin
// channel. If captureKey is non-empty, the reply text is recorded verbatim
// under that key for any branch that does not repeat the question.
//
// Ask panics when the branch list is malformed (more than one default, or a
// non-default branch without a matcher); that is a programming error in the
// dialogue script, not a runtime condition.
func (c *Conversation) Ask(text string, branches []Branch, captureKey string) {
	if err := validateBranches(branches); err != nil {
		panic("dialog: " + err.Error())
	}
	c.steps = append(c.steps, step{kind: stepAsk, text: text, branches: branches, captureKey: captureKey})
}

// OnEnd registers a completion callback. It fires exactly once, whatever
// terminal state the conversation reaches.
func (c *Conversation) OnEnd(fn func(*Conversation)) {
	c.onEnd = append(c.onEnd, fn)
}

// Next advances past the current question once the branch action returns.
func (c *Conversation) Next() { c.wantNext = true }

// Repeat re-sends the current question instead of advancing. It wins over
// Next when both are called in the same turn, and suppresses the reply
// capture for this turn.
func (c *Conversation) Repeat() { c.wantRepeat = true }

// Stop terminates the conversation as stopped, discarding the remaining
// queue. The reply capture of the current turn is still recorded.
func (c *Conversation) Stop() { c.wantStop = true }

// ExtractResponse returns the captured reply for a key. Like Status it locks
// the conversation and must not be called from inside a branch action; read
// captures in OnEnd instead. A branch action that needs the current turn's
// text already has it as the reply argument.
func (c *Conversation) ExtractResponse(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.responses[key]
	return v, ok
}

// activate transitions pending -> active and walks the queue until the first
// question or the end.
func (c *Conversation) activate(ctx context.Context) {
	c.mu.Lock()
	if c.status != StatusPending {
		c.mu.Unlock()
		return
	}
	c.status = StatusActive
	fin := c.run(ctx)
	c.mu.Unlock()

	if fin != "" {
		c.afterFinish(fin)
	}
}

// run walks the step queue: statements are sent immediately, a question
// sends its prompt and suspends. Returns the terminal status when the queue
// is exhausted, "" while suspended. Caller holds c.mu.
func (c *Conversation) run(ctx context.Context) Status {
	for c.idx < len(c.steps) {
		s := c.steps[c.idx]
		switch s.kind {
		case stepSay:
			c.send(ctx, s.text)
			c.idx++
		case stepAsk:
			c.sendPrompt(ctx, s.text)
			c.suspended = true
			c.armTimer()
			return ""
		}
	}
	return c.finishLocked(StatusCompleted)
}

// handleReply resumes a suspended question with the recipient's reply.
func (c *Conversation) handleReply(ctx context.Context, reply *models.Message) {
	c.mu.Lock()
	if c.status != StatusActive || !c.suspended {
		c.mu.Unlock()
		return
	}
	c.stopTimerLocked()
	c.suspended = false

	s := c.steps[c.idx]
	br := selectBranch(s.branches, reply.Text)

	c.wantNext, c.wantRepeat, c.wantStop = false, false, false
	if br != nil && br.Action != nil {
		br.Action(reply, c)
	}

	// Capture after the action so a Repeat suppresses it; a Stop does not.
	// A reply that selected no branch is a repeat in all but name and never
	// captures either.
	if s.captureKey != "" && br != nil && !c.wantRepeat {
		c.responses[s.captureKey] = reply.Text
	}

	var fin Status
	switch {
	case c.wantStop:
		fin = c.finishLocked(StatusStopped)
	case br == nil || c.wantRepeat:
		// Unmatched input never silently drops the conversation: re-ask,
		// up to the engine's repeat bound.
		if br == nil {
			metrics.RepliesUnmatched.Inc()
		}
		c.repeats++
		if c.eng.maxRepeats > 0 && c.repeats > c.eng.maxRepeats {
			fin = c.finishLocked(StatusStopped)
			break
		}
		c.sendPrompt(ctx, s.text)
		c.suspended = true
		c.armTimer()
	case c.wantNext:
		c.idx++
		c.repeats = 0
		fin = c.run(ctx)
	default:
		// The action made no navigation call: hold the same question and
		// wait for the next reply without re-sending it.
		c.suspended = true
		c.armTimer()
	}
	c.mu.Unlock()

	if fin != "" {
		c.afterFinish(fin)
	}
}

// expire fires when a suspended question saw no reply within the window.
// The generation check defeats the Timer.Stop race: a callback that was
// already running when a reply re-armed the timer must not end the
// conversation against the fresh window.
func (c *Conversation) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.status != StatusActive || !c.suspended {
		c.mu.Unlock()
		return
	}
	fin := c.finishLocked(StatusTimedOut)
	c.mu.Unlock()

	c.afterFinish(fin)
}

// finishLocked marks the terminal status. Caller holds c.mu and must call
// afterFinish(status) once the lock is released.
func (c *Conversation) finishLocked(status Status) Status {
	c.status = status
	c.suspended = false
	c.stopTimerLocked()
	return status
}

// afterFinish releases the engine's (recipient, origin) slot and fires the
// end notification. Releasing first lets an OnEnd callback open a follow-up
// conversation with the same recipient.
func (c *Conversation) afterFinish(status Status) {
	c.eng.release(c.recipient, c.origin, c)
	c.eng.noteEnd(status)
	metrics.ConversationsEnded.WithLabelValues(string(status)).Inc()
	for _, fn := range c.onEnd {
		fn(c)
	}
}

func (c *Conversation) armTimer() {
	c.stopTimerLocked()
	if c.eng.timeout > 0 {
		gen := c.timerGen
		c.timer = time.AfterFunc(c.eng.timeout, func() { c.expire(gen) })
	}
}

func (c *Conversation) stopTimerLocked() {
	// Stop returning false means the callback already fired and may be
	// blocked on c.mu; bumping the generation invalidates it either way.
	c.timerGen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Conversation) send(ctx context.Context, text string) {
	if err := c.eng.sender.Send(ctx, c.origin, text); err != nil {
		c.eng.log.Error().Err(err).
			Str("conversation_id", c.id.String()).
			Str("recipient", string(c.recipient)).
			Msg("failed to send statement")
	}
}

func (c *Conversation) sendPrompt(ctx context.Context, text string) {
	if err := c.eng.sender.Send(ctx, c.origin, text); err != nil {
		c.eng.log.Error().Err(err).
			Str("conversation_id", c.id.String()).
			Str("recipient", string(c.recipient)).
			Msg("failed to send prompt")
		return
	}
	metrics.PromptsSent.Inc()
}

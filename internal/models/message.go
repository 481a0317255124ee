package models

import "time"

// Identity is an opaque handle naming a message sender or recipient on the
// chat platform. It is the Slot Store key and the addressing unit for
// private conversations.
type Identity string

// ChannelRef addresses the channel a message arrived on or should be sent
// to. Direct-message channels are ChannelRefs like any other; transports
// decide the naming scheme.
type ChannelRef string

// DispatchScope classifies how an inbound message reached the bot.
type DispatchScope string

const (
	// ScopeDirectMessage is a message sent to the bot on a DM channel.
	ScopeDirectMessage DispatchScope = "direct_message"
	// ScopeDirectMention is a channel message that starts with the bot's mention.
	ScopeDirectMention DispatchScope = "direct_mention"
	// ScopeMention is a channel message that mentions the bot elsewhere in the text.
	ScopeMention DispatchScope = "mention"
	// ScopeAmbient is a channel message that does not address the bot at all.
	ScopeAmbient DispatchScope = "ambient"
)

// Message is one inbound chat message. It is immutable once dispatched to a
// handler, except for MatchGroups which the router fills in on a pattern hit.
type Message struct {
	ID        string        `json:"id"` // ULID assigned by the transport
	Sender    Identity      `json:"sender"`
	Channel   ChannelRef    `json:"channel"`
	Text      string        `json:"text"`
	Timestamp time.Time     `json:"ts"`
	Scope     DispatchScope `json:"scope"`

	// MatchGroups holds the capture groups of the pattern that routed this
	// message: index 0 is the whole match, 1..n the groups.
	MatchGroups []string `json:"-"`
}

// Package types - Shared types and interfaces for the Discord gateway
// This package is imported by the gateway client and every bot-facing package
package types

import "time"

// Snowflake IDs are plain int64s everywhere in the codebase.

// MessageRef identifies a message by channel and message ID
type MessageRef struct {
	ChannelID int64
	MessageID int64
}

// User represents a Discord user
type User struct {
	ID       int64  `json:"id,string"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// Member represents a guild member (user + guild role info)
type Member struct {
	User  *User   `json:"user,omitempty"`
	Nick  string  `json:"nick,omitempty"`
	Roles []int64 `json:"-"`
}

// Channel represents a Discord channel
type Channel struct {
	ID      int64  `json:"id,string"`
	GuildID int64  `json:"guild_id,string,omitempty"`
	Name    string `json:"name,omitempty"`
	Type    int    `json:"type"`
}

// Message represents a Discord message
type Message struct {
	ID        int64       `json:"id,string"`
	ChannelID int64       `json:"channel_id,string"`
	GuildID   int64       `json:"guild_id,string,omitempty"`
	Author    User        `json:"author"`
	Member    *Member     `json:"member,omitempty"`
	Content   string      `json:"content"`
	Embeds    []Embed     `json:"embeds,omitempty"`
	ReplyTo   *MessageRef `json:"-"` // set when the message is a reply
	CreatedAt time.Time   `json:"-"`
}

// Ref returns the MessageRef for a message
func (m *Message) Ref() MessageRef {
	return MessageRef{ChannelID: m.ChannelID, MessageID: m.ID}
}

// EmbedField is a single field of an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// EmbedFooter is the footer line of an embed
type EmbedFooter struct {
	Text string `json:"text,omitempty"`
}

// Embed is the rich message payload rendered by Discord
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Thumbnail   *EmbedImage  `json:"thumbnail,omitempty"`
	Image       *EmbedImage  `json:"image,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedImage holds an embed image or thumbnail URL
type EmbedImage struct {
	URL string `json:"url"`
}

// ReactionEvent is delivered for every reaction added to a message
type ReactionEvent struct {
	MessageRef MessageRef
	GuildID    int64
	UserID     int64
	Emoji      string
	Member     *Member // nil outside of a guild (DMs)
	Bot        bool
}

// Messenger is the outbound gateway surface used by command handlers
// and the paged display controller
type Messenger interface {
	Send(channelID int64, content string, embed *Embed) (MessageRef, error)
	Edit(ref MessageRef, content string, embed *Embed) error
	Delete(ref MessageRef) error
	AddReaction(ref MessageRef, emoji string) error
	RemoveReaction(ref MessageRef, emoji string, userID int64) error
	ClearReactions(ref MessageRef) error
}

// Resolver looks up live gateway entities by ID
type Resolver interface {
	Message(channelID, messageID int64) (*Message, error)
	User(id int64) (*User, error)
	Channel(id int64) (*Channel, error)
	Member(guildID, userID int64) (*Member, error)
}

// RoleSource reports the current role set of a user in a guild.
// Dispatch consults this for elevated permission checks, which must
// always hit live data.
type RoleSource interface {
	RolesOf(guildID, userID int64) ([]int64, error)
}

// Message limits (Discord API)
const (
	MaxMessageLen = 2000
	MaxEmbedLen   = 4096
	MaxTitleLen   = 256
)

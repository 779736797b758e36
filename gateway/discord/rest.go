// Package discord is the Discord gateway client: REST calls for the
// outbound surface and a websocket session for the event stream
package discord

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kithare/kithscord/gateway/types"
)

const apiBase = "https://discord.com/api/v10"

// APIError is a non-2xx response from the Discord API
type APIError struct {
	Status int
	Method string
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord api: %s %s returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client talks to the Discord REST API. It implements types.Messenger,
// types.Resolver and types.RoleSource.
type Client struct {
	token  string
	client *http.Client
	base   string
}

// NewClient creates a REST client for a bot token
func NewClient(token string) *Client {
	return &Client{
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
		base:   apiBase,
	}
}

// SetBaseURL overrides the API endpoint (tests)
func (c *Client) SetBaseURL(base string) { c.base = base }

func (c *Client) do(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	// a single retry on rate limit keeps the bot responsive without a
	// full limiter
	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter, _ := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64)
		if retryAfter <= 0 {
			retryAfter = 1
		}
		io.Copy(io.Discard, resp.Body)
		log.Printf("[WARN] Rate limited on %s %s, retrying in %.1fs", method, path, retryAfter)
		time.Sleep(time.Duration(retryAfter * float64(time.Second)))
		return c.do(method, path, payload, out)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Status: resp.StatusCode, Method: method, Path: path, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return nil
}

type messagePayload struct {
	Content string       `json:"content,omitempty"`
	Embeds  []types.Embed `json:"embeds,omitempty"`
}

func buildPayload(content string, embed *types.Embed) messagePayload {
	if len(content) > types.MaxMessageLen {
		content = content[:types.MaxMessageLen]
	}
	p := messagePayload{Content: content}
	if embed != nil {
		p.Embeds = []types.Embed{*embed}
	}
	return p
}

// Send posts a message to a channel
func (c *Client) Send(channelID int64, content string, embed *types.Embed) (types.MessageRef, error) {
	var msg messageWire
	path := fmt.Sprintf("/channels/%d/messages", channelID)
	if err := c.do(http.MethodPost, path, buildPayload(content, embed), &msg); err != nil {
		return types.MessageRef{}, err
	}
	return types.MessageRef{ChannelID: channelID, MessageID: msg.ID}, nil
}

// Edit replaces the content and embed of a message
func (c *Client) Edit(ref types.MessageRef, content string, embed *types.Embed) error {
	path := fmt.Sprintf("/channels/%d/messages/%d", ref.ChannelID, ref.MessageID)
	return c.do(http.MethodPatch, path, buildPayload(content, embed), nil)
}

// Delete removes a message
func (c *Client) Delete(ref types.MessageRef) error {
	path := fmt.Sprintf("/channels/%d/messages/%d", ref.ChannelID, ref.MessageID)
	return c.do(http.MethodDelete, path, nil, nil)
}

// AddReaction reacts to a message as the bot
func (c *Client) AddReaction(ref types.MessageRef, emoji string) error {
	path := fmt.Sprintf("/channels/%d/messages/%d/reactions/%s/@me",
		ref.ChannelID, ref.MessageID, url.PathEscape(emoji))
	return c.do(http.MethodPut, path, nil, nil)
}

// RemoveReaction removes one user's reaction from a message
func (c *Client) RemoveReaction(ref types.MessageRef, emoji string, userID int64) error {
	path := fmt.Sprintf("/channels/%d/messages/%d/reactions/%s/%d",
		ref.ChannelID, ref.MessageID, url.PathEscape(emoji), userID)
	return c.do(http.MethodDelete, path, nil, nil)
}

// ClearReactions removes every reaction from a message
func (c *Client) ClearReactions(ref types.MessageRef) error {
	path := fmt.Sprintf("/channels/%d/messages/%d/reactions", ref.ChannelID, ref.MessageID)
	return c.do(http.MethodDelete, path, nil, nil)
}

// Typing sends the typing indicator. Fire and forget.
func (c *Client) Typing(channelID int64) {
	path := fmt.Sprintf("/channels/%d/typing", channelID)
	if err := c.do(http.MethodPost, path, nil, nil); err != nil {
		log.Printf("[WARN] Typing indicator failed: %v", err)
	}
}

// Message fetches a message by channel and ID
func (c *Client) Message(channelID, messageID int64) (*types.Message, error) {
	var wire messageWire
	path := fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID)
	if err := c.do(http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	return wire.toMessage(), nil
}

// User fetches a user by ID
func (c *Client) User(id int64) (*types.User, error) {
	var user types.User
	if err := c.do(http.MethodGet, fmt.Sprintf("/users/%d", id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Channel fetches a channel by ID
func (c *Client) Channel(id int64) (*types.Channel, error) {
	var channel types.Channel
	if err := c.do(http.MethodGet, fmt.Sprintf("/channels/%d", id), nil, &channel); err != nil {
		return nil, err
	}
	return &channel, nil
}

// Member fetches a guild member by guild and user ID
func (c *Client) Member(guildID, userID int64) (*types.Member, error) {
	var wire memberWire
	path := fmt.Sprintf("/guilds/%d/members/%d", guildID, userID)
	if err := c.do(http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}
	return wire.toMember(), nil
}

// RolesOf returns the live role set of a guild member. Never cached:
// elevated permission checks depend on this being current.
func (c *Client) RolesOf(guildID, userID int64) ([]int64, error) {
	member, err := c.Member(guildID, userID)
	if err != nil {
		return nil, err
	}
	return member.Roles, nil
}

// wire structs: Discord serializes snowflakes as strings and role
// lists as string arrays

type memberWire struct {
	User  *types.User `json:"user,omitempty"`
	Nick  string      `json:"nick,omitempty"`
	Roles []string    `json:"roles"`
}

func (w *memberWire) toMember() *types.Member {
	m := &types.Member{User: w.User, Nick: w.Nick}
	for _, r := range w.Roles {
		id, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			continue
		}
		m.Roles = append(m.Roles, id)
	}
	return m
}

type messageWire struct {
	ID        int64         `json:"id,string"`
	ChannelID int64         `json:"channel_id,string"`
	GuildID   int64         `json:"guild_id,string,omitempty"`
	Author    types.User    `json:"author"`
	Member    *memberWire   `json:"member,omitempty"`
	Content   string        `json:"content"`
	Embeds    []types.Embed `json:"embeds,omitempty"`
	Reference *struct {
		MessageID int64 `json:"message_id,string"`
		ChannelID int64 `json:"channel_id,string"`
	} `json:"message_reference,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (w *messageWire) toMessage() *types.Message {
	msg := &types.Message{
		ID:        w.ID,
		ChannelID: w.ChannelID,
		GuildID:   w.GuildID,
		Author:    w.Author,
		Content:   w.Content,
		Embeds:    w.Embeds,
	}
	if w.Reference != nil {
		msg.ReplyTo = &types.MessageRef{
			ChannelID: w.Reference.ChannelID,
			MessageID: w.Reference.MessageID,
		}
	}
	if w.Member != nil {
		msg.Member = w.Member.toMember()
		if msg.Member.User == nil {
			msg.Member.User = &w.Author
		}
	}
	if w.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
			msg.CreatedAt = ts
		}
	}
	return msg
}

package commands

import (
	"strconv"
	"strings"
)

// Coerce converts a parsed value into the typed argument a handler
// expects. Rich references are resolved through the context's live
// resolver.
func Coerce(v Value, t ParamType, name string, ctx *Context) (any, error) {
	switch t {
	case String:
		if v.Kind == RawToken || v.Kind == QuotedString {
			return v.Text, nil
		}
		return nil, &CoercionError{Param: name, Kind: BadLiteral, Detail: "expected a plain string"}

	case Quoted:
		if v.Kind != QuotedString {
			return nil, &CoercionError{Param: name, Kind: BadLiteral,
				Detail: "expected a double-quoted string"}
		}
		return v.Text, nil

	case Code:
		if v.Kind != CodeBlock {
			return nil, &CoercionError{Param: name, Kind: BadLiteral,
				Detail: "expected a triple-backtick code block"}
		}
		return Block{Lang: v.Lang, Code: v.Text}, nil

	case Bool:
		if v.Kind != RawToken && v.Kind != QuotedString {
			return nil, &CoercionError{Param: name, Kind: BadLiteral, Detail: "expected true or false"}
		}
		switch strings.ToLower(v.Text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, &CoercionError{Param: name, Kind: BadLiteral, Detail: "expected true or false"}

	case Int:
		if v.Kind == RawToken {
			if n, err := strconv.ParseInt(v.Text, 10, 64); err == nil {
				return n, nil
			}
		}
		return nil, &CoercionError{Param: name, Kind: BadLiteral, Detail: "expected an integer"}

	case Float:
		if v.Kind == RawToken {
			if f, err := strconv.ParseFloat(v.Text, 64); err == nil {
				return f, nil
			}
		}
		return nil, &CoercionError{Param: name, Kind: BadLiteral, Detail: "expected a number"}

	case UserRef:
		id, err := refID(v, RefUser, name)
		if err != nil {
			return nil, err
		}
		user, uerr := ctx.Resolver.User(id)
		if uerr != nil || user == nil {
			return nil, &CoercionError{Param: name, Kind: NotFound, Detail: "user"}
		}
		return user, nil

	case ChannelRef:
		id, err := refID(v, RefChannel, name)
		if err != nil {
			return nil, err
		}
		ch, cerr := ctx.Resolver.Channel(id)
		if cerr != nil || ch == nil {
			return nil, &CoercionError{Param: name, Kind: NotFound, Detail: "channel"}
		}
		return ch, nil

	case MessageRef:
		return coerceMessage(v, name, ctx)
	}

	return nil, &CoercionError{Param: name, Kind: BadLiteral, Detail: "unsupported parameter type"}
}

// Block is the coerced form of a code block argument
type Block struct {
	Lang string
	Code string
}

// refID extracts a snowflake from a rich reference or a bare mention
// token
func refID(v Value, want RefKind, name string) (int64, error) {
	if v.Kind == RichRef {
		if v.Ref != want {
			return 0, &CoercionError{Param: name, Kind: BadLiteral, Detail: "wrong mention type"}
		}
		return v.ID, nil
	}
	if v.Kind == RawToken {
		if id, err := filterID(v.Text); err == nil {
			return id, nil
		}
	}
	return 0, &CoercionError{Param: name, Kind: BadLiteral, Detail: "expected a mention or ID"}
}

// coerceMessage resolves a message argument. Accepted forms: a bare
// message ID (same channel), "channelID/messageID", or a full jump
// link. Jump links need the primary guild to strip their prefix.
func coerceMessage(v Value, name string, ctx *Context) (any, error) {
	if v.Kind != RawToken {
		return nil, &CoercionError{Param: name, Kind: BadLiteral, Detail: "expected a message ID or link"}
	}

	text := v.Text
	if strings.Contains(text, "discord.com/channels/") {
		if ctx.GuildID == 0 {
			return nil, &CoercionError{Param: name, Kind: AmbiguousOrMissingGuild}
		}
		text = formatDiscordLink(text, ctx.GuildID)
	}

	channelID := int64(0)
	if ctx.Invoke != nil {
		channelID = ctx.Invoke.ChannelID
	}
	messageText := text
	if idx := strings.IndexByte(text, '/'); idx >= 0 {
		cid, err := filterID(text[:idx])
		if err != nil {
			return nil, &CoercionError{Param: name, Kind: BadLiteral, Detail: "bad channel ID in message link"}
		}
		channelID = cid
		messageText = text[idx+1:]
	}
	messageID, err := filterID(messageText)
	if err != nil {
		return nil, &CoercionError{Param: name, Kind: BadLiteral, Detail: "bad message ID"}
	}

	msg, merr := ctx.Resolver.Message(channelID, messageID)
	if merr != nil || msg == nil {
		return nil, &CoercionError{Param: name, Kind: NotFound, Detail: "message"}
	}
	return msg, nil
}

// filterID strips mention sigils from a token and parses the ID:
// "<@!6969>" becomes 6969
func filterID(mention string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '<', '>', '@', '&', '#', '!', ' ':
			return -1
		}
		return r
	}, mention)
	return strconv.ParseInt(cleaned, 10, 64)
}

// formatDiscordLink strips the guild prefix from a channel or message
// jump link, leaving "channelID/messageID"
func formatDiscordLink(link string, guildID int64) string {
	link = strings.TrimLeft(link, "<")
	link = strings.TrimRight(link, ">")
	link = strings.TrimRight(link, "/")

	for _, prefix := range []string{
		"https://discord.com/channels/" + strconv.FormatInt(guildID, 10) + "/",
		"https://www.discord.com/channels/" + strconv.FormatInt(guildID, 10) + "/",
	} {
		if strings.HasPrefix(link, prefix) {
			link = link[len(prefix):]
		}
	}
	return link
}

// Package paged implements the reaction-controlled paginated embed:
// a per-message state machine over a serialized reaction event stream
package paged

import (
	"fmt"
	"time"

	"github.com/kithare/kithscord/commands"
	"github.com/kithare/kithscord/gateway/types"
)

// Control reactions
const (
	EmojiFirst = "⏪"
	EmojiPrev  = "◀️"
	EmojiStop  = "⏹️"
	EmojiInfo  = "ℹ️"
	EmojiNext  = "▶️"
	EmojiLast  = "⏩"
)

// DefaultTimeout stops a session after this much idle time
const DefaultTimeout = 60 * time.Second

// Options configures a session
type Options struct {
	// Callers restricts who may control the session. Empty means
	// anyone. Admin-role holders can always control it.
	Callers []int64

	// Command makes the session refreshable: the footer embeds the
	// originating command string
	Command string

	// StartPage is the initial page index
	StartPage int

	// Prefix is the command prefix shown in the refresh hint
	Prefix string

	// IsAdminRole reports whether a role ID grants control
	IsAdminRole func(int64) bool

	// Timeout overrides DefaultTimeout
	Timeout time.Duration
}

// Session is one active paginated artifact. All state is mutated only
// by its own Run loop.
type Session struct {
	msgr    types.Messenger
	ref     types.MessageRef
	pages   []types.Embed
	events  <-chan types.ReactionEvent
	opts    Options
	current int
	onInfo  bool
	killed  bool
}

// New creates a session over pre-rendered pages. The events channel
// must deliver reaction events for the target message.
func New(msgr types.Messenger, ref types.MessageRef, pages []types.Embed,
	events <-chan types.ReactionEvent, opts Options) *Session {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Session{
		msgr:    msgr,
		ref:     ref,
		pages:   pages,
		events:  events,
		opts:    opts,
		current: opts.StartPage,
	}
}

// Run drives the session until it is stopped, times out, or hits a
// hard error. It blocks the calling goroutine; events are consumed one
// at a time in arrival order.
func (s *Session) Run() error {
	ok, err := s.setup()
	if err != nil || !ok {
		return err
	}

	for !s.killed {
		select {
		case ev := <-s.events:
			pass, err := s.check(ev)
			if err != nil {
				return err
			}
			if pass {
				if err := s.handleReaction(ev.Emoji); err != nil {
					return err
				}
			}
		case <-time.After(s.opts.Timeout):
			s.killed = true
		}
	}

	return s.msgr.ClearReactions(s.ref)
}

// setup renders the initial page. Returns false when the session ends
// immediately (empty or single page).
func (s *Session) setup() (bool, error) {
	if len(s.pages) == 0 {
		err := s.msgr.Edit(s.ref, "", &types.Embed{
			Title:       "Internal error occured!",
			Description: "Got empty embed list for paged message",
			Color:       0xFF0000,
		})
		return false, err
	}

	if s.current < 0 || s.current >= len(s.pages) {
		s.current = 0
	}

	if len(s.pages) == 1 {
		return false, s.msgr.Edit(s.ref, "", &s.pages[0])
	}

	for i := range s.pages {
		s.pages[i].Footer = &types.EmbedFooter{Text: s.footerText(i)}
	}
	if err := s.msgr.Edit(s.ref, "", &s.pages[s.current]); err != nil {
		return false, err
	}
	for _, emoji := range s.controlEmojis() {
		if err := s.msgr.AddReaction(s.ref, emoji); err != nil {
			return false, err
		}
	}
	return true, nil
}

// controlEmojis returns the active control affordances in display
// order. First/last only appear with three or more pages.
func (s *Session) controlEmojis() []string {
	if len(s.pages) >= 3 {
		return []string{EmojiFirst, EmojiPrev, EmojiStop, EmojiInfo, EmojiNext, EmojiLast}
	}
	return []string{EmojiPrev, EmojiStop, EmojiInfo, EmojiNext}
}

// check decides whether a reaction event may control this session.
// Unauthorized events are silently dropped; an event with no member
// context is a hard error, paged control only exists inside a guild.
func (s *Session) check(ev types.ReactionEvent) (bool, error) {
	if ev.MessageRef != s.ref {
		return false, nil
	}

	if ev.Member == nil {
		return false, &commands.BotError{
			Title: "Paged embeds are not supported in DMs.",
			Detail: "If you are seeing this in a public channel" +
				", please report this as a bug.",
		}
	}

	if ev.Bot {
		return false, nil
	}

	// best effort, reactions may lack manage permission
	_ = s.msgr.RemoveReaction(s.ref, ev.Emoji, ev.UserID)

	if len(s.opts.Callers) == 0 {
		return true, nil
	}
	for _, id := range s.opts.Callers {
		if id == ev.UserID {
			return true, nil
		}
	}
	if s.opts.IsAdminRole != nil {
		for _, role := range ev.Member.Roles {
			if s.opts.IsAdminRole(role) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *Session) handleReaction(emoji string) error {
	pageCount := len(s.pages)
	switch emoji {
	case EmojiNext:
		return s.setPage(s.current + 1)
	case EmojiPrev:
		return s.setPage(s.current - 1)
	case EmojiFirst:
		if pageCount >= 3 {
			return s.setPage(0)
		}
	case EmojiLast:
		if pageCount >= 3 {
			return s.setPage(pageCount - 1)
		}
	case EmojiStop:
		s.killed = true
	case EmojiInfo:
		return s.toggleInfo()
	}
	return nil
}

// setPage leaves the info overlay and displays a page, wrapping
// modulo the page count
func (s *Session) setPage(num int) error {
	s.onInfo = false
	s.current = ((num % len(s.pages)) + len(s.pages)) % len(s.pages)
	return s.msgr.Edit(s.ref, "", &s.pages[s.current])
}

// toggleInfo flips between the legend page and the current page
func (s *Session) toggleInfo() error {
	s.onInfo = !s.onInfo
	if !s.onInfo {
		return s.msgr.Edit(s.ref, "", &s.pages[s.current])
	}
	return s.msgr.Edit(s.ref, "", &types.Embed{
		Description: s.helpText(),
		Footer:      &types.EmbedFooter{Text: s.footerText(s.current)},
	})
}

func (s *Session) helpText() string {
	legend := []struct{ emoji, desc string }{
		{EmojiFirst, "Go to the first page"},
		{EmojiPrev, "Go to the previous page"},
		{EmojiStop, "Deactivate the buttons"},
		{EmojiInfo, "Show this information page"},
		{EmojiNext, "Go to the next page"},
		{EmojiLast, "Go to the last page"},
	}
	text := ""
	for _, item := range legend {
		if len(s.pages) < 3 && (item.emoji == EmojiFirst || item.emoji == EmojiLast) {
			continue
		}
		text += fmt.Sprintf("%s: %s\n", item.emoji, item.desc)
	}
	return text
}

// footerText builds the page indicator footer. For refreshable
// sessions it also carries the refresh hint and the originating
// command, which is the sole persistence for session reconstruction.
func (s *Session) footerText(pageNum int) string {
	footer := fmt.Sprintf("Page %d of %d.\n", pageNum+1, len(s.pages))
	if s.opts.Command != "" {
		footer += fmt.Sprintf("Refresh by replying to this message with `%srefresh`\n", s.opts.Prefix)
		footer += commandMarker + s.opts.Command
	}
	return footer
}

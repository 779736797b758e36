package bot

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/kithare/kithscord/commands"
	"github.com/kithare/kithscord/gateway/types"
	"github.com/kithare/kithscord/kcrtool"
	"github.com/kithare/kithscord/paged"
	"github.com/kithare/kithscord/pkg/format"
)

// runKcr executes kcr and maps the tool guard errors onto the bot
// error taxonomy
func (a *App) runKcr(args ...string) (string, error) {
	out, err := a.tool.Run(a.ctx, 0, args...)
	if err != nil {
		return "", kcrError(err)
	}
	return out, nil
}

func kcrError(err error) error {
	switch {
	case errors.Is(err, kcrtool.ErrTimeout):
		return &commands.BotError{
			Title:  "Kithare command timed out!",
			Detail: "The kcr run took too long and was cancelled",
		}
	case errors.Is(err, kcrtool.ErrToolMissing):
		return &commands.BotError{
			Title: "Could not execute Kithare command!",
			Detail: "Kithare has not been configured correctly on the bot runner!\n" +
				"Automatic recovery has failed!\n" +
				"PS: Bot Admin, this is likely a bug in the bot itself, fix it",
		}
	case errors.Is(err, kcrtool.ErrAlreadyPulling):
		return &commands.BotError{
			Title:  "Pull failed!",
			Detail: "You cannot pull while another pull operation is running",
		}
	case errors.Is(err, kcrtool.ErrNoMatchingPackage):
		return &commands.BotError{
			Title:  "Could not install Kithare!",
			Detail: "Could not find installable zip package for the bot host machine",
		}
	}
	var fetchErr *kcrtool.FetchError
	if errors.As(err, &fetchErr) {
		return &commands.BotError{
			Title:  "Could not install Kithare!",
			Detail: "Make sure the branch exists, and github actions ran on it",
		}
	}
	return err
}

func (a *App) cmdVersion(ctx *commands.Context, _ *commands.Call) error {
	out, err := a.runKcr("-v")
	if err != nil {
		return err
	}
	a.replaceEmbed(ctx, types.Embed{
		Title:       "Version",
		Description: fmt.Sprintf("Kithscord: `%s`\n>>> %s", Version, strings.TrimSpace(out)),
	})
	return nil
}

func (a *App) cmdPing(ctx *commands.Context, _ *commands.Call) error {
	latency := time.Duration(0)
	if !ctx.Invoke.CreatedAt.IsZero() {
		latency = time.Since(ctx.Invoke.CreatedAt)
	}

	titles := []string{"Pingy Pongy", "Pong!"}
	a.replaceEmbed(ctx, types.Embed{
		Title:       titles[rand.Intn(len(titles))],
		Description: fmt.Sprintf("The bot's ping is `%s`", format.FormatTime(latency, 0)),
	})
	return nil
}

func (a *App) cmdHelp(ctx *commands.Context, call *commands.Call) error {
	if ctx.Invoke.Member == nil {
		return &commands.BotError{
			Title:  "Cannot run this command in DMs!",
			Detail: "Run this command on the Kithare server instead",
		}
	}

	var names []string
	for _, v := range call.Rest {
		names = append(names, v.Text)
	}

	var pages []types.Embed
	if len(names) == 0 {
		intro := types.Embed{
			Title: "Help",
			Color: helpEmbedColor,
			Description: fmt.Sprintf(
				"\nHey there, do you want to use <@!%d> ?\n"+
					"My command prefix is `%s`.\n"+
					"If you want me to run your code, use Discord's code block syntax.\n"+
					"If you want to know about a specific command run %shelp [command], "+
					"for example %shelp lex.\n"+
					"━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━",
				a.cfg.Server.BotID, a.cfg.Prefix, a.cfg.Prefix, a.cfg.Prefix),
		}
		pages = commands.GeneralHelp(a.reg, intro, ctx.Tier)
	} else {
		pages = commands.CommandHelp(a.reg, names, helpEmbedColor)
		if len(pages) == 0 {
			a.replaceEmbed(ctx, types.Embed{
				Title:       "Command not found",
				Description: "No such command exists",
				Color:       errorEmbedColor,
			})
			return nil
		}
	}

	return a.showPaged(ctx, pages, strings.TrimSpace("help "+strings.Join(names, " ")))
}

func (a *App) cmdLex(ctx *commands.Context, call *commands.Call) error {
	return a.runToolOnCode(ctx, call, "Lexed Kithare output", "--tokens")
}

func (a *App) cmdParse(ctx *commands.Context, call *commands.Call) error {
	return a.runToolOnCode(ctx, call, "Parsed Kithare output", "--ast")
}

// tempSource is a Kithare source snippet written to disk for a kcr run
type tempSource struct {
	path string
}

func (t *tempSource) cleanup() {
	os.Remove(t.path)
}

func writeTempSource(code string) (*tempSource, error) {
	tmp, err := os.CreateTemp("", "kithscord-*.kh")
	if err != nil {
		return nil, fmt.Errorf("create temp source file: %w", err)
	}
	if _, err := tmp.WriteString(code); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write temp source file: %w", err)
	}
	tmp.Close()
	return &tempSource{path: tmp.Name()}, nil
}

// runToolOnCode writes the code block to a temp file and feeds it to
// kcr with the given mode flag
func (a *App) runToolOnCode(ctx *commands.Context, call *commands.Call, title, flag string) error {
	code := call.Args[0].(commands.Block)

	tmp, err := writeTempSource(code.Code)
	if err != nil {
		return err
	}
	defer tmp.cleanup()

	out, err := a.runKcr(flag, "--timer", "--nocolor", tmp.path)
	if err != nil {
		return err
	}
	a.replaceEmbed(ctx, types.Embed{
		Title:       title,
		Description: format.CodeBlock(out, 0, ""),
	})
	return nil
}

// cmdRefresh rebuilds a paged session from the footer of the replied-to
// message. The footer is the sole persistence for paged sessions.
func (a *App) cmdRefresh(ctx *commands.Context, _ *commands.Call) error {
	if ctx.Invoke.ReplyTo == nil {
		return &commands.BotError{
			Title:  "Refresh failed!",
			Detail: "You have to reply to a paged embed message to refresh it",
		}
	}

	target, err := ctx.Resolver.Message(ctx.Invoke.ReplyTo.ChannelID, ctx.Invoke.ReplyTo.MessageID)
	if err != nil || target == nil {
		return &commands.BotError{
			Title:  "Refresh failed!",
			Detail: "Could not fetch the replied-to message",
		}
	}

	var footer string
	if len(target.Embeds) > 0 && target.Embeds[0].Footer != nil {
		footer = target.Embeds[0].Footer.Text
	}
	page, command, ok := paged.ParseFooter(footer)
	if !ok {
		return &commands.BotError{
			Title:  "Refresh failed!",
			Detail: "The replied-to message does not support refreshing",
		}
	}

	inv, err := a.reg.Parse(command)
	if err != nil {
		return &commands.BotError{
			Title:  "Refresh failed!",
			Detail: "The embedded command could not be parsed",
		}
	}

	// the refresh invocation cleans up after itself and takes over the
	// original paged message
	_ = ctx.Msgr.Delete(ctx.Response)
	_ = ctx.Msgr.Delete(ctx.Invoke.Ref())

	sub := *ctx
	sub.Response = target.Ref()
	sub.Page = page
	return a.disp.Dispatch(&sub, inv)
}

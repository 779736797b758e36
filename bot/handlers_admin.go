package bot

import (
	"fmt"
	"log"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/kithare/kithscord/commands"
	"github.com/kithare/kithscord/gateway/types"
	"github.com/kithare/kithscord/pkg/format"
)

func (a *App) cmdTestParser(ctx *commands.Context, call *commands.Call) error {
	var out strings.Builder

	if len(call.Rest) > 0 {
		out.WriteString("__**Args:**__\n")
	}
	for i, v := range call.Rest {
		writeParsedValue(&out, fmt.Sprintf("%d", i), v)
	}
	out.WriteString("\n")

	if len(call.RestKw) > 0 {
		out.WriteString("__**Kwargs:**__\n\n")
	}
	keys := make([]string, 0, len(call.RestKw))
	for k := range call.RestKw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeParsedValue(&out, k, call.RestKw[k])
	}

	a.replaceEmbed(ctx, types.Embed{
		Title:       "Here are the args and kwargs you passed",
		Description: out.String(),
	})
	return nil
}

func writeParsedValue(out *strings.Builder, label string, v commands.Value) {
	switch v.Kind {
	case commands.CodeBlock:
		fmt.Fprintf(out, "%s - Codeblock\n%s", label, format.CodeBlock(v.Text, 0, v.Lang))
	case commands.QuotedString:
		fmt.Fprintf(out, "%s - String\n> %s\n", label,
			strings.Join(strings.Split(v.Text, "\n"), "\n> "))
	default:
		fmt.Fprintf(out, "%s - arg\n> %s\n", label, v.String())
	}
}

func (a *App) cmdHeap(ctx *commands.Context, _ *commands.Call) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	a.replaceEmbed(ctx, types.Embed{
		Title:       "Total memory used:",
		Description: fmt.Sprintf("**%s**\n(%d B)", format.FormatByte(m.HeapAlloc, 4), m.HeapAlloc),
	})
	return nil
}

func (a *App) cmdStop(ctx *commands.Context, call *commands.Call) error {
	noRestart := call.Args[0].(bool)

	title := "Restarting bot..."
	detail := "I'mma BRB, FINISH THE CEMENTER"
	code := 0
	if noRestart {
		title = "Stopping bot..."
		detail = "FINISH THE CEMENTER! My final message, goodbye!"
		code = 1
	}
	a.replaceEmbed(ctx, types.Embed{Title: title, Description: detail})
	return &commands.ShutdownRequest{Code: code}
}

// cmdPull runs both subpulls: Kithare binaries, then the bot source
func (a *App) cmdPull(ctx *commands.Context, _ *commands.Call) error {
	if err := a.pullKithare(ctx, "main"); err != nil {
		return err
	}
	return a.pullKithscord(ctx, "main", "--hard", false)
}

func (a *App) cmdPullKithare(ctx *commands.Context, call *commands.Call) error {
	return a.pullKithare(ctx, call.Args[0].(string))
}

func (a *App) pullKithare(ctx *commands.Context, branch string) error {
	a.replaceEmbed(ctx, types.Embed{
		Title:       "Pulling Kithare",
		Description: "Please wait while Kithare is being installed",
		Thumbnail:   &types.EmbedImage{URL: "https://i.giphy.com/media/Ju7l5y9osyymQ/200.gif"},
	})

	if err := a.tool.Pull(a.ctx, branch); err != nil {
		return kcrError(err)
	}

	a.replaceEmbed(ctx, types.Embed{
		Title:       "Pulling Kithare",
		Description: "Kithare installation succeeded",
		Color:       0x00FF00,
	})
	return nil
}

func (a *App) cmdPullKithscord(ctx *commands.Context, call *commands.Call) error {
	return a.pullKithscord(ctx,
		call.Args[0].(string), call.Args[1].(string), call.Args[2].(bool))
}

// pullKithscord git-resets the bot checkout to the remote branch and
// restarts. Blocked on local botdev setups.
func (a *App) pullKithscord(ctx *commands.Context, branch, resetFlag string, showLog bool) error {
	if a.cfg.LocalTest {
		return &commands.BotError{
			Title: "Kithscord cannot be pulled!",
			Detail: "On local botdev setup, pulling kithscord has been blocked " +
				"for *obvious* reasons *duh*",
		}
	}

	var logText strings.Builder
	for _, args := range [][]string{
		{"fetch"},
		{"checkout", branch},
		{"reset", resetFlag, "origin/" + branch},
	} {
		out, err := exec.CommandContext(a.ctx, "git", args...).CombinedOutput()
		logText.Write(out)
		logText.WriteString("\n")
		if err != nil {
			return &commands.BotError{
				Title: "Kithscord pull failed!",
				Detail: fmt.Sprintf("`git %s` failed!\nHere is the full log:\n%s",
					strings.Join(args, " "), format.CodeBlock(logText.String(), 0, "")),
			}
		}
	}

	if showLog {
		_, err := ctx.Msgr.Send(ctx.Invoke.ChannelID,
			"Kithscord pull was successful! Here is the log\n"+
				format.CodeBlock(logText.String(), 1900, ""), nil)
		if err != nil {
			return fmt.Errorf("send pull log: %w", err)
		}
	}

	a.replaceEmbed(ctx, types.Embed{
		Title:       "Restarting bot...",
		Description: "I'mma BRB, FINISH THE CEMENTER",
	})
	return &commands.ShutdownRequest{Code: 0}
}

func (a *App) cmdSudo(ctx *commands.Context, call *commands.Call) error {
	msg := call.Args[0].(string)

	if _, err := ctx.Msgr.Send(ctx.Invoke.ChannelID, msg, nil); err != nil {
		return fmt.Errorf("send sudo message: %w", err)
	}
	a.deleteInvocation(ctx)
	return nil
}

func (a *App) cmdSudoEdit(ctx *commands.Context, call *commands.Call) error {
	target := call.Args[0].(*types.Message)
	msg := call.Args[1].(string)

	if err := ctx.Msgr.Edit(target.Ref(), msg, nil); err != nil {
		return &commands.BotError{
			Title:  "Failed to edit message!",
			Detail: "You cannot edit messages sent by others!",
		}
	}
	a.deleteInvocation(ctx)
	return nil
}

func (a *App) cmdSudoDelete(ctx *commands.Context, call *commands.Call) error {
	target := call.Args[0].(*types.Message)

	if err := ctx.Msgr.Delete(target.Ref()); err != nil {
		return &commands.BotError{
			Title:  "Failed to delete message!",
			Detail: "This is probably due to missing perms to delete others messages",
		}
	}
	a.deleteInvocation(ctx)
	return nil
}

// deleteInvocation removes both the response and the invoking message,
// the latter best effort (it may already be gone)
func (a *App) deleteInvocation(ctx *commands.Context) {
	if err := ctx.Msgr.Delete(ctx.Response); err != nil {
		log.Printf("[WARN] Could not delete response message: %v", err)
	}
	_ = ctx.Msgr.Delete(ctx.Invoke.Ref())
}

func (a *App) cmdProcStart(ctx *commands.Context, call *commands.Call) error {
	command := call.Args[0].(string)
	usePty := call.Args[1].(bool)

	info, err := a.procs.Start(command, usePty)
	if err != nil {
		return &commands.BotError{Title: "Could not start process!", Detail: err.Error()}
	}
	a.replaceEmbed(ctx, types.Embed{
		Title: "Process started",
		Description: format.CodeBlock(
			fmt.Sprintf("id:      %s\npid:     %d\ncommand: %s\npty:     %v",
				info.ID, info.PID, info.Command, info.Pty), 0, ""),
	})
	return nil
}

func (a *App) cmdProcList(ctx *commands.Context, _ *commands.Call) error {
	infos := a.procs.List()
	if len(infos) == 0 {
		a.replaceEmbed(ctx, types.Embed{
			Title:       "Managed processes",
			Description: "No processes are being managed",
		})
		return nil
	}

	var out strings.Builder
	for _, info := range infos {
		status := "running"
		if !info.Running {
			status = fmt.Sprintf("exited (%d)", info.ExitCode)
		}
		fmt.Fprintf(&out, "%s  pid=%d  %s  %s\n", info.ID, info.PID, status, info.Command)
	}
	a.replaceEmbed(ctx, types.Embed{
		Title:       "Managed processes",
		Description: format.CodeBlock(out.String(), 0, ""),
	})
	return nil
}

func (a *App) cmdProcLog(ctx *commands.Context, call *commands.Call) error {
	id := call.Args[0].(string)
	offset := call.Args[1].(int64)
	limit := call.Args[2].(int64)

	out, err := a.procs.Log(id, int(offset), int(limit))
	if err != nil {
		return &commands.BotError{Title: "Could not read process log!", Detail: err.Error()}
	}
	if strings.TrimSpace(out) == "" {
		out = "<no output>"
	}
	a.replaceEmbed(ctx, types.Embed{
		Title:       fmt.Sprintf("Output of %s", id),
		Description: format.CodeBlock(out, 0, ""),
	})
	return nil
}

func (a *App) cmdProcWrite(ctx *commands.Context, call *commands.Call) error {
	id := call.Args[0].(string)
	data := call.Args[1].(string)
	eof := call.Args[2].(bool)

	if err := a.procs.Write(id, data, eof); err != nil {
		return &commands.BotError{Title: "Could not write to process!", Detail: err.Error()}
	}
	a.replaceEmbed(ctx, types.Embed{
		Title:       "Write successful",
		Description: fmt.Sprintf("Wrote %d bytes to `%s` (eof: %v)", len(data), id, eof),
	})
	return nil
}

func (a *App) cmdProcKill(ctx *commands.Context, call *commands.Call) error {
	id := call.Args[0].(string)

	if err := a.procs.Kill(id); err != nil {
		return &commands.BotError{Title: "Could not kill process!", Detail: err.Error()}
	}
	a.replaceEmbed(ctx, types.Embed{
		Title:       "Process killed",
		Description: fmt.Sprintf("`%s` has been killed and dropped", id),
	})
	return nil
}

// cmdEval runs a Kithare code block on the bot host. The elevated gate
// is re-checked against live role data on every invocation.
func (a *App) cmdEval(ctx *commands.Context, call *commands.Call) error {
	ok, err := ctx.CheckElevated()
	if err != nil {
		return err
	}
	if !ok {
		return &commands.BotError{
			Title:  "Insufficient permissions",
			Detail: "You do not have enough permissions to run this command.",
		}
	}

	code := call.Args[0].(commands.Block)

	tmp, err := writeTempSource(code.Code)
	if err != nil {
		return err
	}
	defer tmp.cleanup()

	start := time.Now()
	out, err := a.runKcr(tmp.path)
	total := time.Since(start)
	if err != nil {
		return err
	}

	executed := fmt.Sprintf("Code executed in %s", format.FormatTime(total, 4))
	if strings.TrimSpace(out) == "" {
		a.replaceEmbed(ctx, types.Embed{Title: executed})
		return nil
	}
	a.replaceEmbed(ctx, types.Embed{
		Title:       fmt.Sprintf("Returned output (%s):", executed),
		Description: format.CodeBlock(out, 0, ""),
	})
	return nil
}

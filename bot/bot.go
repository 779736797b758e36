// Package bot glues the gateway, command engine and tool guard into
// the running Kithscord bot
package bot

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/kithare/kithscord/commands"
	"github.com/kithare/kithscord/gateway/discord"
	"github.com/kithare/kithscord/gateway/types"
	"github.com/kithare/kithscord/kcrtool"
	"github.com/kithare/kithscord/paged"
	"github.com/kithare/kithscord/pkg/config"
	"github.com/kithare/kithscord/pkg/format"
	"github.com/kithare/kithscord/proctool"
)

const (
	defaultEmbedColor = 0xFF8C00
	errorEmbedColor   = 0xFF0000
	helpEmbedColor    = 0xFFFF00
)

// Version is the bot version reported by kh!version, overridable at
// link time
var Version = "v0.2"

// App is the assembled bot. Built once at startup; the command
// registry is immutable after New returns.
type App struct {
	cfg    *config.Config
	client *discord.Client
	reg    *commands.Registry
	disp   *commands.Dispatcher
	bus    *paged.Bus
	tool   *kcrtool.Tool
	procs  *proctool.Manager

	console *Console

	ctx        context.Context
	shutdownCh chan int
	botUser    types.User

	// invoke message ID -> response ref, for edit-reinvoke
	mu       sync.Mutex
	cmdLogs  map[int64]types.MessageRef
	cmdOrder []int64
}

// New assembles the bot around a configured gateway client
func New(cfg *config.Config, client *discord.Client) (*App, error) {
	a := &App{
		cfg:        cfg,
		client:     client,
		bus:        paged.NewBus(),
		tool:       kcrtool.New(cfg.DistDir),
		procs:      proctool.NewManager(),
		console:    NewConsole(),
		ctx:        context.Background(),
		shutdownCh: make(chan int, 1),
		cmdLogs:    make(map[int64]types.MessageRef),
	}

	reg, err := a.buildRegistry()
	if err != nil {
		return nil, fmt.Errorf("build command registry: %w", err)
	}
	a.reg = reg
	a.disp = commands.NewDispatcher(reg)
	return a, nil
}

// Start launches the background routines: console flushing and the
// initial Kithare install check
func (a *App) Start(ctx context.Context) {
	a.ctx = ctx
	a.console.Attach()
	go a.runConsole(ctx)
	go func() {
		if err := a.tool.Ensure(ctx); err != nil {
			log.Printf("[ERROR] Initial Kithare setup failed: %v", err)
		}
	}()
}

// Shutdown delivers the exit code requested by a stop command
func (a *App) Shutdown() <-chan int {
	return a.shutdownCh
}

// Events returns the gateway callbacks wired to this app
func (a *App) Events() discord.Events {
	return discord.Events{
		Ready:         a.onReady,
		MessageCreate: a.onMessageCreate,
		MessageUpdate: a.onMessageUpdate,
		MessageDelete: a.onMessageDelete,
		ReactionAdd:   a.onReactionAdd,
	}
}

func (a *App) onReady(bot types.User) {
	a.botUser = bot
	log.Printf("The KithscordBot is now online!")
}

func (a *App) onMessageCreate(msg *types.Message) {
	if msg.Author.Bot || !strings.HasPrefix(msg.Content, a.cfg.Prefix) {
		return
	}
	go a.handleCommand(msg, types.MessageRef{})
}

// onMessageUpdate re-dispatches an edited command message into its
// original response message
func (a *App) onMessageUpdate(msg *types.Message) {
	if msg.Author.Bot || !strings.HasPrefix(msg.Content, a.cfg.Prefix) {
		return
	}
	a.mu.Lock()
	resp, ok := a.cmdLogs[msg.ID]
	a.mu.Unlock()
	if ok {
		go a.handleCommand(msg, resp)
	}
}

// onMessageDelete drops the edit-reinvoke tracking for a deleted
// invocation or response
func (a *App) onMessageDelete(ref types.MessageRef) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.cmdLogs[ref.MessageID]; ok {
		a.untrackLocked(ref.MessageID)
		return
	}
	for invokeID, resp := range a.cmdLogs {
		if resp.MessageID == ref.MessageID {
			a.untrackLocked(invokeID)
			return
		}
	}
}

func (a *App) onReactionAdd(ev types.ReactionEvent) {
	if ev.UserID == a.botUser.ID {
		return
	}
	a.bus.Publish(ev)
}

// handleCommand runs one command message end to end. A zero resp means
// a fresh invocation; a non-zero one is an edit-reinvoke into the
// existing response message.
func (a *App) handleCommand(msg *types.Message, resp types.MessageRef) {
	if resp == (types.MessageRef{}) {
		ref, err := a.client.Send(msg.ChannelID, "", &types.Embed{
			Title: "Your command is being processed:",
			Color: defaultEmbedColor,
			Fields: []types.EmbedField{
				{Name: "⠀", Value: "`Loading...`"},
			},
		})
		if err != nil {
			log.Printf("[ERROR] Could not send response message: %v", err)
			return
		}
		resp = ref
		a.track(msg.ID, ref)
	}

	a.logInvocation(msg)

	tier, checkElevated := a.perms(msg)
	ctx := &commands.Context{
		Invoke:        msg,
		Response:      resp,
		Msgr:          a.client,
		Resolver:      a.client,
		GuildID:       a.cfg.Server.GuildID,
		Tier:          tier,
		CheckElevated: checkElevated,
	}

	body := strings.TrimSpace(strings.TrimPrefix(msg.Content, a.cfg.Prefix))
	inv, err := a.reg.Parse(body)
	if err == nil {
		err = a.disp.Dispatch(ctx, inv)
	}
	a.renderResult(ctx, err)
}

// perms computes the caller's tier. Off-guild and DM callers are
// checked against their roles in the primary guild.
func (a *App) perms(msg *types.Message) (commands.Tier, func() (bool, error)) {
	roles := make(map[int64]bool)
	if msg.Member != nil && msg.GuildID == a.cfg.Server.GuildID {
		for _, r := range msg.Member.Roles {
			roles[r] = true
		}
	} else if member, err := a.client.Member(a.cfg.Server.GuildID, msg.Author.ID); err == nil {
		for _, r := range member.Roles {
			roles[r] = true
		}
	}

	tier := commands.Public
	for r := range roles {
		if a.cfg.Server.IsAdminRole(r) {
			tier = commands.Admin
			break
		}
	}
	if a.cfg.Server.EvalRole != 0 && roles[a.cfg.Server.EvalRole] {
		tier = commands.Elevated
	}

	userID := msg.Author.ID
	checkElevated := func() (bool, error) {
		live, err := a.client.RolesOf(a.cfg.Server.GuildID, userID)
		if err != nil {
			return false, fmt.Errorf("fetch live roles: %w", err)
		}
		for _, r := range live {
			if r == a.cfg.Server.EvalRole {
				return true, nil
			}
		}
		return false, nil
	}
	return tier, checkElevated
}

// logInvocation reports the command to the log channel, truncated when
// it cannot fit in an embed description
func (a *App) logInvocation(msg *types.Message) {
	if a.cfg.Server.LogChannelID == 0 {
		return
	}

	escaped := escapeMarkdown(msg.Content)
	if len(escaped) > config.MaxLoggedCommandLen {
		escaped = escaped[:config.MaxLoggedCommandLen-3] + "..."
	}

	guildPart := "@me"
	if msg.GuildID != 0 {
		guildPart = fmt.Sprintf("%d", msg.GuildID)
	}
	jump := fmt.Sprintf("https://discord.com/channels/%s/%d/%d", guildPart, msg.ChannelID, msg.ID)

	_, err := a.client.Send(a.cfg.Server.LogChannelID, "", &types.Embed{
		Title:       fmt.Sprintf("Command invoked by %s / %d", msg.Author.Username, msg.Author.ID),
		Description: escaped,
		Color:       defaultEmbedColor,
		Fields: []types.EmbedField{
			{
				Name:  "​",
				Value: fmt.Sprintf("by <@%d>\n**[View Original](%s)**", msg.Author.ID, jump),
			},
		},
	})
	if err != nil {
		log.Printf("[WARN] Could not log invocation: %v", err)
	}
}

// renderResult turns the dispatch outcome into the final response
// embed
func (a *App) renderResult(ctx *commands.Context, err error) {
	switch e := err.(type) {
	case nil:
		return

	case *commands.ShutdownRequest:
		log.Printf("[OK] Shutdown requested with exit code %d", e.Code)
		select {
		case a.shutdownCh <- e.Code:
		default:
		}
		return

	case *commands.BotError:
		a.replaceEmbed(ctx, types.Embed{Title: e.Title, Description: e.Detail, Color: errorEmbedColor})

	case *commands.ParseError:
		a.replaceEmbed(ctx, types.Embed{
			Title:       "Invalid command syntax!",
			Description: e.Error(),
			Color:       errorEmbedColor,
		})

	case *commands.CoercionError:
		a.replaceEmbed(ctx, types.Embed{
			Title:       "Invalid arguments!",
			Description: e.Error(),
			Color:       errorEmbedColor,
		})

	case *commands.DispatchError:
		title := "Invalid number of arguments!"
		detail := e.Error()
		if e.Kind == commands.UnknownCommand {
			title = "Unknown command!"
			detail = fmt.Sprintf("`%s` is not a valid command. Run `%shelp` to see the command list.",
				e.Path, a.cfg.Prefix)
		}
		a.replaceEmbed(ctx, types.Embed{Title: title, Description: detail, Color: errorEmbedColor})

	case *commands.PermissionError:
		a.replaceEmbed(ctx, types.Embed{
			Title:       "Insufficient permissions",
			Description: "You do not have enough permissions to run this command.",
			Color:       errorEmbedColor,
		})

	default:
		var detail string
		if fault, ok := err.(*commands.Fault); ok && fault.Stack != nil {
			log.Printf("[ERROR] Command handler panicked: %v\n%s", fault.Panic, fault.Stack)
			detail = fmt.Sprintf("%v\n%s", fault.Panic, fault.Stack)
		} else {
			log.Printf("[ERROR] Command handler failed: %v", err)
			detail = err.Error()
		}
		a.replaceEmbed(ctx, types.Embed{
			Title:       "An exception occured while handling the command!",
			Description: format.CodeBlock(detail, 0, ""),
			Color:       errorEmbedColor,
		})
	}
}

func (a *App) replaceEmbed(ctx *commands.Context, e types.Embed) {
	if e.Color == 0 {
		e.Color = defaultEmbedColor
	}
	if err := ctx.Msgr.Edit(ctx.Response, "", &e); err != nil {
		log.Printf("[WARN] Could not edit response message: %v", err)
	}
}

func (a *App) track(invokeID int64, resp types.MessageRef) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.cmdLogs[invokeID]; !ok {
		a.cmdOrder = append(a.cmdOrder, invokeID)
	}
	a.cmdLogs[invokeID] = resp
	for len(a.cmdOrder) > config.MaxTrackedInvocations {
		oldest := a.cmdOrder[0]
		a.cmdOrder = a.cmdOrder[1:]
		delete(a.cmdLogs, oldest)
	}
}

func (a *App) untrackLocked(invokeID int64) {
	delete(a.cmdLogs, invokeID)
	for i, id := range a.cmdOrder {
		if id == invokeID {
			a.cmdOrder = append(a.cmdOrder[:i], a.cmdOrder[i+1:]...)
			break
		}
	}
}

// showPaged hands the response message over to a paged session running
// on its own goroutine
func (a *App) showPaged(ctx *commands.Context, pages []types.Embed, command string) error {
	events, cancel := a.bus.Subscribe(ctx.Response.MessageID)
	sess := paged.New(ctx.Msgr, ctx.Response, pages, events, paged.Options{
		Callers:     []int64{ctx.Invoke.Author.ID},
		Command:     command,
		StartPage:   ctx.Page,
		Prefix:      a.cfg.Prefix,
		IsAdminRole: a.cfg.Server.IsAdminRole,
	})
	go func() {
		defer cancel()
		if err := sess.Run(); err != nil {
			log.Printf("[ERROR] Paged session failed: %v", err)
			a.renderResult(ctx, err)
		}
	}()
	return nil
}

// escapeMarkdown backslash-escapes Discord markdown so logged command
// text renders verbatim
func escapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '*', '_', '`', '~', '|', '>':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

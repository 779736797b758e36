package bot

import (
	"fmt"

	"github.com/kithare/kithscord/commands"
)

// buildRegistry declares the full command table. This is the one place
// commands are registered; the registry is immutable afterwards.
func (a *App) buildRegistry() (*commands.Registry, error) {
	reg := commands.NewRegistry()
	p := a.cfg.Prefix

	var firstErr error
	add := func(d *commands.Descriptor) {
		if err := reg.Register(d); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// ----- user commands -----

	add(&commands.Descriptor{
		Path: []string{"version"},
		Doc: commands.Doc{
			Category:    "User commands",
			Signature:   p + "version",
			Description: "Get the version of the bot",
		},
		Run: a.cmdVersion,
	})

	add(&commands.Descriptor{
		Path: []string{"ping"},
		Doc: commands.Doc{
			Category:    "User commands",
			Signature:   p + "ping",
			Description: "Get the ping of the bot",
		},
		Run: a.cmdPing,
	})

	add(&commands.Descriptor{
		Path:    []string{"help"},
		VarArgs: true,
		Doc: commands.Doc{
			Category:    "User commands",
			Signature:   p + "help [command]",
			Description: "Ask me for help",
			Example:     p + "help help",
		},
		Run: a.cmdHelp,
	})

	add(&commands.Descriptor{
		Path:   []string{"lex"},
		Params: []commands.Param{{Name: "code", Type: commands.Code}},
		Doc: commands.Doc{
			Category:    "User commands",
			Signature:   p + "lex [code]",
			Description: "Get Kithare lexed output of kithare code",
		},
		Run: a.cmdLex,
	})

	add(&commands.Descriptor{
		Path:   []string{"parse"},
		Params: []commands.Param{{Name: "code", Type: commands.Code}},
		Doc: commands.Doc{
			Category:    "User commands",
			Signature:   p + "parse [code]",
			Description: "Get Kithare parsed output of kithare code",
		},
		Run: a.cmdParse,
	})

	add(&commands.Descriptor{
		Path: []string{"refresh"},
		Doc: commands.Doc{
			Category:    "User commands",
			Signature:   p + "refresh",
			Description: "Refresh a paged embed by replying to it",
			Example:     p + "refresh",
		},
		Run: a.cmdRefresh,
	})

	// ----- admin commands -----

	add(&commands.Descriptor{
		Path:      []string{"test_parser"},
		VarArgs:   true,
		VarKwargs: true,
		Tier:      commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "test_parser [*args] [**kwargs]",
			Description: "Test the arg parser on a custom input",
		},
		Run: a.cmdTestParser,
	})

	add(&commands.Descriptor{
		Path: []string{"heap"},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "heap",
			Description: "Show the memory usage of the bot",
		},
		Run: a.cmdHeap,
	})

	add(&commands.Descriptor{
		Path: []string{"stop"},
		Params: []commands.Param{
			{Name: "no_restart", Type: commands.Bool, HasDefault: true, Default: false},
		},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "stop [no_restart]",
			Description: "Stop the bot. If no_restart is True, returns non-zero exit code",
		},
		Run: a.cmdStop,
	})

	add(&commands.Descriptor{
		Path: []string{"pull"},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "pull",
			Description: "Pull Kithare binaries AND pull kithscord",
		},
		Run: a.cmdPull,
	})

	add(&commands.Descriptor{
		Path: []string{"pull", "kithare"},
		Params: []commands.Param{
			{Name: "branch", Type: commands.String, HasDefault: true, Default: "main"},
		},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "pull kithare [branch]",
			Description: "Pull and install Kithare",
		},
		Run: a.cmdPullKithare,
	})

	add(&commands.Descriptor{
		Path: []string{"pull", "kithscord"},
		Params: []commands.Param{
			{Name: "branch", Type: commands.String, HasDefault: true, Default: "main"},
			{Name: "reset_flag", Type: commands.String, HasDefault: true, Default: "--hard"},
			{Name: "show_log", Type: commands.Bool, HasDefault: true, Default: false},
		},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "pull kithscord [branch] [reset_flag] [show_log]",
			Description: "Pull (git reset) Kithscord from git remote",
		},
		Run: a.cmdPullKithscord,
	})

	add(&commands.Descriptor{
		Path:   []string{"sudo"},
		Params: []commands.Param{{Name: "msg", Type: commands.Quoted}},
		Tier:   commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "sudo <msg>",
			Description: "Send a message through the bot",
		},
		Run: a.cmdSudo,
	})

	add(&commands.Descriptor{
		Path: []string{"sudo", "edit"},
		Params: []commands.Param{
			{Name: "edit_msg", Type: commands.MessageRef},
			{Name: "msg", Type: commands.Quoted},
		},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "sudo edit <edit_msg> <msg>",
			Description: "Edit a message that the bot sent.",
		},
		Run: a.cmdSudoEdit,
	})

	add(&commands.Descriptor{
		Path:   []string{"sudo", "delete"},
		Params: []commands.Param{{Name: "msg", Type: commands.MessageRef}},
		Tier:   commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "sudo delete <msg>",
			Description: "Delete a message through the bot",
		},
		Run: a.cmdSudoDelete,
	})

	add(&commands.Descriptor{
		Path: []string{"proc", "start"},
		Params: []commands.Param{
			{Name: "command", Type: commands.Quoted},
			{Name: "pty", Type: commands.Bool, HasDefault: true, Default: false},
		},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "proc start <command> [pty]",
			Description: "Start a background process on the bot host",
		},
		Run: a.cmdProcStart,
	})

	add(&commands.Descriptor{
		Path: []string{"proc", "list"},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "proc list",
			Description: "List the managed background processes",
		},
		Run: a.cmdProcList,
	})

	add(&commands.Descriptor{
		Path: []string{"proc", "log"},
		Params: []commands.Param{
			{Name: "id", Type: commands.String},
			{Name: "offset", Type: commands.Int, HasDefault: true, Default: int64(0)},
			{Name: "limit", Type: commands.Int, HasDefault: true, Default: int64(0)},
		},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "proc log <id> [offset] [limit]",
			Description: "Show the captured output of a managed process",
		},
		Run: a.cmdProcLog,
	})

	add(&commands.Descriptor{
		Path: []string{"proc", "write"},
		Params: []commands.Param{
			{Name: "id", Type: commands.String},
			{Name: "data", Type: commands.Quoted},
			{Name: "eof", Type: commands.Bool, HasDefault: true, Default: false},
		},
		Tier: commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "proc write <id> <data> [eof]",
			Description: "Write to the stdin of a managed process",
		},
		Run: a.cmdProcWrite,
	})

	add(&commands.Descriptor{
		Path:   []string{"proc", "kill"},
		Params: []commands.Param{{Name: "id", Type: commands.String}},
		Tier:   commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "proc kill <id>",
			Description: "Kill a managed process",
		},
		Run: a.cmdProcKill,
	})

	add(&commands.Descriptor{
		Path:   []string{"eval"},
		Params: []commands.Param{{Name: "code", Type: commands.Code}},
		Tier:   commands.Admin,
		Doc: commands.Doc{
			Category:    "Admin commands",
			Signature:   p + "eval <code>",
			Description: "Run Kithare code on the bot host",
		},
		Run: a.cmdEval,
	})

	if firstErr != nil {
		return nil, fmt.Errorf("register commands: %w", firstErr)
	}
	return reg, nil
}

package commands

import (
	"fmt"
	"strings"

	"github.com/kithare/kithscord/gateway/types"
	"github.com/kithare/kithscord/pkg/format"
)

// extendedPageBreak splits a long extended description into separate
// help pages
const extendedPageBreak = "+===+"

// GeneralHelp builds the paged general help: an intro page followed by
// one page per command category, derived from the registered doc
// blocks. Commands the caller's tier cannot run are left out.
func GeneralHelp(reg *Registry, intro types.Embed, tier Tier) []types.Embed {
	type section struct {
		sigs  strings.Builder
		items strings.Builder
	}
	sections := make(map[string]*section)
	var order []string

	for _, desc := range reg.All() {
		if desc.Doc.Signature == "" || desc.Tier > tier {
			continue
		}
		sec, ok := sections[desc.Doc.Category]
		if !ok {
			sec = &section{}
			sections[desc.Doc.Category] = sec
			order = append(order, desc.Doc.Category)
		}
		// drop the prefix from the signature column
		sig := desc.Doc.Signature
		if idx := strings.IndexByte(sig, '!'); idx >= 0 {
			fmt.Fprintf(&sec.sigs, "%s\n", sig[idx+1:])
		} else {
			fmt.Fprintf(&sec.sigs, "%s\n", sig)
		}
		fmt.Fprintf(&sec.items, "`%s`\n%s\n\n", sig, desc.Doc.Description)
	}

	pages := []types.Embed{intro}
	for _, name := range order {
		sec := sections[name]
		body := fmt.Sprintf("__**%s**__\n\n%s\n\n%s",
			name, format.CodeBlock(sec.sigs.String(), 0, ""), sec.items.String())
		pages = append(pages, types.Embed{
			Title:       intro.Title,
			Description: body,
			Color:       intro.Color,
		})
	}
	return pages
}

// CommandHelp builds the help pages for one command path, including
// its subcommands. Returns nil when no documented command matches.
func CommandHelp(reg *Registry, names []string, color int) []types.Embed {
	descs := reg.Lookup(names)
	for _, sub := range reg.Subcommands(names) {
		descs = append(descs, reg.Lookup(append(names, sub))...)
	}

	var pages []types.Embed
	title := fmt.Sprintf("Help for `%s`", strings.Join(names, " "))

	for _, desc := range descs {
		if desc.Doc.Signature == "" {
			continue
		}
		body := fmt.Sprintf("`%s`\n`Category: %s`\n\n", desc.Doc.Signature, desc.Doc.Category)

		description := desc.Doc.Description
		if desc.Doc.Extended != "" {
			description = fmt.Sprintf("> *%s*\n\n%s", description, desc.Doc.Extended)
		}
		parts := strings.Split(description, extendedPageBreak)
		body += "**Description:**\n" + parts[0]

		var fields []types.EmbedField
		if desc.Doc.Example != "" {
			fields = []types.EmbedField{{Name: "Example command(s):", Value: desc.Doc.Example, Inline: true}}
		}

		if len(parts) == 1 {
			pages = append(pages, types.Embed{Title: title, Description: body, Color: color, Fields: fields})
			continue
		}
		pages = append(pages, types.Embed{Title: title, Description: body, Color: color})
		for i := 1; i < len(parts); i++ {
			page := types.Embed{Title: title, Description: parts[i], Color: color}
			if i == len(parts)-1 {
				page.Fields = fields
			}
			pages = append(pages, page)
		}
	}
	return pages
}

// Package commands implements the command parsing and dispatch engine:
// tokenizer, type coercion, registry and dispatcher
package commands

import (
	"fmt"
	"strings"
)

// ValueKind tags the variants of a parsed argument value
type ValueKind int

const (
	RawToken ValueKind = iota
	QuotedString
	CodeBlock
	RichRef
)

// RefKind tags rich reference targets
type RefKind int

const (
	RefUser RefKind = iota
	RefChannel
	RefMessage
)

// Value is one parsed argument. Which fields are meaningful depends on
// Kind: Text holds raw/quoted text and code block bodies, Lang the code
// block language tag, Ref/ID a rich reference candidate.
type Value struct {
	Kind ValueKind
	Text string
	Lang string
	Ref  RefKind
	ID   int64
}

// String reconstructs the source form of the value
func (v Value) String() string {
	switch v.Kind {
	case QuotedString:
		return `"` + v.Text + `"`
	case CodeBlock:
		if v.Lang != "" {
			return "```" + v.Lang + "\n" + v.Text + "```"
		}
		return "```" + v.Text + "```"
	case RichRef:
		switch v.Ref {
		case RefChannel:
			return fmt.Sprintf("<#%d>", v.ID)
		default:
			return fmt.Sprintf("<@%d>", v.ID)
		}
	default:
		return v.Text
	}
}

// Invocation is the parser output: resolved command path plus the
// positional and keyword arguments in source order. Transient, one per
// message.
type Invocation struct {
	Path    []string
	Args    []Value
	Kwargs  map[string]Value
	DupKeys []string // keyword args that were overwritten (last write wins)
	Raw     string   // full command text without the prefix
}

// PathString returns the command path joined with spaces
func (inv *Invocation) PathString() string {
	return strings.Join(inv.Path, " ")
}

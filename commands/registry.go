package commands

import (
	"fmt"
	"sort"
	"strings"
)

// Tier is the permission level required to run a command
type Tier int

const (
	Public Tier = iota
	Admin
	Elevated
)

func (t Tier) String() string {
	switch t {
	case Admin:
		return "admin"
	case Elevated:
		return "elevated"
	default:
		return "public"
	}
}

// ParamType declares how an argument is coerced before invocation
type ParamType int

const (
	String ParamType = iota
	Quoted
	Code
	UserRef
	ChannelRef
	MessageRef
	Bool
	Int
	Float
)

// Param describes one declared handler parameter
type Param struct {
	Name       string
	Type       ParamType
	HasDefault bool
	Default    any
}

// Doc is the structured documentation attached to a command, used to
// derive help pages
type Doc struct {
	Category    string
	Signature   string
	Description string
	Example     string
	Extended    string
}

// Call carries the coerced arguments of one invocation. Args follows
// the declared parameter order with defaults filled in; Rest and
// RestKw hold variadic captures as raw values.
type Call struct {
	Args       []any
	Rest       []Value
	RestKw     map[string]Value
	Invocation *Invocation
}

// HandlerFunc is the invocable body of a command
type HandlerFunc func(ctx *Context, call *Call) error

// Descriptor identifies one invocable unit. Immutable after the
// registry is built.
type Descriptor struct {
	Path      []string
	Params    []Param
	VarArgs   bool // trailing *args capture
	VarKwargs bool // trailing **kwargs capture
	Tier      Tier
	Doc       Doc
	Run       HandlerFunc
}

func (d *Descriptor) minArity() int {
	n := 0
	for _, p := range d.Params {
		if !p.HasDefault {
			n++
		}
	}
	return n
}

type node struct {
	name      string
	children  map[string]*node
	overloads []*Descriptor
}

// Registry maps command paths to handler descriptors. It is built once
// at startup by explicit Register calls and never mutated afterwards.
type Registry struct {
	root *node
}

// NewRegistry creates an empty command registry
func NewRegistry() *Registry {
	return &Registry{root: &node{children: make(map[string]*node)}}
}

// Register adds a descriptor to the registry. Descriptors sharing a
// path form an overload set matched by arity at dispatch time.
func (r *Registry) Register(d *Descriptor) error {
	if len(d.Path) == 0 {
		return fmt.Errorf("register: empty command path")
	}
	if d.Run == nil {
		return fmt.Errorf("register %q: nil handler", strings.Join(d.Path, " "))
	}
	seenDefault := false
	for _, p := range d.Params {
		if p.HasDefault {
			seenDefault = true
		} else if seenDefault {
			return fmt.Errorf("register %q: required param %q after defaulted param",
				strings.Join(d.Path, " "), p.Name)
		}
	}

	cur := r.root
	for _, part := range d.Path {
		child, ok := cur.children[part]
		if !ok {
			child = &node{name: part, children: make(map[string]*node)}
			cur.children[part] = child
		}
		cur = child
	}
	for _, prev := range cur.overloads {
		if prev.Tier != d.Tier {
			return fmt.Errorf("register %q: overloads must share a permission tier",
				strings.Join(d.Path, " "))
		}
	}
	cur.overloads = append(cur.overloads, d)
	return nil
}

// Lookup returns the overload set registered at an exact path, or nil
func (r *Registry) Lookup(path []string) []*Descriptor {
	cur := r.root
	for _, part := range path {
		child, ok := cur.children[part]
		if !ok {
			return nil
		}
		cur = child
	}
	return cur.overloads
}

// Subcommands returns the registered child names under a path, sorted
func (r *Registry) Subcommands(path []string) []string {
	cur := r.root
	for _, part := range path {
		child, ok := cur.children[part]
		if !ok {
			return nil
		}
		cur = child
	}
	names := make([]string, 0, len(cur.children))
	for name := range cur.children {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered descriptor in sorted path order
func (r *Registry) All() []*Descriptor {
	var out []*Descriptor
	var walk func(n *node)
	walk = func(n *node) {
		out = append(out, n.overloads...)
		names := make([]string, 0, len(n.children))
		for name := range n.children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			walk(n.children[name])
		}
	}
	walk(r.root)
	return out
}

// Parse splits raw command text (prefix already stripped) into an
// invocation: the longest registered path prefix of leading words
// becomes the command path, the rest become arguments.
func (r *Registry) Parse(body string) (*Invocation, error) {
	tokens, err := Tokenize(body)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 || tokens[0].Key != "" || tokens[0].Val.Kind != RawToken {
		return nil, &DispatchError{Kind: UnknownCommand, Path: strings.TrimSpace(body)}
	}

	inv := &Invocation{
		Kwargs: make(map[string]Value),
		Raw:    strings.TrimSpace(body),
	}

	// Longest matching path prefix of registered names wins. A group
	// node with its own overloads acts as a fallback leaf when no
	// deeper name matches.
	cur := r.root
	consumed := 0
	for _, tok := range tokens {
		if tok.Key != "" || tok.Val.Kind != RawToken {
			break
		}
		child, ok := cur.children[tok.Val.Text]
		if !ok {
			break
		}
		cur = child
		inv.Path = append(inv.Path, tok.Val.Text)
		consumed++
	}
	if consumed == 0 {
		return nil, &DispatchError{Kind: UnknownCommand, Path: tokens[0].Val.Text}
	}

	for _, tok := range tokens[consumed:] {
		if tok.Key == "" {
			inv.Args = append(inv.Args, tok.Val)
			continue
		}
		if _, dup := inv.Kwargs[tok.Key]; dup {
			inv.DupKeys = append(inv.DupKeys, tok.Key)
		}
		inv.Kwargs[tok.Key] = tok.Val
	}
	return inv, nil
}

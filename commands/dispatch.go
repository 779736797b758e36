package commands

import (
	"runtime/debug"

	"github.com/kithare/kithscord/gateway/types"
)

// Context carries the per-invocation collaborators a handler can use
type Context struct {
	Invoke   *types.Message
	Response types.MessageRef
	Msgr     types.Messenger
	Resolver types.Resolver
	GuildID  int64 // primary guild, 0 if unset

	Tier Tier // caller tier computed at message time

	// Page is the start page for paged output, nonzero only on
	// refresh re-dispatch
	Page int

	// CheckElevated re-validates the elevated tier against live role
	// data. Elevated commands must call this themselves; the static
	// Tier is never trusted for code execution.
	CheckElevated func() (bool, error)
}

// Dispatcher resolves invocations against a registry, matches an
// overload by arity, coerces arguments and invokes the handler behind
// an error boundary.
type Dispatcher struct {
	reg *Registry
}

// NewDispatcher wraps a built registry
func NewDispatcher(reg *Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Dispatch runs one parsed invocation. Expected failures come back as
// typed errors (BotError, DispatchError, CoercionError,
// PermissionError); unexpected handler failures come back wrapped in
// Fault. A ShutdownRequest passes through untouched.
func (d *Dispatcher) Dispatch(ctx *Context, inv *Invocation) error {
	overloads := d.reg.Lookup(inv.Path)
	if len(overloads) == 0 {
		return &DispatchError{Kind: UnknownCommand, Path: inv.PathString()}
	}

	if ctx.Tier < overloads[0].Tier {
		return &PermissionError{Need: overloads[0].Tier}
	}

	desc := selectOverload(overloads, inv)
	if desc == nil {
		return &DispatchError{Kind: ArityMismatch, Path: inv.PathString()}
	}

	call, err := bind(desc, inv, ctx)
	if err != nil {
		return err
	}

	return invoke(desc, ctx, call)
}

// selectOverload picks the variant whose required-parameter count <=
// supplied count <= max count (variadic tail unbounded). A keyword
// argument naming a declared parameter beyond the positional span
// counts as supplied, so required params may arrive by keyword.
// Registration order breaks ties.
func selectOverload(overloads []*Descriptor, inv *Invocation) *Descriptor {
	for _, d := range overloads {
		supplied := len(inv.Args)
		for i := len(inv.Args); i < len(d.Params); i++ {
			if _, ok := inv.Kwargs[d.Params[i].Name]; ok {
				supplied++
			}
		}
		if supplied < d.minArity() {
			continue
		}
		if !d.VarArgs && len(inv.Args) > len(d.Params) {
			continue
		}
		return d
	}
	return nil
}

// bind assigns positional and keyword values to declared parameters,
// coerces them, and fills defaults
func bind(desc *Descriptor, inv *Invocation, ctx *Context) (*Call, error) {
	call := &Call{
		Args:       make([]any, len(desc.Params)),
		Invocation: inv,
	}

	bound := make([]bool, len(desc.Params))
	for i, v := range inv.Args {
		if i >= len(desc.Params) {
			call.Rest = append(call.Rest, inv.Args[i:]...)
			break
		}
		coerced, err := Coerce(v, desc.Params[i].Type, desc.Params[i].Name, ctx)
		if err != nil {
			return nil, err
		}
		call.Args[i] = coerced
		bound[i] = true
	}

	for key, v := range inv.Kwargs {
		idx := -1
		for i, p := range desc.Params {
			if p.Name == key {
				idx = i
				break
			}
		}
		if idx < 0 {
			if !desc.VarKwargs {
				return nil, &CoercionError{Param: key, Kind: UnknownKeyword}
			}
			if call.RestKw == nil {
				call.RestKw = make(map[string]Value)
			}
			call.RestKw[key] = v
			continue
		}
		if bound[idx] {
			return nil, &CoercionError{Param: key, Kind: DuplicateParam}
		}
		coerced, err := Coerce(v, desc.Params[idx].Type, key, ctx)
		if err != nil {
			return nil, err
		}
		call.Args[idx] = coerced
		bound[idx] = true
	}

	for i, p := range desc.Params {
		if bound[i] {
			continue
		}
		if !p.HasDefault {
			return nil, &DispatchError{Kind: ArityMismatch, Path: inv.PathString()}
		}
		call.Args[i] = p.Default
	}

	return call, nil
}

// invoke runs the handler behind a recover boundary so a faulting
// handler can never take down the message loop
func invoke(desc *Descriptor, ctx *Context, call *Call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &Fault{Panic: r, Stack: debug.Stack()}
		}
	}()

	err = desc.Run(ctx, call)
	switch err.(type) {
	case nil, *BotError, *CoercionError, *DispatchError, *PermissionError, *ShutdownRequest:
		return err
	default:
		return &Fault{Err: err}
	}
}

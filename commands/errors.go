package commands

import "fmt"

// ParseError reports malformed command input. The command is never
// invoked when parsing fails.
type ParseError struct {
	Offset int    // byte offset of the offending literal
	What   string // "quoted string" or "code block"
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unterminated %s at offset %d", e.What, e.Offset)
}

// CoercionErrorKind enumerates argument coercion failures
type CoercionErrorKind int

const (
	BadLiteral CoercionErrorKind = iota
	NotFound
	AmbiguousOrMissingGuild
	UnknownKeyword
	DuplicateParam
)

// CoercionError reports a type mismatch on a single argument. Always
// names the offending parameter.
type CoercionError struct {
	Param  string
	Kind   CoercionErrorKind
	Detail string
}

func (e *CoercionError) Error() string {
	switch e.Kind {
	case NotFound:
		return fmt.Sprintf("argument %q: %s not found", e.Param, e.Detail)
	case AmbiguousOrMissingGuild:
		return fmt.Sprintf("argument %q: cannot resolve without a primary guild", e.Param)
	case UnknownKeyword:
		return fmt.Sprintf("unknown keyword argument %q", e.Param)
	case DuplicateParam:
		return fmt.Sprintf("argument %q given both positionally and by keyword", e.Param)
	default:
		return fmt.Sprintf("argument %q: %s", e.Param, e.Detail)
	}
}

// DispatchErrorKind enumerates dispatch failures
type DispatchErrorKind int

const (
	UnknownCommand DispatchErrorKind = iota
	ArityMismatch
)

// DispatchError reports that no handler could be selected
type DispatchError struct {
	Kind DispatchErrorKind
	Path string
}

func (e *DispatchError) Error() string {
	if e.Kind == UnknownCommand {
		return fmt.Sprintf("unknown command %q", e.Path)
	}
	return fmt.Sprintf("wrong number of arguments for %q", e.Path)
}

// PermissionError reports a tier gate failure
type PermissionError struct {
	Need Tier
}

func (e *PermissionError) Error() string {
	return "insufficient permissions"
}

// BotError is the declared failure channel for handlers: an expected
// business-rule violation rendered verbatim to the user
type BotError struct {
	Title  string
	Detail string
}

func (e *BotError) Error() string {
	return e.Title
}

// Fault wraps an unexpected handler failure. It is caught at the
// dispatch boundary and rendered with diagnostic detail, never allowed
// to kill the message-handling task.
type Fault struct {
	Err   error
	Panic any
	Stack []byte
}

func (e *Fault) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler panic: %v", e.Panic)
	}
	return fmt.Sprintf("handler fault: %v", e.Err)
}

func (e *Fault) Unwrap() error { return e.Err }

// ShutdownRequest is returned by a handler that wants the process to
// terminate after its confirmation has been sent. Dispatch passes it
// through untouched.
type ShutdownRequest struct {
	Code int
}

func (e *ShutdownRequest) Error() string {
	return fmt.Sprintf("shutdown requested (exit code %d)", e.Code)
}

package commands

import (
	"regexp"
	"strconv"
	"strings"
)

// Token is one tokenizer output item: a positional value, or a keyword
// value when Key is set
type Token struct {
	Key string
	Val Value
}

var mentionRe = regexp.MustCompile(`^<(@[!&]?|#)(\d+)>$`)

// Tokenize splits a command body into tokens, respecting double-quoted
// spans, triple-backtick code fences with an optional language tag,
// name=value keyword tokens and mention patterns. Tokens come out in
// source order.
func Tokenize(body string) ([]Token, error) {
	var tokens []Token
	i := 0
	n := len(body)

	for i < n {
		if isSpace(body[i]) {
			i++
			continue
		}

		start := i
		if name, rest, ok := splitKeyword(body[i:]); ok {
			i += len(name) + 1
			if len(rest) == 0 || isSpace(rest[0]) {
				// "name=" with no value: treat the whole word as raw
				tokens = append(tokens, Token{Val: classifyWord(name + "=")})
				continue
			}
			val, next, err := scanValue(body, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, Token{Key: name, Val: val})
			i = next
			continue
		}

		val, next, err := scanValue(body, start)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, Token{Val: val})
		i = next
	}

	return tokens, nil
}

// scanValue reads one value starting at offset i: a code fence, a
// quoted string, or a bare word
func scanValue(body string, i int) (Value, int, error) {
	switch {
	case strings.HasPrefix(body[i:], "```"):
		end := strings.Index(body[i+3:], "```")
		if end < 0 {
			return Value{}, 0, &ParseError{Offset: i, What: "code block"}
		}
		content := body[i+3 : i+3+end]
		lang, code := splitFence(content)
		return Value{Kind: CodeBlock, Lang: lang, Text: code}, i + 3 + end + 3, nil

	case body[i] == '"':
		end := strings.IndexByte(body[i+1:], '"')
		if end < 0 {
			return Value{}, 0, &ParseError{Offset: i, What: "quoted string"}
		}
		return Value{Kind: QuotedString, Text: body[i+1 : i+1+end]}, i + 1 + end + 1, nil

	default:
		j := i
		for j < len(body) && !isSpace(body[j]) {
			j++
		}
		return classifyWord(body[i:j]), j, nil
	}
}

// splitKeyword detects a name=value token head. Returns the name and
// the remainder after '=' when the head is a plain identifier.
func splitKeyword(s string) (name, rest string, ok bool) {
	eq := -1
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '=' {
			eq = i
			break
		}
		if !isIdentChar(c, i == 0) {
			return "", "", false
		}
	}
	if eq <= 0 {
		return "", "", false
	}
	return s[:eq], s[eq+1:], true
}

// splitFence splits fenced content into a language tag and the body.
// The tag must be a single word on the first line of the fence.
func splitFence(content string) (lang, code string) {
	nl := strings.IndexByte(content, '\n')
	if nl < 0 {
		return "", content
	}
	first := strings.TrimSpace(content[:nl])
	if first != "" && !strings.ContainsAny(first, " \t") {
		return first, content[nl+1:]
	}
	return "", strings.TrimPrefix(content, "\n")
}

// classifyWord turns a bare word into a raw token or a rich reference
// candidate
func classifyWord(word string) Value {
	if m := mentionRe.FindStringSubmatch(word); m != nil {
		id, err := strconv.ParseInt(m[2], 10, 64)
		if err == nil {
			ref := RefUser
			if m[1] == "#" {
				ref = RefChannel
			}
			return Value{Kind: RichRef, Ref: ref, ID: id, Text: word}
		}
	}
	return Value{Kind: RawToken, Text: word}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentChar(c byte, first bool) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_' {
		return true
	}
	return !first && c >= '0' && c <= '9'
}

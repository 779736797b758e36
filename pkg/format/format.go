// Package format provides the text formatting helpers used across the
// bot: code blocks, quoting, byte/time formatting and message
// splitting
package format

import (
	"fmt"
	"strings"
	"time"
)

// CodeBlock formats text into a Discord code block, truncating to stay
// under maxChars (0 means the default 2000)
func CodeBlock(s string, maxChars int, lang string) string {
	if maxChars <= 0 {
		maxChars = 2000
	}
	// break up any fence inside the content
	s = strings.ReplaceAll(s, "```", "\u200b`\u200b`\u200b`\u200b")
	lenTicks := 7 + len(lang)

	if len(s) > maxChars-lenTicks {
		return fmt.Sprintf("```%s\n%s ...```", lang, s[:maxChars-lenTicks-4])
	}
	return fmt.Sprintf("```%s\n%s```", lang, s)
}

// Quotify formats text as a Discord quote with newline handling
func Quotify(text string, limit int) string {
	if limit <= 0 {
		limit = 1024
	}
	converted := strings.ReplaceAll(strings.TrimSpace(text), "\n", "\n> ")
	ret := "> " + converted
	if len(ret) > limit {
		ret = ret[:limit-3] + "..."
	}
	return ret
}

// FormatByte formats a size as B, KB, MB or GB
func FormatByte(size uint64, decimalPlaces int) string {
	switch {
	case size < 1e3:
		return fmt.Sprintf("%d B", size)
	case size < 1e6:
		return fmt.Sprintf("%.*f KB", decimalPlaces, float64(size)/1e3)
	case size < 1e9:
		return fmt.Sprintf("%.*f MB", decimalPlaces, float64(size)/1e6)
	default:
		return fmt.Sprintf("%.*f GB", decimalPlaces, float64(size)/1e9)
	}
}

var timeUnits = []struct {
	fraction float64
	unit     string
}{
	{1.0, "s"},
	{1e-3, "ms"},
	{1e-6, "μs"},
	{1e-9, "ns"},
}

// FormatTime formats a duration with a sensible unit prefix
func FormatTime(d time.Duration, decimalPlaces int) string {
	seconds := d.Seconds()
	for _, u := range timeUnits {
		if seconds >= u.fraction {
			return fmt.Sprintf("%.*f %s", decimalPlaces, seconds/u.fraction, u.unit)
		}
	}
	return "very fast"
}

// SplitLongMessage splits a message at safe newlines so every piece
// stays within the limit. A single line longer than the limit is
// hard-split at the limit.
func SplitLongMessage(message string, limit int) []string {
	if limit <= 0 {
		limit = 2000
	}
	var out []string
	temp := ""

	for _, line := range strings.Split(message, "\n") {
		for len(line) >= limit {
			if temp != "" {
				out = append(out, strings.TrimSuffix(temp, "\n"))
				temp = ""
			}
			out = append(out, line[:limit])
			line = line[limit:]
		}
		if len(temp)+len(line)+1 > limit {
			out = append(out, strings.TrimSuffix(temp, "\n"))
			temp = line + "\n"
		} else {
			temp += line + "\n"
		}
	}
	if temp != "" {
		out = append(out, temp)
	}
	return out
}

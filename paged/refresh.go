package paged

import (
	"regexp"
	"strconv"
	"strings"
)

const commandMarker = "Command: "

var pageLineRe = regexp.MustCompile(`^Page (\d+) of (\d+)\.$`)

// ParseFooter reconstructs the refresh metadata from a rendered page
// footer: the 0-based page index to restart on and the originating
// command string. The footer must have exactly three lines and the
// command marker on the last one; anything else is rejected.
func ParseFooter(footer string) (startPage int, command string, ok bool) {
	lines := strings.Split(strings.TrimSpace(footer), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[2], commandMarker) {
		return 0, "", false
	}

	m := pageLineRe.FindStringSubmatch(strings.TrimSpace(lines[0]))
	if m == nil {
		return 0, "", false
	}
	page, err := strconv.Atoi(m[1])
	if err != nil || page < 1 {
		return 0, "", false
	}

	command = strings.TrimSpace(strings.TrimPrefix(lines[2], commandMarker))
	if command == "" {
		return 0, "", false
	}
	return page - 1, command, true
}

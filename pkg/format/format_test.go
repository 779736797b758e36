package format

import (
	"strings"
	"testing"
	"time"
)

func TestCodeBlock(t *testing.T) {
	if got := CodeBlock("x = 1", 0, "py"); got != "```py\nx = 1```" {
		t.Errorf("got %q", got)
	}
	if got := CodeBlock("plain", 0, ""); got != "```\nplain```" {
		t.Errorf("got %q", got)
	}
}

func TestCodeBlockEscapesInnerFences(t *testing.T) {
	got := CodeBlock("a```b", 100, "")
	inner := strings.TrimSuffix(strings.TrimPrefix(got, "```\n"), "```")
	if strings.Contains(inner, "```") {
		t.Errorf("inner fence survived: %q", got)
	}
	if !strings.Contains(inner, "a") || !strings.Contains(inner, "b") {
		t.Errorf("content lost: %q", got)
	}
}

func TestCodeBlockTruncates(t *testing.T) {
	got := CodeBlock(strings.Repeat("x", 500), 50, "")
	if len(got) > 50 {
		t.Errorf("len = %d, want <= 50", len(got))
	}
	if !strings.HasSuffix(got, " ...```") {
		t.Errorf("got %q", got)
	}
}

func TestQuotify(t *testing.T) {
	if got := Quotify("one\ntwo", 0); got != "> one\n> two" {
		t.Errorf("got %q", got)
	}
	got := Quotify(strings.Repeat("z", 100), 20)
	if len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("got %q (len %d)", got, len(got))
	}
}

func TestFormatByte(t *testing.T) {
	tests := []struct {
		size uint64
		dp   int
		want string
	}{
		{999, 0, "999 B"},
		{1500, 1, "1.5 KB"},
		{2500000, 1, "2.5 MB"},
		{3000000000, 0, "3 GB"},
	}
	for _, tt := range tests {
		if got := FormatByte(tt.size, tt.dp); got != tt.want {
			t.Errorf("FormatByte(%d, %d) = %q, want %q", tt.size, tt.dp, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		dp   int
		want string
	}{
		{1500 * time.Millisecond, 1, "1.5 s"},
		{250 * time.Millisecond, 0, "250 ms"},
		{12 * time.Microsecond, 0, "12 μs"},
		{500 * time.Nanosecond, 0, "500 ns"},
		{0, 0, "very fast"},
	}
	for _, tt := range tests {
		if got := FormatTime(tt.d, tt.dp); got != tt.want {
			t.Errorf("FormatTime(%v, %d) = %q, want %q", tt.d, tt.dp, got, tt.want)
		}
	}
}

func TestSplitLongMessage(t *testing.T) {
	msg := "12345\n67890\nabcde"
	pieces := SplitLongMessage(msg, 10)
	if len(pieces) != 3 {
		t.Fatalf("got %d pieces: %q", len(pieces), pieces)
	}
	for i, want := range []string{"12345", "67890", "abcde"} {
		if strings.TrimSpace(pieces[i]) != want {
			t.Errorf("piece %d = %q, want %q", i, pieces[i], want)
		}
	}
	for _, p := range pieces {
		if len(p) > 10 {
			t.Errorf("piece over limit: %q", p)
		}
	}

	if pieces := SplitLongMessage("short", 2000); len(pieces) != 1 {
		t.Errorf("got %q", pieces)
	}
}

// a single line longer than the limit is hard-split instead of being
// emitted as an over-limit piece
func TestSplitLongMessageHardSplitsOversizedLine(t *testing.T) {
	msg := "ok\n" + strings.Repeat("a", 25) + "\nok"
	pieces := SplitLongMessage(msg, 10)

	total := 0
	for _, p := range pieces {
		if len(p) > 10 {
			t.Errorf("piece over limit (%d): %q", len(p), p)
		}
		total += len(strings.ReplaceAll(p, "\n", ""))
	}
	if total != 29 {
		t.Errorf("content length after split = %d, want 29", total)
	}
}

package bot

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kithare/kithscord/pkg/config"
	"github.com/kithare/kithscord/pkg/format"
)

// Console captures log output for periodic redirection to the console
// channel. Writes also keep flowing to stderr.
type Console struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewConsole creates an empty console capture buffer
func NewConsole() *Console {
	return &Console{}
}

// Attach routes the standard logger through the capture buffer
func (c *Console) Attach() {
	log.SetOutput(io.MultiWriter(os.Stderr, c))
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

// take drains the buffer
func (c *Console) take() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.buf.String()
	c.buf.Reset()
	return out
}

// runConsole flushes captured output to the console channel every few
// seconds, split at safe newlines so each piece fits in a message
func (a *App) runConsole(ctx context.Context) {
	if a.cfg.Server.ConsoleChannelID == 0 {
		return
	}

	ticker := time.NewTicker(config.ConsoleFlushSeconds * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.flushConsole()
		}
	}
}

func (a *App) flushConsole() {
	contents := a.console.take()
	if contents == "" {
		return
	}

	// hide host path data
	if cwd, err := os.Getwd(); err == nil && cwd != "" {
		contents = strings.ReplaceAll(contents, cwd, "kithscord")
	}

	// room for the code ticks under the 2000 message limit
	for _, piece := range format.SplitLongMessage(contents, 1980) {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		_, err := a.client.Send(a.cfg.Server.ConsoleChannelID, format.CodeBlock(piece, 0, "cmd"), nil)
		if err != nil {
			// cannot log this through the captured logger without
			// looping, report to stderr directly
			os.Stderr.WriteString("[WARN] Console flush failed: " + err.Error() + "\n")
			return
		}
	}
}

// Package config provides configuration types and defaults for the bot
// Centralized management of all constants and default values
package config

import (
	"os"
	"path/filepath"
)

// ===== Command surface =====

const (
	// DefaultPrefix is the command prefix on the production bot
	DefaultPrefix = "kh!"

	// LocalTestPrefix replaces the prefix on local botdev setups so a
	// dev bot and the production bot can share a server
	LocalTestPrefix = "dev!"
)

// ===== Limits =====

const (
	// MaxLoggedCommandLen is the longest command text logged inline to
	// the log channel before it is truncated
	MaxLoggedCommandLen = 2047

	// MaxTrackedInvocations caps the invoke->response map used for
	// edit-reinvoke
	MaxTrackedInvocations = 100

	// ConsoleFlushSeconds is the console redirect flush interval
	ConsoleFlushSeconds = 5
)

// ===== Paths =====

// DefaultDataDir returns the bot data directory (default: <binary-dir>/data)
func DefaultDataDir() string {
	if d := os.Getenv("KITHSCORD_DATA_DIR"); d != "" {
		return d
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "data")
}

// DefaultDistDir returns the Kithare dist directory the kcr binary is
// installed into (default: <data-dir>/dist)
func DefaultDistDir() string {
	if d := os.Getenv("KITHSCORD_DIST_DIR"); d != "" {
		return d
	}
	return filepath.Join(DefaultDataDir(), "dist")
}

// DefaultServerFile returns the server constants file path
func DefaultServerFile() string {
	if f := os.Getenv("KITHSCORD_SERVER_FILE"); f != "" {
		return f
	}
	return filepath.Join(DefaultDataDir(), "server.yaml")
}

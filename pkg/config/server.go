// Server constants - per-guild IDs the bot is wired to
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Server holds the constants of the primary guild. If you want to run a
// copy of the bot on your own server, write a server.yaml with the IDs
// from your server.
type Server struct {
	BotID            int64   `yaml:"botId"`
	GuildID          int64   `yaml:"guildId"`
	LogChannelID     int64   `yaml:"logChannelId"`
	ConsoleChannelID int64   `yaml:"consoleChannelId"`
	AdminRoles       []int64 `yaml:"adminRoles"`
	EvalRole         int64   `yaml:"evalRole"`
}

// IsAdminRole reports whether a role ID is one of the admin roles
func (s *Server) IsAdminRole(id int64) bool {
	for _, r := range s.AdminRoles {
		if r == id {
			return true
		}
	}
	return false
}

// Config is the full bot configuration, read once at startup and
// immutable afterwards
type Config struct {
	Token     string
	Prefix    string
	LocalTest bool
	DataDir   string
	DistDir   string
	Server    Server
}

// Load builds the bot configuration from the environment, env.config
// and the server constants file
func Load() (*Config, error) {
	cfg := &Config{
		Prefix:  DefaultPrefix,
		DataDir: DefaultDataDir(),
		DistDir: DefaultDistDir(),
	}

	envConfig := ReadEnvConfig(filepath.Join(cfg.DataDir, "env.config"))

	cfg.Token = Getenv("TOKEN", envConfig)
	if cfg.Token == "" {
		return nil, fmt.Errorf("TOKEN not set")
	}

	if v := Getenv("KITHSCORD_LOCAL_TEST", envConfig); strings.EqualFold(v, "true") || v == "1" {
		cfg.LocalTest = true
		cfg.Prefix = LocalTestPrefix
	}
	if p := Getenv("KITHSCORD_PREFIX", envConfig); p != "" {
		cfg.Prefix = p
	}

	server, err := LoadServer(DefaultServerFile())
	if err != nil {
		return nil, err
	}
	cfg.Server = *server

	return cfg, nil
}

// LoadServer reads the server constants file
func LoadServer(path string) (*Server, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server constants: %w", err)
	}
	var s Server
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse server constants: %w", err)
	}
	if s.GuildID == 0 {
		return nil, fmt.Errorf("server constants: guildId is required")
	}
	return &s, nil
}

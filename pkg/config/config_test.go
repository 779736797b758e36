package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadEnvConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "env.config")
	content := "# comment\nTOKEN=abc123\n\nKITHSCORD_PREFIX = dev! \nBROKENLINE\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := ReadEnvConfig(path)
	if cfg["TOKEN"] != "abc123" {
		t.Errorf("TOKEN = %q, want abc123", cfg["TOKEN"])
	}
	if cfg["KITHSCORD_PREFIX"] != "dev!" {
		t.Errorf("KITHSCORD_PREFIX = %q, want dev!", cfg["KITHSCORD_PREFIX"])
	}
	if _, ok := cfg["BROKENLINE"]; ok {
		t.Error("lines without = should be skipped")
	}
}

func TestReadEnvConfigMissingFile(t *testing.T) {
	cfg := ReadEnvConfig(filepath.Join(t.TempDir(), "nope"))
	if len(cfg) != 0 {
		t.Errorf("expected empty config, got %v", cfg)
	}
}

func TestLoadServer(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	content := `
botId: 831731222543728690
guildId: 810840019719684117
logChannelId: 877784185933291580
consoleChannelId: 857641533129097246
adminRoles:
  - 819457027776446494
  - 810843243071143946
evalRole: 830567257272877126
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer failed: %v", err)
	}
	if s.GuildID != 810840019719684117 {
		t.Errorf("GuildID = %d", s.GuildID)
	}
	if len(s.AdminRoles) != 2 {
		t.Errorf("AdminRoles = %v", s.AdminRoles)
	}
	if !s.IsAdminRole(819457027776446494) {
		t.Error("IsAdminRole should match a listed role")
	}
	if s.IsAdminRole(1) {
		t.Error("IsAdminRole matched an unknown role")
	}
}

func TestLoadServerMissingGuild(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.yaml")
	if err := os.WriteFile(path, []byte("botId: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadServer(path); err == nil {
		t.Error("expected error for missing guildId")
	}
}

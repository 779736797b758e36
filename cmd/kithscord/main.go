package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/kithare/kithscord/bot"
	"github.com/kithare/kithscord/gateway/discord"
	"github.com/kithare/kithscord/pkg/config"
)

// Exit codes follow the restart contract of the bot runner: 0 means
// restart me, 1 means stay down.
func main() {
	log.Println("Starting Kithscord...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[ERROR] Config load failed: %v", err)
	}
	log.Printf("[OK] Config loaded (prefix: %s, local test: %v)", cfg.Prefix, cfg.LocalTest)

	client := discord.NewClient(cfg.Token)
	app, err := bot.New(cfg, client)
	if err != nil {
		log.Fatalf("[ERROR] Bot setup failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	app.Start(ctx)

	socket := discord.NewSocket(cfg.Token, app.Events())
	socketErr := make(chan error, 1)
	go func() {
		socketErr <- socket.Run(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("[WARN] Received signal %v, shutting down", sig)
		cancel()
		os.Exit(1)
	case err := <-socketErr:
		log.Printf("[ERROR] Gateway loop ended: %v", err)
		os.Exit(0)
	case code := <-app.Shutdown():
		log.Printf("[OK] Stopping with exit code %d", code)
		cancel()
		os.Exit(code)
	}
}

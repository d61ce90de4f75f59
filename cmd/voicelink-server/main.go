// Voicelink-server - loopback voice endpoint for local development.
// Echoes client audio back at the playback rate so the full client
// pipeline can be tested without AI credentials.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	ilog "github.com/middlemgr/voicelink/internal/log"
	"github.com/middlemgr/voicelink/pkg/devserver"
)

func main() {
	addr := flag.String("addr", ":8765", "Listen address")
	greeting := flag.String("greeting", "loopback endpoint ready", "Text message sent to new connections, empty to disable")
	echoDelay := flag.Duration("echo-delay", 0, "Artificial per-frame turnaround delay")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	if *debug {
		ilog.Init("debug")
	} else {
		ilog.Init("info")
	}
	logger := ilog.L()

	cfg := devserver.DefaultConfig()
	cfg.Greeting = *greeting
	cfg.EchoDelay = *echoDelay

	srv := devserver.New(cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Listen(*addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		return srv.ShutdownWithTimeout(5 * time.Second)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatalf("❌ Server error: %v", err)
	}
}

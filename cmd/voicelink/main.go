// Voicelink - realtime voice client for conversational AI endpoints.
// Streams microphone audio to a WebSocket endpoint and plays the
// synthesized replies gaplessly.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/middlemgr/voicelink/internal/httpc"
	ilog "github.com/middlemgr/voicelink/internal/log"
	"github.com/middlemgr/voicelink/pkg/audioio"
	"github.com/middlemgr/voicelink/pkg/voice"
)

func main() {
	cfg, opts := parseFlags()

	if opts.debug {
		ilog.Init("debug")
	} else {
		ilog.Init("info")
	}
	logger := ilog.L()

	if opts.waitReady {
		if err := waitForEndpoint(cfg.EndpointURL, 30*time.Second); err != nil {
			log.Fatalf("❌ Endpoint not ready: %v", err)
		}
	}

	var sessOpts []voice.Option
	if opts.meter {
		sessOpts = append(sessOpts, voice.WithSourceFactory(
			func(c audioio.Config, l *slog.Logger) (audioio.Source, error) {
				src, err := audioio.NewSource(c, l)
				if err != nil {
					return nil, err
				}
				return newMeteredSource(src), nil
			}))
	}

	session := voice.New(cfg, logger, sessOpts...)

	session.OnTranscript(func(text string) {
		fmt.Printf("💬 %s\n", text)
	})
	session.OnError(func(err error) {
		logger.Warn("session error", "error", err)
	})

	// A session that goes idle on its own (transport failure, device loss)
	// ends the program.
	idleCh := make(chan struct{})
	var idleOnce sync.Once
	var started atomic.Bool
	session.OnState(func(st voice.State) {
		fmt.Printf("● %s\n", st)
		switch st {
		case voice.StateListening:
			started.Store(true)
		case voice.StateIdle:
			if started.Load() {
				idleOnce.Do(func() { close(idleCh) })
			}
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := session.Start(ctx); err != nil {
		log.Fatalf("❌ Failed to start session: %v", err)
	}

	select {
	case <-ctx.Done():
		if err := session.Stop(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	case <-idleCh:
	}

	printStats(session.Stats())
}

type cliOptions struct {
	debug     bool
	waitReady bool
	meter     bool
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() (voice.Config, cliOptions) {
	endpoint := flag.String("endpoint", "ws://localhost:8765/ws/voice", "WebSocket endpoint URL")
	backend := flag.String("backend", "auto", "Audio backend: auto, portaudio, mock")
	queueDepth := flag.Int("queue-depth", 0, "Max frames queued for playback, 0 = unbounded")
	strict := flag.Bool("strict", false, "Panic on internal invariant breaches")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	waitReady := flag.Bool("wait-ready", false, "Poll the endpoint's /health before connecting")
	meter := flag.Bool("meter", false, "Print a microphone input level bar")
	flag.Parse()

	cfg := voice.DefaultConfig(*endpoint)
	cfg.Capture.Backend = audioio.Backend(*backend)
	cfg.Playback.Backend = audioio.Backend(*backend)
	cfg.MaxQueueDepth = *queueDepth
	cfg.StrictInvariants = *strict

	if ep := os.Getenv("VOICELINK_ENDPOINT"); ep != "" && !flagSet("endpoint") {
		cfg.EndpointURL = ep
	}

	return cfg, cliOptions{debug: *debug, waitReady: *waitReady, meter: *meter}
}

func flagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// waitForEndpoint polls the health route derived from the WebSocket URL
// until it answers or the timeout expires.
func waitForEndpoint(endpoint string, timeout time.Duration) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = "/health"
	health := u.String()

	deadline := time.Now().Add(timeout)
	for {
		resp, err := httpc.Get(health)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				return nil
			}
		}
		if time.Now().After(deadline) {
			if err != nil {
				return err
			}
			return fmt.Errorf("health check returned %d", resp.StatusCode)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func printStats(stats voice.Stats) {
	fmt.Printf("\n📊 Session stats:\n")
	fmt.Printf("   frames sent:      %d (%d bytes)\n", stats.FramesSent, stats.BytesSent)
	fmt.Printf("   frames played:    %d (%d bytes received)\n", stats.FramesPlayed, stats.BytesReceived)
	if stats.MalformedDropped > 0 {
		fmt.Printf("   malformed frames: %d\n", stats.MalformedDropped)
	}
	if stats.QueueDiscarded > 0 {
		fmt.Printf("   queue discarded:  %d\n", stats.QueueDiscarded)
	}
	fmt.Printf("   queue high water: %d\n", stats.QueueHighWater)
}

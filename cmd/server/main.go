// Command server is the physical-mcp ambient perception engine's
// entrypoint: it loads configuration, wires the shared stores (rules,
// scene, alert log, stats, notification dispatcher) into a
// perception.Engine, opens every configured camera, starts the HTTP
// surface (C11), and optionally advertises itself over mDNS. Adapted
// from the teacher's cmd/server/main.go init/serve/graceful-shutdown
// shape, generalized from a single gRPC-backed vision client to this
// engine's full camera/rules/notification stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/physical-mcp/engine/internal/alertlog"
	"github.com/physical-mcp/engine/internal/config"
	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/httpapi"
	"github.com/physical-mcp/engine/internal/mdns"
	"github.com/physical-mcp/engine/internal/notify"
	"github.com/physical-mcp/engine/internal/perception"
	"github.com/physical-mcp/engine/internal/rules"
	"github.com/physical-mcp/engine/internal/scene"
	"github.com/physical-mcp/engine/internal/stats"
	"github.com/physical-mcp/engine/internal/vlm"
	"github.com/physical-mcp/engine/internal/wshub"
)

// version is the engine's semver, printed by --version (spec §6 CLI
// surface: "specified only by exit contracts").
const version = "0.1.0"

func main() {
	var (
		configPath  = flag.String("config", os.Getenv("PHYSICAL_MCP_CONFIG"), "path to the YAML config file")
		showVersion = flag.Bool("version", false, "print the version and exit")
		runDoctor   = flag.Bool("doctor", false, "print platform, provider, LAN IP, and mDNS status")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "engine").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("fatal: invalid configuration")
		os.Exit(1)
	}

	if *runDoctor {
		doctor(cfg, log)
		os.Exit(0)
	}

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("fatal")
		os.Exit(1)
	}
}

// run builds every component, serves until a shutdown signal arrives,
// and drains cleanly (spec §5).
func run(cfg *config.Config, log zerolog.Logger) error {
	rulesStore, err := rules.NewWithPath(cfg.RulesPath, cfg.Reasoning.ConfidenceThreshold)
	if err != nil {
		return core.Wrap(core.KindConfigInvalid, "loading rules store", err)
	}

	memory, err := stats.NewMemoryStore(cfg.MemoryPath)
	if err != nil {
		return core.Wrap(core.KindConfigInvalid, "loading memory store", err)
	}

	sceneStore := scene.NewStore()
	alertLog := alertlog.New(alertlog.DefaultCapacity, cfg.AlertLogPath)
	tracker := stats.NewTracker(stats.Budget{
		DailyBudgetUSD: cfg.CostControl.DailyBudgetUSD,
		HourlyRateCap:  cfg.CostControl.HourlyRateCap,
		CostPerCall:    0.01,
	})
	hub := wshub.New(log)
	go hub.Run()
	sceneStore.SetBroadcaster(hub)
	alertLog.SetBroadcaster(hub)

	dispatcher := notify.New(buildChannels(cfg), notify.Options{
		DefaultChannel: cfg.Notifications.DefaultChannel,
	}, log)

	var provider vlm.Provider
	if cfg.Reasoning.ServerSideEnabled() {
		provider, err = vlm.New(cfg.Reasoning.Provider, vlm.Config{
			APIKey:      cfg.Reasoning.APIKey,
			Model:       cfg.Reasoning.Model,
			BaseURL:     cfg.Reasoning.BaseURL,
			CallTimeout: cfg.Reasoning.CallTimeout(),
		})
		if err != nil {
			return core.Wrap(core.KindConfigInvalid, "constructing VLM provider", err)
		}
	}

	engine := perception.New(cfg, rulesStore, sceneStore, alertLog, dispatcher, tracker, provider, log)
	engine.EmitStartupWarning()

	ctx, cancelCameras := context.WithCancel(context.Background())
	defer cancelCameras()
	for _, cam := range cfg.Cameras {
		if !cam.Enabled {
			continue
		}
		if err := engine.AddCamera(ctx, cam); err != nil {
			log.Warn().Err(err).Str("camera_id", cam.ID).Msg("camera failed to open at startup; will remain offline until reopened")
		}
	}

	srv := httpapi.New(cfg, engine, rulesStore, sceneStore, alertLog, tracker, memory, hub, log)
	addr := fmt.Sprintf("%s:%d", cfg.VisionAPI.Host, cfg.VisionAPI.Port)
	if err := srv.Start(addr); err != nil {
		return core.Wrap(core.KindConfigInvalid, "binding HTTP listener", err)
	}
	log.Info().Str("addr", addr).Str("reasoning_mode", engine.ReasoningMode()).Msg("serving")

	var advertiser *mdns.Advertiser
	var mdnsCancel context.CancelFunc
	if cfg.VisionAPI.Port > 0 {
		advertiser = mdns.New(cfg.VisionAPI.Port, log)
		var mdnsCtx context.Context
		mdnsCtx, mdnsCancel = context.WithCancel(context.Background())
		go func() {
			if err := advertiser.Run(mdnsCtx); err != nil {
				log.Warn().Err(err).Msg("mdns advertisement stopped")
			}
		}()
	}

	waitForShutdownSignal()
	log.Info().Msg("shutdown signal received; draining")

	shutdownErr := srv.Shutdown(10 * time.Second)
	cancelCameras()
	if mdnsCancel != nil {
		mdnsCancel()
	}
	engine.Close()

	if err := rulesStore.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to flush rules store on shutdown")
	}
	if err := memory.Snapshot(); err != nil {
		log.Warn().Err(err).Msg("failed to flush memory store on shutdown")
	}

	return shutdownErr
}

// buildChannels constructs one notify.Channel per configured
// notification target (spec §4.10); channels with no routing data
// configured are simply omitted so the dispatcher's auto-selection
// (Telegram > Discord > Slack > ntfy > desktop > none) skips them.
func buildChannels(cfg *config.Config) []notify.Channel {
	var channels []notify.Channel
	n := cfg.Notifications
	if n.Telegram.BotToken != "" && n.Telegram.ChatID != "" {
		channels = append(channels, notify.NewTelegramChannel(n.Telegram.BotToken, n.Telegram.ChatID))
	}
	if n.Discord.WebhookURL != "" {
		channels = append(channels, notify.NewDiscordChannel(n.Discord.WebhookURL))
	}
	if n.Slack.WebhookURL != "" {
		channels = append(channels, notify.NewSlackChannel(n.Slack.WebhookURL))
	}
	if n.Ntfy.Server != "" && n.Ntfy.Topic != "" {
		channels = append(channels, notify.NewNtfyChannel(n.Ntfy.Server, n.Ntfy.Topic))
	}
	if n.Webhook.URL != "" {
		channels = append(channels, notify.NewWebhookChannel(n.Webhook.URL))
	}
	if n.Desktop.Enabled {
		channels = append(channels, notify.NewDesktopChannel())
	}
	return channels
}

// doctor prints the platform/provider/LAN-IP/mDNS summary spec §6 names
// for the `doctor` CLI subcommand.
func doctor(cfg *config.Config, log zerolog.Logger) {
	fmt.Printf("physical-mcp engine %s\n", version)
	fmt.Printf("platform: %s/%s\n", osName(), archName())
	if cfg.Reasoning.ServerSideEnabled() {
		fmt.Printf("provider: %s (model=%s)\n", cfg.Reasoning.Provider, cfg.Reasoning.Model)
	} else {
		fmt.Println("provider: none (client-side fallback mode)")
	}
	fmt.Printf("lan_ip: %s\n", lanIP())
	fmt.Printf("mdns: instance advertises on port %d\n", cfg.VisionAPI.Port)
}

// waitForShutdownSignal blocks until SIGINT or SIGTERM (spec §5 step 1).
func waitForShutdownSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}

func osName() string   { return runtime.GOOS }
func archName() string { return runtime.GOARCH }

func lanIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "unknown"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// Command cohost is the livestream co-host backend. It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Registers the comment connectors (OneComme legacy/new, multi viewer,
//     manual, TCP line, Twitch IRC) and auto-starts the flagged ones.
//   - Runs the effect engine, overlay snapshot writer, Bouyomi-chan TTS
//     pipeline and the AI reply responder.
//   - Exposes the HTTP API: health, status, metrics, connector and effect
//     control, the comment SSE stream and the overlay WebSocket.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gyururu/cohost/ai"
	"github.com/gyururu/cohost/bridge"
	"github.com/gyururu/cohost/config"
	"github.com/gyururu/cohost/db"
	"github.com/gyururu/cohost/effects"
	"github.com/gyururu/cohost/events"
	"github.com/gyururu/cohost/obs"
	"github.com/gyururu/cohost/overlay"
	"github.com/gyururu/cohost/server"
	"github.com/gyururu/cohost/telemetry"
	"github.com/gyururu/cohost/tts"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("cohost", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := events.NewBus()

	// Comment connectors. Persisted auto-start flags override the defaults
	// (legacy OneComme starts automatically on a fresh install).
	autoStart, err := db.AutoStartFlags(ctx, database)
	if err != nil {
		slog.Warn("failed to load auto-start flags", slog.Any("err", err))
		autoStart = map[string]bool{}
	}
	if _, ok := autoStart["onecomme_legacy"]; !ok {
		autoStart["onecomme_legacy"] = true
	}

	factory := bridge.NewFactory(bus, cfg)
	manager := bridge.NewManager(factory)
	services := []struct {
		name string
		kind bridge.Kind
		url  string
	}{
		{"onecomme_legacy", bridge.KindOneCommeLegacy, cfg.OneCommeLegacyURL},
		{"onecomme_new", bridge.KindOneCommeNew, cfg.OneCommeNewURL},
		{"multiviewer", bridge.KindMultiViewer, cfg.MultiViewerURL},
		{"manual", bridge.KindManual, ""},
		{"tcpline", bridge.KindTCPLine, cfg.TCPCommentAddr},
		{"twitch", bridge.KindTwitch, cfg.TwitchChannel},
	}
	for _, s := range services {
		if err := manager.Register(s.name, s.kind, s.url, autoStart[s.name]); err != nil {
			slog.Error("failed to register connector", slog.String("service", s.name), slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Effects: presets with persisted overrides, the dispatch queue and the
	// trigger engine.
	presets := effects.DefaultSet()
	if raw, err := db.GetKV(ctx, database, "effect_presets"); err != nil {
		slog.Warn("failed to load preset overrides", slog.Any("err", err))
	} else if raw != "" {
		if err := presets.ApplyOverridesJSON(raw); err != nil {
			slog.Warn("invalid preset overrides, using defaults", slog.Any("err", err))
		}
	}
	queue := effects.NewQueue()
	engine := effects.NewEngine(bus, presets, queue)
	if v := os.Getenv("EFFECT_DENSITY"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil {
			engine.SetDensity(d)
		} else {
			slog.Warn("invalid EFFECT_DENSITY, using 1.0", slog.String("value", v))
		}
	}
	go engine.Run(ctx)

	// Overlay: message board fed from the bus, snapshot writer on a ticker.
	board := overlay.NewBoard()
	meta := overlay.DefaultMeta()
	if raw, err := db.GetKV(ctx, database, "overlay_meta"); err == nil && raw != "" {
		if m, err := overlay.MetaFromJSON(raw); err != nil {
			slog.Warn("invalid overlay_meta, using defaults", slog.Any("err", err))
		} else {
			meta = m
		}
	}
	writer := overlay.NewWriter(board, queue, meta, cfg.DataDir, cfg.SnapshotInterval)
	go overlay.NewCollector(bus, board).Run(ctx)
	go writer.Run(ctx)

	// Bouyomi-chan TTS: probe both transports up front, re-probe while down.
	ttsClient := tts.NewClient(cfg.BouyomiHost, cfg.BouyomiTCPPort, cfg.BouyomiHTTPPort)
	ttsClient.Probe(ctx)
	go ttsClient.RunReprobe(ctx, 5*time.Minute)
	runner := tts.NewRunner(bus, ttsClient)
	runner.Start(ctx)

	// AI replies fall back to the local echo generator without an API key.
	var gen ai.Generator
	if cfg.OpenAIAPIKey != "" {
		gen = ai.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	} else {
		slog.Info("OPENAI_API_KEY not set, using local echo responder")
		gen = ai.EchoGenerator{}
	}
	responder := ai.NewResponder(bus, gen, cfg.ReplyProbability, cfg.ReplyCooldown)
	go responder.Run(ctx)

	// OBS control is optional; a failed connect leaves the endpoints at 503.
	var obsClient *obs.Client
	if cfg.OBSAddr != "" {
		obsClient = obs.NewClient(cfg.OBSAddr, cfg.OBSPassword)
		if err := obsClient.Connect(ctx); err != nil {
			slog.Warn("obs connect failed, scene and hotkey control unavailable", slog.Any("err", err))
		}
	}

	manager.StartAuto(ctx)

	if os.Getenv("ENABLE_PPROF") == "1" {
		startPprof()
	}

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	deps := server.Deps{
		DB:      database,
		Bus:     bus,
		Manager: manager,
		Engine:  engine,
		Presets: presets,
		Board:   board,
		Writer:  writer,
		TTS:     ttsClient,
		Runner:  runner,
		OBS:     obsClient,
		DataDir: cfg.DataDir,
	}
	go func() {
		if err := server.Start(ctx, deps, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	manager.DisconnectAll()
	if obsClient != nil {
		obsClient.Close()
	}
	runner.Wait()
}

// initLogging configures slog from LOG_LEVEL and LOG_FORMAT.
// Defaults: level=info, format=text.
func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))
}

// startPprof serves the default pprof mux on PPROF_ADDR (localhost:6060).
func startPprof() {
	pprofAddr := os.Getenv("PPROF_ADDR")
	if pprofAddr == "" {
		pprofAddr = "localhost:6060"
	}
	go func() {
		slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
		srv := &http.Server{
			Addr:              pprofAddr,
			Handler:           nil, // default mux exposes /debug/pprof
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("pprof server error", slog.Any("err", err))
		}
	}()
}

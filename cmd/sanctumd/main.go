package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/you/sanctum-chat/internal/cache"
	"github.com/you/sanctum-chat/internal/config"
	httpadmin "github.com/you/sanctum-chat/internal/http"
	"github.com/you/sanctum-chat/internal/httpapi"
	"github.com/you/sanctum-chat/internal/kv"
	"github.com/you/sanctum-chat/internal/version"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var (
		versionFlag          bool
		envFile              string
		backend              string
		sqlitePath           string
		pebblePath           string
		msgRetention         time.Duration
		participantRetention time.Duration
		overridesFile        string
		httpAddr             string
		httpCorsOrigins      string
		httpRateRPS          int
		httpRateBurst        int
		httpMetrics          bool
		httpAccessLog        bool
		httpPprof            bool
	)

	flag.BoolVar(&versionFlag, "version", false, "Print build version and exit")
	flag.StringVar(&envFile, "env-file", ".env", "Optional env file loaded before reading configuration")
	flag.StringVar(&backend, "backend", "", "Cache backend: memory, sqlite, or pebble")
	flag.StringVar(&sqlitePath, "sqlite", "", "Path to SQLite database file")
	flag.StringVar(&pebblePath, "pebble", "", "Path to Pebble database directory")
	flag.DurationVar(&msgRetention, "msg-retention", 0, "Session message retention window (e.g. 24h)")
	flag.DurationVar(&participantRetention, "participant-retention", 0, "Participant state retention window (e.g. 1h)")
	flag.StringVar(&overridesFile, "retention-overrides", "", "Path to JSON retention overrides file, watched for changes")
	flag.StringVar(&httpAddr, "http-addr", "", "HTTP listen address (e.g. :8765)")
	flag.StringVar(&httpCorsOrigins, "http-cors-origins", "", "Comma-separated list of allowed CORS origins")
	flag.IntVar(&httpRateRPS, "http-rate-rps", 0, "Maximum HTTP requests per second per client")
	flag.IntVar(&httpRateBurst, "http-rate-burst", 0, "Burst size for HTTP rate limiter")
	flag.BoolVar(&httpMetrics, "http-metrics", true, "Expose Prometheus metrics endpoint")
	flag.BoolVar(&httpAccessLog, "http-access-log", true, "Log HTTP access records")
	flag.BoolVar(&httpPprof, "http-pprof", false, "Expose pprof handlers under /debug/pprof")
	flag.Parse()

	if versionFlag {
		fmt.Printf(
			"sanctumd version: %s (commit %s, built %s)\n",
			version.Version,
			version.Commit,
			version.BuildTime,
		)
		os.Exit(0)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !os.IsNotExist(err) {
				log.Fatalf("sanctumd: env file: %v", err)
			}
		} else {
			log.Printf("sanctumd: loaded env from %s", envFile)
		}
	}

	overrides := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		overrides[f.Name] = true
	})

	cfg := config.Load()

	if overrides["backend"] {
		cfg.Store.Backend = backend
	}
	if overrides["sqlite"] {
		cfg.Store.SQLitePath = sqlitePath
		cfg.Store.Backend = config.BackendSQLite
	}
	if overrides["pebble"] {
		cfg.Store.PebblePath = pebblePath
		cfg.Store.Backend = config.BackendPebble
	}
	if overrides["msg-retention"] && msgRetention > 0 {
		cfg.Store.MessageRetention = msgRetention
	}
	if overrides["participant-retention"] && participantRetention > 0 {
		cfg.Store.ParticipantRetention = participantRetention
	}
	if overrides["retention-overrides"] {
		cfg.Store.OverridesFile = overridesFile
	}
	if overrides["http-addr"] {
		cfg.HTTP.Addr = httpAddr
	}
	if overrides["http-cors-origins"] {
		cfg.HTTP.CORSOrigins = nil
		for _, origin := range splitCSV(httpCorsOrigins) {
			cfg.HTTP.CORSOrigins = append(cfg.HTTP.CORSOrigins, origin)
		}
	}
	if overrides["http-rate-rps"] && httpRateRPS > 0 {
		cfg.HTTP.RateRPS = httpRateRPS
	}
	if overrides["http-rate-burst"] && httpRateBurst > 0 {
		cfg.HTTP.RateBurst = httpRateBurst
	}
	if overrides["http-metrics"] {
		cfg.HTTP.Metrics = httpMetrics
	}
	if overrides["http-access-log"] {
		cfg.HTTP.AccessLog = httpAccessLog
	}
	if overrides["http-pprof"] {
		cfg.HTTP.Pprof = httpPprof
	}

	log.Printf("sanctumd: %s", cfg.SummaryJSON())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	medium, err := openBackend(cfg.Store)
	if err != nil {
		log.Fatalf("sanctumd: open %s backend: %v", cfg.Store.Backend, err)
	}
	defer func() {
		if err := medium.Close(); err != nil {
			log.Printf("sanctumd: closing backend: %v", err)
		}
	}()

	store := cache.New(medium, cache.Options{
		MessageRetention:     cfg.Store.MessageRetention,
		ParticipantRetention: cfg.Store.ParticipantRetention,
	})

	var reloadFn func() error
	if cfg.Store.OverridesFile != "" {
		path := cfg.Store.OverridesFile
		reloadFn = func() error { return store.ReloadOverrides(path) }
		if err := store.ReloadOverrides(path); err != nil {
			log.Printf("sanctumd: initial overrides load: %v", err)
		}
		if err := store.WatchOverrides(path); err != nil {
			log.Printf("sanctumd: overrides watch: %v", err)
		}
	}

	build := httpapi.BuildInfo{Version: version.Version, Revision: version.Commit}
	if version.BuildTime != "" && version.BuildTime != "unknown" {
		if t, err := time.Parse(time.RFC3339, version.BuildTime); err == nil {
			build.BuiltAt = t
		}
	}

	api := httpapi.New(store, httpapi.Options{
		Addr:        cfg.HTTP.Addr,
		CORSOrigins: cfg.HTTP.CORSOrigins,
		RateRPS:     cfg.HTTP.RateRPS,
		RateBurst:   cfg.HTTP.RateBurst,
		Metrics:     cfg.HTTP.Metrics,
		AccessLog:   cfg.HTTP.AccessLog,
		Pprof:       cfg.HTTP.Pprof,
		Build:       build,
	})

	admin := httpadmin.New(store, reloadFn)
	admin.Register(api.Mux())

	go func() {
		if err := api.Start(); err != nil {
			log.Fatalf("sanctumd: http api: %v", err)
		}
	}()
	log.Printf("sanctumd: http api ready on %s", cfg.HTTP.Addr)

	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.Printf("sanctumd: http api shutdown: %v", err)
	}
	cancelShutdown()

	log.Printf("sanctumd: shutdown complete")
}

func openBackend(cfg config.StoreConfig) (kv.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return kv.NewMemory(), nil
	case config.BackendPebble:
		return kv.OpenPebble(cfg.PebblePath)
	default:
		return kv.OpenSQLite(cfg.SQLitePath)
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

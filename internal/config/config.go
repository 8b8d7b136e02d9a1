package config

import (
	"encoding/json"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Store StoreConfig
	HTTP  HTTPConfig
}

type StoreConfig struct {
	Backend              string
	SQLitePath           string
	PebblePath           string
	MessageRetention     time.Duration
	ParticipantRetention time.Duration
	OverridesFile        string
}

type HTTPConfig struct {
	Addr        string
	CORSOrigins []string
	RateRPS     int
	RateBurst   int
	Metrics     bool
	AccessLog   bool
	Pprof       bool
}

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendPebble = "pebble"
)

const (
	defaultBackend              = BackendSQLite
	defaultSQLitePath           = "sanctum.db"
	defaultPebblePath           = "sanctum.pebble"
	defaultAddr                 = ":8765"
	defaultRateRPS              = 20
	defaultRateBurst            = 40
	defaultMessageRetention     = 24 * time.Hour
	defaultParticipantRetention = time.Hour
)

func Load() Config {
	cfg := Config{}

	cfg.Store.Backend = normalizeBackend(os.Getenv("SANCTUM_BACKEND"))

	cfg.Store.SQLitePath = strings.TrimSpace(os.Getenv("SANCTUM_SQLITE_PATH"))
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = defaultSQLitePath
	}
	cfg.Store.PebblePath = strings.TrimSpace(os.Getenv("SANCTUM_PEBBLE_PATH"))
	if cfg.Store.PebblePath == "" {
		cfg.Store.PebblePath = defaultPebblePath
	}

	cfg.Store.MessageRetention = readDuration("SANCTUM_MSG_RETENTION", defaultMessageRetention)
	cfg.Store.ParticipantRetention = readDuration("SANCTUM_PARTICIPANT_RETENTION", defaultParticipantRetention)
	cfg.Store.OverridesFile = strings.TrimSpace(os.Getenv("SANCTUM_RETENTION_OVERRIDES_FILE"))

	cfg.HTTP.Addr = strings.TrimSpace(os.Getenv("SANCTUM_HTTP_ADDR"))
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = defaultAddr
	}
	cfg.HTTP.CORSOrigins = splitList(os.Getenv("SANCTUM_HTTP_CORS_ORIGINS"))
	cfg.HTTP.RateRPS = readInt("SANCTUM_HTTP_RATE_RPS", defaultRateRPS)
	cfg.HTTP.RateBurst = readInt("SANCTUM_HTTP_RATE_BURST", defaultRateBurst)
	cfg.HTTP.Metrics = readBoolDefaultTrue("SANCTUM_HTTP_METRICS", true)
	cfg.HTTP.AccessLog = readBoolDefaultTrue("SANCTUM_HTTP_ACCESS_LOG", true)
	cfg.HTTP.Pprof = readBool("SANCTUM_HTTP_PPROF", false)

	return cfg
}

func normalizeBackend(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case BackendMemory, "mem":
		return BackendMemory
	case BackendPebble:
		return BackendPebble
	default:
		return defaultBackend
	}
}

func splitList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', ' ', '\t', '\n':
			return true
		}
		return false
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return dedupe(out)
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(v))
	}
	sort.Strings(out)
	return out
}

func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	if n <= 0 {
		return def
	}
	return n
}

func readBool(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func readBoolDefaultTrue(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}

func readDuration(name string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	if d <= 0 {
		return def
	}
	return d
}

type Summary struct {
	Backend              string   `json:"backend"`
	SQLitePath           string   `json:"sqlite_path,omitempty"`
	PebblePath           string   `json:"pebble_path,omitempty"`
	MessageRetention     string   `json:"msg_retention"`
	ParticipantRetention string   `json:"participant_retention"`
	OverridesFile        string   `json:"overrides_file,omitempty"`
	Addr                 string   `json:"http_addr"`
	CORSOrigins          []string `json:"cors_origins,omitempty"`
	RateRPS              int      `json:"rate_rps"`
	RateBurst            int      `json:"rate_burst"`
	Metrics              bool     `json:"metrics"`
	AccessLog            bool     `json:"access_log"`
	Pprof                bool     `json:"pprof"`
}

func (c Config) Summary() Summary {
	s := Summary{
		Backend:              c.Store.Backend,
		MessageRetention:     c.Store.MessageRetention.String(),
		ParticipantRetention: c.Store.ParticipantRetention.String(),
		OverridesFile:        c.Store.OverridesFile,
		Addr:                 c.HTTP.Addr,
		CORSOrigins:          append([]string(nil), c.HTTP.CORSOrigins...),
		RateRPS:              c.HTTP.RateRPS,
		RateBurst:            c.HTTP.RateBurst,
		Metrics:              c.HTTP.Metrics,
		AccessLog:            c.HTTP.AccessLog,
		Pprof:                c.HTTP.Pprof,
	}
	switch c.Store.Backend {
	case BackendSQLite:
		s.SQLitePath = c.Store.SQLitePath
	case BackendPebble:
		s.PebblePath = c.Store.PebblePath
	}
	return s
}

func (c Config) SummaryJSON() []byte {
	summary := struct {
		Config Summary `json:"config_summary"`
	}{Config: c.Summary()}
	data, _ := json.Marshal(summary)
	return data
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type APIConfig struct {
	Addr            string
	DatabaseURL     string
	SupabaseURL     string
	SupabaseAnonKey string
	AdminUserIDs    []string
	TimerTick       time.Duration
	MinPlayerPrice  decimal.Decimal
	EmbeddedTimer   bool
	RunMigrations   bool
}

type WorkerConfig struct {
	DatabaseURL    string
	TimerTick      time.Duration
	MinPlayerPrice decimal.Decimal
	RunOnce        bool
}

type CLIConfig struct {
	APIBaseURL string
}

var defaultMinPlayerPrice = decimal.RequireFromString("5.5")

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("CRICKBID_API_ADDR", ":8080")
	}

	cfg := APIConfig{
		Addr:            addr,
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SupabaseURL:     strings.TrimRight(strings.TrimSpace(os.Getenv("SUPABASE_URL")), "/"),
		SupabaseAnonKey: strings.TrimSpace(os.Getenv("SUPABASE_ANON_KEY")),
		AdminUserIDs:    envList("CRICKBID_ADMIN_USER_IDS"),
		TimerTick:       envDurationDefault("CRICKBID_TIMER_TICK", time.Second),
		EmbeddedTimer:   envBoolDefault("CRICKBID_EMBEDDED_TIMER", false),
		RunMigrations:   envBoolDefault("CRICKBID_RUN_MIGRATIONS", true),
	}
	price, err := envDecimalDefault("CRICKBID_MIN_PLAYER_PRICE", defaultMinPlayerPrice)
	if err != nil {
		return cfg, err
	}
	cfg.MinPlayerPrice = price
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SupabaseURL != "" && cfg.SupabaseAnonKey == "" {
		return cfg, fmt.Errorf("SUPABASE_ANON_KEY is required when SUPABASE_URL is set")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	cfg := WorkerConfig{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		TimerTick:   envDurationDefault("CRICKBID_TIMER_TICK", time.Second),
		RunOnce:     envBoolDefault("CRICKBID_WORKER_RUN_ONCE", false),
	}
	price, err := envDecimalDefault("CRICKBID_MIN_PLAYER_PRICE", defaultMinPlayerPrice)
	if err != nil {
		return cfg, err
	}
	cfg.MinPlayerPrice = price
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("CBK_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// A malformed price is an error rather than a silent fallback: it changes who counts as stuck.
func envDecimalDefault(key string, fallback decimal.Decimal) (decimal.Decimal, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return fallback, fmt.Errorf("%s must be >= 0", key)
	}
	return d, nil
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

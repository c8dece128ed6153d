// Package config loads runtime settings from the environment, an optional
// .env file and the router list YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/Ticoworld/savercoin/internal/domain"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultRoutersFile      = "config/routers.yaml"
	DefaultSyncSchedule     = "*/5 * * * *"
	DefaultSnapshotSchedule = "*/10 * * * *"
	DefaultBuyDayInterval   = 24 * time.Hour
	DefaultExplorerURL      = "https://api.etherscan.io/v2/api"
	DefaultChainID          = 56
	DefaultMoralisURL       = "https://deep-index.moralis.io/api/v2.2"
	DefaultMoralisChain     = "bsc"
	DefaultPriceTTL         = 5 * time.Minute
	DefaultRPCLogChunk      = 5000
	DefaultTokenDecimals    = 18
	DefaultHTTPAddr         = ":5000"
	DefaultMetricsAddr      = ":9090"
	DefaultCacheTTL         = time.Minute
)

var (
	defaultMinBuyUSD     = decimal.NewFromInt(10)
	defaultFallbackPrice = decimal.RequireFromString("0.0001")
)

// Config holds every runtime parameter of the tracker.
type Config struct {
	// Contest
	TokenContract  string
	Routers        []string
	RoutersFile    string
	StartBlock     uint64
	ContestStart   time.Time
	ContestEnd     time.Time
	MinBuyUSD      decimal.Decimal
	BuyDayInterval time.Duration
	TestMode       bool

	// Schedules (cron specs)
	SyncSchedule     string
	SnapshotSchedule string

	// Transfer sources
	ExplorerAPIKey string
	ExplorerURL    string
	ChainID        int64
	RPCURL         string // empty disables the RPC fallback
	RPCLogChunk    uint64
	TokenDecimals  int

	// Pricing
	MoralisAPIKey    string
	MoralisURL       string
	MoralisChain     string
	PriceTTL         time.Duration
	FallbackPriceUSD decimal.Decimal

	// Storage
	PostgresDSN   string // empty selects in-memory stores
	ClickhouseDSN string // empty disables the archive
	RedisAddr     string // empty disables the leaderboard cache
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	// Listeners
	HTTPAddr    string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string
}

// Load reads .env if present, then builds the config from the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a config using getenv for lookups.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{get: getenv}

	cfg := &Config{
		TokenContract:    strings.ToLower(strings.TrimSpace(e.get("TOKEN_CONTRACT"))),
		RoutersFile:      e.str("ROUTERS_FILE", DefaultRoutersFile),
		StartBlock:       e.unsigned("START_BLOCK", 0),
		MinBuyUSD:        e.amount("MIN_BUY_USD", defaultMinBuyUSD),
		BuyDayInterval:   e.duration("BUY_DAY_INTERVAL", DefaultBuyDayInterval),
		TestMode:         e.boolean("TEST_MODE_ENABLED"),
		SyncSchedule:     e.str("SYNC_SCHEDULE", DefaultSyncSchedule),
		SnapshotSchedule: e.str("SNAPSHOT_SCHEDULE", DefaultSnapshotSchedule),
		ExplorerAPIKey:   e.get("BSCSCAN_API_KEY"),
		ExplorerURL:      e.str("EXPLORER_API_URL", DefaultExplorerURL),
		ChainID:          int64(e.integer("CHAIN_ID", DefaultChainID)),
		RPCURL:           e.get("BSC_RPC_URL"),
		RPCLogChunk:      e.unsigned("RPC_LOG_CHUNK", DefaultRPCLogChunk),
		TokenDecimals:    e.integer("TOKEN_DECIMALS", DefaultTokenDecimals),
		MoralisAPIKey:    e.get("MORALIS_API_KEY"),
		MoralisURL:       e.str("MORALIS_API_URL", DefaultMoralisURL),
		MoralisChain:     e.str("MORALIS_CHAIN", DefaultMoralisChain),
		PriceTTL:         e.duration("PRICE_TTL", DefaultPriceTTL),
		FallbackPriceUSD: e.amount("FALLBACK_PRICE_USD", defaultFallbackPrice),
		PostgresDSN:      e.get("POSTGRES_DSN"),
		ClickhouseDSN:    e.get("CLICKHOUSE_DSN"),
		RedisAddr:        e.get("REDIS_ADDR"),
		RedisPassword:    e.get("REDIS_PASSWORD"),
		RedisDB:          e.integer("REDIS_DB", 0),
		CacheTTL:         e.duration("LEADERBOARD_CACHE_TTL", DefaultCacheTTL),
		HTTPAddr:         e.str("HTTP_ADDR", DefaultHTTPAddr),
		MetricsAddr:      e.str("METRICS_ADDR", DefaultMetricsAddr),
		LogLevel:         e.str("LOG_LEVEL", "info"),
		LogFormat:        e.str("LOG_FORMAT", "json"),
	}

	cfg.ContestStart = e.timestamp("CONTEST_START_TIMESTAMP")
	cfg.ContestEnd = e.timestamp("CONTEST_END_TIMESTAMP")

	if cfg.TestMode {
		cfg.BuyDayInterval = time.Duration(e.integer("TEST_BUY_DAY_INTERVAL_MINUTES", 3)) * time.Minute
		cfg.MinBuyUSD = e.amount("TEST_MIN_BUY_USD", decimal.NewFromInt(2))
		cfg.SyncSchedule = fmt.Sprintf("*/%d * * * *", e.integer("TEST_SYNC_INTERVAL_MINUTES", 3))
	}

	routers, err := loadRouters(cfg.RoutersFile, e.get("ROUTERS_FILE") != "")
	if err != nil {
		e.errs = append(e.errs, err)
	}
	for _, a := range strings.Split(e.get("ROUTER_ADDRESSES"), ",") {
		if a = strings.TrimSpace(a); a != "" {
			routers = append(routers, a)
		}
	}
	cfg.Routers = dedupe(routers)

	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that make the tracker meaningless when wrong.
func (c *Config) Validate() error {
	var errs []error

	if c.TokenContract == "" {
		errs = append(errs, errors.New("TOKEN_CONTRACT is required"))
	} else if !common.IsHexAddress(c.TokenContract) {
		errs = append(errs, fmt.Errorf("TOKEN_CONTRACT %q is not a hex address", c.TokenContract))
	}
	if len(c.Routers) == 0 {
		errs = append(errs, errors.New("router set is empty"))
	}
	for _, r := range c.Routers {
		if !common.IsHexAddress(r) {
			errs = append(errs, fmt.Errorf("router %q is not a hex address", r))
		}
	}
	if c.ContestStart.IsZero() || c.ContestEnd.IsZero() {
		errs = append(errs, errors.New("CONTEST_START_TIMESTAMP and CONTEST_END_TIMESTAMP are required"))
	} else if !c.ContestEnd.After(c.ContestStart) {
		errs = append(errs, errors.New("contest end must be after contest start"))
	}
	if c.MinBuyUSD.IsNegative() {
		errs = append(errs, errors.New("minimum buy must not be negative"))
	}
	if c.BuyDayInterval < time.Second {
		errs = append(errs, errors.New("buy-day interval must be at least one second"))
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 77 {
		errs = append(errs, fmt.Errorf("TOKEN_DECIMALS %d out of range", c.TokenDecimals))
	}

	return errors.Join(errs...)
}

// ContestWindow returns the contest range in Unix seconds.
func (c *Config) ContestWindow() domain.ContestWindow {
	return domain.ContestWindow{Start: c.ContestStart.Unix(), End: c.ContestEnd.Unix()}
}

func dedupe(addrs []string) []string {
	seen := make(map[string]struct{}, len(addrs))
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		key := strings.ToLower(a)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// env collects parse errors so that all bad variables are reported at once.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) boolean(key string) bool {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
	}
	return b
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) unsigned(key string, def uint64) uint64 {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) amount(key string, def decimal.Decimal) decimal.Decimal {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

// timestamp accepts RFC3339 or Unix seconds. Unset yields the zero time.
func (e *env) timestamp(key string) time.Time {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC()
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: want RFC3339 or unix seconds: %w", key, err))
		return time.Time{}
	}
	return t.UTC()
}

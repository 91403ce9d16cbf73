// Package config defines all configuration for the copy-trading engine.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// every scalar field overridable via WHALECOPY_* environment variables, and the
// handful of sensitive/required fields also readable from their own bare
// env var names for operational convenience (PRIVATE_KEY, FUNDER_ADDRESS,
// WSS_URL, ...).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	Wallet      WalletConfig      `mapstructure:"wallet"`
	Feed        FeedConfig        `mapstructure:"feed"`
	Trading     TradingConfig     `mapstructure:"trading"`
	Sizer       SizerConfig       `mapstructure:"sizer"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Resubmit    ResubmitConfig    `mapstructure:"resubmit"`
	Audit       AuditConfig       `mapstructure:"audit"`
	MarketCache MarketCacheConfig `mapstructure:"market_cache"`
	SportBuffer SportBufferConfig `mapstructure:"sport_buffer"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Health      HealthConfig      `mapstructure:"health"`
}

// WalletConfig holds the Ethereum wallet used for signing orders.
type WalletConfig struct {
	PrivateKey    string `mapstructure:"private_key"`
	FunderAddress string `mapstructure:"funder_address"`
	SignatureType int    `mapstructure:"signature_type"`
	ChainID       int    `mapstructure:"chain_id"`
}

// FeedConfig points at the upstream JSON-RPC WebSocket and the whale address
// being mirrored.
type FeedConfig struct {
	WSSURL             string `mapstructure:"wss_url"`
	TargetWhaleAddress string `mapstructure:"target_whale_address"`
	CLOBBaseURL        string `mapstructure:"clob_base_url"`
}

// TradingConfig governs whether the engine actually places orders and at
// what scale it mirrors the whale.
type TradingConfig struct {
	EnableTrading        bool    `mapstructure:"enable_trading"`
	MockTrading          bool    `mapstructure:"mock_trading"`
	ScalingRatio         float64 `mapstructure:"scaling_ratio"`
	MinWhaleSharesToCopy float64 `mapstructure:"min_whale_shares_to_copy"`
}

// TierConfig is one row of the static position-sizing table, ordered
// by descending MinShares; Load keeps the configured order, the sizer
// selects the first tier whose MinShares <= whale shares.
type TierConfig struct {
	MinShares      float64 `mapstructure:"min_shares"`
	PriceBuffer    float64 `mapstructure:"price_buffer"`
	SizeMultiplier float64 `mapstructure:"size_multiplier"`
	// Discipline is "immediate" or "deadline"; see types.OrderDiscipline.
	Discipline string `mapstructure:"discipline"`
}

// SizerConfig tunes the position sizer: the scaling ratio applied to
// every mirrored order and the tier table that governs price buffer, size
// multiplier, and order discipline by whale trade size.
type SizerConfig struct {
	Tiers []TierConfig `mapstructure:"tiers"`
}

// MarketCacheConfig tunes the TTL-bounded is_live lookup cache fronting the
// CLOB collaborator's FetchMarketIsLive.
type MarketCacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SportBufferConfig points at the optional sport-market buffer table; an
// empty Path means every lookup returns 0.
type SportBufferConfig struct {
	Path string `mapstructure:"path"`
}

// RiskConfig tunes the per-token circuit breaker.
type RiskConfig struct {
	LargeTradeShares   float64       `mapstructure:"large_trade_shares"`
	ConsecutiveTrigger int           `mapstructure:"consecutive_trigger"`
	SequenceWindowSecs time.Duration `mapstructure:"sequence_window_secs"`
	MinDepthBeyondUSD  float64       `mapstructure:"min_depth_beyond_usd"`
	TripDurationSecs   time.Duration `mapstructure:"trip_duration_secs"`
}

// ResubmitConfig tunes the retry chain's price escalation.
type ResubmitConfig struct {
	PriceIncrement  float64       `mapstructure:"price_increment"`
	CeilingFraction float64       `mapstructure:"ceiling_fraction"`
	PacingDelay     time.Duration `mapstructure:"pacing_delay"`
}

// AuditConfig points at the append-only CSV sink.
type AuditConfig struct {
	CSVPath string `mapstructure:"csv_path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HealthConfig controls the minimal liveness endpoint.
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Load reads config from a YAML file with environment overrides. All scalar
// fields are reachable as WHALECOPY_<SECTION>_<FIELD> (viper's AutomaticEnv with a
// "." -> "_" replacer); the sensitive/required fields are additionally
// readable from their bare env var name so operators don't need the
// WHALECOPY_ prefix for the variables they're told to set.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WHALECOPY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// A missing config file is fine — every field has a default or an env
	// override — but a present-and-malformed one is a startup failure.
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyBareEnvOverrides(&cfg)

	if len(cfg.Sizer.Tiers) == 0 {
		cfg.Sizer.Tiers = DefaultTiers()
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Viper's AutomaticEnv only resolves keys it already knows, so every
	// scalar field gets a default here, empty where there is no real one.
	v.SetDefault("wallet.private_key", "")
	v.SetDefault("wallet.funder_address", "")
	v.SetDefault("feed.wss_url", "")
	v.SetDefault("feed.target_whale_address", "")
	v.SetDefault("trading.enable_trading", false)
	v.SetDefault("trading.mock_trading", false)
	v.SetDefault("sport_buffer.path", "")
	v.SetDefault("wallet.chain_id", 137)
	v.SetDefault("wallet.signature_type", 0)
	v.SetDefault("feed.clob_base_url", "https://clob.polymarket.com")
	v.SetDefault("trading.scaling_ratio", 0.02)
	v.SetDefault("trading.min_whale_shares_to_copy", 10.0)
	v.SetDefault("risk.large_trade_shares", 2000.0)
	v.SetDefault("risk.consecutive_trigger", 5)
	v.SetDefault("risk.sequence_window_secs", 40*time.Second)
	v.SetDefault("risk.min_depth_beyond_usd", 200.0)
	v.SetDefault("risk.trip_duration_secs", 5*time.Hour)
	v.SetDefault("resubmit.price_increment", 0.01)
	v.SetDefault("resubmit.ceiling_fraction", 0.02)
	v.SetDefault("resubmit.pacing_delay", 50*time.Millisecond)
	v.SetDefault("audit.csv_path", "audit.csv")
	v.SetDefault("market_cache.ttl", 2*time.Second)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.addr", ":8090")
}

// DefaultTiers is the position-sizing table used when the config file
// carries no sizer.tiers section — the floor tier matches
// trading.min_whale_shares_to_copy, so a whale trade below the minimum
// falls through every tier and is rejected with "BELOW_MIN" rather than
// silently matching the floor.
func DefaultTiers() []TierConfig {
	return []TierConfig{
		{MinShares: 4000, PriceBuffer: 0.02, SizeMultiplier: 1.25, Discipline: "immediate"},
		{MinShares: 2000, PriceBuffer: 0.01, SizeMultiplier: 1.0, Discipline: "immediate"},
		{MinShares: 1000, PriceBuffer: 0.005, SizeMultiplier: 1.0, Discipline: "immediate"},
		{MinShares: 10, PriceBuffer: 0, SizeMultiplier: 1.0, Discipline: "immediate"},
	}
}

// applyBareEnvOverrides lets the unprefixed env var names win over both the
// config file and the WHALECOPY_-prefixed form, since those are the names
// operators are told to set.
func applyBareEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("FUNDER_ADDRESS"); v != "" {
		cfg.Wallet.FunderAddress = v
	}
	if v := os.Getenv("TARGET_WHALE_ADDRESS"); v != "" {
		cfg.Feed.TargetWhaleAddress = v
	}
	if v := os.Getenv("WSS_URL"); v != "" {
		cfg.Feed.WSSURL = v
	}
	if v := os.Getenv("ENABLE_TRADING"); v != "" {
		cfg.Trading.EnableTrading = v == "true" || v == "1"
	}
	if v := os.Getenv("MOCK_TRADING"); v != "" {
		cfg.Trading.MockTrading = v == "true" || v == "1"
	}
	if v := os.Getenv("SCALING_RATIO"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Trading.ScalingRatio = f
		}
	}
	if v := os.Getenv("MIN_WHALE_SHARES_TO_COPY"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Trading.MinWhaleSharesToCopy = f
		}
	}
	if v := os.Getenv("RESUBMIT_PRICE_INCREMENT"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Resubmit.PriceIncrement = f
		}
	}
	if v := os.Getenv("LARGE_TRADE_SHARES"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Risk.LargeTradeShares = f
		}
	}
	if v := os.Getenv("CONSECUTIVE_TRIGGER"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Risk.ConsecutiveTrigger = n
		}
	}
	if v := os.Getenv("SEQUENCE_WINDOW_SECS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Risk.SequenceWindowSecs = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("MIN_DEPTH_BEYOND_USD"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Risk.MinDepthBeyondUSD = f
		}
	}
	if v := os.Getenv("TRIP_DURATION_SECS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Risk.TripDurationSecs = time.Duration(n) * time.Second
		}
	}
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%g", &f)
	return f, err
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

// Validate checks all required fields and value ranges. A validation error
// is a startup failure: the process exits non-zero rather than running
// half-configured.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required (137 for mainnet)")
	}
	switch c.Wallet.SignatureType {
	case 0, 1, 2:
	default:
		return fmt.Errorf("wallet.signature_type must be one of: 0 (EOA), 1 (PROXY), 2 (GNOSIS_SAFE)")
	}
	if c.Wallet.SignatureType != 0 && c.Wallet.FunderAddress == "" {
		return fmt.Errorf("wallet.funder_address is required when wallet.signature_type is 1 or 2")
	}
	if c.Feed.TargetWhaleAddress == "" {
		return fmt.Errorf("feed.target_whale_address is required (set TARGET_WHALE_ADDRESS)")
	}
	if c.Feed.WSSURL == "" {
		return fmt.Errorf("feed.wss_url is required (set WSS_URL)")
	}
	if c.Feed.CLOBBaseURL == "" {
		return fmt.Errorf("feed.clob_base_url is required")
	}
	if c.Trading.ScalingRatio <= 0 {
		return fmt.Errorf("trading.scaling_ratio must be > 0")
	}
	if c.Risk.ConsecutiveTrigger <= 0 {
		return fmt.Errorf("risk.consecutive_trigger must be > 0")
	}
	if c.Risk.SequenceWindowSecs <= 0 {
		return fmt.Errorf("risk.sequence_window_secs must be > 0")
	}
	if c.Risk.TripDurationSecs <= 0 {
		return fmt.Errorf("risk.trip_duration_secs must be > 0")
	}
	for i := 1; i < len(c.Sizer.Tiers); i++ {
		if c.Sizer.Tiers[i].MinShares > c.Sizer.Tiers[i-1].MinShares {
			return fmt.Errorf("sizer.tiers must be ordered by descending min_shares")
		}
	}
	return nil
}

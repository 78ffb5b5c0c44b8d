// Package config loads the riskdesk YAML configuration and exchange credentials.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/riskdesk/internal/services/risk"
)

// Provider types.
const (
	ProviderPaper       = "paper"
	ProviderBinance     = "binance"
	ProviderBybit       = "bybit"
	ProviderHyperliquid = "hyperliquid"
)

// Defaults applied when a field is missing from the YAML file.
const (
	DefaultPaperFile       = "paper.yaml"
	DefaultQuote           = "USDT"
	DefaultMinValue        = "1"
	DefaultPollInterval    = 30 * time.Second
	DefaultSweepInterval   = 10 * time.Second
	DefaultTradeTTL        = 15 * time.Minute
	DefaultWALDir          = "wal"
	DefaultRetainedReports = 500
	DefaultHTTPAddr        = ":8080"
	DefaultCertCache       = "cert-cache"
)

// Config is the validated runtime configuration.
type Config struct {
	Provider        ProviderConfig
	PollInterval    time.Duration
	SweepInterval   time.Duration
	TradeTTL        time.Duration
	Limits          risk.Limits
	WALDir          string
	RetainedReports int
	HTTP            HTTPConfig
	Credentials     Credentials
}

// ProviderConfig selects and tunes the snapshot source.
type ProviderConfig struct {
	Type           string
	PaperFile      string
	Quote          string
	MinValue       decimal.Decimal
	Testnet        bool
	HyperliquidURL string
	AccountAddress string
}

// HTTPConfig controls the API server.
type HTTPConfig struct {
	Addr           string
	AutoTLSDomains []string
	CertCache      string
}

// Credentials exchange secrets. They are read from the environment only.
type Credentials struct {
	BinanceKey            string
	BinanceSecret         string
	BybitKey              string
	BybitSecret           string
	HyperliquidPrivateKey string
}

// TradesWALDir directory of the pending-trade log.
func (c Config) TradesWALDir() string { return filepath.Join(c.WALDir, "trades") }

// ReportsWALDir directory of the risk report log.
func (c Config) ReportsWALDir() string { return filepath.Join(c.WALDir, "risk") }

// BaselineDir directory of the equity baseline files.
func (c Config) BaselineDir() string { return filepath.Join(c.WALDir, "baseline") }

// ConfigTmp mirrors the YAML file. Numeric limits are strings so that they parse as exact decimals.
type ConfigTmp struct {
	Provider        ProviderTmp   `yaml:"provider"`
	PollInterval    time.Duration `yaml:"poll_interval,omitempty"`
	SweepInterval   time.Duration `yaml:"sweep_interval,omitempty"`
	TradeTTL        time.Duration `yaml:"trade_ttl,omitempty"`
	Risk            RiskTmp       `yaml:"risk,omitempty"`
	WALDir          string        `yaml:"wal_dir,omitempty"`
	RetainedReports int           `yaml:"retained_reports,omitempty"`
	HTTP            HTTPTmp       `yaml:"http,omitempty"`
}

// ProviderTmp raw provider section.
type ProviderTmp struct {
	Type           string `yaml:"type"`
	PaperFile      string `yaml:"paper_file,omitempty"`
	Quote          string `yaml:"quote,omitempty"`
	MinValue       string `yaml:"min_position_value,omitempty"`
	Testnet        bool   `yaml:"testnet,omitempty"`
	HyperliquidURL string `yaml:"hyperliquid_url,omitempty"`
	AccountAddress string `yaml:"account_address,omitempty"`
}

// RiskTmp raw risk limits section.
type RiskTmp struct {
	MaxDailyLossPct   string `yaml:"max_daily_loss_pct,omitempty"`
	MaxPositionPct    string `yaml:"max_position_pct,omitempty"`
	MaxPositions      int    `yaml:"max_positions,omitempty"`
	LossWarnRatio     string `yaml:"loss_warn_ratio,omitempty"`
	PositionWarnRatio string `yaml:"position_warn_ratio,omitempty"`
	ConcentrationPct  string `yaml:"concentration_pct,omitempty"`
}

// HTTPTmp raw http section.
type HTTPTmp struct {
	Addr           string   `yaml:"addr,omitempty"`
	AutoTLSDomains []string `yaml:"autotls_domains,omitempty"`
	CertCache      string   `yaml:"cert_cache,omitempty"`
}

// Load reads the YAML file at path, loads envFile into the environment when it exists
// and returns the validated configuration. An empty path yields the paper defaults.
func Load(path, envFile string) (Config, error) {
	if err := LoadEnv(envFile); err != nil {
		return Config{}, err
	}

	var tmp ConfigTmp
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &tmp); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}

	cfg, err := tmp.Build()
	if err != nil {
		return Config{}, err
	}
	cfg.Credentials = CredentialsFromEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnv loads envFile into the process environment. A missing file is not an error.
// Variables already set are not overridden.
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(envFile); err != nil {
		return errors.Wrapf(err, "load env file %s", envFile)
	}
	return nil
}

// CredentialsFromEnv reads exchange secrets from the environment.
func CredentialsFromEnv() Credentials {
	return Credentials{
		BinanceKey:            os.Getenv("BINANCE_API_KEY"),
		BinanceSecret:         os.Getenv("BINANCE_API_SECRET"),
		BybitKey:              os.Getenv("BYBIT_API_KEY"),
		BybitSecret:           os.Getenv("BYBIT_API_SECRET"),
		HyperliquidPrivateKey: os.Getenv("HYPERLIQUID_PRIVATE_KEY"),
	}
}

// Build applies defaults and converts raw values. Credentials are left empty.
func (c ConfigTmp) Build() (Config, error) {
	cfg := Config{
		Provider: ProviderConfig{
			Type:           strings.ToLower(strings.TrimSpace(c.Provider.Type)),
			PaperFile:      c.Provider.PaperFile,
			Quote:          strings.ToUpper(strings.TrimSpace(c.Provider.Quote)),
			Testnet:        c.Provider.Testnet,
			HyperliquidURL: c.Provider.HyperliquidURL,
			AccountAddress: c.Provider.AccountAddress,
		},
		PollInterval:    c.PollInterval,
		SweepInterval:   c.SweepInterval,
		TradeTTL:        c.TradeTTL,
		WALDir:          c.WALDir,
		RetainedReports: c.RetainedReports,
		HTTP: HTTPConfig{
			Addr:           c.HTTP.Addr,
			AutoTLSDomains: c.HTTP.AutoTLSDomains,
			CertCache:      c.HTTP.CertCache,
		},
	}

	if cfg.Provider.Type == "" {
		cfg.Provider.Type = ProviderPaper
	}
	if cfg.Provider.PaperFile == "" {
		cfg.Provider.PaperFile = DefaultPaperFile
	}
	if cfg.Provider.Quote == "" {
		cfg.Provider.Quote = DefaultQuote
	}
	minValue := c.Provider.MinValue
	if minValue == "" {
		minValue = DefaultMinValue
	}
	mv, err := decimal.NewFromString(minValue)
	if err != nil {
		return Config{}, errors.Wrapf(err, "incorrect 'min_position_value' param in yaml config: %s", minValue)
	}
	cfg.Provider.MinValue = mv

	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.TradeTTL == 0 {
		cfg.TradeTTL = DefaultTradeTTL
	}
	if cfg.WALDir == "" {
		cfg.WALDir = DefaultWALDir
	}
	if cfg.RetainedReports == 0 {
		cfg.RetainedReports = DefaultRetainedReports
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = DefaultHTTPAddr
	}
	if cfg.HTTP.CertCache == "" {
		cfg.HTTP.CertCache = DefaultCertCache
	}

	limits, err := c.Risk.limits()
	if err != nil {
		return Config{}, err
	}
	cfg.Limits = limits

	return cfg, nil
}

func (r RiskTmp) limits() (risk.Limits, error) {
	limits := risk.DefaultLimits()

	fields := []struct {
		name  string
		raw   string
		value *decimal.Decimal
	}{
		{"max_daily_loss_pct", r.MaxDailyLossPct, &limits.MaxDailyLossPct},
		{"max_position_pct", r.MaxPositionPct, &limits.MaxPositionPct},
		{"loss_warn_ratio", r.LossWarnRatio, &limits.LossWarnRatio},
		{"position_warn_ratio", r.PositionWarnRatio, &limits.PositionWarnRatio},
		{"concentration_pct", r.ConcentrationPct, &limits.ConcentrationPct},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return risk.Limits{}, errors.Wrapf(err, "incorrect '%s' param in yaml config (must be a decimal)", f.name)
		}
		*f.value = d
	}
	if r.MaxPositions != 0 {
		limits.MaxPositions = r.MaxPositions
	}

	return limits, nil
}

// Validate checks ranges and that the selected provider has what it needs.
func (c Config) Validate() error {
	switch c.Provider.Type {
	case ProviderPaper:
		if c.Provider.PaperFile == "" {
			return errors.New("paper provider requires 'paper_file'")
		}
	case ProviderBinance:
		if c.Credentials.BinanceKey == "" || c.Credentials.BinanceSecret == "" {
			return errors.New("BINANCE_API_KEY and BINANCE_API_SECRET environment variables must be set")
		}
	case ProviderBybit:
		if c.Credentials.BybitKey == "" || c.Credentials.BybitSecret == "" {
			return errors.New("BYBIT_API_KEY and BYBIT_API_SECRET environment variables must be set")
		}
	case ProviderHyperliquid:
		if c.Credentials.HyperliquidPrivateKey == "" {
			return errors.New("HYPERLIQUID_PRIVATE_KEY environment variable must be set")
		}
	default:
		return errors.Errorf("unsupported provider: %s", c.Provider.Type)
	}

	if c.Provider.MinValue.IsNegative() {
		return errors.Errorf("min_position_value must not be negative, got %s", c.Provider.MinValue)
	}
	if c.PollInterval < time.Second {
		return errors.Errorf("poll_interval must be at least 1s, got %s", c.PollInterval)
	}
	if c.SweepInterval < 0 {
		return errors.Errorf("sweep_interval must not be negative, got %s", c.SweepInterval)
	}
	if c.TradeTTL <= 0 {
		return errors.Errorf("trade_ttl must be positive, got %s", c.TradeTTL)
	}
	if c.RetainedReports < 1 {
		return errors.Errorf("retained_reports must be positive, got %d", c.RetainedReports)
	}
	if err := c.Limits.Validate(); err != nil {
		return errors.Wrap(err, "invalid risk section")
	}
	return nil
}

// Marshal renders raw config as YAML.
func (c ConfigTmp) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate yaml")
	}
	return data, nil
}

// Package config provides configuration management for the trading assistant.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/schrute_spreads/internal/spread"
	"github.com/eddiefleurent/schrute_spreads/internal/technical"
)

// Defaults for optional settings, applied by normalize when unset.
const (
	// defaultScanInterval is used when schedule.scan_interval is unset
	defaultScanInterval = "30m"
	// defaultHistoryDays is how many daily bars the technical builder is fed
	// when technical.history_days is unset
	defaultHistoryDays = 250
	// defaultAdvisorModel is used when advisor.model is unset
	defaultAdvisorModel = "claude-3-5-sonnet-latest"
	// defaultAdvisorMaxTokens is used when advisor.max_tokens is unset
	defaultAdvisorMaxTokens = 1024
	// defaultDashboardPort is used when dashboard.port is unset
	defaultDashboardPort = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment   EnvironmentConfig   `yaml:"environment"`
	Provider      ProviderConfig      `yaml:"provider"`
	Engine        EngineConfig        `yaml:"engine"`
	Technical     TechnicalConfig     `yaml:"technical"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Symbols       []string            `yaml:"symbols"`
	Storage       StorageConfig       `yaml:"storage"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Dashboard     DashboardConfig     `yaml:"dashboard"`
	Advisor       AdvisorConfig       `yaml:"advisor"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ProviderConfig defines market data provider settings.
type ProviderConfig struct {
	Name        string `yaml:"name"` // tradier | simulator
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"` // overrides the sandbox/production default
	AccountID   string `yaml:"account_id"`
	Sandbox     bool   `yaml:"sandbox"`
	SimSeed     int64  `yaml:"sim_seed"` // simulator determinism seed
}

// EngineConfig tunes the spread selection engine. Zero values fall back to
// the engine defaults.
type EngineConfig struct {
	Widths             []float64     `yaml:"widths"`
	ITMBandMin         float64       `yaml:"itm_band_min"`
	ITMBandMax         float64       `yaml:"itm_band_max"`
	MinOpenInterest    int64         `yaml:"min_open_interest"`
	MinReturnOnRiskPct float64       `yaml:"min_return_on_risk_pct"`
	MinCushionPct      float64       `yaml:"min_cushion_pct"`
	DefaultIV          float64       `yaml:"default_iv"`
	StrikeTolerance    float64       `yaml:"strike_tolerance"`
	ScoreWeights       WeightsConfig `yaml:"score_weights"`
	Budget             float64       `yaml:"budget"`        // dollars per spread, 0 disables
	BudgetStrict       bool          `yaml:"budget_strict"` // infeasible budget returns no primary
	CanonicalWindow    float64       `yaml:"canonical_window"`
}

// WeightsConfig defines the composite score weights.
type WeightsConfig struct {
	Cushion   float64 `yaml:"cushion"`
	Liquidity float64 `yaml:"liquidity"`
	BidAsk    float64 `yaml:"bid_ask"`
	Technical float64 `yaml:"technical"`
}

func (w WeightsConfig) sum() float64 {
	return w.Cushion + w.Liquidity + w.BidAsk + w.Technical
}

func (w WeightsConfig) isZero() bool {
	return w.Cushion == 0 && w.Liquidity == 0 && w.BidAsk == 0 && w.Technical == 0
}

// TechnicalConfig defines the technical context builder settings.
type TechnicalConfig struct {
	HistoryDays        int                `yaml:"history_days"`
	SwingWindow        int                `yaml:"swing_window"`
	FairValueOverrides map[string]float64 `yaml:"fair_value_overrides"`
}

// ScheduleConfig defines scan cadence and market hours.
type ScheduleConfig struct {
	ScanInterval   string `yaml:"scan_interval"`
	Timezone       string `yaml:"timezone"`     // e.g., "America/New_York"
	MarketOpen     string `yaml:"market_open"`  // "HH:MM"
	MarketClose    string `yaml:"market_close"` // "HH:MM"
	AfterHoursScan bool   `yaml:"after_hours_scan"`
}

// StorageConfig defines where positions and scan history live.
type StorageConfig struct {
	Backend string `yaml:"backend"` // json | sqlite | postgres
	Path    string `yaml:"path"`    // file path for json and sqlite backends
	DSN     string `yaml:"dsn"`     // connection string for the postgres backend
}

// NotificationsConfig defines webhook alerting.
type NotificationsConfig struct {
	WebhookURL string  `yaml:"webhook_url"`
	MinScore   float64 `yaml:"min_score"` // suppress scan alerts scoring below this
}

// Enabled reports whether a webhook is configured.
func (n *NotificationsConfig) Enabled() bool {
	return n.WebhookURL != ""
}

// DashboardConfig defines the web dashboard settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"` // empty disables request auth
}

// AdvisorConfig defines the chat advisor settings.
type AdvisorConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Load .env file if present (silently ignore if missing), then expand
	// ${VAR} references in the config body.
	_ = godotenv.Load()
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Validate config
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate normalizes defaults and checks that all configuration values are
// valid and consistent.
func (c *Config) Validate() error {
	c.normalize()

	// Environment validation
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	switch c.Environment.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	// Provider validation
	if c.Provider.Name != "tradier" && c.Provider.Name != "simulator" {
		return fmt.Errorf("provider.name must be 'tradier' or 'simulator'")
	}
	if c.Provider.Name == "tradier" && c.Provider.APIKey == "" {
		return fmt.Errorf("provider.api_key is required when provider.name is 'tradier'")
	}
	if c.Environment.Mode == "live" && c.Provider.Name != "tradier" {
		return fmt.Errorf("environment.mode 'live' requires provider.name 'tradier'")
	}

	// Symbols validation
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols must list at least one underlying")
	}
	for i, s := range c.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("symbols[%d] is empty", i)
		}
	}

	// Engine validation. The engine re-validates on construction; the checks
	// here exist to fail at load time with config-file field names.
	for _, w := range c.Engine.Widths {
		if w <= 0 {
			return fmt.Errorf("engine.widths entries must be positive, got %.2f", w)
		}
	}
	if c.Engine.ITMBandMin < 0 || c.Engine.ITMBandMax <= 0 || c.Engine.ITMBandMin >= c.Engine.ITMBandMax {
		return fmt.Errorf("engine itm band [%.3f, %.3f] must satisfy 0 <= min < max",
			c.Engine.ITMBandMin, c.Engine.ITMBandMax)
	}
	if c.Engine.MinOpenInterest < 0 {
		return fmt.Errorf("engine.min_open_interest must be >= 0")
	}
	if c.Engine.DefaultIV <= 0 {
		return fmt.Errorf("engine.default_iv must be > 0")
	}
	w := c.Engine.ScoreWeights
	if w.Cushion < 0 || w.Liquidity < 0 || w.BidAsk < 0 || w.Technical < 0 {
		return fmt.Errorf("engine.score_weights must be non-negative")
	}
	if diff := w.sum() - 1.0; diff > 1e-6 || diff < -1e-6 {
		return fmt.Errorf("engine.score_weights sum to %.4f, want 1.0", w.sum())
	}
	if c.Engine.Budget < 0 {
		return fmt.Errorf("engine.budget must be >= 0")
	}

	// Technical validation
	if c.Technical.HistoryDays <= 0 {
		return fmt.Errorf("technical.history_days must be > 0")
	}
	if c.Technical.SwingWindow <= 0 {
		return fmt.Errorf("technical.swing_window must be > 0")
	}
	for symbol, fv := range c.Technical.FairValueOverrides {
		if fv <= 0 {
			return fmt.Errorf("technical.fair_value_overrides[%s] must be > 0, got %.2f", symbol, fv)
		}
	}

	// Storage validation
	switch c.Storage.Backend {
	case "json", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be 'json', 'sqlite' or 'postgres'")
	}

	// Notifications validation
	if c.Notifications.MinScore < 0 || c.Notifications.MinScore > 100 {
		return fmt.Errorf("notifications.min_score must be between 0 and 100")
	}

	// Dashboard validation
	if c.Dashboard.Enabled && (c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535) {
		return fmt.Errorf("dashboard.port must be between 1 and 65535")
	}

	// Advisor validation
	if c.Advisor.MaxTokens <= 0 {
		return fmt.Errorf("advisor.max_tokens must be > 0")
	}

	// Schedule validation
	if _, err := time.ParseDuration(c.Schedule.ScanInterval); err != nil {
		return fmt.Errorf("schedule.scan_interval invalid: %w", err)
	}
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Fallback for minimal containers
		loc = time.FixedZone("ET", -5*60*60)
	}
	s, err1 := time.ParseInLocation("15:04", c.Schedule.MarketOpen, loc)
	e, err2 := time.ParseInLocation("15:04", c.Schedule.MarketClose, loc)
	if err1 != nil || err2 != nil || (s.Hour() > e.Hour() || (s.Hour() == e.Hour() && s.Minute() >= e.Minute())) {
		return fmt.Errorf("schedule market window invalid (open/close parse/order)")
	}

	return nil
}

// IsPaperTrading returns true if the assistant is configured for paper mode.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// GetScanInterval returns the configured scan interval duration.
func (c *Config) GetScanInterval() time.Duration {
	d, err := time.ParseDuration(c.Schedule.ScanInterval)
	if err != nil {
		return 30 * time.Minute // default
	}
	return d
}

// IsWithinMarketHours checks if the given time falls within configured
// market hours on a weekday.
func (c *Config) IsWithinMarketHours(now time.Time) bool {
	tz := c.Schedule.Timezone
	if tz == "" {
		tz = "America/New_York"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Try fallback to America/New_York
		if fallbackLoc, err2 := time.LoadLocation("America/New_York"); err2 == nil {
			loc = fallbackLoc
		} else {
			// Final fallback to DST-agnostic FixedZone
			loc = time.FixedZone("ET", -5*60*60)
		}
	}
	today := now.In(loc)

	// Only Monday-Friday sessions count
	if today.Weekday() == time.Saturday || today.Weekday() == time.Sunday {
		return false
	}

	openClock, err1 := time.ParseInLocation("15:04", c.Schedule.MarketOpen, loc)
	closeClock, err2 := time.ParseInLocation("15:04", c.Schedule.MarketClose, loc)
	if err1 != nil || err2 != nil {
		// Safe defaults if misconfigured
		openClock = time.Date(0, 1, 1, 9, 30, 0, 0, loc)
		closeClock = time.Date(0, 1, 1, 16, 0, 0, 0, loc)
	}
	open := time.Date(today.Year(), today.Month(), today.Day(),
		openClock.Hour(), openClock.Minute(), 0, 0, loc)
	closeAt := time.Date(today.Year(), today.Month(), today.Day(),
		closeClock.Hour(), closeClock.Minute(), 0, 0, loc)

	// Inclusive open, exclusive close
	return !today.Before(open) && today.Before(closeAt)
}

// ToEngine converts the engine section into the engine's own config type.
func (e *EngineConfig) ToEngine() spread.Config {
	return spread.Config{
		Widths:             append([]float64(nil), e.Widths...),
		ITMBandMin:         e.ITMBandMin,
		ITMBandMax:         e.ITMBandMax,
		MinOpenInterest:    e.MinOpenInterest,
		MinReturnOnRiskPct: e.MinReturnOnRiskPct,
		MinCushionPct:      e.MinCushionPct,
		DefaultIV:          e.DefaultIV,
		StrikeTolerance:    e.StrikeTolerance,
		ScoreWeights: spread.Weights{
			Cushion:   e.ScoreWeights.Cushion,
			Liquidity: e.ScoreWeights.Liquidity,
			BidAsk:    e.ScoreWeights.BidAsk,
			Technical: e.ScoreWeights.Technical,
		},
		MaxDebit:        e.Budget,
		BudgetStrict:    e.BudgetStrict,
		CanonicalWindow: e.CanonicalWindow,
	}
}

// ToBuilder converts the technical section into the builder's config type.
func (t *TechnicalConfig) ToBuilder() technical.Config {
	cfg := technical.DefaultConfig()
	cfg.SwingWindow = t.SwingWindow
	if len(t.FairValueOverrides) > 0 {
		cfg.FairValueOverrides = t.FairValueOverrides
	}
	return cfg
}

// normalize sets default values for unset optional fields.
func (c *Config) normalize() {
	if c.Provider.Name == "" {
		if c.Environment.Mode == "live" {
			c.Provider.Name = "tradier"
		} else {
			c.Provider.Name = "simulator"
		}
	}

	def := spread.DefaultConfig()
	if len(c.Engine.Widths) == 0 {
		c.Engine.Widths = def.Widths
	}
	if c.Engine.ITMBandMin == 0 && c.Engine.ITMBandMax == 0 {
		c.Engine.ITMBandMin = def.ITMBandMin
		c.Engine.ITMBandMax = def.ITMBandMax
	}
	if c.Engine.MinOpenInterest == 0 {
		c.Engine.MinOpenInterest = def.MinOpenInterest
	}
	if c.Engine.MinReturnOnRiskPct == 0 {
		c.Engine.MinReturnOnRiskPct = def.MinReturnOnRiskPct
	}
	if c.Engine.MinCushionPct == 0 {
		c.Engine.MinCushionPct = def.MinCushionPct
	}
	if c.Engine.DefaultIV == 0 {
		c.Engine.DefaultIV = def.DefaultIV
	}
	if c.Engine.StrikeTolerance == 0 {
		c.Engine.StrikeTolerance = def.StrikeTolerance
	}
	if c.Engine.CanonicalWindow == 0 {
		c.Engine.CanonicalWindow = def.CanonicalWindow
	}
	if c.Engine.ScoreWeights.isZero() {
		c.Engine.ScoreWeights = WeightsConfig{
			Cushion:   def.ScoreWeights.Cushion,
			Liquidity: def.ScoreWeights.Liquidity,
			BidAsk:    def.ScoreWeights.BidAsk,
			Technical: def.ScoreWeights.Technical,
		}
	}

	if c.Technical.HistoryDays == 0 {
		c.Technical.HistoryDays = defaultHistoryDays
	}
	if c.Technical.SwingWindow == 0 {
		c.Technical.SwingWindow = technical.DefaultConfig().SwingWindow
	}

	if c.Schedule.ScanInterval == "" {
		c.Schedule.ScanInterval = defaultScanInterval
	}
	if c.Schedule.MarketOpen == "" {
		c.Schedule.MarketOpen = "09:30"
	}
	if c.Schedule.MarketClose == "" {
		c.Schedule.MarketClose = "16:00"
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "json"
	}
	if c.Storage.Path == "" {
		switch c.Storage.Backend {
		case "json":
			c.Storage.Path = "positions.json"
		case "sqlite":
			c.Storage.Path = "positions.db"
		}
	}

	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}

	if c.Advisor.Model == "" {
		c.Advisor.Model = defaultAdvisorModel
	}
	if c.Advisor.MaxTokens == 0 {
		c.Advisor.MaxTokens = defaultAdvisorMaxTokens
	}
}

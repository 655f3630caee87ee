package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data      DataConfig      `yaml:"data" mapstructure:"data"`
	Combo     ComboConfig     `yaml:"combo" mapstructure:"combo"`
	Forecast  ForecastConfig  `yaml:"forecast" mapstructure:"forecast"`
	Staffing  StaffingConfig  `yaml:"staffing" mapstructure:"staffing"`
	Expansion ExpansionConfig `yaml:"expansion" mapstructure:"expansion"`
	Growth    GrowthConfig    `yaml:"growth" mapstructure:"growth"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DataConfig selects the table source a snapshot is loaded from.
type DataConfig struct {
	Source         string `yaml:"source" mapstructure:"source"` // csv, xlsx, sqlite, postgres, demo
	Dir            string `yaml:"dir" mapstructure:"dir"`
	XLSXPath       string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	SQLiteDSN      string `yaml:"sqlite_dsn" mapstructure:"sqlite_dsn"`
	PostgresURL    string `yaml:"postgres_url" mapstructure:"postgres_url"`
	PostgresSchema string `yaml:"postgres_schema" mapstructure:"postgres_schema"`
	DemoSeed       uint64 `yaml:"demo_seed" mapstructure:"demo_seed"`

	// Failed source loads are retried with exponential backoff.
	LoadAttempts int           `yaml:"load_attempts" mapstructure:"load_attempts"`
	LoadBackoff  time.Duration `yaml:"load_backoff" mapstructure:"load_backoff"`
}

// ComboConfig configures basket mining defaults.
type ComboConfig struct {
	MinSupport         float64  `yaml:"min_support" mapstructure:"min_support"`
	MinConfidence      float64  `yaml:"min_confidence" mapstructure:"min_confidence"`
	MinLift            float64  `yaml:"min_lift" mapstructure:"min_lift"`
	TopK               int      `yaml:"top_k" mapstructure:"top_k"`
	IncludeModifiers   bool     `yaml:"include_modifiers" mapstructure:"include_modifiers"`
	DiscountPct        float64  `yaml:"discount_pct" mapstructure:"discount_pct"`
	ModifierCategories []string `yaml:"modifier_categories" mapstructure:"modifier_categories"`
	NonProductItems    []string `yaml:"non_product_items" mapstructure:"non_product_items"`
}

// EnsembleWeights weighs the three component forecasts. They are normalized
// before use.
type EnsembleWeights struct {
	Naive float64 `yaml:"naive" mapstructure:"naive"`
	WMA   float64 `yaml:"wma" mapstructure:"wma"`
	Trend float64 `yaml:"trend" mapstructure:"trend"`
}

// ForecastConfig configures the demand forecast.
type ForecastConfig struct {
	HorizonMonths      int             `yaml:"horizon_months" mapstructure:"horizon_months"`
	WMAWeights         []float64       `yaml:"wma_weights" mapstructure:"wma_weights"` // most recent first
	EnsembleWeights    EnsembleWeights `yaml:"ensemble_weights" mapstructure:"ensemble_weights"`
	StableBand         float64         `yaml:"stable_band" mapstructure:"stable_band"`
	AnomalySigma       float64         `yaml:"anomaly_sigma" mapstructure:"anomaly_sigma"`
	AnomalyMinTrailing int             `yaml:"anomaly_min_trailing" mapstructure:"anomaly_min_trailing"`
	IncompleteRatio    float64         `yaml:"incomplete_ratio" mapstructure:"incomplete_ratio"`
	MinDemandFactor    float64         `yaml:"min_demand_factor" mapstructure:"min_demand_factor"`
	MaxDemandFactor    float64         `yaml:"max_demand_factor" mapstructure:"max_demand_factor"`
}

// StaffingConfig configures headcount scenarios.
type StaffingConfig struct {
	DefaultShift string  `yaml:"default_shift" mapstructure:"default_shift"`
	LowRatio     float64 `yaml:"low_ratio" mapstructure:"low_ratio"`
	HighRatio    float64 `yaml:"high_ratio" mapstructure:"high_ratio"`
	HighDays     int     `yaml:"high_days" mapstructure:"high_days"`
	MediumDays   int     `yaml:"medium_days" mapstructure:"medium_days"`
}

// ExpansionWeights weighs the six scorecard dimensions. Weights sum to 1.
type ExpansionWeights struct {
	DemandTrend        float64 `yaml:"demand_trend" mapstructure:"demand_trend"`
	AvgTicket          float64 `yaml:"avg_ticket" mapstructure:"avg_ticket"`
	RepeatCustomer     float64 `yaml:"repeat_customer" mapstructure:"repeat_customer"`
	BeverageAttachment float64 `yaml:"beverage_attachment" mapstructure:"beverage_attachment"`
	ChannelMix         float64 `yaml:"channel_mix" mapstructure:"channel_mix"`
	ProductMix         float64 `yaml:"product_mix" mapstructure:"product_mix"`
}

// Sum returns the sum of all dimension weights.
func (w ExpansionWeights) Sum() float64 {
	return w.DemandTrend + w.AvgTicket + w.RepeatCustomer +
		w.BeverageAttachment + w.ChannelMix + w.ProductMix
}

// ExpansionConfig configures the expansion scorecard.
type ExpansionConfig struct {
	Weights            ExpansionWeights `yaml:"weights" mapstructure:"weights"`
	GoThreshold        float64          `yaml:"go_threshold" mapstructure:"go_threshold"`
	NoGoThreshold      float64          `yaml:"nogo_threshold" mapstructure:"nogo_threshold"`
	TopCandidates      int              `yaml:"top_candidates" mapstructure:"top_candidates"`
	CandidatesFile     string           `yaml:"candidates_file" mapstructure:"candidates_file"`
	BeverageCategories []string         `yaml:"beverage_categories" mapstructure:"beverage_categories"`
	MinHistoryMonths   int              `yaml:"min_history_months" mapstructure:"min_history_months"`
}

// GrowthConfig configures the beverage growth analysis.
type GrowthConfig struct {
	HeroCount          int      `yaml:"hero_count" mapstructure:"hero_count"`
	UnderperformerGap  float64  `yaml:"underperformer_gap" mapstructure:"underperformer_gap"`
	MinBestQty         float64  `yaml:"min_best_qty" mapstructure:"min_best_qty"`
	MaxUnderperformers int      `yaml:"max_underperformers" mapstructure:"max_underperformers"`
	BundleCount        int      `yaml:"bundle_count" mapstructure:"bundle_count"`
	MaxActions         int      `yaml:"max_actions" mapstructure:"max_actions"`
	CoffeeKeywords     []string `yaml:"coffee_keywords" mapstructure:"coffee_keywords"`
	MilkshakeKeywords  []string `yaml:"milkshake_keywords" mapstructure:"milkshake_keywords"`
	FrappeKeywords     []string `yaml:"frappe_keywords" mapstructure:"frappe_keywords"`
	DessertKeywords    []string `yaml:"dessert_keywords" mapstructure:"dessert_keywords"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	RateLimit   float64  `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	Burst       int      `yaml:"burst" mapstructure:"burst"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	Concurrency int      `yaml:"concurrency" mapstructure:"concurrency"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("INSIGHTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Defaults returns the configuration produced by Load with no file and no
// environment overrides.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.source", "csv")
	v.SetDefault("data.dir", "data/processed")
	v.SetDefault("data.postgres_schema", "public")
	v.SetDefault("data.demo_seed", 42)
	v.SetDefault("data.load_attempts", 3)
	v.SetDefault("data.load_backoff", "500ms")

	v.SetDefault("combo.min_support", 0.05)
	v.SetDefault("combo.min_confidence", 0.2)
	v.SetDefault("combo.min_lift", 1.0)
	v.SetDefault("combo.top_k", 5)
	v.SetDefault("combo.include_modifiers", false)
	v.SetDefault("combo.discount_pct", 0.12)
	v.SetDefault("combo.modifier_categories", []string{"modifier", "modifiers", "add-on", "add-ons", "extras"})
	v.SetDefault("combo.non_product_items", []string{"DELIVERY CHARGE"})

	v.SetDefault("forecast.horizon_months", 3)
	v.SetDefault("forecast.wma_weights", []float64{0.5, 0.3, 0.2})
	v.SetDefault("forecast.ensemble_weights.naive", 1.0/3)
	v.SetDefault("forecast.ensemble_weights.wma", 1.0/3)
	v.SetDefault("forecast.ensemble_weights.trend", 1.0/3)
	v.SetDefault("forecast.stable_band", 0.05)
	v.SetDefault("forecast.anomaly_sigma", 2.0)
	v.SetDefault("forecast.anomaly_min_trailing", 3)
	v.SetDefault("forecast.incomplete_ratio", 0.15)
	v.SetDefault("forecast.min_demand_factor", 0.5)
	v.SetDefault("forecast.max_demand_factor", 2.0)

	v.SetDefault("staffing.default_shift", "morning")
	v.SetDefault("staffing.low_ratio", 0.8)
	v.SetDefault("staffing.high_ratio", 1.2)
	v.SetDefault("staffing.high_days", 20)
	v.SetDefault("staffing.medium_days", 8)

	v.SetDefault("expansion.weights.demand_trend", 0.25)
	v.SetDefault("expansion.weights.avg_ticket", 0.15)
	v.SetDefault("expansion.weights.repeat_customer", 0.15)
	v.SetDefault("expansion.weights.beverage_attachment", 0.15)
	v.SetDefault("expansion.weights.channel_mix", 0.15)
	v.SetDefault("expansion.weights.product_mix", 0.15)
	v.SetDefault("expansion.go_threshold", 65.0)
	v.SetDefault("expansion.nogo_threshold", 45.0)
	v.SetDefault("expansion.top_candidates", 10)
	v.SetDefault("expansion.beverage_categories", []string{"coffee", "frappe", "shake", "drinks", "bev"})
	v.SetDefault("expansion.min_history_months", 6)

	v.SetDefault("growth.hero_count", 3)
	v.SetDefault("growth.underperformer_gap", 0.40)
	v.SetDefault("growth.min_best_qty", 3.0)
	v.SetDefault("growth.max_underperformers", 5)
	v.SetDefault("growth.bundle_count", 5)
	v.SetDefault("growth.max_actions", 8)
	v.SetDefault("growth.coffee_keywords", []string{"coffee", "espresso", "latte", "cappuccino", "americano", "mocha", "macchiato", "flat white"})
	v.SetDefault("growth.milkshake_keywords", []string{"shake"})
	v.SetDefault("growth.frappe_keywords", []string{"frappe", "frappé", "frap"})
	v.SetDefault("growth.dessert_keywords", []string{"dessert", "chimney", "conut", "mini", "bowl", "bites", "ice cream", "tiramisu", "cake", "waffle"})

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.burst", 40)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.concurrency", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	var errs []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Sprintf(format, args...))
		}
	}

	switch c.Data.Source {
	case "csv", "xlsx", "sqlite", "postgres", "demo":
	default:
		errs = append(errs, fmt.Sprintf("data.source %q must be csv, xlsx, sqlite, postgres or demo", c.Data.Source))
	}

	check(c.Data.LoadAttempts >= 1, "data.load_attempts must be >= 1")
	check(c.Data.LoadBackoff >= 0, "data.load_backoff must be >= 0")

	check(c.Combo.MinSupport >= 0 && c.Combo.MinSupport <= 1, "combo.min_support must be between 0 and 1")
	check(c.Combo.MinConfidence >= 0 && c.Combo.MinConfidence <= 1, "combo.min_confidence must be between 0 and 1")
	check(c.Combo.MinLift >= 0, "combo.min_lift must be >= 0")
	check(c.Combo.TopK >= 1 && c.Combo.TopK <= 20, "combo.top_k must be between 1 and 20")
	check(c.Combo.DiscountPct >= 0 && c.Combo.DiscountPct < 1, "combo.discount_pct must be in [0, 1)")

	check(c.Forecast.HorizonMonths >= 1 && c.Forecast.HorizonMonths <= 12, "forecast.horizon_months must be between 1 and 12")
	check(len(c.Forecast.WMAWeights) >= 1 && len(c.Forecast.WMAWeights) <= 6, "forecast.wma_weights must hold 1 to 6 weights")
	for _, w := range c.Forecast.WMAWeights {
		check(w > 0, "forecast.wma_weights must be positive")
	}
	ew := c.Forecast.EnsembleWeights
	check(ew.Naive >= 0 && ew.WMA >= 0 && ew.Trend >= 0 && ew.Naive+ew.WMA+ew.Trend > 0,
		"forecast.ensemble_weights must be non-negative with a positive sum")
	check(c.Forecast.StableBand > 0, "forecast.stable_band must be > 0")
	check(c.Forecast.AnomalySigma > 0, "forecast.anomaly_sigma must be > 0")
	check(c.Forecast.MinDemandFactor > 0 && c.Forecast.MaxDemandFactor >= c.Forecast.MinDemandFactor,
		"forecast demand factor bounds must satisfy 0 < min <= max")

	check(c.Staffing.LowRatio > 0 && c.Staffing.LowRatio <= 1, "staffing.low_ratio must be in (0, 1]")
	check(c.Staffing.HighRatio >= 1, "staffing.high_ratio must be >= 1")

	w := c.Expansion.Weights
	for name, v := range map[string]float64{
		"demand_trend":        w.DemandTrend,
		"avg_ticket":          w.AvgTicket,
		"repeat_customer":     w.RepeatCustomer,
		"beverage_attachment": w.BeverageAttachment,
		"channel_mix":         w.ChannelMix,
		"product_mix":         w.ProductMix,
	} {
		check(v >= 0, "expansion.weights.%s must be >= 0", name)
	}
	check(math.Abs(w.Sum()-1) <= 0.01, "expansion weights should sum to 1, got %.3f", w.Sum())
	check(c.Expansion.NoGoThreshold <= c.Expansion.GoThreshold, "expansion.nogo_threshold must be <= go_threshold")
	check(c.Expansion.GoThreshold >= 0 && c.Expansion.GoThreshold <= 100, "expansion.go_threshold must be between 0 and 100")
	check(c.Expansion.MinHistoryMonths >= 1, "expansion.min_history_months must be >= 1")
	check(c.Expansion.TopCandidates >= 1 && c.Expansion.TopCandidates <= 20, "expansion.top_candidates must be between 1 and 20")

	check(c.Growth.HeroCount >= 1, "growth.hero_count must be >= 1")
	check(c.Growth.UnderperformerGap > 0 && c.Growth.UnderperformerGap <= 1, "growth.underperformer_gap must be in (0, 1]")
	check(c.Growth.BundleCount >= 1, "growth.bundle_count must be >= 1")
	check(c.Growth.MaxActions >= 1, "growth.max_actions must be >= 1")

	check(c.Server.Port > 0, "server.port must be > 0")
	check(c.Server.Concurrency >= 1, "server.concurrency must be >= 1")

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

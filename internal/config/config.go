package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Data       DataConfig       `yaml:"data" mapstructure:"data"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts" mapstructure:"artifacts"`
	Forecast   ForecastConfig   `yaml:"forecast" mapstructure:"forecast"`
	Training   TrainingConfig   `yaml:"training" mapstructure:"training"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DataConfig locates the transactions spreadsheet.
type DataConfig struct {
	// Transactions is a local path or an http(s) URL.
	Transactions string `yaml:"transactions" mapstructure:"transactions"`
	SheetName    string `yaml:"sheet_name" mapstructure:"sheet_name"`
	SheetIndex   int    `yaml:"sheet_index" mapstructure:"sheet_index"`
	Charset      string `yaml:"charset" mapstructure:"charset"` // CSV exports only
	CacheDir     string `yaml:"cache_dir" mapstructure:"cache_dir"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
}

// ArtifactsConfig holds the paths of the pre-trained artifacts.
type ArtifactsConfig struct {
	Rules         string `yaml:"rules" mapstructure:"rules"`
	SalesModel    string `yaml:"sales_model" mapstructure:"sales_model"`
	ForecastModel string `yaml:"forecast_model" mapstructure:"forecast_model"`
}

// ForecastConfig configures the forecast renderer.
type ForecastConfig struct {
	P            int     `yaml:"p" mapstructure:"p"`
	D            int     `yaml:"d" mapstructure:"d"`
	Q            int     `yaml:"q" mapstructure:"q"`
	Steps        int     `yaml:"steps" mapstructure:"steps"`
	TopN         int     `yaml:"top_n" mapstructure:"top_n"`
	OutputDir    string  `yaml:"output_dir" mapstructure:"output_dir"`
	WidthInches  float64 `yaml:"width_inches" mapstructure:"width_inches"`
	HeightInches float64 `yaml:"height_inches" mapstructure:"height_inches"`
}

// Order returns the ARIMA (p, d, q) triple.
func (f ForecastConfig) Order() [3]int {
	return [3]int{f.P, f.D, f.Q}
}

// TrainingConfig configures the offline training commands.
type TrainingConfig struct {
	MinSupport float64 `yaml:"min_support" mapstructure:"min_support"`
	MinLift    float64 `yaml:"min_lift" mapstructure:"min_lift"`
	MaxItemset int     `yaml:"max_itemset" mapstructure:"max_itemset"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min" mapstructure:"rate_limit_per_min"`
}

// StoreConfig configures the optional history store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres, none
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MonitoringConfig configures the background history checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml (if present) and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. Unlike the default
// ./config.yaml, a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("RETAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("data.transactions", "Online_Retail.xlsx")
	v.SetDefault("data.sheet_index", 0)
	v.SetDefault("data.charset", "utf-8")
	v.SetDefault("data.cache_dir", "data")
	v.SetDefault("data.user_agent", "retail-insights/1.0")
	v.SetDefault("artifacts.rules", "recommender_model.csv")
	v.SetDefault("artifacts.sales_model", "sales_model.json")
	v.SetDefault("artifacts.forecast_model", "sales_forecast_model.json")
	v.SetDefault("forecast.p", 5)
	v.SetDefault("forecast.d", 1)
	v.SetDefault("forecast.q", 0)
	v.SetDefault("forecast.steps", 30)
	v.SetDefault("forecast.top_n", 10)
	v.SetDefault("forecast.output_dir", "static")
	v.SetDefault("forecast.width_inches", 14)
	v.SetDefault("forecast.height_inches", 7)
	v.SetDefault("training.min_support", 0.05)
	v.SetDefault("training.min_lift", 1.0)
	v.SetDefault("training.max_itemset", 4)
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.rate_limit_per_min", 120)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "file:retail.db")
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that would otherwise fail deep inside a command.
func (c *Config) Validate() error {
	if c.Forecast.P < 0 || c.Forecast.D < 0 || c.Forecast.Q < 0 {
		return eris.Errorf("config: forecast order (%d,%d,%d) must be non-negative", c.Forecast.P, c.Forecast.D, c.Forecast.Q)
	}
	if c.Forecast.Steps <= 0 {
		return eris.Errorf("config: forecast.steps must be positive, got %d", c.Forecast.Steps)
	}
	if c.Forecast.TopN <= 0 {
		return eris.Errorf("config: forecast.top_n must be positive, got %d", c.Forecast.TopN)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres", "none", "":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
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

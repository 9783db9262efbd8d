package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/resellkit/pricescope/internal/source"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Amazon     AmazonConfig     `yaml:"amazon" mapstructure:"amazon"`
	Rakuten    RakutenConfig    `yaml:"rakuten" mapstructure:"rakuten"`
	Yahoo      YahooConfig      `yaml:"yahoo" mapstructure:"yahoo"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Compare    CompareConfig    `yaml:"compare" mapstructure:"compare"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Monitor    MonitorConfig    `yaml:"monitor" mapstructure:"monitor"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the sqlite database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// AmazonConfig holds PA-API credentials for Amazon.co.jp.
type AmazonConfig struct {
	AccessKey  string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey  string `yaml:"secret_key" mapstructure:"secret_key"`
	PartnerTag string `yaml:"partner_tag" mapstructure:"partner_tag"`
	Endpoint   string `yaml:"endpoint" mapstructure:"endpoint"`
	SiteURL    string `yaml:"site_url" mapstructure:"site_url"`
	Region     string `yaml:"region" mapstructure:"region"`
}

// RakutenConfig holds Ichiba API credentials.
type RakutenConfig struct {
	ApplicationID string `yaml:"application_id" mapstructure:"application_id"`
	AffiliateID   string `yaml:"affiliate_id" mapstructure:"affiliate_id"`
	Endpoint      string `yaml:"endpoint" mapstructure:"endpoint"`
}

// YahooConfig holds Yahoo! Shopping API credentials.
type YahooConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	SiteURL  string `yaml:"site_url" mapstructure:"site_url"`
}

// PerplexityConfig holds Perplexity API settings for JAN resolution.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings for keyword expansion.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// CompareConfig tunes the aggregation engine.
type CompareConfig struct {
	// Threshold is the allowed fraction above the cheapest quote; 0.9
	// keeps quotes up to 190% of the cheapest price.
	Threshold float64            `yaml:"threshold" mapstructure:"threshold"`
	BaseFloor int                `yaml:"base_floor" mapstructure:"base_floor"`
	Floors    []source.FloorRule `yaml:"floors" mapstructure:"floors"`
	BatchSize int                `yaml:"batch_size" mapstructure:"batch_size"`
}

// CacheConfig locates the on-disk caches.
type CacheConfig struct {
	Dir               string `yaml:"dir" mapstructure:"dir"`
	SearchTTLHours    int    `yaml:"search_ttl_hours" mapstructure:"search_ttl_hours"`
	IdentifierTTLDays int    `yaml:"identifier_ttl_days" mapstructure:"identifier_ttl_days"`
}

// MonitorConfig configures the stock monitor.
type MonitorConfig struct {
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("PRICESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Credential keys get empty defaults so AutomaticEnv can
	// populate them through Unmarshal.
	v.SetDefault("amazon.access_key", "")
	v.SetDefault("amazon.secret_key", "")
	v.SetDefault("amazon.partner_tag", "")
	v.SetDefault("amazon.endpoint", "")
	v.SetDefault("amazon.site_url", "")
	v.SetDefault("amazon.region", "")
	v.SetDefault("rakuten.application_id", "")
	v.SetDefault("rakuten.affiliate_id", "")
	v.SetDefault("rakuten.endpoint", "")
	v.SetDefault("yahoo.client_id", "")
	v.SetDefault("yahoo.endpoint", "")
	v.SetDefault("yahoo.site_url", "")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("store.path", "pricescope.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("compare.threshold", 0.9)
	v.SetDefault("compare.base_floor", source.DefaultBaseFloor)
	v.SetDefault("compare.batch_size", 20)
	v.SetDefault("cache.dir", ".pricescope-cache")
	v.SetDefault("cache.search_ttl_hours", 24)
	v.SetDefault("cache.identifier_ttl_days", 7)
	v.SetDefault("monitor.schedule", "*/30 * * * *")

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
	if len(cfg.Compare.Floors) == 0 {
		cfg.Compare.Floors = source.DefaultFloorRules()
	}

	return &cfg, nil
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

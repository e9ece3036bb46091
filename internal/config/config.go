package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither --config nor CONFIG_PATH is set.
const DefaultPath = "config.yaml"

// Engine drivers.
const (
	DriverGotenberg = "gotenberg"
	DriverChromium  = "chromium"
)

// PageConfig describes paper size and margins in inches.
type PageConfig struct {
	PaperWidth   float64 `yaml:"paper_width"`
	PaperHeight  float64 `yaml:"paper_height"`
	MarginTop    float64 `yaml:"margin_top"`
	MarginBottom float64 `yaml:"margin_bottom"`
	MarginLeft   float64 `yaml:"margin_left"`
	MarginRight  float64 `yaml:"margin_right"`
}

// PostgresConfig locates the API token table.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Config holds every setting of the gateway.
type Config struct {
	Server struct {
		Host        string `yaml:"host"`
		Port        string `yaml:"port"`
		Prefork     bool   `yaml:"prefork"`
		BodyLimitMB int    `yaml:"body_limit_mb"`
	} `yaml:"server"`

	Limits struct {
		MaxUploadBytes int `yaml:"max_upload_bytes"`
		MaxPDFBytes    int `yaml:"max_pdf_bytes"`
		MaxMergeFiles  int `yaml:"max_merge_files"`
	} `yaml:"limits"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
	} `yaml:"cache"`

	Auth struct {
		Enabled             bool           `yaml:"enabled"`
		TokenReloadInterval time.Duration  `yaml:"token_reload_interval"`
		Postgres            PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
		UserLimit         int           `yaml:"user_limit"`
	} `yaml:"rate_limiter"`

	Engine struct {
		Driver          string        `yaml:"driver"`
		BaseURL         string        `yaml:"base_url"`
		Timeout         time.Duration `yaml:"timeout"`
		Username        string        `yaml:"username"`
		Password        string        `yaml:"password"`
		ChromePath      string        `yaml:"chrome_path"`
		ChromeNoSandbox bool          `yaml:"chrome_no_sandbox"`
	} `yaml:"engine"`

	Templates struct {
		Dir    string     `yaml:"dir"`
		Index  string     `yaml:"index"`
		Assets []string   `yaml:"assets"`
		Page   PageConfig `yaml:"page"`
	} `yaml:"templates"`

	Staging struct {
		Dir           string        `yaml:"dir"`
		MaxAge        time.Duration `yaml:"max_age"`
		SweepSchedule string        `yaml:"sweep_schedule"`
	} `yaml:"staging"`

	Archive struct {
		Enabled   bool   `yaml:"enabled"`
		Bucket    string `yaml:"bucket"`
		Region    string `yaml:"region"`
		Endpoint  string `yaml:"endpoint"`
		Prefix    string `yaml:"prefix"`
		PathStyle bool   `yaml:"path_style"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"archive"`
}

// Load reads the config from CONFIG_PATH or DefaultPath.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	return LoadFrom(path)
}

// LoadFrom reads, defaults and validates the config at path. It panics on a
// missing file or invalid values; the process cannot run without a config.
func LoadFrom(path string) Config {
	raw, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("cannot read config %q: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("cannot parse config %q: %v", path, err))
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		panic(err.Error())
	}
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ENGINE_URL"); v != "" {
		cfg.Engine.BaseURL = v
	}
	// Common container env var for the chromium driver.
	if cfg.Engine.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.Engine.ChromePath = v
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Server.BodyLimitMB <= 0 {
		cfg.Server.BodyLimitMB = 32
	}
	if cfg.Limits.MaxUploadBytes <= 0 {
		cfg.Limits.MaxUploadBytes = 16 * 1024 * 1024
	}
	if cfg.Limits.MaxPDFBytes <= 0 {
		cfg.Limits.MaxPDFBytes = 64 * 1024 * 1024
	}
	if cfg.Limits.MaxMergeFiles <= 0 {
		cfg.Limits.MaxMergeFiles = 50
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Cache.PDFCacheTTL <= 0 {
		cfg.Cache.PDFCacheTTL = 10 * time.Minute
	}
	if cfg.Auth.TokenReloadInterval <= 0 {
		cfg.Auth.TokenReloadInterval = time.Minute
	}
	if cfg.RateLimiter.Interval <= 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Engine.Driver == "" {
		cfg.Engine.Driver = DriverGotenberg
	}
	cfg.Engine.Driver = strings.ToLower(cfg.Engine.Driver)
	if cfg.Engine.BaseURL == "" {
		cfg.Engine.BaseURL = "http://localhost:3000"
	}
	cfg.Engine.BaseURL = strings.TrimRight(cfg.Engine.BaseURL, "/")
	if cfg.Engine.Timeout <= 0 {
		cfg.Engine.Timeout = 30 * time.Second
	}
	if cfg.Templates.Dir == "" {
		cfg.Templates.Dir = "templates"
	}
	if cfg.Templates.Index == "" {
		cfg.Templates.Index = "index.html"
	}
	if cfg.Templates.Page == (PageConfig{}) {
		cfg.Templates.Page = PageConfig{
			PaperWidth:   8.27,
			PaperHeight:  11.7,
			MarginTop:    0.5,
			MarginBottom: 0.5,
			MarginLeft:   0.5,
			MarginRight:  0.5,
		}
	}
	if cfg.Staging.Dir == "" {
		cfg.Staging.Dir = "temp_pdfs"
	}
	if cfg.Staging.MaxAge <= 0 {
		cfg.Staging.MaxAge = 15 * time.Minute
	}
	if cfg.Staging.SweepSchedule == "" {
		cfg.Staging.SweepSchedule = "@every 5m"
	}
	if cfg.Archive.Prefix == "" {
		cfg.Archive.Prefix = "pdfgateway"
	}
}

// Validate reports the first invalid setting.
func (cfg Config) Validate() error {
	switch cfg.Engine.Driver {
	case DriverGotenberg, DriverChromium:
	default:
		return fmt.Errorf("invalid engine.driver %q: must be %q or %q", cfg.Engine.Driver, DriverGotenberg, DriverChromium)
	}
	if cfg.Engine.Driver == DriverGotenberg &&
		!strings.HasPrefix(cfg.Engine.BaseURL, "http://") && !strings.HasPrefix(cfg.Engine.BaseURL, "https://") {
		return fmt.Errorf("invalid engine.base_url %q: must be http or https", cfg.Engine.BaseURL)
	}
	if cfg.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("invalid rate_limiter.user_limit %d", cfg.RateLimiter.UserLimit)
	}
	if cfg.Auth.Enabled && cfg.Auth.Postgres.Host == "" {
		return fmt.Errorf("auth.enabled requires auth.postgres.host")
	}
	if cfg.Archive.Enabled && cfg.Archive.Bucket == "" {
		return fmt.Errorf("archive.enabled requires archive.bucket")
	}
	p := cfg.Templates.Page
	if p.PaperWidth <= 0 || p.PaperHeight <= 0 {
		return fmt.Errorf("invalid templates.page paper size %.2fx%.2f", p.PaperWidth, p.PaperHeight)
	}
	if p.MarginTop < 0 || p.MarginBottom < 0 || p.MarginLeft < 0 || p.MarginRight < 0 {
		return fmt.Errorf("invalid templates.page margins: must not be negative")
	}
	return nil
}

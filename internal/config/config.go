package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// PostgresConfig describes the audit database connection. Host may also hold a
// full postgres:// URL, in which case the other fields are ignored.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// RenderTier is one entry of the ordered render configuration list.
type RenderTier struct {
	Name      string        `yaml:"name"`
	WaitUntil string        `yaml:"wait_until"`
	Timeout   time.Duration `yaml:"timeout"`
	// Isolated tiers always launch their own browser instead of borrowing a
	// tab from the shared pool.
	Isolated bool     `yaml:"isolated"`
	Flags    []string `yaml:"flags"`
}

// Config is the full service configuration.
type Config struct {
	Server struct {
		Host        string   `yaml:"host"`
		Port        string   `yaml:"port"`
		Prefork     bool     `yaml:"prefork"`
		BaseURL     string   `yaml:"base_url"`
		BodyLimitMB int      `yaml:"body_limit_mb"`
		CORSOrigins []string `yaml:"cors_origins"`
		StaticDir   string   `yaml:"static_dir"`
	} `yaml:"server"`

	Limits struct {
		MaxHTMLBytes int `yaml:"max_html_bytes"`
		MaxPDFBytes  int `yaml:"max_pdf_bytes"`
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

	RateLimiter struct {
		UserLimit int           `yaml:"user_limit"`
		Interval  time.Duration `yaml:"interval"`
	} `yaml:"rate_limiter"`

	Assets struct {
		Roots      []string `yaml:"roots"`
		Template   string   `yaml:"template"`
		Stylesheet string   `yaml:"stylesheet"`
	} `yaml:"assets"`

	Compose struct {
		LogoFiles       []string `yaml:"logo_files"`
		ImageExtensions []string `yaml:"image_extensions"`
		StrictMarkers   bool     `yaml:"strict_markers"`
	} `yaml:"compose"`

	PDF struct {
		PaperWidth     float64      `yaml:"paper_width"`
		PaperHeight    float64      `yaml:"paper_height"`
		Scale          float64      `yaml:"scale"`
		ChromePath     string       `yaml:"chrome_path"`
		ChromePoolSize int          `yaml:"chrome_pool_size"`
		UserDataDir    string       `yaml:"user_data_dir"`
		Tiers          []RenderTier `yaml:"tiers"`
	} `yaml:"pdf"`

	Audit struct {
		Enabled  bool           `yaml:"enabled"`
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"audit"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Readiness conditions accepted by RenderTier.WaitUntil.
const (
	WaitNetworkIdle      = "networkidle"
	WaitLoad             = "load"
	WaitDOMContentLoaded = "domcontentloaded"
)

// PrimaryFlags are the launch switches of the strict render tier.
var PrimaryFlags = []string{
	"no-sandbox",
	"disable-setuid-sandbox",
	"disable-gpu",
	"disable-dev-shm-usage",
	"disable-web-security",
	"disable-features=VizDisplayCompositor",
	"disable-extensions",
	"disable-background-networking",
	"disable-background-timer-throttling",
	"disable-backgrounding-occluded-windows",
	"disable-renderer-backgrounding",
}

// FallbackFlags are the launch switches of the relaxed render tier.
var FallbackFlags = []string{
	"no-sandbox",
	"disable-setuid-sandbox",
	"disable-gpu",
	"disable-dev-shm-usage",
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config

	cfg.Server.Port = ":3000"
	cfg.Server.BodyLimitMB = 10
	cfg.Server.CORSOrigins = []string{
		"https://au-resume-maker.netlify.app",
		"https://resume-backend-app.azurewebsites.net",
		"https://resume-backend-07-dkawbthjh0b5hdeb.centralindia-01.azurewebsites.net",
	}
	cfg.Server.StaticDir = "public"

	cfg.Limits.MaxHTMLBytes = 10 * 1024 * 1024
	cfg.Limits.MaxPDFBytes = 50 * 1024 * 1024

	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 50
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 14

	cfg.Cache.PDFCacheTTL = 10 * time.Minute
	cfg.Cache.RedisHost = "127.0.0.1:6379"
	cfg.Cache.RateLimitDB = 0
	cfg.Cache.PDFCacheDB = 1

	cfg.RateLimiter.Interval = time.Minute

	cfg.Assets.Roots = defaultRoots()
	cfg.Assets.Template = filepath.Join("templates", "resume.html")
	cfg.Assets.Stylesheet = filepath.Join("css", "index.css")

	cfg.Compose.LogoFiles = []string{"logo.png", "logo.jpg", "logo.svg", "au-logo.png"}
	cfg.Compose.ImageExtensions = []string{"png", "jpg", "jpeg", "gif", "svg", "webp", "ico", "bmp"}

	// A4 in inches.
	cfg.PDF.PaperWidth = 8.27
	cfg.PDF.PaperHeight = 11.69
	cfg.PDF.Scale = 1
	cfg.PDF.Tiers = []RenderTier{
		{Name: "primary", WaitUntil: WaitNetworkIdle, Timeout: 30 * time.Second, Flags: PrimaryFlags},
		{Name: "fallback", WaitUntil: WaitDOMContentLoaded, Timeout: 15 * time.Second, Isolated: true, Flags: FallbackFlags},
	}

	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"

	return cfg
}

// defaultRoots lists the places the service has been deployed from: the
// working directory, a backend/ subdirectory, the binary's directory, the
// container root and the Azure App Service content root.
func defaultRoots() []string {
	roots := []string{".", "backend"}
	if exe, err := os.Executable(); err == nil {
		roots = append(roots, filepath.Dir(exe))
	}
	return append(roots, "/app", "/home/site/wwwroot", "/home/site/wwwroot/backend")
}

// Load reads the file named by CONFIG_PATH (default config.yaml).
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom reads and validates the YAML file at path on top of Default. A
// missing file yields the defaults; unreadable or invalid configuration panics
// since the service cannot start safely with it.
func LoadFrom(path string) Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			panic(fmt.Sprintf("config: parse %s: %v", path, err))
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	applyEnv(&cfg)
	cfg.Server.BaseURL = ResolveBaseURL(cfg)

	if err := cfg.Validate(); err != nil {
		panic("config: " + err.Error())
	}
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if !strings.HasPrefix(v, ":") {
			v = ":" + v
		}
		cfg.Server.Port = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if cfg.PDF.ChromePath == "" {
		cfg.PDF.ChromePath = os.Getenv("CHROME_BIN")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		cfg.Cache.RedisHost = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Audit.Postgres.Host = v
	}
}

// ResolveBaseURL returns the URL that relative resume assets are rooted at.
// An explicit base_url wins; on Azure App Service the site hostname is used;
// otherwise the local listener.
func ResolveBaseURL(cfg Config) string {
	if cfg.Server.BaseURL != "" {
		return strings.TrimRight(cfg.Server.BaseURL, "/")
	}
	if site := os.Getenv("WEBSITE_SITE_NAME"); site != "" {
		return "https://" + site + ".azurewebsites.net"
	}
	return "http://localhost" + cfg.Server.Port
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.Server.Port == "":
		return errors.New("server.port is empty")
	case c.Server.BodyLimitMB <= 0:
		return errors.New("server.body_limit_mb must be positive")
	case c.Limits.MaxHTMLBytes <= 0:
		return errors.New("limits.max_html_bytes must be positive")
	case c.Limits.MaxPDFBytes <= 0:
		return errors.New("limits.max_pdf_bytes must be positive")
	case c.RateLimiter.UserLimit < 0:
		return errors.New("rate_limiter.user_limit must not be negative")
	case c.RateLimiter.UserLimit > 0 && c.RateLimiter.Interval <= 0:
		return errors.New("rate_limiter.interval must be positive")
	case c.Cache.PDFCacheTTL < 0:
		return errors.New("cache.pdf_cache_ttl must not be negative")
	case len(c.Assets.Roots) == 0:
		return errors.New("assets.roots is empty")
	case c.Assets.Template == "" || c.Assets.Stylesheet == "":
		return errors.New("assets.template and assets.stylesheet are required")
	case c.PDF.PaperWidth <= 0 || c.PDF.PaperHeight <= 0:
		return errors.New("pdf paper size must be positive")
	case c.PDF.ChromePoolSize < 0:
		return errors.New("pdf.chrome_pool_size must not be negative")
	case len(c.PDF.Tiers) == 0:
		return errors.New("pdf.tiers is empty")
	case c.Audit.Enabled && c.Audit.Postgres.Host == "":
		return errors.New("audit.postgres.host is required when audit is enabled")
	}
	for i, t := range c.PDF.Tiers {
		if t.Name == "" {
			return fmt.Errorf("pdf.tiers[%d].name is empty", i)
		}
		if t.Timeout <= 0 {
			return fmt.Errorf("pdf.tiers[%d].timeout must be positive", i)
		}
		switch t.WaitUntil {
		case WaitNetworkIdle, WaitLoad, WaitDOMContentLoaded:
		default:
			return fmt.Errorf("pdf.tiers[%d].wait_until %q is not one of networkidle, load, domcontentloaded", i, t.WaitUntil)
		}
	}
	return nil
}

// BodyLimit returns the request body limit in bytes.
func (c Config) BodyLimit() int {
	return c.Server.BodyLimitMB * 1024 * 1024
}

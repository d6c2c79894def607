package config

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "HIDEAWAY"

type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	// Catalog is a path or URL of a YAML catalog; empty means built-in.
	Catalog string `mapstructure:"catalog"`
	// CatalogRefresh is the cron schedule for reloading Catalog while
	// serving; empty disables reloading.
	CatalogRefresh string `mapstructure:"catalog_refresh"`

	Server     ServerConfig     `mapstructure:"server"`
	Profiles   ProfilesConfig   `mapstructure:"profiles"`
	Enrollment EnrollmentConfig `mapstructure:"enrollment"`
	NanoMDM    NanoMDMConfig    `mapstructure:"nanomdm"`
	Sessions   []SessionConfig  `mapstructure:"sessions"`
}

type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	DevMode     bool   `mapstructure:"dev_mode"`
	MetricsAuth string `mapstructure:"metrics_auth"`
	SentryDSN   string `mapstructure:"sentry_dsn"`

	// Domains served over HTTPS with ACME certificates. When empty the
	// server only listens on Port without TLS.
	Domains         []string `mapstructure:"domains"`
	ACMEEmail       string   `mapstructure:"acme_email"`
	CloudflareToken string   `mapstructure:"cloudflare_token"`
	HTTPSPort       int      `mapstructure:"https_port"`
}

type ProfilesConfig struct {
	IdentifierPrefix  string `mapstructure:"identifier_prefix"`
	Organization      string `mapstructure:"organization"`
	Supervised        bool   `mapstructure:"supervised"`
	Policy            string `mapstructure:"policy"`
	WebFilter         bool   `mapstructure:"web_filter"`
	RemovalDisallowed bool   `mapstructure:"removal_disallowed"`
	OutputDir         string `mapstructure:"output_dir"`
}

type EnrollmentConfig struct {
	SCEPURL     string        `mapstructure:"scep_url"`
	Challenge   string        `mapstructure:"challenge"`
	ServerURL   string        `mapstructure:"server_url"`
	CheckInURL  string        `mapstructure:"checkin_url"`
	Topic       string        `mapstructure:"topic"`
	SignMessage bool          `mapstructure:"sign_message"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

type NanoMDMConfig struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxElapsed time.Duration `mapstructure:"max_elapsed"`
}

// SessionConfig is a scheduled focus session: the apps are blocked on the
// listed devices at Start and unblocked at End (both cron expressions).
type SessionConfig struct {
	Name    string   `mapstructure:"name"`
	Preset  string   `mapstructure:"preset"`
	Apps    []string `mapstructure:"apps"`
	Devices []string `mapstructure:"devices"`
	Start   string   `mapstructure:"start"`
	End     string   `mapstructure:"end"`
	Web     bool     `mapstructure:"web"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("catalog", "")
	v.SetDefault("catalog_refresh", "@hourly")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.dev_mode", false)
	v.SetDefault("server.metrics_auth", "")
	v.SetDefault("server.sentry_dsn", "")
	v.SetDefault("server.domains", []string{})
	v.SetDefault("server.acme_email", "")
	v.SetDefault("server.cloudflare_token", "")
	v.SetDefault("server.https_port", 443)

	v.SetDefault("profiles.identifier_prefix", "com.hideaway")
	v.SetDefault("profiles.organization", "Hideaway")
	v.SetDefault("profiles.supervised", false)
	v.SetDefault("profiles.policy", "deny")
	v.SetDefault("profiles.web_filter", true)
	v.SetDefault("profiles.removal_disallowed", false)
	v.SetDefault("profiles.output_dir", ".")

	v.SetDefault("enrollment.scep_url", "http://localhost:8081/scep")
	v.SetDefault("enrollment.challenge", "hideaway")
	v.SetDefault("enrollment.server_url", "http://localhost:9000/mdm")
	v.SetDefault("enrollment.checkin_url", "")
	v.SetDefault("enrollment.topic", "com.apple.mgmt.External.hideaway")
	v.SetDefault("enrollment.sign_message", true)
	v.SetDefault("enrollment.cache_ttl", 10*time.Minute)

	v.SetDefault("nanomdm.url", "http://localhost:9000")
	v.SetDefault("nanomdm.api_key", "")
	v.SetDefault("nanomdm.timeout", 10*time.Second)
	v.SetDefault("nanomdm.max_elapsed", 30*time.Second)
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(err)
	}
	return &cfg
}

// Load reads .env (if present), the config file, HIDEAWAY_* environment
// variables and any bound command-line flags, in increasing precedence.
// An empty configPath searches for hideaway.yaml in the usual places; a
// missing file is not an error.
func Load(configPath string, flags map[string]*pflag.Flag) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hideaway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hideaway")
		v.AddConfigPath("$HOME/.hideaway")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config")
		}
	}

	for key, flag := range flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, errors.Wrapf(err, "failed to bind flag %s", flag.Name)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Profiles.Policy {
	case "deny", "allow":
	default:
		errs = append(errs, errors.Newf("profiles.policy must be 'deny' or 'allow', got %q", c.Profiles.Policy))
	}
	if c.Profiles.IdentifierPrefix == "" {
		errs = append(errs, errors.New("profiles.identifier_prefix is required"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.Newf("server.port out of range: %d", c.Server.Port))
	}
	if c.Server.MetricsAuth != "" && !strings.Contains(c.Server.MetricsAuth, ":") {
		errs = append(errs, errors.New("server.metrics_auth must be in the form user:password"))
	}
	if len(c.Server.Domains) > 0 && c.Server.ACMEEmail == "" {
		errs = append(errs, errors.New("server.acme_email is required when server.domains is set"))
	}

	for key, raw := range map[string]string{
		"enrollment.scep_url":   c.Enrollment.SCEPURL,
		"enrollment.server_url": c.Enrollment.ServerURL,
		"nanomdm.url":           c.NanoMDM.URL,
	} {
		if err := validateURL(raw); err != nil {
			errs = append(errs, errors.Wrapf(err, "%s", key))
		}
	}

	for i, session := range c.Sessions {
		if session.Name == "" {
			errs = append(errs, errors.Newf("sessions[%d].name is required", i))
		}
		if session.Preset == "" && len(session.Apps) == 0 {
			errs = append(errs, errors.Newf("session %q needs a preset or apps", session.Name))
		}
		if len(session.Devices) == 0 {
			errs = append(errs, errors.Newf("session %q has no devices", session.Name))
		}
		if session.Start == "" || session.End == "" {
			errs = append(errs, errors.Newf("session %q needs both start and end schedules", session.Name))
		}
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Newf("expected an http(s) URL, got %q", raw)
	}
	if u.Host == "" {
		return errors.Newf("URL has no host: %q", raw)
	}
	return nil
}

// Package config loads the client configuration from a file and the environment.
//
// Keys follow the notification adapter settings, for example:
//
//	from_address: sip:alarm@example.com
//	outbound_proxy: proxy.example.com
//	recipients:
//	  - sip:alice@example.com
//	sip_t1_timer: 100
//
// Every key can be overridden by a QSIP_ prefixed environment variable,
// nested keys use underscores (QSIP_LOG_LEVEL).
package config

//go:generate go tool errtrace -w .

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"braces.dev/errtrace"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ghettovoice/qsip"
	"github.com/ghettovoice/qsip/internal/errorutil"
	"github.com/ghettovoice/qsip/internal/log"
	"github.com/ghettovoice/qsip/sip"
	"github.com/ghettovoice/qsip/transport"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "QSIP"

// Defaults.
const (
	DefaultT1Timer = 100 // milliseconds
	DefaultTimeout = 64 * DefaultT1Timer
)

// ErrInvalidConfig is returned when the configuration fails validation.
const ErrInvalidConfig errorutil.Error = "invalid config"

// Config is the client configuration.
type Config struct {
	OutboundProxy     string   `mapstructure:"outbound_proxy" yaml:"outbound_proxy,omitempty"`
	OutboundProxyPort uint16   `mapstructure:"outbound_proxy_port" yaml:"outbound_proxy_port,omitempty"`
	Timeout           int      `mapstructure:"timeout" yaml:"timeout"` // milliseconds
	FromAddress       string   `mapstructure:"from_address" yaml:"from_address"`
	FromDisplayName   string   `mapstructure:"from_display_name" yaml:"from_display_name,omitempty"`
	Encryption        string   `mapstructure:"encryption" yaml:"encryption"`
	Username          string   `mapstructure:"username" yaml:"username,omitempty"`
	Password          string   `mapstructure:"password" yaml:"password,omitempty"`
	Recipients        []string `mapstructure:"recipients" yaml:"recipients,omitempty"`
	RegistrarAddress  string   `mapstructure:"registrar_address" yaml:"registrar_address,omitempty"`
	RegistrarPort     uint16   `mapstructure:"registrar_port" yaml:"registrar_port,omitempty"`
	SIPT1Timer        int      `mapstructure:"sip_t1_timer" yaml:"sip_t1_timer"` // milliseconds
	Debug             bool     `mapstructure:"debug" yaml:"debug"`
	LocalAddress      string   `mapstructure:"local_address" yaml:"local_address,omitempty"`
	LocalPort         uint16   `mapstructure:"local_port" yaml:"local_port,omitempty"`
	UserAgent         string   `mapstructure:"user_agent" yaml:"user_agent,omitempty"`
	Log               Log      `mapstructure:"log" yaml:"log"`
}

// Log configures logging.
type Log struct {
	Level  string  `mapstructure:"level" yaml:"level"`
	Format string  `mapstructure:"format" yaml:"format"` // console, dev, json or none
	File   LogFile `mapstructure:"file" yaml:"file,omitempty"`
}

// LogFile configures a rotating log file. Empty path logs to stderr.
type LogFile struct {
	Path       string `mapstructure:"path" yaml:"path,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb,omitempty"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups,omitempty"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days,omitempty"`
	Compress   bool   `mapstructure:"compress" yaml:"compress,omitempty"`
}

// New returns a viper instance with defaults and environment overrides set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("outbound_proxy", "")
	v.SetDefault("outbound_proxy_port", 0)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("from_address", "")
	v.SetDefault("from_display_name", "")
	v.SetDefault("encryption", string(qsip.EncryptionNone))
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("recipients", []string{})
	v.SetDefault("registrar_address", "")
	v.SetDefault("registrar_port", 0)
	v.SetDefault("sip_t1_timer", DefaultT1Timer)
	v.SetDefault("debug", false)
	v.SetDefault("local_address", "")
	v.SetDefault("local_port", 0)
	v.SetDefault("user_agent", "qsip/"+qsip.Version)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 10)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age_days", 28)
	v.SetDefault("log.file.compress", false)
}

// Load reads the configuration file at path, applies environment overrides
// and validates the result. Empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, err))
		}
	}
	return errtrace.Wrap2(FromViper(v))
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.FromAddress) == "" {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, "from_address is required"))
	}
	if _, err := sip.ParseAddress(c.FromAddress); err != nil {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, "from_address: %v", err))
	}
	if !qsip.Encryption(c.Encryption).IsValid() {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig,
			"encryption %q must be one of none, starttls or tls", c.Encryption))
	}
	if c.SIPT1Timer <= 0 {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, "sip_t1_timer must be positive"))
	}
	if c.Timeout < 0 {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, "timeout must not be negative"))
	}
	for _, r := range c.Recipients {
		if _, err := sip.ParseAddress(r); err != nil {
			return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, "recipient %q: %v", r, err))
		}
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, "log.level: %v", err))
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "console", "dev", "json", "none":
	default:
		return errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig,
			"log.format %q must be one of console, dev, json or none", c.Log.Format))
	}
	return nil
}

// From returns the sender address.
func (c *Config) From() sip.Address {
	addr, err := sip.ParseAddress(c.FromAddress)
	if err != nil {
		addr = sip.Address{URI: c.FromAddress}
	}
	if c.FromDisplayName != "" {
		addr.DisplayName = c.FromDisplayName
	}
	return addr
}

// RecipientAddresses returns the parsed recipients. Invalid entries are skipped.
func (c *Config) RecipientAddresses() []sip.Address {
	addrs := make([]sip.Address, 0, len(c.Recipients))
	for _, r := range c.Recipients {
		if addr, err := sip.ParseAddress(r); err == nil {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// T1 returns the T1 timer value.
func (c *Config) T1() time.Duration { return time.Duration(c.SIPT1Timer) * time.Millisecond }

// TimeoutDuration returns the request timeout. Zero means 64*T1.
func (c *Config) TimeoutDuration() time.Duration {
	if c.Timeout == 0 {
		return 64 * c.T1()
	}
	return time.Duration(c.Timeout) * time.Millisecond
}

// ClientOptions converts the configuration to client options.
func (c *Config) ClientOptions(logger *slog.Logger) *qsip.ClientOptions {
	return &qsip.ClientOptions{
		From:              c.From(),
		OutboundProxy:     c.OutboundProxy,
		OutboundProxyPort: c.OutboundProxyPort,
		Encryption:        qsip.Encryption(strings.ToLower(c.Encryption)),
		T1:                c.T1(),
		Timeout:           c.TimeoutDuration(),
		UserAgent:         c.UserAgent,
		Transport: &transport.Options{
			LocalHost: c.LocalAddress,
			LocalPort: c.LocalPort,
		},
		Logger: logger,
	}
}

// Logger creates the configured logger writing to w, or to the log file when set.
// Debug mode forces the dev format at debug level.
// The returned closer releases the log file and must be called when done.
func (c *Config) Logger(w io.Writer) (*slog.Logger, io.Closer, error) {
	lvl, err := log.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, nil, errtrace.Wrap(errorutil.NewWrapperError(ErrInvalidConfig, err))
	}
	format := c.Log.Format
	if c.Debug {
		lvl, format = slog.LevelDebug, "dev"
	}

	var closer io.Closer = nopCloser{}
	if c.Log.File.Path != "" {
		fw := log.NewFileWriter(log.FileOptions{
			Path:       c.Log.File.Path,
			MaxSizeMB:  c.Log.File.MaxSizeMB,
			MaxBackups: c.Log.File.MaxBackups,
			MaxAgeDays: c.Log.File.MaxAgeDays,
			Compress:   c.Log.File.Compress,
		})
		w, closer = fw, fw
		if format == "dev" {
			format = "console"
		}
	}
	return log.New(w, format, lvl), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Dump writes the configuration as YAML. The password is masked.
func (c *Config) Dump(w io.Writer) error {
	cp := *c
	if cp.Password != "" {
		cp.Password = "***"
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&cp); err != nil {
		return errtrace.Wrap(err)
	}
	return errtrace.Wrap(enc.Close())
}

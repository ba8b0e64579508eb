package main

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gonzalop/ftpd/server"
)

type config struct {
	Host             string
	Port             int
	DataPorts        server.PortRange
	Users            string
	Root             string
	PublicHost       string
	DataTimeout      time.Duration
	IdleTimeout      time.Duration
	MaxLoginAttempts int
	IdentityOnly     bool
	Bandwidth        int64
	GlobalBandwidth  int64
	MetricsAddr      string
	Debug            bool
	Verbose          bool
	LogFormat        string
}

func addFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Read settings from this file (yaml, json or toml)")
	flags.String("host", "127.0.0.1", "Address to listen on")
	flags.Int("port", 2115, "Control connection port")
	flags.String("dpr", "27500-27999", "Data port range, one port per connected client")
	flags.String("users", "users.cfg", "User registry file (users.cfg format or .yaml)")
	flags.String("root", "./ftproot", "Base directory holding each user's home")
	flags.String("public-host", "", "IPv4 address advertised in PASV replies")
	flags.Duration("data-timeout", 10*time.Second, "Time allowed to establish a data connection")
	flags.Duration("idle-timeout", 5*time.Minute, "Close sessions idle for this long")
	flags.Int("max-login-attempts", 3, "Failed logins before the session is closed")
	flags.Bool("identity-only", false, "Accept a known user name without a password")
	flags.Int64("bandwidth", 0, "Per-session transfer limit in bytes per second (0 = unlimited)")
	flags.Int64("global-bandwidth", 0, "Server-wide transfer limit in bytes per second (0 = unlimited)")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (empty = disabled)")
	flags.BoolP("debug", "D", false, "Log at debug level with source locations")
	flags.BoolP("verbose", "V", false, "Log at debug level")
	flags.String("log-format", "text", "Log format: text or json")
}

// loadConfig layers flags, FTPD_ environment variables and an optional
// config file. Explicit flags win over the environment, which wins over the
// file.
func loadConfig(flags *pflag.FlagSet) (*config, error) {
	v := viper.New()
	if err := v.BindPFlags(flags); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("FTPD")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	dpr, err := server.ParsePortRange(v.GetString("dpr"))
	if err != nil {
		return nil, fmt.Errorf("--dpr: %w", err)
	}

	cfg := &config{
		Host:             v.GetString("host"),
		Port:             v.GetInt("port"),
		DataPorts:        dpr,
		Users:            v.GetString("users"),
		Root:             v.GetString("root"),
		PublicHost:       v.GetString("public-host"),
		DataTimeout:      v.GetDuration("data-timeout"),
		IdleTimeout:      v.GetDuration("idle-timeout"),
		MaxLoginAttempts: v.GetInt("max-login-attempts"),
		IdentityOnly:     v.GetBool("identity-only"),
		Bandwidth:        v.GetInt64("bandwidth"),
		GlobalBandwidth:  v.GetInt64("global-bandwidth"),
		MetricsAddr:      v.GetString("metrics-addr"),
		Debug:            v.GetBool("debug"),
		Verbose:          v.GetBool("verbose"),
		LogFormat:        strings.ToLower(v.GetString("log-format")),
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("--port %d out of range", cfg.Port)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("--log-format must be text or json, not %q", cfg.LogFormat)
	}
	return cfg, nil
}

// Addr is the control listener address.
func (c *config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *config) newLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if c.Debug || c.Verbose {
		opts.Level = slog.LevelDebug
	}
	opts.AddSource = c.Debug

	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func (c *config) serverOptions() []server.Option {
	opts := []server.Option{
		server.WithDataPorts(c.DataPorts),
		server.WithDataTimeout(c.DataTimeout),
		server.WithMaxIdleTime(c.IdleTimeout),
		server.WithMaxLoginAttempts(c.MaxLoginAttempts),
		server.WithIdentityOnlyLogin(c.IdentityOnly),
		server.WithBandwidthLimit(c.GlobalBandwidth, c.Bandwidth),
	}
	if c.PublicHost != "" {
		opts = append(opts, server.WithPublicHost(c.PublicHost))
	}
	return opts
}

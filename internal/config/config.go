package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerAddr     string
	DatabaseDSN    string
	SigningKey     []byte
	TokenTTL       time.Duration
	AllowedOrigins []string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	BgioServerUrl  string
	BgioLobbyUrl   string
	Migrate        bool
}

// Options are the raw settings as given on the command line.
type Options struct {
	Addr           string
	DSN            string
	SigningKey     string
	TokenTTL       time.Duration
	AllowedOrigins []string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	BgioServerUrl  string
	BgioLobbyUrl   string
	Migrate        bool
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, errors.New("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func validateUrl(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) url, got %q", name, raw)
	}
	return nil
}

func NewConfig(opts Options) (*Config, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if opts.TokenTTL < 0 {
		return nil, fmt.Errorf("token ttl cannot be negative")
	}
	if opts.RedisDB < 0 {
		return nil, fmt.Errorf("redis db cannot be negative")
	}
	if opts.BgioServerUrl == "" {
		return nil, fmt.Errorf("game server url cannot be empty")
	}
	if err := validateUrl("game server url", opts.BgioServerUrl); err != nil {
		return nil, err
	}
	if opts.BgioLobbyUrl != "" {
		if err := validateUrl("game lobby url", opts.BgioLobbyUrl); err != nil {
			return nil, err
		}
	}

	signingKey, err := decodeSigningSecret(opts.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	return &Config{
		ServerAddr:     opts.Addr,
		DatabaseDSN:    opts.DSN,
		SigningKey:     signingKey,
		TokenTTL:       opts.TokenTTL,
		AllowedOrigins: opts.AllowedOrigins,
		RedisAddr:      opts.RedisAddr,
		RedisPassword:  opts.RedisPassword,
		RedisDB:        opts.RedisDB,
		BgioServerUrl:  opts.BgioServerUrl,
		BgioLobbyUrl:   opts.BgioLobbyUrl,
		Migrate:        opts.Migrate,
	}, nil
}

// File is the optional YAML config file. Keys match the flag names.
type File struct {
	Addr           string   `yaml:"addr"`
	DSN            string   `yaml:"dsn"`
	SigningKey     string   `yaml:"signing-key"`
	TokenTTL       string   `yaml:"token-ttl"`
	AllowedOrigins []string `yaml:"allowed-origins"`
	RedisAddr      string   `yaml:"redis-addr"`
	RedisPassword  string   `yaml:"redis-password"`
	RedisDB        *int     `yaml:"redis-db"`
	BgioServerUrl  string   `yaml:"bgio-server-url"`
	BgioLobbyUrl   string   `yaml:"bgio-lobby-url"`
	Migrate        *bool    `yaml:"migrate"`
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}

// Apply copies every value present in the file into opts, except for the
// flags named in explicit, which were set on the command line and win.
func (f *File) Apply(opts *Options, explicit map[string]bool) error {
	set := func(name string, present bool, apply func()) {
		if present && !explicit[name] {
			apply()
		}
	}

	set("addr", f.Addr != "", func() { opts.Addr = f.Addr })
	set("dsn", f.DSN != "", func() { opts.DSN = f.DSN })
	set("signing-key", f.SigningKey != "", func() { opts.SigningKey = f.SigningKey })
	set("allowed-origins", len(f.AllowedOrigins) > 0, func() { opts.AllowedOrigins = f.AllowedOrigins })
	set("redis-addr", f.RedisAddr != "", func() { opts.RedisAddr = f.RedisAddr })
	set("redis-password", f.RedisPassword != "", func() { opts.RedisPassword = f.RedisPassword })
	set("redis-db", f.RedisDB != nil, func() { opts.RedisDB = *f.RedisDB })
	set("bgio-server-url", f.BgioServerUrl != "", func() { opts.BgioServerUrl = f.BgioServerUrl })
	set("bgio-lobby-url", f.BgioLobbyUrl != "", func() { opts.BgioLobbyUrl = f.BgioLobbyUrl })
	set("migrate", f.Migrate != nil, func() { opts.Migrate = *f.Migrate })

	if f.TokenTTL != "" && !explicit["token-ttl"] {
		ttl, err := time.ParseDuration(f.TokenTTL)
		if err != nil {
			return fmt.Errorf("token-ttl: %w", err)
		}
		opts.TokenTTL = ttl
	}

	return nil
}

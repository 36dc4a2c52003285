// Copyright 2023 PingCAP, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/stmtkit/lib/util/errors"
)

var (
	ErrInvalidConfigValue = errors.New("invalid config value")
)

const (
	// MinAllowedPacket is the lower bound the server accepts for max_allowed_packet.
	MinAllowedPacket = 1024
	// MaxAllowedPacket is the upper bound the server accepts for max_allowed_packet.
	MaxAllowedPacket = 1 << 30
)

type Config struct {
	Session Session `yaml:"session,omitempty" toml:"session,omitempty" json:"session,omitempty"`
	Batch   Batch   `yaml:"batch,omitempty" toml:"batch,omitempty" json:"batch,omitempty"`
	Cache   Cache   `yaml:"cache,omitempty" toml:"cache,omitempty" json:"cache,omitempty"`
	Log     Log     `yaml:"log,omitempty" toml:"log,omitempty" json:"log,omitempty"`
}

// Session describes the connection the statements are compiled for. Most of the
// fields mirror server session variables and may be refreshed from the server.
type Session struct {
	Addr     string `yaml:"addr,omitempty" toml:"addr,omitempty" json:"addr,omitempty"`
	Database string `yaml:"database,omitempty" toml:"database,omitempty" json:"database,omitempty" dsn:"dbname"`
	Charset  string `yaml:"charset,omitempty" toml:"charset,omitempty" json:"charset,omitempty" dsn:"charset"`
	Location string `yaml:"location,omitempty" toml:"location,omitempty" json:"location,omitempty" dsn:"loc"`
	// AnsiQuotes switches the identifier quote to '"' and stops escaping '"' in strings.
	AnsiQuotes         bool `yaml:"ansi-quotes,omitempty" toml:"ansi-quotes,omitempty" json:"ansi-quotes,omitempty" dsn:"ansiQuotes" reloadable:"true"`
	NoBackslashEscapes bool `yaml:"no-backslash-escapes,omitempty" toml:"no-backslash-escapes,omitempty" json:"no-backslash-escapes,omitempty" dsn:"noBackslashEscapes" reloadable:"true"`
	MaxAllowedPacket   int  `yaml:"max-allowed-packet,omitempty" toml:"max-allowed-packet,omitempty" json:"max-allowed-packet,omitempty" dsn:"maxAllowedPacket" reloadable:"true"`
	FractionalSeconds  bool `yaml:"fractional-seconds,omitempty" toml:"fractional-seconds,omitempty" json:"fractional-seconds,omitempty" dsn:"fractionalSeconds"`
	MultiStatements    bool `yaml:"multi-statements,omitempty" toml:"multi-statements,omitempty" json:"multi-statements,omitempty" dsn:"multiStatements"`
	BinaryIntroducer   bool `yaml:"binary-introducer,omitempty" toml:"binary-introducer,omitempty" json:"binary-introducer,omitempty" dsn:"binaryIntroducer"`
	AutoCloseStreams   bool `yaml:"auto-close-streams,omitempty" toml:"auto-close-streams,omitempty" json:"auto-close-streams,omitempty" dsn:"autoClosePStmtStreams"`
	// StatementComment is prepended to every statement as /* comment */.
	StatementComment string `yaml:"statement-comment,omitempty" toml:"statement-comment,omitempty" json:"statement-comment,omitempty" dsn:"statementComment" reloadable:"true"`
}

type Batch struct {
	RewriteBatchedStatements bool `yaml:"rewrite-batched-statements,omitempty" toml:"rewrite-batched-statements,omitempty" json:"rewrite-batched-statements,omitempty" dsn:"rewriteBatchedStatements" reloadable:"true"`
	ContinueOnError          bool `yaml:"continue-on-error,omitempty" toml:"continue-on-error,omitempty" json:"continue-on-error,omitempty" dsn:"continueBatchOnError" reloadable:"true"`
}

type Cache struct {
	Enabled bool `yaml:"enabled,omitempty" toml:"enabled,omitempty" json:"enabled,omitempty" dsn:"cachePrepStmts"`
	// Size is the number of templates kept per server.
	Size int `yaml:"size,omitempty" toml:"size,omitempty" json:"size,omitempty" dsn:"prepStmtCacheSize"`
	// MaxSQLLength skips caching statements longer than this.
	MaxSQLLength int `yaml:"max-sql-length,omitempty" toml:"max-sql-length,omitempty" json:"max-sql-length,omitempty" dsn:"prepStmtCacheSqlLimit"`
}

type LogOnline struct {
	Level   string  `yaml:"level,omitempty" toml:"level,omitempty" json:"level,omitempty" reloadable:"true"`
	LogFile LogFile `yaml:"log-file,omitempty" toml:"log-file,omitempty" json:"log-file,omitempty"`
}

type Log struct {
	Encoder   string `yaml:"encoder,omitempty" toml:"encoder,omitempty" json:"encoder,omitempty"`
	LogOnline `yaml:",inline" toml:",inline" json:",inline"`
}

type LogFile struct {
	Filename   string `yaml:"filename,omitempty" toml:"filename,omitempty" json:"filename,omitempty"`
	MaxSize    int    `yaml:"max-size,omitempty" toml:"max-size,omitempty" json:"max-size,omitempty"`
	MaxDays    int    `yaml:"max-days,omitempty" toml:"max-days,omitempty" json:"max-days,omitempty"`
	MaxBackups int    `yaml:"max-backups,omitempty" toml:"max-backups,omitempty" json:"max-backups,omitempty"`
}

func NewConfig() *Config {
	var cfg Config

	cfg.Session.Addr = "127.0.0.1:3306"
	cfg.Session.Charset = "utf8mb4"
	cfg.Session.Location = "UTC"
	cfg.Session.MaxAllowedPacket = 64 << 20
	cfg.Session.FractionalSeconds = true
	cfg.Session.BinaryIntroducer = true

	cfg.Cache.Enabled = true
	cfg.Cache.Size = 256
	cfg.Cache.MaxSQLLength = 2048

	cfg.Log.Level = "info"
	cfg.Log.Encoder = "console"
	cfg.Log.LogFile.MaxSize = 300
	cfg.Log.LogFile.MaxDays = 3
	cfg.Log.LogFile.MaxBackups = 3

	return &cfg
}

// NewConfigFromFile overlays the TOML file on the defaults and validates the result.
func NewConfigFromFile(path string) (*Config, error) {
	cfg := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidConfigValue, "parse %s: %s", path, err.Error())
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Clone() *Config {
	newCfg := *cfg
	return &newCfg
}

func (cfg *Config) Check() error {
	if cfg.Session.MaxAllowedPacket < MinAllowedPacket || cfg.Session.MaxAllowedPacket > MaxAllowedPacket {
		return errors.Wrapf(ErrInvalidConfigValue, "max-allowed-packet must be between 1K and 1G")
	}
	if cfg.Session.Charset == "" {
		return errors.Wrapf(ErrInvalidConfigValue, "charset must not be empty")
	}
	if cfg.Session.Location != "" {
		if _, err := time.LoadLocation(cfg.Session.Location); err != nil {
			return errors.Wrapf(ErrInvalidConfigValue, "unknown location %s", cfg.Session.Location)
		}
	}
	if strings.Contains(cfg.Session.StatementComment, "*/") {
		return errors.Wrapf(ErrInvalidConfigValue, "statement-comment must not contain */")
	}
	if cfg.Cache.Size < 0 {
		return errors.Wrapf(ErrInvalidConfigValue, "cache size must not be negative")
	}
	if cfg.Cache.Enabled && cfg.Cache.Size == 0 {
		return errors.Wrapf(ErrInvalidConfigValue, "cache size must be positive when the cache is enabled")
	}
	switch cfg.Log.Encoder {
	case "", "json", "console":
	default:
		return errors.Wrapf(ErrInvalidConfigValue, "unsupported log encoder %s", cfg.Log.Encoder)
	}
	return nil
}

// Loc returns the session time zone, UTC when unset.
func (s *Session) Loc() *time.Location {
	if s.Location == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(s.Location)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (cfg *Config) ToBytes() ([]byte, error) {
	b := new(bytes.Buffer)
	err := toml.NewEncoder(b).Encode(cfg)
	return b.Bytes(), errors.WithStack(err)
}

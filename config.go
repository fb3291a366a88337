package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Options selects the Telnet options the proxy negotiates.
type Options struct {
	Echo            bool `toml:"echo"`
	SuppressGoAhead bool `toml:"suppress_go_ahead"`
	EndOfRecord     bool `toml:"end_of_record"`
	TransmitBinary  bool `toml:"transmit_binary"`
	Charset         bool `toml:"charset"`
	NAWS            bool `toml:"naws"`
	TerminalType    bool `toml:"terminal_type"`
	NewEnviron      bool `toml:"new_environ"`
	MCCP            bool `toml:"mccp"`
	MSDP            bool `toml:"msdp"`
}

type Config struct {
	Addr              string
	MetricsAddr       string
	PasswordHash      string
	LogLevel          zerolog.Level
	MaxSubnegotiation int
	TerminalTypes     []string
	Options           Options
}

func defaultConfig() Config {
	return Config{
		Addr:     ":4001",
		LogLevel: zerolog.InfoLevel,
		Options: Options{
			SuppressGoAhead: true,
			EndOfRecord:     true,
			TransmitBinary:  true,
			Charset:         true,
			NAWS:            true,
			TerminalType:    true,
			NewEnviron:      true,
			MCCP:            true,
			MSDP:            true,
		},
	}
}

type fileConfig struct {
	Addr              string   `toml:"addr"`
	MetricsAddr       string   `toml:"metrics_addr"`
	PasswordHash      string   `toml:"password_hash"`
	LogLevel          string   `toml:"log_level"`
	MaxSubnegotiation int      `toml:"max_subnegotiation"`
	TerminalTypes     []string `toml:"terminal_types"`
	Options           Options  `toml:"options"`
}

// loadConfig overlays the keys present in the TOML file at path onto cfg.
func loadConfig(path string, cfg Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("addr") {
		cfg.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("metrics_addr") {
		cfg.MetricsAddr = strings.TrimSpace(raw.MetricsAddr)
	}
	if meta.IsDefined("password_hash") {
		hash := strings.TrimSpace(raw.PasswordHash)
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return Config{}, fmt.Errorf("parse password_hash: %w", err)
		}
		cfg.PasswordHash = hash
	}
	if meta.IsDefined("log_level") {
		level, err := zerolog.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return Config{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("max_subnegotiation") {
		if raw.MaxSubnegotiation < 0 {
			return Config{}, fmt.Errorf("max_subnegotiation must not be negative")
		}
		cfg.MaxSubnegotiation = raw.MaxSubnegotiation
	}
	if meta.IsDefined("terminal_types") {
		cfg.TerminalTypes = normalizeNames(raw.TerminalTypes)
	}

	for key, field := range map[string]struct {
		dst *bool
		src bool
	}{
		"echo":              {&cfg.Options.Echo, raw.Options.Echo},
		"suppress_go_ahead": {&cfg.Options.SuppressGoAhead, raw.Options.SuppressGoAhead},
		"end_of_record":     {&cfg.Options.EndOfRecord, raw.Options.EndOfRecord},
		"transmit_binary":   {&cfg.Options.TransmitBinary, raw.Options.TransmitBinary},
		"charset":           {&cfg.Options.Charset, raw.Options.Charset},
		"naws":              {&cfg.Options.NAWS, raw.Options.NAWS},
		"terminal_type":     {&cfg.Options.TerminalType, raw.Options.TerminalType},
		"new_environ":       {&cfg.Options.NewEnviron, raw.Options.NewEnviron},
		"mccp":              {&cfg.Options.MCCP, raw.Options.MCCP},
		"msdp":              {&cfg.Options.MSDP, raw.Options.MSDP},
	} {
		if meta.IsDefined("options", key) {
			*field.dst = field.src
		}
	}

	return cfg, nil
}

func normalizeNames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, name := range in {
		v := strings.ToUpper(strings.TrimSpace(name))
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

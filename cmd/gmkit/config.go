package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config is the optional gmkit config file. Pointer fields distinguish "not
// set" from false.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Patch defaults
	AppendNew     *bool `yaml:"append_new"`
	AllowNonASCII *bool `yaml:"allow_non_ascii"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

// cfg is loaded by the root command before any subcommand runs.
var cfg Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "gmkit", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config and no error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

func applyPatchConfig(c *cli.Command, cfg Config, appendNew, allowNonASCII *bool) {
	if cfg.AppendNew != nil && !c.IsSet("append-new") {
		*appendNew = *cfg.AppendNew
	}
	if cfg.AllowNonASCII != nil && !c.IsSet("allow-non-ascii") {
		*allowNonASCII = *cfg.AllowNonASCII
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

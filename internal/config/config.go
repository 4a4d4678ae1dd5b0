// Package config implements the A2 configuration loader: spec §6's bespoke
// key=value text file format, CLI key=value overrides, a leading
// config=<path> merge directive, and an optional environment-variable
// overlay for container deploys. Adapted from the teacher's
// internal/shared/platform config loading (caarlos0/env + joho/godotenv),
// generalized to the broker's own flat key=value grammar instead of
// struct-tag env binding.
package config

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the fully resolved daemon configuration, spec §6.
type Config struct {
	Address      string // "direccion"
	Port         int    // "puerto"
	TLSPort      int    // "puerto_tls"
	Cert         string // "cert"
	Key          string // "key"
	Shards       int    // "hilos"
	AccountsPath string // "cuentas"
	NoInfo       bool   // "noinfo"
}

// EnvOverlay holds the optional container-deploy overrides layered on top of
// the key=value config, per SPEC_FULL.md §2 A2. Env vars never override an
// explicit key=value value; they only fill in logging defaults the bespoke
// format has no key for.
type EnvOverlay struct {
	LogLevel  string `env:"SHARDMQ_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"SHARDMQ_LOG_FORMAT" envDefault:"json"`
}

func defaults() Config {
	return Config{
		Address: "127.0.0.1",
		Port:    4222,
		TLSPort: 8222,
		Shards:  runtime.NumCPU(),
	}
}

// Load resolves a Config from CLI-style key=value args. A leading
// "config=<path>" argument causes that file to be parsed first and merged
// as defaults; every other argument (and anything in the file) is a
// key=value pair; CLI arguments win over the file on conflict.
func Load(args []string) (Config, error) {
	cfg := defaults()

	rest := args
	if len(rest) > 0 && strings.HasPrefix(rest[0], "config=") {
		path := strings.TrimPrefix(rest[0], "config=")
		file, err := parseKeyValueFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := applyAll(&cfg, file); err != nil {
			return Config{}, err
		}
		rest = rest[1:]
	}

	cli := make(map[string]string, len(rest))
	for _, arg := range rest {
		k, v, ok := splitKeyValue(arg)
		if !ok {
			return Config{}, fmt.Errorf("config: malformed argument %q, expected key=value", arg)
		}
		cli[k] = v
	}
	if err := applyAll(&cfg, cli); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadEnvOverlay reads the SHARDMQ_LOG_* environment variables via
// caarlos0/env, optionally loading a .env file first via godotenv (ignored
// if absent — container deploys set real env vars instead).
func LoadEnvOverlay() (EnvOverlay, error) {
	_ = godotenv.Load()

	var overlay EnvOverlay
	if err := env.Parse(&overlay); err != nil {
		return EnvOverlay{}, fmt.Errorf("config: parsing environment: %w", err)
	}
	return overlay, nil
}

func parseKeyValueFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		// Spec §6: "# not honoured" — there is no comment syntax, every
		// non-blank line is a key=value pair, even one starting with '#'.
		k, v, ok := splitKeyValue(line)
		if !ok {
			return nil, fmt.Errorf("malformed line %q, expected key=value", line)
		}
		out[k] = v
	}
	return out, scanner.Err()
}

func splitKeyValue(s string) (key, value string, ok bool) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", "", false
	}
	return s[:i], s[i+1:], true
}

func applyAll(cfg *Config, kv map[string]string) error {
	for k, v := range kv {
		if err := apply(cfg, k, v); err != nil {
			return err
		}
	}
	return nil
}

func apply(cfg *Config, key, value string) error {
	switch key {
	case "direccion":
		cfg.Address = value
	case "puerto":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: puerto: %w", err)
		}
		cfg.Port = n
	case "puerto_tls":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: puerto_tls: %w", err)
		}
		cfg.TLSPort = n
	case "cert":
		cfg.Cert = value
	case "key":
		cfg.Key = value
	case "hilos":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("config: hilos: %w", err)
		}
		cfg.Shards = n
	case "cuentas":
		cfg.AccountsPath = value
	case "noinfo":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("config: noinfo: %w", err)
		}
		cfg.NoInfo = b
	}
	return nil
}

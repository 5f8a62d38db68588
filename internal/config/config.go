// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the settings for one peer process.
type Config struct {
	Addr      string        // listen address when hosting
	Name      string        // local player name
	HostURL   string        // websocket url of the host when joining
	Heartbeat time.Duration // authority heartbeat interval
	DBPath    string        // match journal; empty disables it
	Bot       string        // strategy driving the local seat; empty means stdin
	Opponents []string      // strategies for extra bot seats on the host
	Think     time.Duration // delay before a bot acts
	Seed      int64         // 0 seeds from the clock
	LogLevel  string
	Dev       bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		Addr:      ":8080",
		Name:      "player",
		Heartbeat: 2 * time.Second,
		DBPath:    "pazaak.db",
		Think:     400 * time.Millisecond,
		LogLevel:  "info",
	}
}

// Load reads the given .env files (or ./.env when none are named) into the
// process environment without overriding variables already set, then
// parses the PAZAAK_* variables.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		// a missing ./.env is fine
		_ = godotenv.Load()
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv parses settings through getenv on top of Default.
func FromEnv(getenv func(string) string) (Config, error) {
	c := Default()
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(getenv(key))
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, v))
			return
		}
		*dst = d
	}

	str("PAZAAK_ADDR", &c.Addr)
	str("PAZAAK_NAME", &c.Name)
	str("PAZAAK_HOST_URL", &c.HostURL)
	str("PAZAAK_BOT", &c.Bot)
	str("PAZAAK_LOG_LEVEL", &c.LogLevel)
	dur("PAZAAK_HEARTBEAT", &c.Heartbeat)
	dur("PAZAAK_THINK", &c.Think)

	// an explicitly empty path turns the journal off
	if v, ok := lookup(getenv, "PAZAAK_DB_PATH"); ok {
		c.DBPath = v
	}
	if v := strings.TrimSpace(getenv("PAZAAK_OPPONENTS")); v != "" {
		c.Opponents = SplitList(v)
	}
	if v := strings.TrimSpace(getenv("PAZAAK_SEED")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("PAZAAK_SEED: invalid integer %q", v))
		} else {
			c.Seed = n
		}
	}
	c.Dev = asBool(getenv("PAZAAK_DEV"))

	if c.Heartbeat == 0 {
		errs = append(errs, errors.New("PAZAAK_HEARTBEAT: must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return c, nil
}

// lookup treats the literal value "-" as an explicit empty string, since
// getenv cannot tell unset from empty.
func lookup(getenv func(string) string, key string) (string, bool) {
	v := strings.TrimSpace(getenv(key))
	switch v {
	case "":
		return "", false
	case "-":
		return "", true
	}
	return v, true
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

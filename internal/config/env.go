package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Helper functions shared by the client and server loaders.  Each takes the
// current value as default so env vars can override a YAML profile.

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}

// must returns an error naming key when v is empty.
func must(key, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("missing required setting: %s", key)
	}
	return nil
}

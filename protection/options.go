package protection

import (
	"os"
	"strconv"
	"strings"
)

// Options are the tuning knobs for the login protection service. They are
// produced by a provider func on every check, so operational tuning via the
// environment takes effect without a restart.
type Options struct {
	IdentifierWindowSeconds int
	IdentifierMaxAttempts   int
	IPWindowSeconds         int
	IPMaxAttempts           int
	IPBlockAfterAttempts    int
	IPBlockCooldownSeconds  int
	TrustForwardedHeader    bool
}

// Defaults mirror the shipped configuration: 10 minute windows, 5 attempts
// per identifier, 10 per address, 30 minute block cooldown.
const (
	defaultIdentifierWindowSeconds = 600
	defaultIdentifierMaxAttempts   = 5
	defaultIPWindowSeconds         = 600
	defaultIPMaxAttempts           = 10
	defaultIPBlockCooldownSeconds  = 1800
)

func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func envBool(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// OptionsFromEnv reads the current protection options from the environment.
// IPBlockAfterAttempts defaults to IPMaxAttempts when not set separately.
func OptionsFromEnv() Options {
	ipMax := envInt("LOGIN_IP_MAX_ATTEMPTS", defaultIPMaxAttempts)
	return Options{
		IdentifierWindowSeconds: envInt("LOGIN_IDENTIFIER_WINDOW_SECONDS", defaultIdentifierWindowSeconds),
		IdentifierMaxAttempts:   envInt("LOGIN_IDENTIFIER_MAX_ATTEMPTS", defaultIdentifierMaxAttempts),
		IPWindowSeconds:         envInt("LOGIN_IP_WINDOW_SECONDS", defaultIPWindowSeconds),
		IPMaxAttempts:           ipMax,
		IPBlockAfterAttempts:    envInt("LOGIN_IP_BLOCK_AFTER_ATTEMPTS", ipMax),
		IPBlockCooldownSeconds:  envInt("LOGIN_IP_BLOCK_SECONDS", defaultIPBlockCooldownSeconds),
		TrustForwardedHeader:    envBool("LOGIN_TRUST_FORWARDED_HEADER", false),
	}
}

// StaticOptions wraps fixed Options in a provider func. Used by tests and by
// callers that want tuning pinned at construction.
func StaticOptions(opts Options) func() Options {
	return func() Options { return opts }
}

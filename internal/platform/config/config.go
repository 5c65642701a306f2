package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LookupKey selects which HR field is used to search the directory.
type LookupKey string

const (
	LookupKeyEmail      LookupKey = "email"
	LookupKeyEmployeeID LookupKey = "employee_id"
)

// Server captures process-level configuration.
type Server struct {
	Addr string

	IdP      IdP
	Store    Store
	Events   Events
	// StaticApplications feeds the static entitlement source. The directory
	// has no live application-assignment API in this deployment, so the list
	// is configuration.
	StaticApplications []string
}

// IdP configures the directory client and the lookup retry policy.
type IdP struct {
	BaseURL     string
	APIToken    string
	LookupKey   LookupKey
	Timeout     time.Duration
	MaxAttempts int
	RetryBase   time.Duration
}

// Store selects the enriched profile store backend.
type Store struct {
	Backend     string // memory | redis | postgres
	RedisURL    string
	PostgresDSN string
}

// Events configures the onboarding event stream. Empty brokers keep events
// in-process.
type Events struct {
	KafkaBrokers []string
	KafkaTopic   string
}

// FromEnv builds the configuration from environment variables so main stays
// lean. Every knob has a development default except the IdP credential.
func FromEnv() Server {
	return Server{
		Addr: envOr("ROSTER_ADDR", ":8080"),
		IdP: IdP{
			BaseURL:     envOr("IDP_BASE_URL", "https://idp.example.com"),
			APIToken:    os.Getenv("IDP_API_TOKEN"),
			LookupKey:   lookupKeyFromEnv(),
			Timeout:     durationOr("IDP_TIMEOUT", 10*time.Second),
			MaxAttempts: intOr("IDP_MAX_ATTEMPTS", 3),
			RetryBase:   durationOr("IDP_RETRY_BASE_DELAY", time.Second),
		},
		Store: Store{
			Backend:     envOr("STORE_BACKEND", "memory"),
			RedisURL:    os.Getenv("REDIS_URL"),
			PostgresDSN: os.Getenv("DATABASE_URL"),
		},
		Events: Events{
			KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
			KafkaTopic:   envOr("KAFKA_TOPIC", "roster.onboarding"),
		},
		StaticApplications: splitList(envOr("STATIC_APPLICATIONS", "Google Workspace,Slack,Jira")),
	}
}

func lookupKeyFromEnv() LookupKey {
	if os.Getenv("IDP_LOOKUP_KEY") == string(LookupKeyEmployeeID) {
		return LookupKeyEmployeeID
	}
	return LookupKeyEmail
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

func intOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

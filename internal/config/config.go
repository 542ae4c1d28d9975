package config

import (
	"os"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/peterhellberg/duration"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	// Remote test backend
	BackendURL          string
	BackendTimeout      time.Duration
	BackendTokenURL     string // optional oauth2 client credentials
	BackendClientID     string
	BackendClientSecret string
	CertificateOrigins  []string // extra download origins besides the backend

	DBDriver string
	DBDSN    string

	SessionDriver   string // sql|fs|memory
	SessionBasePath string // for fs

	CookieSecret string
	CookieSecure bool

	EnableEventLog bool

	AdminUser     string
	AdminPassHash string // bcrypt

	CORSOriginsOnline  []string
	CORSOriginsOffline []string
}

func FromEnv() Config {
	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		Mode:                mode,
		HTTPAddr:            addr,
		PublicURL:           os.Getenv("PUBLIC_URL"),
		BackendURL:          envOr("BACKEND_URL", "http://localhost:8000/api/v1"),
		BackendTimeout:      envDuration("BACKEND_TIMEOUT", 15*time.Second),
		BackendTokenURL:     os.Getenv("BACKEND_TOKEN_URL"),
		BackendClientID:     os.Getenv("BACKEND_CLIENT_ID"),
		BackendClientSecret: os.Getenv("BACKEND_CLIENT_SECRET"),
		CertificateOrigins:  csvOr("CERTIFICATE_ORIGINS", ""),
		DBDriver:            envOr("DB_DRIVER", "sqlite"),
		DBDSN:               envOr("DB_DSN", ""),
		SessionDriver:       envOr("SESSION_DRIVER", "sql"),
		SessionBasePath:     envOr("SESSION_BASE_PATH", "./data/sessions"),
		CookieSecret:        envOr("COOKIE_SECRET", "dev-secret-change-me"),
		CookieSecure:        envBool("COOKIE_SECURE", mode == ModeOnline),
		EnableEventLog:      envBool("ENABLE_EVENT_LOG", true),
		AdminUser:           envOr("ADMIN_USER", "admin"),
		AdminPassHash:       os.Getenv("ADMIN_PASS_HASH"),
		CORSOriginsOnline:   csvOr("CORS_ORIGINS_ONLINE", "https://sashakt.example.org"),
		CORSOriginsOffline:  csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:5173,http://localhost:3000"),
	}
}

// CORSOrigins returns the allowed origins for the configured mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}

// envDuration accepts Go durations ("20s") and ISO 8601 ones ("PT20S").
func envDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	d, err := duration.Parse(v)
	if err != nil {
		glog.Warningf("config: %s=%q is not a duration, using %s", k, v, def)
		return def
	}
	return d
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

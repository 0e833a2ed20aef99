package config

import (
	"os"
	"time"
)

// RuntimeConfig holds casterd's own process settings — where to find the
// device-config sources, how often to run discovery, and where to serve
// metrics from. This is distinct from the Configuration Service (Service,
// in service.go), which manages per-device configuration read from the
// files RuntimeConfig points at.
type RuntimeConfig struct {
	// ConfigDir is scanned for device-config source files on startup and
	// on SIGHUP; only *.json files are loaded, other files are ignored.
	ConfigDir string
	// DiscoveryInterval is read from CASTER_DISCOVERY_INTERVAL (or the
	// -discovery-interval flag). The Device Manager does not consult it:
	// its discovery loop runs on a fixed 10s cadence.
	DiscoveryInterval time.Duration
	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables the metrics server.
	MetricsAddr string
	// ServeIP overrides auto-detected outbound IP for streaming URLs;
	// empty means auto-detect (see internal/netutil).
	ServeIP string
}

// Load reads RuntimeConfig from environment. Call LoadEnvFile(".env")
// first to populate the environment from a .env file.
func Load() *RuntimeConfig {
	c := &RuntimeConfig{
		ConfigDir:         getEnv("CASTER_CONFIG_DIR", "./config"),
		DiscoveryInterval: getEnvDuration("CASTER_DISCOVERY_INTERVAL", 60*time.Second),
		MetricsAddr:       getEnv("CASTER_METRICS_ADDR", ":9090"),
		ServeIP:           os.Getenv("CASTER_SERVE_IP"),
	}
	if c.DiscoveryInterval <= 0 {
		c.DiscoveryInterval = 60 * time.Second
	}
	return c
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

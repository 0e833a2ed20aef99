package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	if c.ConfigDir != "./config" {
		t.Errorf("ConfigDir default: got %q", c.ConfigDir)
	}
	if c.DiscoveryInterval != 60*time.Second {
		t.Errorf("DiscoveryInterval default: got %v", c.DiscoveryInterval)
	}
	if c.MetricsAddr != ":9090" {
		t.Errorf("MetricsAddr default: got %q", c.MetricsAddr)
	}
	if c.ServeIP != "" {
		t.Errorf("ServeIP default: got %q", c.ServeIP)
	}
}

func TestLoadOverrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("CASTER_CONFIG_DIR", "/etc/caster")
	os.Setenv("CASTER_DISCOVERY_INTERVAL", "30s")
	os.Setenv("CASTER_METRICS_ADDR", ":9999")
	os.Setenv("CASTER_SERVE_IP", "10.0.0.9")
	c := Load()
	if c.ConfigDir != "/etc/caster" {
		t.Errorf("ConfigDir: got %q", c.ConfigDir)
	}
	if c.DiscoveryInterval != 30*time.Second {
		t.Errorf("DiscoveryInterval: got %v", c.DiscoveryInterval)
	}
	if c.MetricsAddr != ":9999" {
		t.Errorf("MetricsAddr: got %q", c.MetricsAddr)
	}
	if c.ServeIP != "10.0.0.9" {
		t.Errorf("ServeIP: got %q", c.ServeIP)
	}
}

func TestLoadInvalidDurationFallsBackToDefault(t *testing.T) {
	os.Clearenv()
	os.Setenv("CASTER_DISCOVERY_INTERVAL", "not-a-duration")
	c := Load()
	if c.DiscoveryInterval != 60*time.Second {
		t.Errorf("DiscoveryInterval: got %v, want default", c.DiscoveryInterval)
	}
}

// Package netutil resolves the LAN IP address used to build streaming
// URLs for renderers (spec.md §6, STREAMING_SERVE_IP).
package netutil

import (
	"fmt"
	"net"
	"os"
)

// ServeIPEnvVar is the override environment variable, spec.md §6.
const ServeIPEnvVar = "STREAMING_SERVE_IP"

// OutboundIP returns the LAN IP to use for building renderer-facing
// streaming URLs. It honors STREAMING_SERVE_IP if set; otherwise it
// auto-detects by opening a UDP "connection" toward 8.8.8.8:80 and
// reading the local address (no packet is actually sent for UDP
// connect). Loopback addresses are always refused, in both paths, per
// spec.md §6.
func OutboundIP() (string, error) {
	if v := os.Getenv(ServeIPEnvVar); v != "" {
		ip := net.ParseIP(v)
		if ip == nil {
			return "", fmt.Errorf("netutil: invalid %s=%q", ServeIPEnvVar, v)
		}
		if ip.IsLoopback() {
			return "", fmt.Errorf("netutil: %s=%q is a loopback address, refusing", ServeIPEnvVar, v)
		}
		return ip.String(), nil
	}
	return detectOutboundIP()
}

func detectOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", fmt.Errorf("netutil: detect outbound IP: %w", err)
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("netutil: unexpected local addr type %T", conn.LocalAddr())
	}
	if addr.IP.IsLoopback() {
		return "", fmt.Errorf("netutil: detected loopback address %s, refusing", addr.IP)
	}
	return addr.IP.String(), nil
}

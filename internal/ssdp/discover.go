// Package ssdp implements the SSDP M-SEARCH initiator side of discovery
// (spec.md §4.1 step 1-3, §6) — the teacher's own internal/tuner/ssdp.go
// only ever answers M-SEARCH as a responder, so this package generalizes
// its header vocabulary to the opposite role: broadcasting M-SEARCH and
// collecting replies.
package ssdp

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"
)

const (
	multicastAddr = "239.255.255.250:1900"
	multicastTTL  = 4
	// responseWindow is spec.md §4.1 step 2: "Collect responses for a
	// bounded window (~2s)."
	responseWindow = 2 * time.Second
	// ReceiveTimeout is spec.md §5: "SSDP receive: 2s."
	ReceiveTimeout = 2 * time.Second
)

const mSearchRequest = "M-SEARCH * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	"MX: 10\r\n" +
	"ST: ssdp:all\r\n" +
	"\r\n"

// Response is one parsed SSDP reply.
type Response struct {
	Location    string
	ServiceType string
}

// limiter bounds how often Scan may broadcast an M-SEARCH, so repeated
// discovery cycles (one every discovery_interval, spec.md §4.1) never
// flood the LAN even if a caller invokes Scan more eagerly than that.
var limiter = rate.NewLimiter(rate.Every(1*time.Second), 1)

// Scan broadcasts one SSDP M-SEARCH (ST: ssdp:all, MX=10) over UDP
// multicast with TTL 4 and collects responses for responseWindow,
// keeping only those whose ST header contains "AVTransport" — spec.md
// §4.1 steps 1-2.
func Scan(ctx context.Context) ([]Response, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	conn, err := net.ListenPacket("udp4", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("ssdp: listen: %w", err)
	}
	defer conn.Close()

	pc := ipv4.NewPacketConn(conn)
	if err := pc.SetMulticastTTL(multicastTTL); err != nil {
		return nil, fmt.Errorf("ssdp: set multicast TTL: %w", err)
	}

	dest, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return nil, fmt.Errorf("ssdp: resolve multicast addr: %w", err)
	}
	if _, err := conn.WriteTo([]byte(mSearchRequest), dest); err != nil {
		return nil, fmt.Errorf("ssdp: send M-SEARCH: %w", err)
	}

	deadline := time.Now().Add(responseWindow)
	var responses []Response
	seen := make(map[string]bool)
	buf := make([]byte, 2048)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		select {
		case <-ctx.Done():
			return responses, ctx.Err()
		default:
		}
		conn.SetReadDeadline(time.Now().Add(minDuration(remaining, ReceiveTimeout)))
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			log.Printf("ssdp: read error: %v", err)
			continue
		}
		resp, ok := parseSearchResponse(buf[:n])
		if !ok {
			continue
		}
		if !strings.Contains(resp.ServiceType, "AVTransport") {
			continue
		}
		if seen[resp.Location] {
			continue
		}
		seen[resp.Location] = true
		responses = append(responses, resp)
	}
	return responses, nil
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// parseSearchResponse extracts LOCATION and ST from an HTTP-style SSDP
// response message. Header names are matched case-insensitively, per
// HTTP semantics.
func parseSearchResponse(data []byte) (Response, bool) {
	lines := strings.Split(string(data), "\r\n")
	if len(lines) == 0 {
		return Response{}, false
	}
	var resp Response
	for _, line := range lines[1:] {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(strings.ToUpper(line[:idx]))
		value := strings.TrimSpace(line[idx+1:])
		switch key {
		case "LOCATION":
			resp.Location = value
		case "ST":
			resp.ServiceType = value
		}
	}
	if resp.Location == "" {
		return Response{}, false
	}
	return resp, true
}

package soap

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dlnafleet/caster/internal/httpclient"
	"github.com/dlnafleet/caster/internal/retry"
)

// ServiceType is the UPnP service type every AVTransport action is sent
// against, per spec.md §4.2/§6.
const ServiceType = "urn:schemas-upnp-org:service:AVTransport:1"

// maxRetries and retryPause are spec.md §4.2 "Retry on transient error":
// "max_retries = 3 with a 2s pause between attempts".
const (
	maxRetries = 3
	retryPause = 2 * time.Second
)

// actionTimeout is spec.md §5: "SOAP action: 10s per attempt".
const actionTimeout = 10 * time.Second

// Client sends AVTransport SOAP actions to a single device's control URL.
type Client struct {
	ControlURL string
	http       *http.Client
}

// NewClient returns a Client that posts to controlURL using the shared
// ambient HTTP client (internal/httpclient), not a bespoke one-off one.
func NewClient(controlURL string) *Client {
	return &Client{ControlURL: controlURL, http: httpclient.Default()}
}

// buildEnvelope wraps action and its ordered name/value children in a
// SOAP 1.1 envelope, per spec.md §4.2 "SOAP contract".
func buildEnvelope(action string, params []param) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	b.WriteString(`<s:Body><u:`)
	b.WriteString(action)
	b.WriteString(` xmlns:u="`)
	b.WriteString(ServiceType)
	b.WriteString(`"><InstanceID>0</InstanceID>`)
	for _, p := range params {
		b.WriteByte('<')
		b.WriteString(p.name)
		b.WriteByte('>')
		b.WriteString(escapeXML(p.value))
		b.WriteString("</")
		b.WriteString(p.name)
		b.WriteByte('>')
	}
	b.WriteString(`</u:`)
	b.WriteString(action)
	b.WriteString(`></s:Body></s:Envelope>`)
	return b.String()
}

type param struct{ name, value string }

// do POSTs action with params to c.ControlURL, making at most maxRetries
// attempts in total with a fixed retryPause between attempts
// (spec.md §4.2). It returns the response body.
func (c *Client) do(ctx context.Context, action string, params []param) ([]byte, error) {
	body := buildEnvelope(action, params)
	var respBody []byte

	err := retry.Do(ctx, maxRetries, retry.FixedBackoff(retryPause), func(attempt int) error {
		reqCtx, cancel := context.WithTimeout(ctx, actionTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.ControlURL, bytes.NewBufferString(body))
		if err != nil {
			return fmt.Errorf("soap: build request: %w", err)
		}
		req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
		req.Header.Set("SOAPAction", fmt.Sprintf(`"%s#%s"`, ServiceType, action))

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("soap: %s: %w", action, err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("soap: %s: read response: %w", action, err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("soap: %s: http %d: %s", action, resp.StatusCode, string(data))
		}
		respBody = data
		return nil
	})
	return respBody, err
}

// SetAVTransportURI sets the renderer's current URI and DIDL-Lite
// metadata, per spec.md §4.2's play procedure step 3.
func (c *Client) SetAVTransportURI(ctx context.Context, videoURL string) error {
	didl := BuildDIDL(videoURL)
	_, err := c.do(ctx, "SetAVTransportURI", []param{
		{"CurrentURI", videoURL},
		{"CurrentURIMetaData", didl},
	})
	return err
}

// Play sends Play with Speed=1.
func (c *Client) Play(ctx context.Context) error {
	_, err := c.do(ctx, "Play", []param{{"Speed", "1"}})
	return err
}

// Pause sends Pause.
func (c *Client) Pause(ctx context.Context) error {
	_, err := c.do(ctx, "Pause", nil)
	return err
}

// Stop sends Stop.
func (c *Client) Stop(ctx context.Context) error {
	_, err := c.do(ctx, "Stop", nil)
	return err
}

// Seek sends Seek with Unit=REL_TIME and Target=position (HH:MM:SS).
func (c *Client) Seek(ctx context.Context, position string) error {
	_, err := c.do(ctx, "Seek", []param{
		{"Unit", "REL_TIME"},
		{"Target", position},
	})
	return err
}

// TransportInfo is the parsed result of GetTransportInfo.
type TransportInfo struct {
	CurrentTransportState  string
	CurrentTransportStatus string
}

// GetTransportInfo returns the renderer's current transport state/status.
func (c *Client) GetTransportInfo(ctx context.Context) (TransportInfo, error) {
	body, err := c.do(ctx, "GetTransportInfo", nil)
	if err != nil {
		return TransportInfo{}, err
	}
	return parseTransportInfo(body), nil
}

// PositionInfo is the parsed result of GetPositionInfo.
type PositionInfo struct {
	// RelTime is the position within the current track, HH:MM:SS.
	RelTime string
	// TrackDuration is the track's total duration, HH:MM:SS.
	TrackDuration string
}

// GetPositionInfo returns the renderer's current playback position.
func (c *Client) GetPositionInfo(ctx context.Context) (PositionInfo, error) {
	body, err := c.do(ctx, "GetPositionInfo", nil)
	if err != nil {
		return PositionInfo{}, err
	}
	return parsePositionInfo(body), nil
}

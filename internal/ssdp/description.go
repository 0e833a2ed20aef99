package ssdp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dlnafleet/caster/internal/httpclient"
	"github.com/dlnafleet/caster/internal/safeurl"
)

// descriptionFetchTimeout is spec.md §5: "Description-XML fetch: 5s".
const descriptionFetchTimeout = 5 * time.Second

// avTransportServiceType is the service whose controlURL discovery must
// resolve, per spec.md §6.
const avTransportServiceType = "urn:schemas-upnp-org:service:AVTransport:1"

// Description holds the fields spec.md §6 requires extracting from a
// device's description XML.
type Description struct {
	FriendlyName string
	Manufacturer string
	ControlURL   string
}

// FetchDescription GETs location (5s timeout) and extracts friendlyName,
// manufacturer and the AVTransport controlURL, per spec.md §4.1 step 3.
// A relative controlURL is rebased onto location's scheme://host:port; if
// no controlURL is found at all, a conventional default is synthesized
// and a warning logged.
func FetchDescription(ctx context.Context, location string) (Description, error) {
	if !safeurl.IsHTTPOrHTTPS(location) {
		return Description{}, fmt.Errorf("ssdp: refusing non-http(s) description location %q", location)
	}

	reqCtx, cancel := context.WithTimeout(ctx, descriptionFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, location, nil)
	if err != nil {
		return Description{}, fmt.Errorf("ssdp: build description request: %w", err)
	}
	client := httpclient.WithTimeout(descriptionFetchTimeout)
	resp, err := client.Do(req)
	if err != nil {
		return Description{}, fmt.Errorf("ssdp: fetch description %s: %w", location, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Description{}, fmt.Errorf("ssdp: read description %s: %w", location, err)
	}

	desc := parseDescription(body)
	if desc.ControlURL == "" {
		def, err := defaultControlURL(location)
		if err != nil {
			return Description{}, fmt.Errorf("ssdp: no controlURL and cannot synthesize default for %s: %w", location, err)
		}
		log.Printf("ssdp: no AVTransport controlURL found in description at %s, using synthesized default %s", location, def)
		desc.ControlURL = def
	} else {
		desc.ControlURL = rebase(location, desc.ControlURL)
	}
	if !safeurl.IsHTTPOrHTTPS(desc.ControlURL) {
		return Description{}, fmt.Errorf("ssdp: description at %s resolved to non-http(s) controlURL %q", location, desc.ControlURL)
	}
	return desc, nil
}

// parseDescription walks the description XML token stream looking for
// device/friendlyName, device/manufacturer, and — within the service
// whose serviceType is AVTransport — its controlURL. This mirrors the
// ambient stack's other hand-rolled encoding/xml token-walk parsers
// (rather than a struct-tag unmarshal) because device-description XML
// varies enough across vendors that a fixed struct shape isn't reliable;
// the same "try several paths, fall back" need spec.md §4.1 describes.
func parseDescription(body []byte) Description {
	dec := xml.NewDecoder(strings.NewReader(string(body)))
	var desc Description
	var path []string
	var inAVTransportService bool
	var serviceType string

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			name := t.Name.Local
			path = append(path, name)
			if name == "service" {
				inAVTransportService = false
				serviceType = ""
			}
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" || len(path) == 0 {
				continue
			}
			leaf := path[len(path)-1]
			switch leaf {
			case "friendlyName":
				if desc.FriendlyName == "" {
					desc.FriendlyName = text
				}
			case "manufacturer":
				if desc.Manufacturer == "" {
					desc.Manufacturer = text
				}
			case "serviceType":
				serviceType = text
				if strings.Contains(serviceType, avTransportServiceType) || strings.Contains(serviceType, "AVTransport") {
					inAVTransportService = true
				}
			case "controlURL":
				if inAVTransportService && desc.ControlURL == "" {
					desc.ControlURL = text
				}
			}
		case xml.EndElement:
			if len(path) > 0 {
				path = path[:len(path)-1]
			}
			if t.Name.Local == "service" {
				inAVTransportService = false
			}
		}
	}
	return desc
}

// rebase resolves a possibly-relative controlURL against location's
// scheme/host/port.
func rebase(location, controlURL string) string {
	base, err := url.Parse(location)
	if err != nil {
		return controlURL
	}
	ref, err := url.Parse(controlURL)
	if err != nil {
		return controlURL
	}
	return base.ResolveReference(ref).String()
}

// defaultControlURL synthesizes the conventional fallback
// http://host:port/AVTransport/Control, per spec.md §4.1 step 3.
func defaultControlURL(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("cannot parse location %q", location)
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/AVTransport/Control"}).String(), nil
}

package ssdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const sampleDescriptionXML = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <friendlyName>Living Room TV</friendlyName>
    <manufacturer>Acme</manufacturer>
    <serviceList>
      <service>
        <serviceType>urn:schemas-upnp-org:service:RenderingControl:1</serviceType>
        <controlURL>/RenderingControl/Control</controlURL>
      </service>
      <service>
        <serviceType>urn:schemas-upnp-org:service:AVTransport:1</serviceType>
        <controlURL>/AVTransport/Control</controlURL>
      </service>
    </serviceList>
  </device>
</root>`

func TestParseDescriptionExtractsAVTransportControlURL(t *testing.T) {
	desc := parseDescription([]byte(sampleDescriptionXML))
	if desc.FriendlyName != "Living Room TV" {
		t.Errorf("FriendlyName = %q", desc.FriendlyName)
	}
	if desc.Manufacturer != "Acme" {
		t.Errorf("Manufacturer = %q", desc.Manufacturer)
	}
	if desc.ControlURL != "/AVTransport/Control" {
		t.Errorf("ControlURL = %q, want the AVTransport service's controlURL, not RenderingControl's", desc.ControlURL)
	}
}

func TestFetchDescriptionRebasesRelativeControlURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleDescriptionXML))
	}))
	defer srv.Close()

	desc, err := FetchDescription(context.Background(), srv.URL+"/device.xml")
	if err != nil {
		t.Fatalf("FetchDescription: %v", err)
	}
	want := srv.URL + "/AVTransport/Control"
	if desc.ControlURL != want {
		t.Errorf("ControlURL = %q, want %q", desc.ControlURL, want)
	}
}

func TestFetchDescriptionSynthesizesDefaultControlURLWhenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<root><device><friendlyName>No AVT</friendlyName></device></root>`))
	}))
	defer srv.Close()

	desc, err := FetchDescription(context.Background(), srv.URL+"/device.xml")
	if err != nil {
		t.Fatalf("FetchDescription: %v", err)
	}
	want := srv.URL + "/AVTransport/Control"
	if desc.ControlURL != want {
		t.Errorf("ControlURL = %q, want synthesized default %q", desc.ControlURL, want)
	}
}

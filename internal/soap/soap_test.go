package soap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMIMETypeAndDLNAProfile(t *testing.T) {
	cases := []struct {
		url, mime, profile string
	}{
		{"movie.mp4", "video/mp4", "AVC_MP4_BL_CIF15_AAC_520"},
		{"movie.mkv", "video/x-matroska", "MPEG_PS_PAL"},
		{"movie.avi", "video/x-msvideo", "MPEG_PS_PAL"},
		{"movie.ts", "video/MP2T", "MPEG_TS_SD_EU_ISO"},
		{"movie.unknown", defaultMIME, defaultProfile},
	}
	for _, c := range cases {
		if got := MIMEType(c.url); got != c.mime {
			t.Errorf("MIMEType(%q) = %q, want %q", c.url, got, c.mime)
		}
		if got := DLNAProfile(c.url); got != c.profile {
			t.Errorf("DLNAProfile(%q) = %q, want %q", c.url, got, c.profile)
		}
	}
}

func TestBuildDIDLEscapesAndEmbedsProtocolInfo(t *testing.T) {
	didl := BuildDIDL("http://host/a&b.mp4")
	if !strings.Contains(didl, "http://host/a&amp;b.mp4") {
		t.Errorf("expected escaped URL in DIDL, got %s", didl)
	}
	if !strings.Contains(didl, "DLNA.ORG_PN=AVC_MP4_BL_CIF15_AAC_520") {
		t.Errorf("expected mp4 profile in DIDL, got %s", didl)
	}
	if !strings.Contains(didl, "<DIDL-Lite") {
		t.Errorf("expected DIDL-Lite root element, got %s", didl)
	}
}

func TestBuildEnvelopeWrapsActionWithInstanceID(t *testing.T) {
	env := buildEnvelope("Play", []param{{"Speed", "1"}})
	if !strings.Contains(env, "<u:Play") {
		t.Errorf("expected <u:Play> element, got %s", env)
	}
	if !strings.Contains(env, "<InstanceID>0</InstanceID>") {
		t.Errorf("expected InstanceID 0, got %s", env)
	}
	if !strings.Contains(env, "<Speed>1</Speed>") {
		t.Errorf("expected Speed param, got %s", env)
	}
	if !strings.Contains(env, ServiceType) {
		t.Errorf("expected service type namespace, got %s", env)
	}
}

func TestClientSetsExpectedHeadersAndSucceeds(t *testing.T) {
	var gotSOAPAction, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSOAPAction = r.Header.Get("SOAPAction")
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body></s:Body></s:Envelope>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	wantAction := `"urn:schemas-upnp-org:service:AVTransport:1#Play"`
	if gotSOAPAction != wantAction {
		t.Errorf("SOAPAction = %q, want %q", gotSOAPAction, wantAction)
	}
	if !strings.Contains(gotContentType, "text/xml") {
		t.Errorf("Content-Type = %q", gotContentType)
	}
}

func TestClientRetriesOnFailureThenGivesUp(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if err := c.Stop(context.Background()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != maxRetries {
		t.Errorf("attempts = %d, want %d", attempts, maxRetries)
	}
}

func TestGetTransportInfoParsesState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <u:GetTransportInfoResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1">
      <CurrentTransportState>PLAYING</CurrentTransportState>
      <CurrentTransportStatus>OK</CurrentTransportStatus>
    </u:GetTransportInfoResponse>
  </s:Body>
</s:Envelope>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	info, err := c.GetTransportInfo(context.Background())
	if err != nil {
		t.Fatalf("GetTransportInfo: %v", err)
	}
	if info.CurrentTransportState != "PLAYING" {
		t.Errorf("CurrentTransportState = %q", info.CurrentTransportState)
	}
	if info.CurrentTransportStatus != "OK" {
		t.Errorf("CurrentTransportStatus = %q", info.CurrentTransportStatus)
	}
}

func TestGetPositionInfoParsesRelTimeAndDuration(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <u:GetPositionInfoResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1">
      <RelTime>00:01:23</RelTime>
      <TrackDuration>00:10:00</TrackDuration>
    </u:GetPositionInfoResponse>
  </s:Body>
</s:Envelope>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	info, err := c.GetPositionInfo(context.Background())
	if err != nil {
		t.Fatalf("GetPositionInfo: %v", err)
	}
	if info.RelTime != "00:01:23" {
		t.Errorf("RelTime = %q", info.RelTime)
	}
	if info.TrackDuration != "00:10:00" {
		t.Errorf("TrackDuration = %q", info.TrackDuration)
	}
}

func TestGetTransportInfoDefaultsToUnknownWhenMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body></s:Body></s:Envelope>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	info, err := c.GetTransportInfo(context.Background())
	if err != nil {
		t.Fatalf("GetTransportInfo: %v", err)
	}
	if info.CurrentTransportState != "UNKNOWN" {
		t.Errorf("CurrentTransportState = %q, want UNKNOWN", info.CurrentTransportState)
	}
}

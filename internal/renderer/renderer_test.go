package renderer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestPlaySetsStateAndDoesNotStartMonitorWithoutLoop(t *testing.T) {
	var actions []string
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		actions = append(actions, r.Header.Get("SOAPAction"))
		w.WriteHeader(http.StatusOK)
	})
	r := New("tv1", srv.URL)
	if err := r.Play(context.Background(), "http://host/movie.mp4", false); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !r.IsPlaying() {
		t.Fatal("expected IsPlaying true after Play")
	}
	if r.CurrentVideo() != "http://host/movie.mp4" {
		t.Errorf("CurrentVideo = %q", r.CurrentVideo())
	}
	if len(actions) != 2 {
		t.Fatalf("expected SetAVTransportURI then Play, got %v", actions)
	}
	if r.loopStillEnabled() {
		t.Fatal("expected no loop monitor when Play is called with loop=false")
	}
}

func TestStopClearsStateAndCancelsMonitor(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r := New("tv1", srv.URL)
	if err := r.Play(context.Background(), "http://host/movie.mp4", true); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := r.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if r.IsPlaying() {
		t.Fatal("expected IsPlaying false after Stop")
	}
	if r.CurrentVideo() != "" {
		t.Errorf("expected CurrentVideo cleared, got %q", r.CurrentVideo())
	}
	if r.loopStillEnabled() {
		t.Fatal("expected loop disabled after Stop")
	}
}

func TestLoopWaitFormula(t *testing.T) {
	cases := []struct {
		duration time.Duration
		want     time.Duration
	}{
		{10 * time.Second, 5 * time.Second},
		{100 * time.Second, 90 * time.Second},
		{12 * time.Second, 6 * time.Second},
	}
	for _, c := range cases {
		if got := loopWait(c.duration); got != c.want {
			t.Errorf("loopWait(%v) = %v, want %v", c.duration, got, c.want)
		}
	}
}

func TestParseHHMMSS(t *testing.T) {
	d, ok := parseHHMMSS("00:10:05")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	want := 10*time.Minute + 5*time.Second
	if d != want {
		t.Errorf("parseHHMMSS = %v, want %v", d, want)
	}
	if _, ok := parseHHMMSS("UNKNOWN"); ok {
		t.Fatal("expected parse of UNKNOWN to fail")
	}
}

func TestRestartTriesSeekBeforeFullReset(t *testing.T) {
	var calls, sawSeek, sawStop int32
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		action := r.Header.Get("SOAPAction")
		atomic.AddInt32(&calls, 1)
		if contains(action, "#Seek") {
			atomic.AddInt32(&sawSeek, 1)
		}
		if contains(action, "#Stop") {
			atomic.AddInt32(&sawStop, 1)
		}
		switch {
		case contains(action, "GetTransportInfo"):
			w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:GetTransportInfoResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><CurrentTransportState>PLAYING</CurrentTransportState></u:GetTransportInfoResponse></s:Body></s:Envelope>`))
		case contains(action, "GetPositionInfo"):
			w.Write([]byte(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body><u:GetPositionInfoResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"><RelTime>00:00:00</RelTime></u:GetPositionInfoResponse></s:Body></s:Envelope>`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	})
	r := New("tv1", srv.URL)
	if err := r.restart(context.Background(), "http://host/movie.mp4"); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if calls == 0 {
		t.Fatal("expected at least one SOAP call")
	}
	if atomic.LoadInt32(&sawSeek) == 0 {
		t.Fatal("expected restart to try Seek first")
	}
	if atomic.LoadInt32(&sawStop) != 0 {
		t.Fatal("expected no Stop (full reset) when Seek brings playback back")
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

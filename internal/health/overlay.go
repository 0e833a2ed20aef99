// Package health implements the single external side-effect the spec
// names but treats as out of scope: a best-effort notification to the
// overlay subsystem whenever a video starts playing (spec.md §6,
// "Callback to overlay subsystem (out of scope)").
package health

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/dlnafleet/caster/internal/httpclient"
)

// overlayTimeout is spec.md §5's "Overlay-sync HTTP side-effect: 2s".
const overlayTimeout = 2 * time.Second

const defaultOverlayBaseURL = "http://localhost:8000"

// PostOverlaySync notifies the overlay subsystem that videoName started
// playing via DLNA auto-play. Failure is logged and never propagates —
// spec.md §7: "Failure is logged and never propagates."
func PostOverlaySync(ctx context.Context, baseURL, videoName string) {
	if baseURL == "" {
		baseURL = defaultOverlayBaseURL
	}
	u := baseURL + "/api/overlay/sync?triggered_by=dlna_auto_play&video_name=" + url.QueryEscape(videoName)

	reqCtx, cancel := context.WithTimeout(ctx, overlayTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, u, nil)
	if err != nil {
		log.Printf("health: overlay sync: build request: %v", err)
		return
	}
	client := httpclient.WithTimeout(overlayTimeout)
	resp, err := client.Do(req)
	if err != nil {
		log.Printf("health: overlay sync for %q failed: %v", videoName, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("health: overlay sync for %q returned HTTP %d", videoName, resp.StatusCode)
	}
}

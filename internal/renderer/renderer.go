// Package renderer implements the Renderer Driver: translating
// play/stop/pause/seek commands into UPnP AVTransport SOAP invocations
// and maintaining the loop invariant that an assigned video never ends
// and stays ended (spec.md §4.2).
package renderer

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dlnafleet/caster/internal/soap"
)

// Renderer drives a single device. AVTransport commands against the same
// Renderer are strictly serialized through cmdMu, held across every SOAP
// round trip — spec.md §5: "no two SOAP calls to the same device may
// overlap. A per-device mutex enforces this; the loop monitor contends
// with external commands on this same mutex." mu is a separate, narrower
// lock guarding only the struct's bookkeeping fields.
type Renderer struct {
	Name       string
	ControlURL string
	OverlayURL string

	client *soap.Client

	// cmdMu serializes every SOAP action sent to this device: Play,
	// Stop, Pause, Seek, GetTransportInfo, GetPositionInfo, and the
	// loop monitor's restart sequence all hold it for the duration of
	// their SOAP round trip(s).
	cmdMu sync.Mutex

	mu           sync.Mutex
	isPlaying    bool
	currentVideo string
	loopEnabled  bool
	lastActivity time.Time
	videoDuration time.Duration

	cancelLoop context.CancelFunc
}

// New returns a Renderer for a device's control URL.
func New(name, controlURL string) *Renderer {
	return &Renderer{
		Name:       name,
		ControlURL: controlURL,
		client:     soap.NewClient(controlURL),
	}
}

// IsPlaying reports the driver's last-known playing state.
func (r *Renderer) IsPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isPlaying
}

// CurrentVideo returns the video the driver last instructed the device to
// play.
func (r *Renderer) CurrentVideo() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentVideo
}

// Play implements spec.md §4.2's play procedure: store current_video,
// build DIDL-Lite, SetAVTransportURI, Play, mark playing, and — if
// loop is requested — (re)start the loop monitor under the same lock
// that guards any existing monitor, so a second Play never races a
// monitor already watching the prior video.
func (r *Renderer) Play(ctx context.Context, videoURL string, loop bool) error {
	r.cmdMu.Lock()
	err := r.client.SetAVTransportURI(ctx, videoURL)
	if err == nil {
		err = r.client.Play(ctx)
	}
	r.cmdMu.Unlock()
	if err != nil {
		return fmt.Errorf("renderer[%s]: play: %w", r.Name, err)
	}

	r.mu.Lock()
	r.currentVideo = videoURL
	r.isPlaying = true
	r.lastActivity = time.Now()
	prevCancel := r.cancelLoop
	r.cancelLoop = nil
	r.mu.Unlock()

	if prevCancel != nil {
		prevCancel()
	}

	if loop {
		r.startLoopMonitor(videoURL)
	}
	log.Printf("renderer[%s]: playing %s (loop=%t)", r.Name, videoURL, loop)
	return nil
}

// Stop implements spec.md §4.2's stop procedure: disable the loop flag,
// send Stop, clear playing state and current video.
func (r *Renderer) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.loopEnabled = false
	cancel := r.cancelLoop
	r.cancelLoop = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	r.cmdMu.Lock()
	err := r.client.Stop(ctx)
	r.cmdMu.Unlock()

	r.mu.Lock()
	r.isPlaying = false
	r.currentVideo = ""
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("renderer[%s]: Stop: %w", r.Name, err)
	}
	return nil
}

// Pause sends Pause without otherwise changing driver state.
func (r *Renderer) Pause(ctx context.Context) error {
	r.cmdMu.Lock()
	err := r.client.Pause(ctx)
	r.cmdMu.Unlock()
	if err != nil {
		return fmt.Errorf("renderer[%s]: Pause: %w", r.Name, err)
	}
	return nil
}

// Seek sends Seek with Unit=REL_TIME to the HH:MM:SS position.
func (r *Renderer) Seek(ctx context.Context, position string) error {
	r.cmdMu.Lock()
	err := r.client.Seek(ctx, position)
	r.cmdMu.Unlock()
	if err != nil {
		return fmt.Errorf("renderer[%s]: Seek: %w", r.Name, err)
	}
	return nil
}

// GetTransportInfo delegates to the SOAP client, serialized against any
// other in-flight SOAP action on this device.
func (r *Renderer) GetTransportInfo(ctx context.Context) (soap.TransportInfo, error) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	return r.client.GetTransportInfo(ctx)
}

// GetPositionInfo delegates to the SOAP client, serialized against any
// other in-flight SOAP action on this device.
func (r *Renderer) GetPositionInfo(ctx context.Context) (soap.PositionInfo, error) {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()
	return r.client.GetPositionInfo(ctx)
}

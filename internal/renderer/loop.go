package renderer

import (
	"context"
	"log"
	"time"
)

// loopState is the explicit state machine DESIGN NOTES call for, replacing
// the teacher's exception-driven "except: continue" polling loops with
// named states a reader can reason about.
type loopState int

const (
	stateIdle loopState = iota
	stateAwaitingEnd
	stateRestarting
	stateErrorCooldown
)

const (
	// activityStaleAfter is spec.md §4.2.1 step 2: "If now -
	// last_activity_time > 60s, call GetTransportInfo."
	activityStaleAfter = 60 * time.Second
	// errorCooldown is spec.md §4.2.1: "Exceptions in the monitor are
	// caught, logged, and followed by a 5s sleep."
	errorCooldown = 5 * time.Second
	// defaultDuration is spec.md B1's documented fallback when no
	// duration source succeeds.
	defaultDuration = 30 * time.Second
	// minWait / shortDurationThreshold implement step 3's wait formula.
	minWait               = 5 * time.Second
	shortDurationThreshold = 15 * time.Second
)

// startLoopMonitor (re)starts the per-device loop monitor for videoURL.
// At most one monitor runs per Renderer; callers hold r.mu only long
// enough to swap r.cancelLoop, matching spec.md §4.2's "stop and replace
// under a lock" requirement.
func (r *Renderer) startLoopMonitor(videoURL string) {
	ctx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.loopEnabled = true
	r.cancelLoop = cancel
	r.mu.Unlock()

	go r.runLoopMonitor(ctx, videoURL)
}

func (r *Renderer) loopStillEnabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loopEnabled
}

func (r *Renderer) touchActivity() {
	r.mu.Lock()
	r.lastActivity = time.Now()
	r.mu.Unlock()
}

func (r *Renderer) activitySince() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

// runLoopMonitor is the loop monitor task (spec.md §4.2.1), modeled as
// the idle → awaiting-end → restarting → error-cooldown state machine.
func (r *Renderer) runLoopMonitor(ctx context.Context, videoURL string) {
	state := stateIdle
	var duration time.Duration

	for {
		if ctx.Err() != nil || !r.loopStillEnabled() {
			return
		}

		switch state {
		case stateIdle:
			duration = r.determineDuration(ctx, videoURL)
			state = stateAwaitingEnd

		case stateAwaitingEnd:
			if time.Since(r.activitySince()) > activityStaleAfter {
				info, err := r.GetTransportInfo(ctx)
				if err != nil {
					log.Printf("renderer[%s]: loop monitor: GetTransportInfo: %v", r.Name, err)
					state = stateErrorCooldown
					continue
				}
				if info.CurrentTransportState != "PLAYING" {
					state = stateRestarting
					continue
				}
			}
			wait := loopWait(duration)
			if !sleepInterruptible(ctx, wait, r.loopStillEnabled) {
				return
			}
			state = stateRestarting

		case stateRestarting:
			if err := r.restart(ctx, videoURL); err != nil {
				log.Printf("renderer[%s]: loop monitor: restart failed: %v", r.Name, err)
				state = stateErrorCooldown
				continue
			}
			r.touchActivity()
			state = stateIdle

		case stateErrorCooldown:
			if !sleepInterruptible(ctx, errorCooldown, r.loopStillEnabled) {
				return
			}
			state = stateIdle
		}
	}
}

// loopWait implements spec.md §4.2.1 step 3's wait formula.
func loopWait(duration time.Duration) time.Duration {
	if duration <= shortDurationThreshold {
		return duration / 2
	}
	wait := duration - 10*time.Second
	if wait < minWait {
		return minWait
	}
	return wait
}

// sleepInterruptible sleeps for d, checking ctx and the still-enabled
// predicate both before and after, per spec.md §4.2.1 step 3 ("Sleep wait
// seconds (with checks for loop_enabled before and after)"). Returns
// false if the monitor should exit.
func sleepInterruptible(ctx context.Context, d time.Duration, stillEnabled func() bool) bool {
	if !stillEnabled() {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
	}
	return stillEnabled() && ctx.Err() == nil
}

// restart implements spec.md §4.2.1 step 4's restart strategy: seek to
// 00:00:00 first (gentlest), falling through to a full Stop +
// SetAVTransportURI + Play reset on failure. The whole multi-call
// sequence holds cmdMu for its duration — spec.md §5: "the loop monitor
// contends with external commands on this same mutex" — so it runs as
// one atomic unit against any concurrent external Play/Stop/Seek. It
// therefore talks to r.client directly rather than through Renderer's
// own locked wrapper methods, which would deadlock on cmdMu.
func (r *Renderer) restart(ctx context.Context, videoURL string) error {
	r.cmdMu.Lock()
	defer r.cmdMu.Unlock()

	info, err := r.client.GetTransportInfo(ctx)
	state := "UNKNOWN"
	if err == nil {
		state = info.CurrentTransportState
	}

	if state == "PLAYING" || state == "PAUSED_PLAYBACK" {
		if err := r.trySeekRestart(ctx, state); err == nil {
			return nil
		}
	}
	return r.fullResetRestart(ctx, videoURL)
}

func (r *Renderer) trySeekRestart(ctx context.Context, state string) error {
	if err := r.client.Seek(ctx, "00:00:00"); err != nil {
		return err
	}
	time.Sleep(1 * time.Second)
	if state == "PAUSED_PLAYBACK" {
		if err := r.client.Play(ctx); err != nil {
			return err
		}
	}
	pos, err := r.client.GetPositionInfo(ctx)
	if err != nil {
		return err
	}
	if pos.RelTime == "00:00:00" || pos.RelTime == "0:00:00" {
		return nil
	}
	return errNotConfirmed
}

func (r *Renderer) fullResetRestart(ctx context.Context, videoURL string) error {
	if err := r.client.Stop(ctx); err != nil {
		log.Printf("renderer[%s]: restart: Stop failed (continuing): %v", r.Name, err)
	}
	time.Sleep(1 * time.Second)
	if err := r.client.SetAVTransportURI(ctx, videoURL); err != nil {
		return err
	}
	return r.client.Play(ctx)
}

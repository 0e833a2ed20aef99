package devicemanager

import (
	"context"
	"log"
	"time"

	"github.com/dlnafleet/caster/internal/model"
)

// startHealthMonitor starts the per-device health monitor, spec.md
// §4.1.1, on successful play. A device has at most one monitor; a
// second start cancels and replaces the first.
func (m *Manager) startHealthMonitor(name string) {
	m.mu.Lock()
	e, ok := m.devices[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	if e.healthCancel != nil {
		e.healthCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.healthCancel = cancel
	m.mu.Unlock()

	go m.runHealthMonitor(ctx, name)
}

// runHealthMonitor implements spec.md §4.1.1's four checks, ticking
// every playbackHealthCheckPeriod. It exits when the device is
// unassigned, unregistered, or its context is canceled.
func (m *Manager) runHealthMonitor(ctx context.Context, name string) {
	ticker := time.NewTicker(playbackHealthCheckPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.healthCheckOnce(ctx, name) {
				return
			}
		}
	}
}

// healthCheckOnce runs one health-check cycle and reports whether the
// monitor should keep running (false means the device is gone, the
// assignment was cleared, or control reverted to manual-stop).
func (m *Manager) healthCheckOnce(ctx context.Context, name string) bool {
	m.mu.Lock()
	e, ok := m.devices[name]
	if !ok || !e.hasAssignment {
		m.mu.Unlock()
		return false
	}
	if e.device.UserControlMode == model.UserControlManualStop {
		m.mu.Unlock()
		return false
	}
	shouldBePlaying := e.hasAssignment
	isPlaying := e.device.IsPlaying
	videoPath := e.assignment.VideoPath
	m.mu.Unlock()

	// Step 1: device.is_playing false when it should be true.
	if shouldBePlaying && !isPlaying {
		m.mu.Lock()
		e.consecutiveFails++
		fails := e.consecutiveFails
		m.mu.Unlock()
		if fails >= consecutiveFailureLimit {
			log.Printf("devicemanager: health monitor %q: %d consecutive failures, recovering", name, fails)
			go m.playWithRetry(name, videoPath)
			m.mu.Lock()
			e.consecutiveFails = 0
			m.mu.Unlock()
		}
	} else {
		m.mu.Lock()
		e.consecutiveFails = 0
		m.mu.Unlock()
	}

	// Step 2: is_playing true but no active session exists -> restart.
	if isPlaying && m.registry != nil {
		hasActive := false
		for _, id := range m.registry.ForDevice(name) {
			if sess := m.registry.Get(id); sess != nil && sess.Active {
				hasActive = true
				break
			}
		}
		if !hasActive {
			log.Printf("devicemanager: health monitor %q: playing with no active session, restarting", name)
			go m.playWithRetry(name, videoPath)
		}
	}

	// Step 3: aggregate streaming issues from any stalled/error session.
	if m.registry != nil {
		var issues bool
		for _, id := range m.registry.ForDevice(name) {
			sess := m.registry.Get(id)
			if sess == nil {
				continue
			}
			if sess.Status == model.SessionStalled || sess.Status == model.SessionError {
				issues = true
			}
		}
		m.mu.Lock()
		e.device.StreamingIssues = issues
		m.mu.Unlock()
	}

	m.mu.Lock()
	_, stillAssigned := m.devices[name]
	m.mu.Unlock()
	return stillAssigned
}

// onStreamingHealthEvent is registered with the Streaming Session
// Registry (spec.md §4.3's health-check handler contract) and is the
// Manager's recovery path for a stalled stream, per spec.md §7 ("Stream
// stall (>= 90s idle): device status to streaming_issue, recovery
// attempt by the Manager's registered health handler"): it transitions
// the device to streaming_issue immediately rather than waiting for the
// next 30s health-check tick, then stops and re-plays the renderer so a
// fresh streaming session replaces the stalled one.
func (m *Manager) onStreamingHealthEvent(sess model.StreamingSession, reason string) {
	m.mu.Lock()
	e, ok := m.devices[sess.DeviceName]
	if !ok {
		m.mu.Unlock()
		return
	}
	e.device.StreamingIssues = true
	e.device.Status = model.StatusStreamingIssue
	hasAssignment := e.hasAssignment
	videoPath := e.assignment.VideoPath
	r := e.renderer
	m.mu.Unlock()

	log.Printf("devicemanager: device %q flagged streaming_issues (%s, session %s), recovering", sess.DeviceName, reason, sess.ID)

	if !hasAssignment || r == nil {
		return
	}
	if err := r.Stop(context.Background()); err != nil {
		log.Printf("devicemanager: device %q: stop during streaming-issue recovery: %v", sess.DeviceName, err)
	}
	go m.playWithRetry(sess.DeviceName, videoPath)
}

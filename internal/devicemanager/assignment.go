package devicemanager

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/dlnafleet/caster/internal/health"
	"github.com/dlnafleet/caster/internal/model"
	"github.com/dlnafleet/caster/internal/retry"
)

// Assign implements the assignment protocol, spec.md §4.1 steps 1-9.
func (m *Manager) Assign(name, videoPath string, priority int, schedule *time.Time) bool {
	m.mu.Lock()
	e, ok := m.devices[name]
	if !ok {
		m.mu.Unlock()
		log.Printf("devicemanager: assign %q: unknown device", name)
		return false
	}

	if e.device.UserControlMode != model.UserControlAuto {
		m.mu.Unlock()
		log.Printf("devicemanager: assign %q: skipped, user control mode is %q", name, e.device.UserControlMode)
		return false
	}

	if e.hasAssignment && !e.assignment.Accepts(priority) {
		m.mu.Unlock()
		log.Printf("devicemanager: assign %q: refused, priority %d < current %d", name, priority, e.assignment.Priority)
		return false
	}
	m.mu.Unlock()

	if _, err := os.Stat(videoPath); err != nil {
		log.Printf("devicemanager: assign %q: video %q not found: %v", name, videoPath, err)
		return false
	}

	if schedule != nil && schedule.After(time.Now()) {
		m.mu.Lock()
		m.scheduled[name] = scheduledAssignment{videoPath: videoPath, priority: priority, at: *schedule}
		m.mu.Unlock()
		log.Printf("devicemanager: assign %q: scheduled for %s", name, schedule.Format(time.RFC3339))
		return true
	}

	m.mu.Lock()
	wasPlaying := e.device.IsPlaying
	currentVideo := e.device.CurrentVideo
	r := e.renderer
	m.mu.Unlock()

	if wasPlaying && currentVideo != videoPath {
		if err := r.Stop(context.Background()); err != nil {
			log.Printf("devicemanager: assign %q: stop prior video: %v", name, err)
		}
		time.Sleep(1 * time.Second)
	}

	m.mu.Lock()
	e.assignment = model.VideoAssignment{VideoPath: videoPath, Priority: priority}
	e.hasAssignment = true
	e.retryCount = 0
	m.mu.Unlock()

	go m.playWithRetry(name, videoPath)
	return true
}

// playWithRetry delegates to the Renderer Driver and, on failure,
// retries with exponential backoff (delay = 5s * 2^retry_count, up to
// maxRetryAttempts), per spec.md §4.1 step 7.
func (m *Manager) playWithRetry(name, videoPath string) {
	m.mu.Lock()
	e, ok := m.devices[name]
	m.mu.Unlock()
	if !ok {
		return
	}

	loop := true
	if m.config != nil {
		if cfg := m.config.Get(name); cfg != nil {
			loop = cfg.Loop
		}
	}

	ctx := context.Background()

	streamURL := videoPath
	streamPort := 0
	if m.pool != nil {
		url, port, _, serveErr := m.pool.Serve(ctx, name, videoPath, m.serveIP)
		if serveErr != nil {
			log.Printf("devicemanager: assign %q: serve %q: %v", name, videoPath, serveErr)
			m.mu.Lock()
			e.device.Status = model.StatusError
			e.device.LastError = serveErr.Error()
			e.device.LastErrorTime = time.Now()
			m.mu.Unlock()
			return
		}
		streamURL = url
		streamPort = port
	}

	err := retry.Do(ctx, maxRetryAttempts, retry.ExponentialBackoff(retryBaseDelay), func(attempt int) error {
		m.mu.Lock()
		e.retryCount = attempt
		m.mu.Unlock()
		return e.renderer.Play(ctx, streamURL, loop)
	})

	m.mu.Lock()
	e.retryCount = 0
	success := err == nil
	if success {
		e.device.Status = model.StatusPlaying
		e.device.IsPlaying = true
		e.device.CurrentVideo = videoPath
		e.device.StreamingURL = streamURL
		e.device.StreamingPort = streamPort
		e.device.LastError = ""
	} else {
		e.device.Status = model.StatusError
		e.device.LastError = err.Error()
		e.device.LastErrorTime = time.Now()
	}
	e.stats.RecordAttempt(videoPath, success)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.RecordAssignment(success)
	}

	if !success {
		log.Printf("devicemanager: assign %q: play failed after %d attempts: %v", name, maxRetryAttempts, err)
		return
	}

	m.startHealthMonitor(name)

	if m.config == nil {
		return
	}
	if cfg := m.config.Get(name); cfg != nil && cfg.EnableOverlaySync {
		syncName := cfg.SyncVideoName
		if syncName == "" {
			syncName = videoPath
		}
		go health.PostOverlaySync(context.Background(), "", syncName)
	}
}

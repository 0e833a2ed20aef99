// Package streaming implements the Streaming Session Registry and its
// companion HTTP file-server pool (spec.md §4.3): tracking every video
// stream served to a renderer, detecting stalls, and garbage-collecting
// sessions long after they've gone inactive.
package streaming

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dlnafleet/caster/internal/metrics"
	"github.com/dlnafleet/caster/internal/model"
)

const (
	// healthCheckInterval is spec.md §4.3: "health_check_interval = 5s".
	healthCheckInterval = 5 * time.Second
	// inactivityThreshold is spec.md §4.3: "inactivity_threshold = 90s".
	inactivityThreshold = 90 * time.Second
	// maxSessionAge triggers a health check even on an active session,
	// per spec.md §4.3 step 2 ("or if the session has run >= 24 hours").
	maxSessionAge = 24 * time.Hour
	// gcAfterInactive is spec.md §4.3 step 3: "active=false for > 1 hour
	// are garbage-collected."
	gcAfterInactive = 1 * time.Hour
)

// HealthCheckHandler is invoked by the registry's monitoring task for
// every session found stalled or past maxSessionAge, per spec.md §4.3
// "Health-check handler contract".
type HealthCheckHandler func(session model.StreamingSession, reason string)

// Registry owns the session_id -> StreamingSession table and the
// name -> [session_id] index, per spec.md §3 "Ownership".
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*model.StreamingSession
	byDevice map[string][]string
	handlers []HealthCheckHandler
	metrics  *metrics.Metrics

	monitorOnce   sync.Once
	monitorCancel func()
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*model.StreamingSession),
		byDevice: make(map[string][]string),
	}
}

// SetMetrics attaches a Metrics sink; subsequent bandwidth/stall
// events are reported to it. Safe to call once before Register begins.
func (r *Registry) SetMetrics(m *metrics.Metrics) {
	r.mu.Lock()
	r.metrics = m
	r.mu.Unlock()
}

// RegisterHealthCheckHandler adds a handler invoked for every stalled or
// over-age session. The Device Manager registers one that consults its
// own device table (spec.md §4.3).
func (r *Registry) RegisterHealthCheckHandler(h HealthCheckHandler) {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
}

// Register creates a new session in status `initializing`, adds it to the
// device index, and ensures the monitoring task is running.
func (r *Registry) Register(deviceName, videoPath, serverIP string, serverPort int) *model.StreamingSession {
	sess := &model.StreamingSession{
		ID:                uuid.NewString(),
		DeviceName:        deviceName,
		VideoPath:         videoPath,
		ServerIP:          serverIP,
		ServerPort:        serverPort,
		Status:            model.SessionInitializing,
		Active:            true,
		StartTime:         time.Now(),
		LastActivityTime:  time.Now(),
	}
	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.byDevice[deviceName] = append(r.byDevice[deviceName], sess.ID)
	r.mu.Unlock()

	r.ensureMonitor()
	log.Printf("streaming: registered session %s for device %q (%s)", sess.ID, deviceName, videoPath)
	cp := sess.Clone()
	return &cp
}

// Get returns a defensive copy of a session, or nil if unknown.
func (r *Registry) Get(sessionID string) *model.StreamingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := sess.Clone()
	return &cp
}

// ForDevice returns every session ID currently indexed for a device.
func (r *Registry) ForDevice(deviceName string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.byDevice[deviceName]
	out := make([]string, len(ids))
	copy(out, ids)
	return out
}

// OnClientConnect marks the session active on the first client
// connection, per spec.md §4.3 "On first client connection event,
// status -> active".
func (r *Registry) OnClientConnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	sess.ClientConnections++
	sess.RecordConnection(time.Now(), sess.ClientIP, true)
	if sess.Status == model.SessionInitializing {
		sess.Status = model.SessionActive
	}
}

// OnClientDisconnect records a disconnection, per spec.md §4.3 "On
// connection event connected=false, increments connection_errors; if
// status was active, becomes stalled".
func (r *Registry) OnClientDisconnect(sessionID, clientIP string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	sess.ConnectionErrors++
	sess.RecordConnection(time.Now(), clientIP, false)
	if sess.Status == model.SessionActive {
		sess.Status = model.SessionStalled
	}
}

// UpdateActivity refreshes last_activity_time and records a bandwidth
// sample, per spec.md §4.3.
func (r *Registry) UpdateActivity(sessionID, clientIP string, bytes int64, dur time.Duration) {
	r.mu.Lock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	now := time.Now()
	sess.LastActivityTime = now
	sess.BytesServed += bytes
	if clientIP != "" {
		sess.ClientIP = clientIP
	}
	sess.RecordBandwidth(now, bytes, dur)
	m := r.metrics
	r.mu.Unlock()

	if m != nil {
		m.AddBytesServed(bytes)
	}
}

// SetError marks a session failed, per spec.md §4.3 "set_error(msg)".
func (r *Registry) SetError(sessionID, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	sess.Status = model.SessionError
	sess.Active = false
	sess.ErrorMessage = msg
}

// Complete marks a session finished gracefully, per spec.md §4.3
// "complete()".
func (r *Registry) Complete(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	sess.Status = model.SessionCompleted
	sess.Active = false
}

// Unregister removes a session from the table and its device index
// immediately, rather than leaving it for sweep()'s gcAfterInactive
// window. Used where a session is known gone outright — e.g. a
// disconnected device's sessions (spec.md §4.1), which are unregistered
// rather than merely marked errored.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)
	r.byDevice[sess.DeviceName] = removeString(r.byDevice[sess.DeviceName], sessionID)
}

// ensureMonitor starts the monitoring task exactly once per Registry
// lifetime.
func (r *Registry) ensureMonitor() {
	r.monitorOnce.Do(func() {
		done := make(chan struct{})
		r.monitorCancel = func() { close(done) }
		go r.monitor(done)
	})
}

// Stop cancels the monitoring task, if running.
func (r *Registry) Stop() {
	r.mu.Lock()
	cancel := r.monitorCancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// monitor runs the registry's health-check + GC task every
// healthCheckInterval, per spec.md §4.3 "Stall detection".
func (r *Registry) monitor(done <-chan struct{}) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	now := time.Now()

	r.mu.Lock()
	var toNotify []struct {
		sess   model.StreamingSession
		reason string
	}
	var toGC []string
	for id, sess := range r.sessions {
		if sess.Status == model.SessionActive {
			idle := now.Sub(sess.LastActivityTime) >= inactivityThreshold
			old := now.Sub(sess.StartTime) >= maxSessionAge
			if idle {
				sess.Status = model.SessionStalled
			}
			if idle || old {
				reason := "stalled"
				if old && !idle {
					reason = "max-age"
				}
				toNotify = append(toNotify, struct {
					sess   model.StreamingSession
					reason string
				}{sess.Clone(), reason})
			}
		}
		if !sess.Active && now.Sub(sess.LastActivityTime) > gcAfterInactive {
			toGC = append(toGC, id)
		}
	}
	for _, id := range toGC {
		deviceName := r.sessions[id].DeviceName
		delete(r.sessions, id)
		r.byDevice[deviceName] = removeString(r.byDevice[deviceName], id)
	}
	handlers := make([]HealthCheckHandler, len(r.handlers))
	copy(handlers, r.handlers)
	r.mu.Unlock()

	for _, n := range toNotify {
		for _, h := range handlers {
			h(n.sess, n.reason)
		}
	}
	if len(toGC) > 0 {
		log.Printf("streaming: garbage-collected %d inactive session(s)", len(toGC))
	}

	r.publishSessionMetrics()
}

func (r *Registry) publishSessionMetrics() {
	r.mu.Lock()
	m := r.metrics
	r.mu.Unlock()
	if m == nil {
		return
	}
	stats := r.Stats()
	m.SetSessionCounts(map[string]int{
		"active":  stats.ActiveSessions,
		"stalled": stats.StalledSessions,
		"error":   stats.ErroredSessions,
		"total":   stats.TotalSessions,
	})
}

func removeString(ss []string, target string) []string {
	out := ss[:0]
	for _, s := range ss {
		if s != target {
			out = append(out, s)
		}
	}
	return out
}

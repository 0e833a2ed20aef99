// Package devicemanager implements the Device Manager (spec.md §4.1):
// the device registry, discovery reconciliation, the assignment
// protocol, and the per-device health monitor. It owns the only
// mutable device table in the process — every other component reaches
// a device's state through this package's snapshot-returning methods.
package devicemanager

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/dlnafleet/caster/internal/config"
	"github.com/dlnafleet/caster/internal/metrics"
	"github.com/dlnafleet/caster/internal/model"
	"github.com/dlnafleet/caster/internal/renderer"
	"github.com/dlnafleet/caster/internal/streaming"
)

// Connectivity / health tuning constants, per spec.md §4.1.
const (
	connectivityTimeout       = 30 * time.Second
	graceIdle                 = 10 * time.Second
	gracePlaying              = 20 * time.Second
	purgeAfter                = 2 * connectivityTimeout
	discoveryInterval         = 10 * time.Second
	maxRetryAttempts          = 3
	retryBaseDelay            = 5 * time.Second
	playbackHealthCheckPeriod = 30 * time.Second
	consecutiveFailureLimit   = 3
)

// PlaybackProgressSink is the external database collaborator
// update_playback_progress writes through to (spec.md §4.1). The
// Device Manager calls it; it does not implement it.
type PlaybackProgressSink interface {
	RecordProgress(deviceName string, position, duration time.Duration, progressPct float64)
}

// RegisterInfo is what the discovery loop (or any other caller) knows
// about a device before it exists in the registry.
type RegisterInfo struct {
	Name        string
	Type        model.DeviceType
	Hostname    string
	ControlURL  string
	ServiceType string
	Location    string

	FriendlyName string
	Manufacturer string
}

type scheduledAssignment struct {
	videoPath string
	priority  int
	at        time.Time
}

// entry is the Manager's per-device bookkeeping that sits alongside the
// public model.Device snapshot.
type entry struct {
	device model.Device

	renderer *renderer.Renderer

	assignment       model.VideoAssignment
	hasAssignment    bool
	retryCount       int
	consecutiveFails int

	lastObservedCycle time.Time

	healthCancel context.CancelFunc

	stats *model.PlaybackStats
}

// Manager owns the device table and orchestrates discovery, assignment
// and health monitoring.
type Manager struct {
	mu      sync.Mutex
	devices map[string]*entry

	scheduled map[string]scheduledAssignment

	config    *config.Service
	registry  *streaming.Registry
	pool      *streaming.ServerPool
	sink      PlaybackProgressSink
	serveIP   string
	metrics   *metrics.Metrics

	discoveryCancel context.CancelFunc
	paused          bool
}

// New returns an empty Manager wired to the Configuration Service and
// Streaming Session Registry/server pool it delegates to. m may be nil,
// in which case device metrics are simply not published.
func New(cfg *config.Service, reg *streaming.Registry, pool *streaming.ServerPool, sink PlaybackProgressSink, serveIP string, m *metrics.Metrics) *Manager {
	mgr := &Manager{
		devices:   make(map[string]*entry),
		scheduled: make(map[string]scheduledAssignment),
		config:    cfg,
		registry:  reg,
		pool:      pool,
		sink:      sink,
		serveIP:   serveIP,
		metrics:   m,
	}
	if reg != nil {
		reg.RegisterHealthCheckHandler(mgr.onStreamingHealthEvent)
	}
	return mgr
}

// publishDeviceMetrics recomputes the devices-by-status gauge from the
// current table. Called at the end of each discovery cycle.
func (m *Manager) publishDeviceMetrics() {
	if m.metrics == nil {
		return
	}
	m.mu.Lock()
	counts := make(map[string]int)
	for _, e := range m.devices {
		counts[string(e.device.Status)]++
	}
	m.mu.Unlock()
	m.metrics.SetDeviceCounts(counts)
}

// Register is idempotent (spec.md §4.1): a device matching on name,
// hostname and location is returned unchanged; a name match with
// different parameters updates in place while preserving streaming
// info and playing state; otherwise a new device is created.
func (m *Manager) Register(info RegisterInfo) *model.Device {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.devices[info.Name]
	now := time.Now()
	if !exists {
		d := model.Device{
			Name:            info.Name,
			Type:            info.Type,
			Hostname:        info.Hostname,
			ControlURL:      info.ControlURL,
			ServiceType:     info.ServiceType,
			Location:        info.Location,
			FriendlyName:    info.FriendlyName,
			Manufacturer:    info.Manufacturer,
			Status:          model.StatusConnected,
			UserControlMode: model.UserControlAuto,
			LastSeen:        now,
			ConnectedSince:  now,
		}
		e = &entry{device: d, renderer: renderer.New(info.Name, info.ControlURL), stats: model.NewPlaybackStats()}
		m.devices[info.Name] = e
		log.Printf("devicemanager: registered new device %q at %s", info.Name, info.Hostname)
	} else if e.device.Hostname != info.Hostname || e.device.Location != info.Location {
		e.device.Hostname = info.Hostname
		e.device.ControlURL = info.ControlURL
		e.device.ServiceType = info.ServiceType
		e.device.Location = info.Location
		e.device.FriendlyName = info.FriendlyName
		e.device.Manufacturer = info.Manufacturer
		e.renderer = renderer.New(info.Name, info.ControlURL)
		log.Printf("devicemanager: device %q parameters changed, updated in place", info.Name)
	}
	e.device.LastSeen = now
	if e.device.Status == model.StatusDisconnected {
		e.device.Status = model.StatusConnected
		e.device.ConnectedSince = now
		log.Printf("devicemanager: device %q reconnected", info.Name)
	}
	e.lastObservedCycle = now

	cp := e.device.Clone()
	return &cp
}

// Unregister removes a device and all derived state.
func (m *Manager) Unregister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.devices[name]
	if !ok {
		return false
	}
	if e.healthCancel != nil {
		e.healthCancel()
	}
	delete(m.devices, name)
	delete(m.scheduled, name)
	log.Printf("devicemanager: unregistered device %q", name)
	return true
}

// List returns a snapshot copy of every known device.
func (m *Manager) List() []model.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Device, 0, len(m.devices))
	for _, e := range m.devices {
		out = append(out, e.device.Clone())
	}
	return out
}

// Get returns a snapshot copy of one device, or nil if unknown.
func (m *Manager) Get(name string) *model.Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.devices[name]
	if !ok {
		return nil
	}
	cp := e.device.Clone()
	return &cp
}

// StatusUpdate is a partial update for UpdateStatus; nil/zero fields
// leave the corresponding Device field untouched — use the pointer
// fields to distinguish "not specified" from "set to zero value".
type StatusUpdate struct {
	Status       *model.DeviceStatus
	IsPlaying    *bool
	CurrentVideo *string
	Error        *string
}

// UpdateStatus applies a partial update, per spec.md §4.1: "unchanged
// fields retain prior values".
func (m *Manager) UpdateStatus(name string, u StatusUpdate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.devices[name]
	if !ok {
		return false
	}
	if u.Status != nil {
		e.device.Status = *u.Status
	}
	if u.IsPlaying != nil {
		e.device.IsPlaying = *u.IsPlaying
	}
	if u.CurrentVideo != nil {
		e.device.CurrentVideo = *u.CurrentVideo
	}
	if u.Error != nil {
		e.device.LastError = *u.Error
		e.device.LastErrorTime = time.Now()
	}
	return true
}

// UpdatePlaybackProgress forwards playback position/duration to the
// injected sink; the device snapshot is not updated. It is a no-op when
// no sink is configured.
func (m *Manager) UpdatePlaybackProgress(name string, position, duration time.Duration, progressPct float64) {
	if m.sink != nil {
		m.sink.RecordProgress(name, position, duration, progressPct)
	}
}

// PlaybackStats returns a copy of a device's accumulated playback
// statistics, or nil if the device is unknown.
func (m *Manager) PlaybackStats(name string) *model.PlaybackStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.devices[name]
	if !ok {
		return nil
	}
	return e.stats.Clone()
}

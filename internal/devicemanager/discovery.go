package devicemanager

import (
	"context"
	"log"
	"net/url"
	"time"

	"github.com/dlnafleet/caster/internal/model"
	"github.com/dlnafleet/caster/internal/ssdp"
)

// StartDiscovery launches the discovery loop (spec.md §4.1: "one cycle,
// repeated every 10s"). Calling it twice without an intervening
// StopDiscovery replaces the running loop.
func (m *Manager) StartDiscovery(ctx context.Context) {
	m.mu.Lock()
	if m.discoveryCancel != nil {
		m.discoveryCancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.discoveryCancel = cancel
	m.paused = false
	m.mu.Unlock()

	go m.discoveryLoop(loopCtx)
}

// StopDiscovery cancels the discovery loop.
func (m *Manager) StopDiscovery() {
	m.mu.Lock()
	cancel := m.discoveryCancel
	m.discoveryCancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Pause suspends reconciliation without stopping the loop's ticker —
// cycles still fire but are skipped, so Resume takes effect immediately
// on the next tick rather than waiting for a fresh StartDiscovery.
func (m *Manager) Pause() {
	m.mu.Lock()
	m.paused = true
	m.mu.Unlock()
}

// Resume undoes Pause.
func (m *Manager) Resume() {
	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()
}

func (m *Manager) discoveryLoop(ctx context.Context) {
	m.runDiscoveryCycle(ctx)
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runDiscoveryCycle(ctx)
		}
	}
}

func (m *Manager) runDiscoveryCycle(ctx context.Context) {
	m.mu.Lock()
	paused := m.paused
	m.mu.Unlock()
	if paused {
		return
	}

	m.sweepScheduledAssignments()

	responses, err := ssdp.Scan(ctx)
	if err != nil {
		log.Printf("devicemanager: discovery scan failed: %v", err)
	} else {
		seen := make(map[string]bool, len(responses))
		for _, resp := range responses {
			info, ok := m.describeAndBuildInfo(ctx, resp)
			if !ok {
				continue
			}
			m.Register(info)
			m.reconcileAgainstConfig(info.Name)
			seen[info.Name] = true
		}
		m.applyDisconnectionPolicy(seen)
	}
	m.publishDeviceMetrics()
}

// describeAndBuildInfo fetches a discovered device's description XML
// and turns it into a RegisterInfo, per spec.md §4.1 step 3. The
// device name is the friendly name, falling back to the LOCATION host
// when absent.
func (m *Manager) describeAndBuildInfo(ctx context.Context, resp ssdp.Response) (RegisterInfo, bool) {
	desc, err := ssdp.FetchDescription(ctx, resp.Location)
	if err != nil {
		log.Printf("devicemanager: fetch description %s: %v", resp.Location, err)
		return RegisterInfo{}, false
	}
	name := desc.FriendlyName
	host := hostFromLocation(resp.Location)
	if name == "" {
		name = host
	}
	return RegisterInfo{
		Name:         name,
		Type:         model.DeviceTypeDLNA,
		Hostname:     host,
		ControlURL:   desc.ControlURL,
		ServiceType:  resp.ServiceType,
		Location:     resp.Location,
		FriendlyName: desc.FriendlyName,
		Manufacturer: desc.Manufacturer,
	}, true
}

// reconcileAgainstConfig issues an assignment when a newly-seen or
// already-known device's current assignment diverges from the
// Configuration Service's desired state, per spec.md §3's data-flow
// step 3: "Device Manager reconciles observed renderers against
// desired state, issuing assignment commands." A device already
// playing its configured video is left alone.
func (m *Manager) reconcileAgainstConfig(name string) {
	if m.config == nil {
		return
	}
	cfg := m.config.Get(name)
	if cfg == nil || cfg.VideoFile == "" {
		return
	}
	m.mu.Lock()
	e, ok := m.devices[name]
	if !ok {
		m.mu.Unlock()
		return
	}
	matches := e.hasAssignment && e.assignment.VideoPath == cfg.VideoFile
	m.mu.Unlock()
	if matches {
		return
	}
	m.Assign(name, cfg.VideoFile, cfg.Priority, cfg.Schedule)
}

func hostFromLocation(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return location
	}
	return u.Hostname()
}

// applyDisconnectionPolicy implements spec.md §4.1's grace-period,
// disconnected-status and purge rules for devices absent from the
// current discovery cycle's observed set.
func (m *Manager) applyDisconnectionPolicy(seen map[string]bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var toPurge []string
	for name, e := range m.devices {
		if seen[name] {
			continue
		}
		grace := graceIdle
		if e.device.IsPlaying {
			grace = gracePlaying
		}
		elapsed := now.Sub(e.lastObservedCycle)
		if elapsed < grace {
			continue
		}

		if elapsed >= purgeAfter {
			toPurge = append(toPurge, name)
			continue
		}

		if elapsed >= connectivityTimeout && e.device.Status != model.StatusDisconnected {
			e.device.Status = model.StatusDisconnected
			log.Printf("devicemanager: device %q marked disconnected after %v", name, elapsed)
			if m.registry != nil {
				for _, id := range m.registry.ForDevice(name) {
					m.registry.Unregister(id)
				}
			}
		}
	}
	for _, name := range toPurge {
		e := m.devices[name]
		if e.healthCancel != nil {
			e.healthCancel()
		}
		delete(m.devices, name)
		delete(m.scheduled, name)
		log.Printf("devicemanager: purged device %q after %v unobserved", name, purgeAfter)
	}
}

// sweepScheduledAssignments promotes scheduled assignments whose time
// has come into live assignments with priority 100, per spec.md §4.1
// "Scheduled-assignments sweep" — run before reconciling each cycle.
func (m *Manager) sweepScheduledAssignments() {
	now := time.Now()
	m.mu.Lock()
	var due []struct {
		name      string
		videoPath string
	}
	for name, sched := range m.scheduled {
		if !sched.at.After(now) {
			due = append(due, struct {
				name      string
				videoPath string
			}{name, sched.videoPath})
			delete(m.scheduled, name)
		}
	}
	m.mu.Unlock()

	for _, d := range due {
		log.Printf("devicemanager: scheduled assignment for %q matured, enqueuing at priority 100", d.name)
		m.Assign(d.name, d.videoPath, 100, nil)
	}
}

package devicemanager

import (
	"testing"
	"time"

	"github.com/dlnafleet/caster/internal/model"
)

func TestApplyDisconnectionPolicyMarksDisconnectedAfterTimeout(t *testing.T) {
	m := newTestManager(t)
	m.Register(RegisterInfo{Name: "tv1", Hostname: "h"})

	m.mu.Lock()
	m.devices["tv1"].lastObservedCycle = time.Now().Add(-(connectivityTimeout + time.Second))
	m.mu.Unlock()

	m.applyDisconnectionPolicy(map[string]bool{})

	got := m.Get("tv1")
	if got.Status != model.StatusDisconnected {
		t.Fatalf("status = %v, want disconnected", got.Status)
	}
}

func TestApplyDisconnectionPolicyRespectsGracePeriod(t *testing.T) {
	m := newTestManager(t)
	m.Register(RegisterInfo{Name: "tv1", Hostname: "h"})

	m.mu.Lock()
	m.devices["tv1"].lastObservedCycle = time.Now().Add(-5 * time.Second)
	m.mu.Unlock()

	m.applyDisconnectionPolicy(map[string]bool{})

	got := m.Get("tv1")
	if got.Status != model.StatusConnected {
		t.Fatalf("status = %v, want still connected within grace period", got.Status)
	}
}

func TestApplyDisconnectionPolicyUsesLongerGraceWhilePlaying(t *testing.T) {
	m := newTestManager(t)
	m.Register(RegisterInfo{Name: "tv1", Hostname: "h"})
	m.UpdateStatus("tv1", StatusUpdate{IsPlaying: boolPtr(true)})

	m.mu.Lock()
	m.devices["tv1"].lastObservedCycle = time.Now().Add(-15 * time.Second)
	m.mu.Unlock()

	m.applyDisconnectionPolicy(map[string]bool{})

	got := m.Get("tv1")
	if got.Status != model.StatusConnected {
		t.Fatalf("status = %v, want still connected (playing grace is 20s)", got.Status)
	}
}

func TestApplyDisconnectionPolicyPurgesAfterDoubleTimeout(t *testing.T) {
	m := newTestManager(t)
	m.Register(RegisterInfo{Name: "tv1", Hostname: "h"})

	m.mu.Lock()
	m.devices["tv1"].lastObservedCycle = time.Now().Add(-(purgeAfter + time.Second))
	m.mu.Unlock()

	m.applyDisconnectionPolicy(map[string]bool{})

	if m.Get("tv1") != nil {
		t.Fatal("expected device purged after 2x connectivity_timeout")
	}
}

func TestApplyDisconnectionPolicyIgnoresObservedDevices(t *testing.T) {
	m := newTestManager(t)
	m.Register(RegisterInfo{Name: "tv1", Hostname: "h"})

	m.mu.Lock()
	m.devices["tv1"].lastObservedCycle = time.Now().Add(-(purgeAfter + time.Second))
	m.mu.Unlock()

	m.applyDisconnectionPolicy(map[string]bool{"tv1": true})

	if m.Get("tv1") == nil {
		t.Fatal("expected observed device to survive regardless of stale lastObservedCycle")
	}
}

func TestSweepScheduledAssignmentsPromotesDueEntries(t *testing.T) {
	m := newTestManager(t)
	m.Register(RegisterInfo{Name: "tv1", Hostname: "h"})
	dir := t.TempDir()
	video := writeVideoFile(t, dir, "a.mp4")

	m.mu.Lock()
	m.scheduled["tv1"] = scheduledAssignment{videoPath: video, priority: 100, at: time.Now().Add(-time.Second)}
	m.mu.Unlock()

	m.sweepScheduledAssignments()

	m.mu.Lock()
	_, stillScheduled := m.scheduled["tv1"]
	hasAssignment := m.devices["tv1"].hasAssignment
	m.mu.Unlock()

	if stillScheduled {
		t.Fatal("expected matured entry removed from scheduled map")
	}
	if !hasAssignment {
		t.Fatal("expected matured entry promoted to a live assignment")
	}
}

func TestSweepScheduledAssignmentsLeavesFutureEntries(t *testing.T) {
	m := newTestManager(t)
	m.Register(RegisterInfo{Name: "tv1", Hostname: "h"})

	m.mu.Lock()
	m.scheduled["tv1"] = scheduledAssignment{videoPath: "/x.mp4", priority: 100, at: time.Now().Add(time.Hour)}
	m.mu.Unlock()

	m.sweepScheduledAssignments()

	m.mu.Lock()
	_, stillScheduled := m.scheduled["tv1"]
	m.mu.Unlock()
	if !stillScheduled {
		t.Fatal("expected future-dated entry to remain scheduled")
	}
}

func TestHostFromLocation(t *testing.T) {
	if got := hostFromLocation("http://192.168.1.5:8080/desc.xml"); got != "192.168.1.5" {
		t.Fatalf("hostFromLocation = %q, want 192.168.1.5", got)
	}
}

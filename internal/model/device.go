// Package model holds the shared data types that flow between the
// discovery, assignment, rendering and streaming components: Device,
// DeviceConfig, VideoAssignment and StreamingSession.
package model

import "time"

// DeviceType identifies the renderer protocol family.
type DeviceType string

const (
	DeviceTypeDLNA       DeviceType = "dlna"
	DeviceTypeTranscreen DeviceType = "transcreen"
)

// DeviceStatus is the observed state of a renderer.
type DeviceStatus string

const (
	StatusConnected      DeviceStatus = "connected"
	StatusDisconnected   DeviceStatus = "disconnected"
	StatusPlaying        DeviceStatus = "playing"
	StatusPaused         DeviceStatus = "paused"
	StatusError          DeviceStatus = "error"
	StatusStreamingIssue DeviceStatus = "streaming_issue"
)

// UserControlMode gates whether the Device Manager's assignment engine
// is allowed to drive a device, or whether a human has taken it over.
type UserControlMode string

const (
	UserControlAuto        UserControlMode = "auto"
	UserControlManualPlay  UserControlMode = "manual-play"
	UserControlManualStop  UserControlMode = "manual-stop"
)

// Device is a controllable renderer, identified by its unique name.
// Callers only ever receive copies — the owning Device Manager table is
// never exposed by reference (see spec "Ownership").
type Device struct {
	Name        string     `json:"name"`
	Type        DeviceType `json:"type"`
	Hostname    string     `json:"hostname"`
	ControlURL  string     `json:"control_url"`
	ServiceType string     `json:"service_type"`
	Location    string     `json:"location"`

	Status         DeviceStatus    `json:"status"`
	IsPlaying      bool            `json:"is_playing"`
	CurrentVideo   string          `json:"current_video"`
	StreamingURL   string          `json:"streaming_url"`
	StreamingPort  int             `json:"streaming_port"`
	LastSeen       time.Time       `json:"last_seen"`
	ConnectedSince time.Time       `json:"connected_since"`

	UserControlMode UserControlMode `json:"user_control_mode"`

	StreamingIssues bool   `json:"streaming_issues"`
	LastError       string `json:"last_error,omitempty"`
	LastErrorTime   time.Time `json:"last_error_time,omitempty"`

	FriendlyName string `json:"friendly_name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// owning table (Device has no nested mutable reference types today, but
// Clone exists so callers never rely on that coincidence).
func (d Device) Clone() Device {
	return d
}

// DeviceConfigSource names where a DeviceConfig entry came from, for
// source-priority arbitration (spec.md §3, §4.4).
type DeviceConfigSource string

// SourcePriority returns the arbitration priority for a source tag:
// sources ending in ".json" (config files) are 100, everything else
// (e.g. "manual") is 50 — spec.md §4.4 "Source priority".
func SourcePriority(source string) int {
	if len(source) >= 5 && source[len(source)-5:] == ".json" {
		return 100
	}
	return 50
}

// DeviceConfig is the desired-state entry for one device, keyed by name
// in the Configuration Service.
type DeviceConfig struct {
	Type       DeviceType `json:"type"`
	Hostname   string     `json:"hostname"`
	ActionURL  string     `json:"action_url"`
	VideoFile  string     `json:"video_file"`

	FriendlyName string `json:"friendly_name,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Location     string `json:"location,omitempty"`

	Priority int        `json:"priority"`
	Loop     bool       `json:"loop"`
	Schedule *time.Time `json:"schedule,omitempty"`

	AirplayMode       bool   `json:"airplay_mode,omitempty"`
	AirplayURL        string `json:"airplay_url,omitempty"`
	EnableOverlaySync bool   `json:"enable_overlay_sync,omitempty"`
	SyncVideoName     string `json:"sync_video_name,omitempty"`

	// Source is the provenance tag (a file path, or "manual"); it
	// determines SourcePriority and is not part of the wire JSON array
	// format (spec.md §6) — it is set by the Configuration Service.
	Source string `json:"-"`
}

// DeviceConfigDefaults sets Priority to 50 when it is zero. Loop is left
// as given: a config that omits it has Loop false.
func DeviceConfigDefaults(c DeviceConfig) DeviceConfig {
	if c.Priority == 0 {
		c.Priority = 50
	}
	return c
}

// VideoAssignment is the current desired video for one device.
type VideoAssignment struct {
	VideoPath string
	Priority  int
}

// Accepts reports whether an incoming assignment at newPriority may
// replace the current one, per spec.md's invariant: "new.priority >=
// current.priority" (B3: a tie accepts).
func (a VideoAssignment) Accepts(newPriority int) bool {
	return newPriority >= a.Priority
}

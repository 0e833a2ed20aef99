package model

import "time"

// SessionStatus is the lifecycle state of a StreamingSession.
type SessionStatus string

const (
	SessionInitializing SessionStatus = "initializing"
	SessionActive        SessionStatus = "active"
	SessionStalled        SessionStatus = "stalled"
	SessionError          SessionStatus = "error"
	SessionCompleted       SessionStatus = "completed"
)

// maxBandwidthSamples bounds the rolling bandwidth window (spec.md §3).
const maxBandwidthSamples = 10

// maxConnectionHistory bounds the retained connection-event history.
const maxConnectionHistory = 20

// BandwidthSample is one (timestamp, bytes, duration) observation used
// to compute a rolling average transfer rate.
type BandwidthSample struct {
	At       time.Time
	Bytes    int64
	Duration time.Duration
}

// ConnectionEvent records one client-connect/disconnect observation.
type ConnectionEvent struct {
	At        time.Time
	ClientIP  string
	Connected bool
}

// StreamingSession is one (device, video, server_ip, server_port)
// serving relationship, owned exclusively by the Streaming Session
// Registry.
type StreamingSession struct {
	ID         string
	DeviceName string
	VideoPath  string
	ServerIP   string
	ServerPort int

	Status SessionStatus
	Active bool

	StartTime        time.Time
	LastActivityTime time.Time

	BytesServed       int64
	ClientIP          string
	ClientConnections int
	ConnectionErrors  int
	ErrorMessage      string

	bandwidthSamples  []BandwidthSample
	connectionHistory []ConnectionEvent
}

// Clone returns a value copy safe to expose to callers outside the
// Registry (spec.md "Ownership": "no component exposes mutable
// references to its internal tables").
func (s *StreamingSession) Clone() StreamingSession {
	cp := *s
	cp.bandwidthSamples = append([]BandwidthSample(nil), s.bandwidthSamples...)
	cp.connectionHistory = append([]ConnectionEvent(nil), s.connectionHistory...)
	return cp
}

// RecordBandwidth appends a bandwidth sample, capping the retained
// window at maxBandwidthSamples (spec.md §3: "rolling bandwidth samples
// (≤10 entries)").
func (s *StreamingSession) RecordBandwidth(at time.Time, bytes int64, dur time.Duration) {
	s.bandwidthSamples = append(s.bandwidthSamples, BandwidthSample{At: at, Bytes: bytes, Duration: dur})
	if len(s.bandwidthSamples) > maxBandwidthSamples {
		s.bandwidthSamples = s.bandwidthSamples[len(s.bandwidthSamples)-maxBandwidthSamples:]
	}
}

// Bandwidth returns the mean bytes/sec over the retained samples, or 0
// if there are none or all durations are zero.
func (s *StreamingSession) Bandwidth() float64 {
	if len(s.bandwidthSamples) == 0 {
		return 0
	}
	var sumRate float64
	var n int
	for _, sample := range s.bandwidthSamples {
		if sample.Duration <= 0 {
			continue
		}
		sumRate += float64(sample.Bytes) / sample.Duration.Seconds()
		n++
	}
	if n == 0 {
		return 0
	}
	return sumRate / float64(n)
}

// RecordConnection appends a connection event, capping the retained
// history at maxConnectionHistory (spec.md §3: "connection history
// (≤20 entries)").
func (s *StreamingSession) RecordConnection(at time.Time, clientIP string, connected bool) {
	s.connectionHistory = append(s.connectionHistory, ConnectionEvent{At: at, ClientIP: clientIP, Connected: connected})
	if len(s.connectionHistory) > maxConnectionHistory {
		s.connectionHistory = s.connectionHistory[len(s.connectionHistory)-maxConnectionHistory:]
	}
}

// ConnectionHistory returns a copy of the retained connection events.
func (s *StreamingSession) ConnectionHistory() []ConnectionEvent {
	return append([]ConnectionEvent(nil), s.connectionHistory...)
}

// PlaybackStats aggregates per-device play attempts for
// get_playback_statistics-style reporting (spec.md §4.1 step 9,
// SPEC_FULL.md §11).
type PlaybackStats struct {
	Attempts  int
	Successes int
	PerVideo  map[string]*VideoStats
}

// VideoStats is the attempt/success breakdown for a single video path.
type VideoStats struct {
	Attempts  int
	Successes int
}

// NewPlaybackStats returns a zeroed PlaybackStats ready to record.
func NewPlaybackStats() *PlaybackStats {
	return &PlaybackStats{PerVideo: make(map[string]*VideoStats)}
}

// RecordAttempt updates the aggregate and per-video counters for one
// play attempt.
func (p *PlaybackStats) RecordAttempt(video string, success bool) {
	p.Attempts++
	v, ok := p.PerVideo[video]
	if !ok {
		v = &VideoStats{}
		p.PerVideo[video] = v
	}
	v.Attempts++
	if success {
		p.Successes++
		v.Successes++
	}
}

// SuccessRate returns Successes/Attempts, or 0 if there have been no
// attempts yet.
func (p *PlaybackStats) SuccessRate() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Attempts)
}

// Clone returns a deep copy of the stats safe to hand to a caller.
func (p *PlaybackStats) Clone() *PlaybackStats {
	cp := &PlaybackStats{Attempts: p.Attempts, Successes: p.Successes, PerVideo: make(map[string]*VideoStats, len(p.PerVideo))}
	for k, v := range p.PerVideo {
		vv := *v
		cp.PerVideo[k] = &vv
	}
	return cp
}

package streaming

import "github.com/dlnafleet/caster/internal/model"

// Stats is the aggregate snapshot returned by Registry.Stats, per
// spec.md §4.3's get_streaming_stats().
type Stats struct {
	TotalSessions    int
	ActiveSessions   int
	StalledSessions  int
	ErroredSessions  int
	TotalBytesServed int64
}

// Stats aggregates the current session table, per spec.md §4.3.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	var s Stats
	s.TotalSessions = len(r.sessions)
	for _, sess := range r.sessions {
		s.TotalBytesServed += sess.BytesServed
		switch sess.Status {
		case model.SessionActive:
			s.ActiveSessions++
		case model.SessionStalled:
			s.StalledSessions++
		case model.SessionError:
			s.ErroredSessions++
		}
	}
	return s
}

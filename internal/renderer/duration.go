package renderer

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// errNotConfirmed signals that a seek-based restart completed without
// error but GetPositionInfo didn't confirm the renderer actually rewound
// — the caller falls through to a full reset.
var errNotConfirmed = errors.New("renderer: seek restart not confirmed")

// determineDuration implements spec.md §4.2.1 step 1's fallback chain:
// stored metadata, local ffprobe, AVTransport TrackDuration, else 30s.
func (r *Renderer) determineDuration(ctx context.Context, videoPath string) time.Duration {
	r.mu.Lock()
	stored := r.videoDuration
	r.mu.Unlock()
	if stored > 0 {
		return stored
	}

	if d, err := probeDurationFfprobe(ctx, videoPath); err == nil && d > 0 {
		r.setVideoDuration(d)
		return d
	}

	if info, err := r.GetPositionInfo(ctx); err == nil {
		if d, ok := parseHHMMSS(info.TrackDuration); ok && d > 0 {
			r.setVideoDuration(d)
			return d
		}
	}

	return defaultDuration
}

func (r *Renderer) setVideoDuration(d time.Duration) {
	r.mu.Lock()
	r.videoDuration = d
	r.mu.Unlock()
}

// probeDurationFfprobe shells out to ffprobe, the same tool the teacher's
// stream-transcode-mode detection path invokes, to read a local media
// file's duration. Missing ffprobe or a non-local URL simply errors, and
// the caller falls through to the next source in the chain.
func probeDurationFfprobe(ctx context.Context, videoPath string) (time.Duration, error) {
	if strings.Contains(videoPath, "://") {
		return 0, fmt.Errorf("renderer: ffprobe: %q is not a local path", videoPath)
	}
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("renderer: ffprobe: %w", err)
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("renderer: ffprobe: parse duration: %w", err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// parseHHMMSS parses an AVTransport HH:MM:SS duration/position string.
func parseHHMMSS(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, true
}

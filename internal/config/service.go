// Package config implements casterd's own runtime settings (RuntimeConfig,
// in config.go) and the Configuration Service: the thread-safe,
// source-priority-arbitrated, file-backed table of desired-state device
// configurations that the Device Manager reconciles against.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dlnafleet/caster/internal/model"
	"github.com/dlnafleet/caster/internal/safeurl"
)

// lockTimeout is spec.md §4.4/§5: "Lock acquisition (config): 5s".
const lockTimeout = 5 * time.Second

// Service is the single source of truth for device configurations. It is
// safe for concurrent use. The zero value is not usable; use New.
type Service struct {
	// lock is a buffered channel of size 1 used as a try-lock-with-timeout,
	// the same channel-as-semaphore idiom internal/httpclient's
	// HostSemaphore uses for per-host concurrency limiting.
	lock    chan struct{}
	entries map[string]*model.DeviceConfig
	sources map[string]string
}

// New returns an empty Service.
func New() *Service {
	return &Service{
		lock:    make(chan struct{}, 1),
		entries: make(map[string]*model.DeviceConfig),
		sources: make(map[string]string),
	}
}

// acquire blocks up to lockTimeout trying to take the table lock. It
// returns false rather than deadlocking, per spec.md §4.4: "_acquire_lock
// returns false rather than deadlocking."
func (s *Service) acquire() bool {
	select {
	case s.lock <- struct{}{}:
		return true
	case <-time.After(lockTimeout):
		log.Printf("config: failed to acquire lock within %s", lockTimeout)
		return false
	}
}

func (s *Service) release() {
	select {
	case <-s.lock:
	default:
	}
}

func missingRequiredFields(cfg model.DeviceConfig) []string {
	var missing []string
	if cfg.Type == "" {
		missing = append(missing, "type")
	}
	if cfg.Hostname == "" {
		missing = append(missing, "hostname")
	}
	if cfg.ActionURL == "" {
		missing = append(missing, "action_url")
	}
	if cfg.VideoFile == "" {
		missing = append(missing, "video_file")
	}
	return missing
}

// Add validates cfg, refuses to overwrite a higher-source-priority entry,
// and stores it under name. Returns false (without error detail, matching
// spec.md's bool-returning operations) on any validation failure or lock
// timeout.
func (s *Service) Add(name string, cfg model.DeviceConfig, source string) bool {
	if missing := missingRequiredFields(cfg); len(missing) > 0 {
		log.Printf("config: add %q: missing required fields %v", name, missing)
		return false
	}
	if !safeurl.IsHTTPOrHTTPS(cfg.ActionURL) {
		log.Printf("config: add %q: action_url %q is not http(s)", name, cfg.ActionURL)
		return false
	}
	if _, err := os.Stat(cfg.VideoFile); err != nil {
		log.Printf("config: add %q: video file not found: %s", name, cfg.VideoFile)
		return false
	}
	if !s.acquire() {
		return false
	}
	defer s.release()

	if currentSource, ok := s.sources[name]; ok {
		if model.SourcePriority(currentSource) > model.SourcePriority(source) {
			log.Printf("config: not overriding %q config from %q with %q", name, currentSource, source)
			return false
		}
	}
	cfgCopy := cfg
	cfgCopy.Source = source
	s.entries[name] = &cfgCopy
	s.sources[name] = source
	log.Printf("config: added device configuration for %q from %q", name, source)
	return true
}

// Get returns a defensive copy of name's configuration, or nil if absent
// or the lock could not be acquired.
func (s *Service) Get(name string) *model.DeviceConfig {
	if !s.acquire() {
		return nil
	}
	defer s.release()
	cfg, ok := s.entries[name]
	if !ok {
		return nil
	}
	cp := *cfg
	return &cp
}

// All returns a defensive copy of every configuration in the table.
func (s *Service) All() map[string]model.DeviceConfig {
	out := make(map[string]model.DeviceConfig)
	if !s.acquire() {
		return out
	}
	defer s.release()
	for name, cfg := range s.entries {
		out[name] = *cfg
	}
	return out
}

// Update merges partial into the existing configuration for name and
// records source. Returns false if name is unknown or the lock could not
// be acquired.
func (s *Service) Update(name string, partial model.DeviceConfig, source string) bool {
	if !s.acquire() {
		return false
	}
	defer s.release()
	current, ok := s.entries[name]
	if !ok {
		log.Printf("config: update %q: not found", name)
		return false
	}
	merged := mergeDeviceConfig(*current, partial)
	merged.Source = source
	s.entries[name] = &merged
	s.sources[name] = source
	log.Printf("config: updated device configuration for %q from %q", name, source)
	return true
}

// mergeDeviceConfig overlays non-zero fields of patch onto base.
func mergeDeviceConfig(base, patch model.DeviceConfig) model.DeviceConfig {
	out := base
	if patch.Type != "" {
		out.Type = patch.Type
	}
	if patch.Hostname != "" {
		out.Hostname = patch.Hostname
	}
	if patch.ActionURL != "" {
		out.ActionURL = patch.ActionURL
	}
	if patch.VideoFile != "" {
		out.VideoFile = patch.VideoFile
	}
	if patch.FriendlyName != "" {
		out.FriendlyName = patch.FriendlyName
	}
	if patch.Manufacturer != "" {
		out.Manufacturer = patch.Manufacturer
	}
	if patch.Location != "" {
		out.Location = patch.Location
	}
	if patch.Priority != 0 {
		out.Priority = patch.Priority
	}
	if patch.Loop {
		out.Loop = true
	}
	if patch.Schedule != nil {
		out.Schedule = patch.Schedule
	}
	if patch.AirplayMode {
		out.AirplayMode = true
	}
	if patch.AirplayURL != "" {
		out.AirplayURL = patch.AirplayURL
	}
	if patch.EnableOverlaySync {
		out.EnableOverlaySync = true
	}
	if patch.SyncVideoName != "" {
		out.SyncVideoName = patch.SyncVideoName
	}
	return out
}

// Remove drops name from the table. Returns false if name is unknown or
// the lock could not be acquired.
func (s *Service) Remove(name string) bool {
	if !s.acquire() {
		return false
	}
	defer s.release()
	if _, ok := s.entries[name]; !ok {
		return false
	}
	delete(s.entries, name)
	delete(s.sources, name)
	return true
}

// Clear drops every entry in the table.
func (s *Service) Clear() {
	if !s.acquire() {
		return
	}
	defer s.release()
	s.entries = make(map[string]*model.DeviceConfig)
	s.sources = make(map[string]string)
}

// fileEntry is the JSON wire shape documented at spec.md §6
// "Configuration file format (JSON)".
type fileEntry struct {
	DeviceName        string     `json:"device_name"`
	Type              string     `json:"type"`
	Hostname          string     `json:"hostname"`
	ActionURL         string     `json:"action_url"`
	VideoFile         string     `json:"video_file"`
	FriendlyName      string     `json:"friendly_name,omitempty"`
	Manufacturer      string     `json:"manufacturer,omitempty"`
	Location          string     `json:"location,omitempty"`
	Priority          int        `json:"priority,omitempty"`
	Loop              bool       `json:"loop,omitempty"`
	Schedule          *time.Time `json:"schedule,omitempty"`
	AirplayMode       bool       `json:"airplay_mode,omitempty"`
	AirplayURL        string     `json:"airplay_url,omitempty"`
	EnableOverlaySync bool       `json:"enable_overlay_sync,omitempty"`
	SyncVideoName     string     `json:"sync_video_name,omitempty"`
}

func (e fileEntry) toDeviceConfig() model.DeviceConfig {
	var cfg model.DeviceConfig
	cfg.Type = model.DeviceType(e.Type)
	cfg.Hostname = e.Hostname
	cfg.ActionURL = e.ActionURL
	cfg.VideoFile = e.VideoFile
	cfg.FriendlyName = e.FriendlyName
	cfg.Manufacturer = e.Manufacturer
	cfg.Location = e.Location
	if e.Priority != 0 {
		cfg.Priority = e.Priority
	}
	cfg.Loop = e.Loop
	cfg.Schedule = e.Schedule
	cfg.AirplayMode = e.AirplayMode
	cfg.AirplayURL = e.AirplayURL
	cfg.EnableOverlaySync = e.EnableOverlaySync
	cfg.SyncVideoName = e.SyncVideoName
	return model.DeviceConfigDefaults(cfg)
}

func fromDeviceConfig(name string, cfg model.DeviceConfig) fileEntry {
	return fileEntry{
		DeviceName:        name,
		Type:              string(cfg.Type),
		Hostname:          cfg.Hostname,
		ActionURL:         cfg.ActionURL,
		VideoFile:         cfg.VideoFile,
		FriendlyName:      cfg.FriendlyName,
		Manufacturer:      cfg.Manufacturer,
		Location:          cfg.Location,
		Priority:          cfg.Priority,
		Loop:              cfg.Loop,
		Schedule:          cfg.Schedule,
		AirplayMode:       cfg.AirplayMode,
		AirplayURL:        cfg.AirplayURL,
		EnableOverlaySync: cfg.EnableOverlaySync,
		SyncVideoName:     cfg.SyncVideoName,
	}
}

// LoadFromFile reads a JSON array of device-config entries from path,
// first purging any existing entries whose source is exactly path so a
// hot-reload of the same file leaves a consistent table, then adding each
// entry with source = path. Per-entry failures are logged and skipped.
// Returns the names of successfully loaded entries.
func (s *Service) LoadFromFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	var raw []fileEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: load %s: parse: %w", path, err)
	}

	s.purgeSource(path)

	var loaded []string
	for _, entry := range raw {
		if entry.DeviceName == "" {
			log.Printf("config: load %s: skipping entry with empty device_name", path)
			continue
		}
		if s.Add(entry.DeviceName, entry.toDeviceConfig(), path) {
			loaded = append(loaded, entry.DeviceName)
		}
	}
	log.Printf("config: loaded %d device configuration(s) from %s", len(loaded), path)
	return loaded, nil
}

// purgeSource removes every entry whose recorded source equals source.
func (s *Service) purgeSource(source string) {
	if !s.acquire() {
		return
	}
	var toRemove []string
	for name, src := range s.sources {
		if src == source {
			toRemove = append(toRemove, name)
		}
	}
	for _, name := range toRemove {
		delete(s.entries, name)
		delete(s.sources, name)
	}
	s.release()
}

// SaveToFile writes the current table to path as a JSON array, atomically
// (write to a temp file in the same directory, then rename), so readers
// never observe a partially written file. If filterSource is non-empty, only entries
// recorded under that exact source are written.
func (s *Service) SaveToFile(path, filterSource string) error {
	if !s.acquire() {
		return fmt.Errorf("config: save %s: lock timeout", path)
	}
	var entries []fileEntry
	for name, cfg := range s.entries {
		if filterSource != "" && s.sources[name] != filterSource {
			continue
		}
		entries = append(entries, fromDeviceConfig(name, *cfg))
	}
	s.release()

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("config: save %s: marshal: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: save %s: create temp: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("config: save %s: write: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: save %s: close: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: save %s: chmod: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("config: save %s: rename: %w", path, err)
	}
	return nil
}

// LoadDir loads every *.json file directly inside dir, in lexical order.
// Non-JSON files are ignored; per-file errors are logged and skipped so
// one malformed source file doesn't block the others.
func (s *Service) LoadDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("config: read dir %s: %v", dir, err)
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if _, err := s.LoadFromFile(path); err != nil {
			log.Printf("config: %v", err)
		}
	}
}

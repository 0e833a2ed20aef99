package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dlnafleet/caster/internal/model"
)

func writeVideoFile(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAddRequiresFieldsAndExistingVideoFile(t *testing.T) {
	dir := t.TempDir()
	video := writeVideoFile(t, dir, "a.mp4")
	svc := New()

	if svc.Add("tv1", model.DeviceConfig{}, "manual") {
		t.Fatal("expected Add to reject missing required fields")
	}
	cfg := model.DeviceConfig{Type: model.DeviceTypeDLNA, Hostname: "h", ActionURL: "http://device/action", VideoFile: filepath.Join(dir, "missing.mp4")}
	if svc.Add("tv1", cfg, "manual") {
		t.Fatal("expected Add to reject nonexistent video file")
	}
	cfg.VideoFile = video
	if !svc.Add("tv1", cfg, "manual") {
		t.Fatal("expected Add to succeed")
	}
	got := svc.Get("tv1")
	if got == nil || got.Hostname != "h" {
		t.Fatalf("Get after Add = %+v", got)
	}
}

func TestAddRefusesLowerPriorityOverwrite(t *testing.T) {
	dir := t.TempDir()
	video := writeVideoFile(t, dir, "a.mp4")
	svc := New()
	cfg := model.DeviceConfig{Type: model.DeviceTypeDLNA, Hostname: "h1", ActionURL: "http://device/action", VideoFile: video}

	if !svc.Add("tv1", cfg, "sources.json") {
		t.Fatal("first add from .json source should succeed")
	}
	cfg.Hostname = "h2"
	if svc.Add("tv1", cfg, "manual") {
		t.Fatal("manual (priority 50) should not override .json (priority 100) source")
	}
	if got := svc.Get("tv1"); got.Hostname != "h1" {
		t.Fatalf("entry should be unchanged, got hostname %q", got.Hostname)
	}

	cfg.Hostname = "h3"
	if !svc.Add("tv1", cfg, "other.json") {
		t.Fatal("equal-priority .json source should be allowed to overwrite")
	}
}

func TestUpdateMergesPartial(t *testing.T) {
	dir := t.TempDir()
	video := writeVideoFile(t, dir, "a.mp4")
	svc := New()
	cfg := model.DeviceConfig{Type: model.DeviceTypeDLNA, Hostname: "h", ActionURL: "http://device/action", VideoFile: video, Priority: 50}
	svc.Add("tv1", cfg, "manual")

	if !svc.Update("tv1", model.DeviceConfig{Hostname: "h2"}, "manual") {
		t.Fatal("expected Update to succeed")
	}
	got := svc.Get("tv1")
	if got.Hostname != "h2" {
		t.Fatalf("Hostname after update = %q", got.Hostname)
	}
	if got.ActionURL != "http://device/action" {
		t.Fatalf("unrelated field should be preserved, got %q", got.ActionURL)
	}

	if svc.Update("nonexistent", model.DeviceConfig{}, "manual") {
		t.Fatal("expected Update on unknown device to fail")
	}
}

func TestRemoveAndClear(t *testing.T) {
	dir := t.TempDir()
	video := writeVideoFile(t, dir, "a.mp4")
	svc := New()
	cfg := model.DeviceConfig{Type: model.DeviceTypeDLNA, Hostname: "h", ActionURL: "http://device/action", VideoFile: video}
	svc.Add("tv1", cfg, "manual")

	if !svc.Remove("tv1") {
		t.Fatal("expected Remove to succeed")
	}
	if svc.Remove("tv1") {
		t.Fatal("expected second Remove to fail")
	}

	svc.Add("tv2", cfg, "manual")
	svc.Clear()
	if len(svc.All()) != 0 {
		t.Fatal("expected Clear to empty the table")
	}
}

func TestLoadFromFileAndSourcePriority(t *testing.T) {
	dir := t.TempDir()
	video := writeVideoFile(t, dir, "movie.mp4")
	configPath := filepath.Join(dir, "devices.json")
	entries := []map[string]any{
		{"device_name": "tv1", "type": "dlna", "hostname": "tv1.local", "action_url": "http://tv1/ctrl", "video_file": video},
	}
	data, _ := json.Marshal(entries)
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	svc := New()
	loaded, err := svc.LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if len(loaded) != 1 || loaded[0] != "tv1" {
		t.Fatalf("loaded = %v", loaded)
	}
	got := svc.Get("tv1")
	if got == nil || got.Hostname != "tv1.local" {
		t.Fatalf("Get after LoadFromFile = %+v", got)
	}

	// A manual update should be refused — the .json source outranks it.
	if svc.Add("tv1", model.DeviceConfig{Type: model.DeviceTypeDLNA, Hostname: "override", ActionURL: "http://device/action", VideoFile: video}, "manual") {
		t.Fatal("manual source should not override a loaded .json entry")
	}

	// Reloading the same file purges its prior entries first, so a file
	// that no longer lists tv1 removes it.
	if err := os.WriteFile(configPath, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.LoadFromFile(configPath); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if svc.Get("tv1") != nil {
		t.Fatal("expected tv1 to be purged after reload with empty file")
	}
}

func TestSaveToFileRoundTrips(t *testing.T) {
	dir := t.TempDir()
	video := writeVideoFile(t, dir, "movie.mp4")
	svc := New()
	cfg := model.DeviceConfig{Type: model.DeviceTypeDLNA, Hostname: "tv1.local", ActionURL: "http://tv1/ctrl", VideoFile: video, Priority: 50}
	svc.Add("tv1", cfg, "manual")

	outPath := filepath.Join(dir, "out.json")
	if err := svc.SaveToFile(outPath, ""); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	reloaded := New()
	loaded, err := reloaded.LoadFromFile(outPath)
	if err != nil {
		t.Fatalf("LoadFromFile(saved): %v", err)
	}
	if len(loaded) != 1 || loaded[0] != "tv1" {
		t.Fatalf("reloaded = %v", loaded)
	}
	if got := reloaded.Get("tv1"); got == nil || got.Hostname != "tv1.local" {
		t.Fatalf("reloaded entry = %+v", got)
	}
}

func TestLoadDirLoadsOnlyJSONFiles(t *testing.T) {
	dir := t.TempDir()
	video := writeVideoFile(t, dir, "movie.mp4")
	entries := []map[string]any{
		{"device_name": "tv1", "type": "dlna", "hostname": "tv1.local", "action_url": "http://tv1/ctrl", "video_file": video},
	}
	data, _ := json.Marshal(entries)
	if err := os.WriteFile(filepath.Join(dir, "devices.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := New()
	svc.LoadDir(dir)
	if svc.Get("tv1") == nil {
		t.Fatal("expected tv1 to be loaded from devices.json")
	}
}

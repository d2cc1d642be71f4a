// Package settings persists the daemon's small JSON settings files
// (autocompact, notification preferences) using the teacher's atomic
// temp-file-then-rename pattern (spec §5, §6, §7).
package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// writeAtomic marshals v to path via a temp file in the same directory
// followed by a rename, so a crash mid-write never leaves a truncated
// file behind.
func writeAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	committed = true
	return nil
}

// AutocompactSettings is the daemon's view of the Claude settings file. It
// is a generic map so that every key the Claude CLI itself writes is
// preserved verbatim even though this daemon only understands autoCompact
// (spec §6: "Unknown keys are preserved").
type AutocompactSettings map[string]interface{}

const autocompactKey = "autoCompact"

// LoadAutocompact reads path, treating a missing or corrupt file as empty
// rather than an error (spec §7, taxonomy item 6: "Settings-file
// corruption — treat as empty and rewrite").
func LoadAutocompact(path string) AutocompactSettings {
	data, err := os.ReadFile(path)
	if err != nil {
		return AutocompactSettings{}
	}
	var m AutocompactSettings
	if err := json.Unmarshal(data, &m); err != nil {
		return AutocompactSettings{}
	}
	if m == nil {
		m = AutocompactSettings{}
	}
	return m
}

// Enabled reports the current autoCompact value, defaulting to true when
// absent (Claude's own default).
func (s AutocompactSettings) Enabled() bool {
	v, ok := s[autocompactKey]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	if !ok {
		return true
	}
	return b
}

// SetEnabled returns a copy of s with autoCompact set, leaving every other
// key untouched.
func (s AutocompactSettings) SetEnabled(enabled bool) AutocompactSettings {
	out := make(AutocompactSettings, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[autocompactKey] = enabled
	return out
}

// SaveAutocompact writes s to path atomically.
func SaveAutocompact(path string, s AutocompactSettings) error {
	return writeAtomic(path, s)
}

// NotificationSettings is the daemon's own preferences file (spec §6:
// "JSON under the daemon's own config directory").
type NotificationSettings struct {
	DesktopEnabled bool `json:"desktop_enabled"`
	SoundEnabled   bool `json:"sound_enabled"`
}

func defaultNotificationSettings() NotificationSettings {
	return NotificationSettings{DesktopEnabled: true, SoundEnabled: true}
}

// LoadNotificationSettings reads path, treating a missing or corrupt file
// as the default settings (spec §7, taxonomy item 6).
func LoadNotificationSettings(path string) NotificationSettings {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultNotificationSettings()
	}
	var s NotificationSettings
	if err := json.Unmarshal(data, &s); err != nil {
		return defaultNotificationSettings()
	}
	return s
}

// SaveNotificationSettings writes s to path atomically.
func SaveNotificationSettings(path string, s NotificationSettings) error {
	return writeAtomic(path, s)
}

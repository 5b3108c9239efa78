package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultScreeningSeconds is the silent-screening response window.
const DefaultScreeningSeconds = 8

// ScreeningMode selects the screening strategy.
type ScreeningMode string

const (
	ModeVoice  ScreeningMode = "voice"
	ModeSilent ScreeningMode = "silent"
)

// Settings are the user-owned flags read once per incoming call.
type Settings struct {
	SpamDetection            bool          `yaml:"spam_detection" json:"spamDetection"`
	Screening                bool          `yaml:"screening" json:"screening"`
	Mode                     ScreeningMode `yaml:"screening_mode" json:"screeningMode"`
	TestMode                 bool          `yaml:"test_mode" json:"testMode"`
	ScreeningDurationSeconds int           `yaml:"screening_duration_seconds" json:"screeningDurationSeconds"`
}

// ScreeningDuration is the response window as a duration.
func (s Settings) ScreeningDuration() time.Duration {
	return time.Duration(s.ScreeningDurationSeconds) * time.Second
}

func (s Settings) normalized() Settings {
	if s.Mode != ModeVoice && s.Mode != ModeSilent {
		s.Mode = ModeSilent
	}
	if s.ScreeningDurationSeconds <= 0 {
		s.ScreeningDurationSeconds = DefaultScreeningSeconds
	}
	return s
}

// SettingsSource yields the current settings snapshot.
type SettingsSource interface {
	Current() Settings
}

// StaticSettings always returns the same snapshot.
type StaticSettings Settings

func (s StaticSettings) Current() Settings { return Settings(s).normalized() }

// FileSettings re-reads a YAML file on every call so edits apply to the next
// incoming call. Fields missing from the file keep their default values.
type FileSettings struct {
	Path     string
	Defaults Settings

	mu       sync.Mutex
	lastWarn string
}

func (f *FileSettings) Current() Settings {
	s := f.Defaults
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			f.warn("config: read settings %s: %v", err)
		}
		return s.normalized()
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		f.warn("config: parse settings %s: %v", err)
		return f.Defaults.normalized()
	}
	return s.normalized()
}

// warn logs once per distinct error so a broken file doesn't flood the log.
func (f *FileSettings) warn(format string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg := err.Error(); msg != f.lastWarn {
		f.lastWarn = msg
		log.Printf(format, f.Path, err)
	}
}

// Save writes s to the settings file.
func (f *FileSettings) Save(s Settings) error {
	data, err := yaml.Marshal(s.normalized())
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, data, 0o644)
}

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
)

var (
	// ErrProfileNotFound is returned by Get for unknown profiles.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrUnsupportedFormat is returned for profile files that are neither
	// YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported profile format")
)

const reloadDebounce = 250 * time.Millisecond

var profileName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Duration is a time.Duration written as "30s" or "1m30s" in profile files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats d as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Profile is a named session preset.
type Profile struct {
	Name      string            `yaml:"name" toml:"name" json:"name"`
	Shell     string            `yaml:"shell" toml:"shell" json:"shell,omitempty"`
	Args      []string          `yaml:"args" toml:"args" json:"args,omitempty"`
	Dir       string            `yaml:"dir" toml:"dir" json:"dir,omitempty"`
	Env       map[string]string `yaml:"env" toml:"env" json:"env,omitempty"`
	Timeout   Duration          `yaml:"timeout" toml:"timeout" json:"timeout,omitempty"`
	Autostart bool              `yaml:"autostart" toml:"autostart" json:"autostart"`
	RawOutput bool              `yaml:"raw_output" toml:"raw_output" json:"raw_output"`
}

// profileFile is the on-disk layout.
type profileFile struct {
	Profiles []Profile `yaml:"profiles" toml:"profiles"`
}

// LoadProfiles reads profiles from a .yaml, .yml or .toml file.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profiles %s: %w", path, err)
	}
	return ParseProfiles(data, filepath.Ext(path))
}

// ParseProfiles decodes profiles in the format named by ext.
func ParseProfiles(data []byte, ext string) ([]Profile, error) {
	var file profileFile
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing yaml profiles: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parsing toml profiles: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	seen := make(map[string]bool, len(file.Profiles))
	for _, p := range file.Profiles {
		if !profileName.MatchString(p.Name) {
			return nil, fmt.Errorf("invalid profile name %q", p.Name)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate profile %q", p.Name)
		}
		if p.Timeout < 0 {
			return nil, fmt.Errorf("profile %s: negative timeout", p.Name)
		}
		seen[p.Name] = true
	}
	return file.Profiles, nil
}

// ProfileStore holds the current profiles of one file.
type ProfileStore struct {
	path     string
	logger   *zap.Logger
	onChange func([]Profile)

	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewProfileStore loads path. An empty path yields an empty store.
func NewProfileStore(path string, logger *zap.Logger) (*ProfileStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ProfileStore{
		path:     path,
		logger:   logger,
		profiles: make(map[string]Profile),
	}
	if path == "" {
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// OnChange registers fn to be called with the new profiles after every
// successful reload triggered by Watch.
func (s *ProfileStore) OnChange(fn func([]Profile)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Path returns the backing file.
func (s *ProfileStore) Path() string {
	return s.path
}

// Get returns the named profile.
func (s *ProfileStore) Get(name string) (Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return p, nil
}

// List returns all profiles ordered by name.
func (s *ProfileStore) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Autostart returns the profiles marked for creation at startup.
func (s *ProfileStore) Autostart() []Profile {
	var out []Profile
	for _, p := range s.List() {
		if p.Autostart {
			out = append(out, p)
		}
	}
	return out
}

// Reload re-reads the file. On error the previous profiles are kept.
func (s *ProfileStore) Reload() error {
	if s.path == "" {
		return nil
	}
	profiles, err := LoadProfiles(s.path)
	if err != nil {
		return err
	}

	next := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		next[p.Name] = p
	}
	s.mu.Lock()
	s.profiles = next
	s.mu.Unlock()

	s.logger.Info("Loaded session profiles", zap.String("path", s.path), zap.Int("count", len(next)))
	return nil
}

// Watch reloads the store whenever the file changes until ctx is done.
// The parent directory is watched so editors that replace the file are
// picked up.
func (s *ProfileStore) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	abs, err := filepath.Abs(s.path)
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	go s.watchLoop(ctx, w, abs)
	return nil
}

func (s *ProfileStore) watchLoop(ctx context.Context, w *fsnotify.Watcher, target string) {
	defer w.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, s.reloadAndNotify)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Profile watcher error", zap.Error(err))
		}
	}
}

func (s *ProfileStore) reloadAndNotify() {
	if err := s.Reload(); err != nil {
		s.logger.Warn("Failed to reload profiles, keeping previous", zap.String("path", s.path), zap.Error(err))
		return
	}
	s.mu.RLock()
	fn := s.onChange
	s.mu.RUnlock()
	if fn != nil {
		fn(s.List())
	}
}

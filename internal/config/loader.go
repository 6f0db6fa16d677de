package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Load reads the YAML config file at path, applies it on top of Default(),
// expands ${VAR} environment references, and validates the result. A
// missing file is not an error: Load returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))
	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultPath returns ~/.config/agentcore/config.yaml, the conventional
// location Load is pointed at when the user supplies no --config flag.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "agentcore", "config.yaml")
}

// Watcher reloads the config file on change and hands the new Config to
// onChange. Only non-structural settings (turn budget, trim thresholds,
// sandbox mode) are expected to be safely hot-swappable; callers decide
// which fields they actually pick up.
type Watcher struct {
	fsw *fsnotify.Watcher
}

// WatchFile starts watching path for writes and invokes onChange with each
// successfully reloaded Config. Parse errors are swallowed (the previous
// valid Config keeps running) since a transient partial write is common
// with editors that don't write atomically.
func WatchFile(path string, onChange func(Config)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if cfg, err := Load(path); err == nil {
					onChange(cfg)
				}
			case _, ok := <-fsw.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return &Watcher{fsw: fsw}, nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w == nil || w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

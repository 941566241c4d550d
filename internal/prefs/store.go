// Package prefs persists client-local UI state (the last chosen view, hints
// the user dismissed) in a small TOML file next to the config.
package prefs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/BurntSushi/toml"
)

type state struct {
	Preferences map[string]string `toml:"preferences"`
	Callouts    calloutState      `toml:"callouts"`
}

type calloutState struct {
	Dismissed []string `toml:"dismissed"`
}

// FileStore is a Preferences and CalloutStore backed by a TOML file. Every
// write rewrites the whole file.
type FileStore struct {
	path string
	mu   sync.Mutex
	st   state
}

// DefaultStatePath returns the default path of the state file. Without a home
// directory it is relative to the working directory.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "pipegraph", "state.toml")
}

// Open loads the state file at path. A missing file is an empty store.
func Open(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &fs.st); err != nil {
			return nil, fmt.Errorf("decoding state file: %w", err)
		}
	}
	if fs.st.Preferences == nil {
		fs.st.Preferences = make(map[string]string)
	}
	return fs, nil
}

// Get returns the stored value for key.
func (fs *FileStore) Get(key string) (string, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.st.Preferences[key]
	return v, ok
}

// Set stores value under key and writes the file.
func (fs *FileStore) Set(key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.st.Preferences[key] = value
	return fs.save()
}

// IsDismissed reports whether feature was dismissed on this machine.
func (fs *FileStore) IsDismissed(_ context.Context, feature string) (bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return slices.Contains(fs.st.Callouts.Dismissed, feature), nil
}

// Dismiss records feature as dismissed. Dismissing twice writes once.
func (fs *FileStore) Dismiss(_ context.Context, feature string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if slices.Contains(fs.st.Callouts.Dismissed, feature) {
		return nil
	}
	fs.st.Callouts.Dismissed = append(fs.st.Callouts.Dismissed, feature)
	return fs.save()
}

func (fs *FileStore) save() error {
	if err := os.MkdirAll(filepath.Dir(fs.path), 0700); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	f, err := os.OpenFile(fs.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening state file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(fs.st); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}

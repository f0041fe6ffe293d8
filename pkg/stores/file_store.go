package stores

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// reloadDebounce coalesces bursts of file events into one reload.
const reloadDebounce = 500 * time.Millisecond

// Config holds file store configuration.
type Config struct {
	// Path is the YAML file managed values persist to.
	Path string

	// Watch reloads the store when the file changes outside the process,
	// so out-of-band edits show up without a restart.
	Watch bool

	// Seed fills an empty store on first start. Ignored when the file
	// already exists.
	Seed map[string]interface{}
}

// FileStore persists the managed configuration as a single flat YAML
// document. Writes go through a temp file and rename, so the file on disk
// is always a complete document. FileStore implements
// controlplane.ConfigManager and is safe for concurrent use.
type FileStore struct {
	path   string
	watch  bool
	seed   map[string]interface{}
	logger zerolog.Logger

	mu     sync.RWMutex
	values map[string]interface{}

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewFileStore creates a new file store instance. Call Init before use.
func NewFileStore(cfg Config, logger zerolog.Logger) (*FileStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	return &FileStore{
		path:   cfg.Path,
		watch:  cfg.Watch,
		seed:   cfg.Seed,
		logger: logger.With().Str("component", "store").Logger(),
		values: make(map[string]interface{}),
		done:   make(chan struct{}),
	}, nil
}

// Init loads the store file, seeding it when it does not exist yet, and
// starts the file watcher when configured.
func (s *FileStore) Init(ctx context.Context) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	loaded, err := s.readFile()
	switch {
	case errors.Is(err, os.ErrNotExist):
		values := cloneValues(s.seed)
		if err := s.persist(values); err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
		s.mu.Lock()
		s.values = values
		s.mu.Unlock()
		s.logger.Info().Str("path", s.path).Int("keys", len(values)).Msg("Store seeded")
	case err != nil:
		return err
	default:
		s.mu.Lock()
		s.values = loaded
		s.mu.Unlock()
		s.logger.Info().Str("path", s.path).Int("keys", len(loaded)).Msg("Store loaded")
	}

	if s.watch {
		return s.startWatcher()
	}
	return nil
}

// Close stops the file watcher. The store remains readable afterwards.
func (s *FileStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}

// Config returns a copy of the current configuration values.
func (s *FileStore) Config(ctx context.Context) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneValues(s.values), nil
}

// UpdateConfig applies the given key/value updates atomically. A nil value
// removes the key. The file is rewritten before the in-memory values
// change, so a persistence failure leaves the store untouched.
func (s *FileStore) UpdateConfig(ctx context.Context, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneValues(s.values)
	for key, value := range updates {
		if value == nil {
			delete(next, key)
			continue
		}
		next[key] = value
	}

	if err := s.persist(next); err != nil {
		return fmt.Errorf("failed to persist configuration: %w", err)
	}
	s.values = next

	s.logger.Debug().Int("updates", len(updates)).Msg("Configuration updated")
	return nil
}

// HealthCheck verifies the store file is still reachable.
func (s *FileStore) HealthCheck(ctx context.Context) error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("store file unavailable: %w", err)
	}
	return nil
}

// readFile loads and parses the store file. The os.ErrNotExist from a
// missing file passes through for Init to detect.
func (s *FileStore) readFile() (map[string]interface{}, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var values map[string]interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	if values == nil {
		values = make(map[string]interface{})
	}
	return values, nil
}

// persist writes values to a temp file in the store directory and renames
// it over the store file.
func (s *FileStore) persist(values map[string]interface{}) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode configuration: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".switchboard-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

// startWatcher watches the store directory. The directory rather than the
// file is watched because the rename in persist replaces the inode.
func (s *FileStore) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.watcher = watcher
	go s.watchLoop()

	s.logger.Debug().Str("dir", dir).Msg("Watching store directory")
	return nil
}

func (s *FileStore) watchLoop() {
	var timer *time.Timer

	for {
		select {
		case <-s.done:
			return

		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, s.reloadFromDisk)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn().Err(err).Msg("Store watcher error")
		}
	}
}

// reloadFromDisk swaps in the file's current content. A file that fails to
// parse keeps the previous values.
func (s *FileStore) reloadFromDisk() {
	loaded, err := s.readFile()
	if err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to reload store file, keeping previous values")
		return
	}

	s.mu.Lock()
	s.values = loaded
	s.mu.Unlock()

	s.logger.Info().Str("path", s.path).Int("keys", len(loaded)).Msg("Store reloaded")
}

func cloneValues(values map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(values))
	for k, v := range values {
		c[k] = v
	}
	return c
}

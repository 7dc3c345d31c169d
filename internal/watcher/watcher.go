// Package watcher watches the configuration file and hot-reloads it.
// It supports cross-platform fsnotify event handling.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	log "github.com/sirupsen/logrus"
)

const (
	// replaceCheckDelay lets an atomic replace (rename over the file) settle
	// before the file is read again.
	replaceCheckDelay    = 50 * time.Millisecond
	configReloadDebounce = 150 * time.Millisecond
)

// Watcher manages file watching for the configuration file.
type Watcher struct {
	configPath        string
	config            *config.Config
	configMu          sync.RWMutex
	configReloadMu    sync.Mutex
	configReloadTimer *time.Timer
	reloadCallback    func(*config.Config)
	watcher           *fsnotify.Watcher
	lastConfigHash    string
}

// NewWatcher creates a new file watcher instance. reloadCallback receives every
// configuration that loaded and validated after a material change.
func NewWatcher(configPath string, reloadCallback func(*config.Config)) (*Watcher, error) {
	watcher, errNewWatcher := fsnotify.NewWatcher()
	if errNewWatcher != nil {
		return nil, errNewWatcher
	}
	return &Watcher{
		configPath:     configPath,
		reloadCallback: reloadCallback,
		watcher:        watcher,
	}, nil
}

// Start begins watching. The parent directory is watched so that editors which
// replace the file instead of writing it in place are noticed.
func (w *Watcher) Start(ctx context.Context) error {
	dir := filepath.Dir(w.configPath)
	if errAdd := w.watcher.Add(dir); errAdd != nil {
		log.Errorf("failed to watch config directory %s: %v", dir, errAdd)
		return errAdd
	}
	log.Debugf("watching config file: %s", w.configPath)

	if hash, errHash := fileHash(w.configPath); errHash == nil {
		w.configMu.Lock()
		w.lastConfigHash = hash
		w.configMu.Unlock()
	}

	go w.processEvents(ctx)
	return nil
}

// Stop stops the file watcher.
func (w *Watcher) Stop() error {
	w.stopConfigReloadTimer()
	return w.watcher.Close()
}

// SetConfig updates the configuration that reloads are compared against.
func (w *Watcher) SetConfig(cfg *config.Config) {
	w.configMu.Lock()
	defer w.configMu.Unlock()
	w.config = cfg
}

// Config returns the most recently applied configuration.
func (w *Watcher) Config() *config.Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

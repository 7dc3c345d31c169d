// events.go implements fsnotify event handling for the config file.
// It normalizes paths and filters the noise of the watched directory.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case errWatch, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Errorf("file watcher error: %v", errWatch)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	configOps := fsnotify.Write | fsnotify.Create | fsnotify.Rename
	if normalizePath(event.Name) != normalizePath(w.configPath) || event.Op&configOps == 0 {
		return
	}

	log.Debugf("config file change details - operation: %s, timestamp: %s", event.Op.String(), time.Now().Format("2006-01-02 15:04:05.000"))
	if event.Op&fsnotify.Rename != 0 {
		// Atomic replace surfaces as Rename before the new file is in place.
		time.Sleep(replaceCheckDelay)
		if _, statErr := os.Stat(w.configPath); statErr != nil {
			log.Warnf("config file %s disappeared, keeping current configuration", w.configPath)
			return
		}
	}
	w.scheduleConfigReload()
}

func normalizePath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	cleaned := filepath.Clean(trimmed)
	if runtime.GOOS == "windows" {
		cleaned = strings.TrimPrefix(cleaned, `\\?\`)
		cleaned = strings.ToLower(cleaned)
	}
	return cleaned
}

// config_reload.go implements debounced configuration hot reload.
// It detects material changes and hands the new configuration to the callback.
package watcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
	"github.com/router-for-me/ClaudeSessionAuth/internal/logging"
	log "github.com/sirupsen/logrus"
)

func (w *Watcher) stopConfigReloadTimer() {
	w.configReloadMu.Lock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
		w.configReloadTimer = nil
	}
	w.configReloadMu.Unlock()
}

func (w *Watcher) scheduleConfigReload() {
	w.configReloadMu.Lock()
	defer w.configReloadMu.Unlock()
	if w.configReloadTimer != nil {
		w.configReloadTimer.Stop()
	}
	w.configReloadTimer = time.AfterFunc(configReloadDebounce, func() {
		w.configReloadMu.Lock()
		w.configReloadTimer = nil
		w.configReloadMu.Unlock()
		w.reloadConfigIfChanged()
	})
}

func fileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (w *Watcher) reloadConfigIfChanged() {
	data, err := os.ReadFile(w.configPath)
	if err != nil {
		log.Errorf("failed to read config file for hash check: %v", err)
		return
	}
	if len(data) == 0 {
		log.Debugf("ignoring empty config file write event")
		return
	}
	sum := sha256.Sum256(data)
	newHash := hex.EncodeToString(sum[:])

	w.configMu.RLock()
	currentHash := w.lastConfigHash
	w.configMu.RUnlock()

	if currentHash != "" && currentHash == newHash {
		log.Debugf("config file content unchanged (hash match), skipping reload")
		return
	}
	log.Infof("config file changed, reloading: %s", w.configPath)
	if w.reloadConfig() {
		w.configMu.Lock()
		w.lastConfigHash = newHash
		w.configMu.Unlock()
	}
}

func (w *Watcher) reloadConfig() bool {
	newConfig, errLoadConfig := config.LoadConfig(w.configPath)
	if errLoadConfig != nil {
		log.Errorf("failed to reload config: %v", errLoadConfig)
		return false
	}

	w.configMu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.configMu.Unlock()

	logging.SetLogLevel(newConfig)
	if oldConfig != nil {
		details := BuildConfigChangeDetails(oldConfig, newConfig)
		if len(details) > 0 {
			log.Debugf("config changes detected:")
			for _, d := range details {
				log.Debugf("  %s", d)
			}
		} else {
			log.Debugf("no material config field changes detected")
		}
	}

	log.Infof("config successfully reloaded")
	if w.reloadCallback != nil {
		w.reloadCallback(newConfig)
	}
	return true
}

// BuildConfigChangeDetails lists the fields that differ between two configurations.
// Secrets are reported as changed without their values.
func BuildConfigChangeDetails(oldCfg, newCfg *config.Config) []string {
	var changes []string
	add := func(name string, from, to any) {
		if from != to {
			changes = append(changes, fmt.Sprintf("%s: %v -> %v", name, from, to))
		}
	}
	add("debug", oldCfg.Debug, newCfg.Debug)
	add("strategy", oldCfg.Strategy, newCfg.Strategy)
	add("proxy-url", oldCfg.ProxyURL, newCfg.ProxyURL)
	add("session-ttl-seconds", oldCfg.SessionTTLSeconds, newCfg.SessionTTLSeconds)
	add("oauth.client-id", oldCfg.OAuth.ClientID, newCfg.OAuth.ClientID)
	add("oauth.code-wait-seconds", oldCfg.OAuth.CodeWaitSeconds, newCfg.OAuth.CodeWaitSeconds)
	add("interactive.timeout-seconds", oldCfg.Interactive.TimeoutSeconds, newCfg.Interactive.TimeoutSeconds)
	add("container.name-template", oldCfg.Container.NameTemplate, newCfg.Container.NameTemplate)
	add("store.type", oldCfg.Store.Type, newCfg.Store.Type)
	if !slices.Equal(oldCfg.OAuth.Scopes, newCfg.OAuth.Scopes) {
		changes = append(changes, fmt.Sprintf("oauth.scopes: %v -> %v", oldCfg.OAuth.Scopes, newCfg.OAuth.Scopes))
	}
	if !slices.Equal(oldCfg.Interactive.Command, newCfg.Interactive.Command) {
		changes = append(changes, fmt.Sprintf("interactive.command: %v -> %v", oldCfg.Interactive.Command, newCfg.Interactive.Command))
	}
	if !slices.Equal(oldCfg.APIKeys, newCfg.APIKeys) {
		changes = append(changes, fmt.Sprintf("api-keys: %d -> %d entries", len(oldCfg.APIKeys), len(newCfg.APIKeys)))
	}
	if oldCfg.Store.Type != newCfg.Store.Type {
		changes = append(changes, "store.type only takes effect after a restart")
	}
	return changes
}

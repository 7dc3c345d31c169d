package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

const (
	credentialsFileName = "credentials.json"
	stateFileName       = "claude_oauth_state.json"
)

// FileStore keeps both documents as files in one local directory.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates a store rooted at dir. The directory is created on first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// NewFileProvider returns a Provider with one subdirectory of root per namespace.
func NewFileProvider(root string) Provider {
	return ProviderFunc(func(_ context.Context, namespace string) (CredentialStore, error) {
		ns, err := NormalizeNamespace(namespace)
		if err != nil {
			return nil, err
		}
		return NewFileStore(filepath.Join(root, ns)), nil
	})
}

func (s *FileStore) LoadCredentials(context.Context) ([]byte, error) {
	return s.read(credentialsFileName)
}

func (s *FileStore) SaveCredentials(_ context.Context, data []byte) error {
	return s.write(credentialsFileName, data)
}

func (s *FileStore) LoadState(context.Context) ([]byte, error) {
	return s.read(stateFileName)
}

func (s *FileStore) SaveState(_ context.Context, data []byte) error {
	return s.write(stateFileName, data)
}

func (s *FileStore) RemoveState(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(filepath.Join(s.dir, stateFileName)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("file store: remove state: %w", err)
	}
	return nil
}

func (s *FileStore) read(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("file store: read %s: %w", name, err)
	}
	return data, nil
}

func (s *FileStore) write(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("file store: create directory: %w", err)
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("file store: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("file store: replace %s: %w", name, err)
	}
	log.Debugf("file store: wrote %s", path)
	return nil
}

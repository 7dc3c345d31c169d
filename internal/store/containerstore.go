package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/router-for-me/ClaudeSessionAuth/internal/container"
)

// ContainerStore reads and writes the documents inside the session container,
// where the companion CLI expects to find its credentials file.
type ContainerStore struct {
	files           container.FileAccess
	containerID     string
	credentialsPath string
	statePath       string
}

// NewContainerStore binds a store to one container and two absolute paths inside it.
func NewContainerStore(files container.FileAccess, containerID, credentialsPath, statePath string) *ContainerStore {
	return &ContainerStore{
		files:           files,
		containerID:     containerID,
		credentialsPath: credentialsPath,
		statePath:       statePath,
	}
}

// NewContainerProvider resolves the session container by name for each namespace.
// nameFor maps a namespace to a container name.
func NewContainerProvider(files container.FileAccess, locator container.Locator, nameFor func(string) string, credentialsPath, statePath string) Provider {
	return ProviderFunc(func(ctx context.Context, namespace string) (CredentialStore, error) {
		id, err := locator.FindContainer(ctx, nameFor(namespace))
		if err != nil {
			return nil, err
		}
		return NewContainerStore(files, id, credentialsPath, statePath), nil
	})
}

func (s *ContainerStore) LoadCredentials(ctx context.Context) ([]byte, error) {
	return s.read(ctx, s.credentialsPath)
}

func (s *ContainerStore) SaveCredentials(ctx context.Context, data []byte) error {
	return s.write(ctx, s.credentialsPath, data)
}

func (s *ContainerStore) LoadState(ctx context.Context) ([]byte, error) {
	return s.read(ctx, s.statePath)
}

func (s *ContainerStore) SaveState(ctx context.Context, data []byte) error {
	return s.write(ctx, s.statePath, data)
}

func (s *ContainerStore) RemoveState(ctx context.Context) error {
	if err := s.files.RemoveFile(ctx, s.containerID, s.statePath); err != nil {
		return fmt.Errorf("container store: remove state: %w", err)
	}
	return nil
}

func (s *ContainerStore) read(ctx context.Context, path string) ([]byte, error) {
	data, err := s.files.ReadFile(ctx, s.containerID, path)
	if err != nil {
		if errors.Is(err, container.ErrFileNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("container store: read %s: %w", path, err)
	}
	return data, nil
}

func (s *ContainerStore) write(ctx context.Context, path string, data []byte) error {
	if err := s.files.WriteFile(ctx, s.containerID, path, data, 0o600); err != nil {
		return fmt.Errorf("container store: write %s: %w", path, err)
	}
	return nil
}

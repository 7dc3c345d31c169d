// Package store persists the Claude credential document and the pending OAuth
// state. Every backend exposes the same five operations; absence of a document
// is reported as (nil, nil) rather than an error.
package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Document kinds shared by the keyed backends.
const (
	KindCredentials = "credentials"
	KindOAuthState  = "oauth_state"
)

// CredentialStore is the persistence contract used by the OAuth client.
// Implementations must be safe for concurrent use by a single session.
type CredentialStore interface {
	LoadCredentials(ctx context.Context) ([]byte, error)
	SaveCredentials(ctx context.Context, data []byte) error
	LoadState(ctx context.Context) ([]byte, error)
	SaveState(ctx context.Context, data []byte) error
	// RemoveState succeeds when no state is stored.
	RemoveState(ctx context.Context) error
}

// Provider hands out the store scoped to one session namespace.
type Provider interface {
	For(ctx context.Context, namespace string) (CredentialStore, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, namespace string) (CredentialStore, error)

func (f ProviderFunc) For(ctx context.Context, namespace string) (CredentialStore, error) {
	return f(ctx, namespace)
}

// keyedBackend is implemented by backends that hold every namespace in one place.
type keyedBackend interface {
	load(ctx context.Context, namespace, kind string) ([]byte, error)
	save(ctx context.Context, namespace, kind string, data []byte) error
	remove(ctx context.Context, namespace, kind string) error
}

// keyedStore adapts a keyedBackend to CredentialStore for a single namespace.
type keyedStore struct {
	backend   keyedBackend
	namespace string
}

func (s *keyedStore) LoadCredentials(ctx context.Context) ([]byte, error) {
	return s.backend.load(ctx, s.namespace, KindCredentials)
}

func (s *keyedStore) SaveCredentials(ctx context.Context, data []byte) error {
	return s.backend.save(ctx, s.namespace, KindCredentials, data)
}

func (s *keyedStore) LoadState(ctx context.Context) ([]byte, error) {
	return s.backend.load(ctx, s.namespace, KindOAuthState)
}

func (s *keyedStore) SaveState(ctx context.Context, data []byte) error {
	return s.backend.save(ctx, s.namespace, KindOAuthState, data)
}

func (s *keyedStore) RemoveState(ctx context.Context) error {
	return s.backend.remove(ctx, s.namespace, KindOAuthState)
}

var namespaceSanitizer = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// NormalizeNamespace maps a session key to a value safe for file names and object keys.
func NormalizeNamespace(namespace string) (string, error) {
	trimmed := strings.TrimSpace(namespace)
	if trimmed == "" {
		return "", fmt.Errorf("store: namespace is required")
	}
	cleaned := namespaceSanitizer.ReplaceAllString(trimmed, "_")
	if cleaned == "." || cleaned == ".." {
		return "", fmt.Errorf("store: invalid namespace %q", namespace)
	}
	return cleaned, nil
}

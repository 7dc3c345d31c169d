// Package access authenticates callers of the HTTP surface against the API keys
// listed in the configuration.
package access

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
)

var (
	// ErrNoCredentials is returned when the request carries no key at all.
	ErrNoCredentials = errors.New("access: missing api key")
	// ErrInvalidCredential is returned when none of the presented keys is configured.
	ErrInvalidCredential = errors.New("access: invalid api key")
)

// Result identifies an accepted request.
type Result struct {
	// Source names where the key was found, e.g. "authorization" or "x-api-key".
	Source string
}

// KeySet holds the accepted keys. An empty set accepts every request.
// It is safe for concurrent use and can be replaced on config reload.
type KeySet struct {
	keys atomic.Pointer[map[string]struct{}]
}

// NewKeySet creates a set from keys.
func NewKeySet(keys []string) *KeySet {
	s := &KeySet{}
	s.Update(keys)
	return s
}

// Update replaces the accepted keys.
func (s *KeySet) Update(keys []string) {
	normalized := normalizeKeys(keys)
	set := make(map[string]struct{}, len(normalized))
	for _, key := range normalized {
		set[key] = struct{}{}
	}
	s.keys.Store(&set)
}

// Enabled reports whether any key is configured.
func (s *KeySet) Enabled() bool {
	set := s.keys.Load()
	return set != nil && len(*set) > 0
}

// Authenticate checks the Authorization bearer token, the X-Api-Key header and the
// key query parameter, in that order.
func (s *KeySet) Authenticate(r *http.Request) (*Result, error) {
	if !s.Enabled() {
		return &Result{Source: "disabled"}, nil
	}
	set := *s.keys.Load()

	queryKey := ""
	if r.URL != nil {
		queryKey = r.URL.Query().Get("key")
	}
	candidates := []struct {
		value  string
		source string
	}{
		{extractBearerToken(r.Header.Get("Authorization")), "authorization"},
		{r.Header.Get("X-Api-Key"), "x-api-key"},
		{queryKey, "query-key"},
	}

	presented := false
	for _, candidate := range candidates {
		if candidate.value == "" {
			continue
		}
		presented = true
		if _, ok := set[candidate.value]; ok {
			return &Result{Source: candidate.source}, nil
		}
	}
	if !presented {
		return nil, ErrNoCredentials
	}
	return nil, ErrInvalidCredential
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return header
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return header
	}
	return strings.TrimSpace(parts[1])
}

func normalizeKeys(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		if _, exists := seen[trimmedKey]; exists {
			continue
		}
		seen[trimmedKey] = struct{}{}
		normalized = append(normalized, trimmedKey)
	}
	return normalized
}

package access

import (
	"errors"
	"net/http/httptest"
	"testing"
)

func TestKeySetAuthenticate(t *testing.T) {
	set := NewKeySet([]string{" k1 ", "k2", "k1", ""})

	cases := []struct {
		name       string
		target     string
		header     map[string]string
		wantSource string
		wantErr    error
	}{
		{"bearer", "/", map[string]string{"Authorization": "Bearer k1"}, "authorization", nil},
		{"raw authorization", "/", map[string]string{"Authorization": "k2"}, "authorization", nil},
		{"x-api-key", "/", map[string]string{"X-Api-Key": "k2"}, "x-api-key", nil},
		{"query", "/?key=k1", nil, "query-key", nil},
		{"missing", "/", nil, "", ErrNoCredentials},
		{"wrong", "/", map[string]string{"Authorization": "Bearer nope"}, "", ErrInvalidCredential},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.target, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			res, err := set.Authenticate(req)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("error = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if res.Source != tc.wantSource {
				t.Fatalf("source = %q, want %q", res.Source, tc.wantSource)
			}
		})
	}
}

func TestKeySetDisabledAndUpdate(t *testing.T) {
	set := NewKeySet(nil)
	if set.Enabled() {
		t.Fatal("empty key set should be disabled")
	}
	if _, err := set.Authenticate(httptest.NewRequest("GET", "/", nil)); err != nil {
		t.Fatalf("disabled set must accept: %v", err)
	}
	set.Update([]string{"k"})
	if _, err := set.Authenticate(httptest.NewRequest("GET", "/", nil)); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("error = %v, want ErrNoCredentials", err)
	}
}

package claude

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/router-for-me/ClaudeSessionAuth/internal/config"
)

func TestIsFingerprintedHost(t *testing.T) {
	cases := []struct {
		host string
		want bool
	}{
		{"claude.ai", true},
		{"console.anthropic.com", true},
		{"API.Anthropic.com", true},
		{"anthropic.com.evil.example", false},
		{"notclaude.ai", false},
		{"127.0.0.1", false},
	}
	for _, tc := range cases {
		if got := isFingerprintedHost(tc.host); got != tc.want {
			t.Errorf("isFingerprintedHost(%q) = %v, want %v", tc.host, got, tc.want)
		}
	}
}

func TestAnthropicHTTPClientFallsBackForOtherHosts(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "plain")
	}))
	defer ts.Close()

	client := NewAnthropicHTTPClient(&config.SDKConfig{})
	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "plain" {
		t.Fatalf("body = %q", body)
	}
}

func TestAnthropicHTTPClientIgnoresInvalidProxy(t *testing.T) {
	rt := newUtlsRoundTripper(&config.SDKConfig{ProxyURL: "://bad"})
	if rt.dialer == nil || rt.fallback == nil {
		t.Fatal("transport must stay usable with an invalid proxy URL")
	}
}

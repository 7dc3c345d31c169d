package logging

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestGinLogrusRecoveryRepanicsErrAbortHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(GinLogrusRecovery())
	engine.GET("/abort", func(c *gin.Context) {
		panic(http.ErrAbortHandler)
	})

	req := httptest.NewRequest(http.MethodGet, "/abort", nil)
	recorder := httptest.NewRecorder()

	defer func() {
		recovered := recover()
		if recovered == nil {
			t.Fatalf("expected panic, got nil")
		}
		err, ok := recovered.(error)
		if !ok {
			t.Fatalf("expected error panic, got %T", recovered)
		}
		if !errors.Is(err, http.ErrAbortHandler) {
			t.Fatalf("expected ErrAbortHandler, got %v", err)
		}
		if err != http.ErrAbortHandler {
			t.Fatalf("expected exact ErrAbortHandler sentinel, got %v", err)
		}
	}()

	engine.ServeHTTP(recorder, req)
}

func TestGinLogrusRecoveryHandlesRegularPanic(t *testing.T) {
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(GinLogrusRecovery())
	engine.GET("/panic", func(c *gin.Context) {
		panic("boom")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", recorder.Code)
	}
}

func TestGinLogrusLoggerAttachesRequestIDToSessionPaths(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var seen string
	var seenCtx string
	engine := gin.New()
	engine.Use(GinLogrusLogger())
	engine.GET("/v0/sessions/:key/auth", func(c *gin.Context) {
		seen = GetGinRequestID(c)
		seenCtx = GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})
	engine.GET("/healthz", func(c *gin.Context) {
		seen = GetGinRequestID(c)
		c.Status(http.StatusOK)
	})

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v0/sessions/42/auth", nil))
	if len(seen) != 8 || seen != seenCtx {
		t.Fatalf("expected matching 8-char request id, got gin=%q ctx=%q", seen, seenCtx)
	}

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if seen != "" {
		t.Fatalf("expected no request id outside session paths, got %q", seen)
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"verbose=1", "verbose=1"},
		{"key=secret", "key=%2A%2A%2A"},
		{"code=abc&verbose=1", "code=%2A%2A%2A&verbose=1"},
	}
	for _, tc := range cases {
		if got := MaskSensitiveQuery(tc.in); got != tc.want {
			t.Errorf("MaskSensitiveQuery(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

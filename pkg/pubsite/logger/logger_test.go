package logger

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWritesToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "pubsite.log")

	log, err := New(Config{Level: "debug", File: file, MaxSize: 1})
	require.NoError(t, err)

	log.Info("hello", zap.String("k", "v"))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
}

func TestNewInvalidLevelFallsBackToInfo(t *testing.T) {
	log, err := New(Config{Level: "loud"})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(RequestID(), GinMiddleware(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	req, _ := http.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, "abc-123", resp.Header().Get(RequestIDHeader))

	req, _ = http.NewRequest(http.MethodGet, "/boom", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	assert.NotEmpty(t, resp.Header().Get(RequestIDHeader))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "abc-123", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, int64(http.StatusInternalServerError), entries[1].ContextMap()["status"])
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCleanPath(t *testing.T) {
	assert.Equal(t, "/", cleanPath(""))
	assert.Equal(t, "/", cleanPath("/"))
	assert.Equal(t, "/campaigns/status", cleanPath("//campaigns///status/"))
}

func TestQueryHash(t *testing.T) {
	assert.Empty(t, queryHash(""))
	assert.Equal(t, queryHash("a=1"), queryHash("a=1"))
	assert.NotEqual(t, queryHash("a=1"), queryHash("a=2"))
	assert.NotContains(t, queryHash("secret=1"), "secret")
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := chi.NewRouter()
	r.Use(Logger(zap.New(core).Sugar()))
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok?token=abc", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)

	ok := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/ok", ok["path"])
	assert.Equal(t, int64(200), ok["status"])
	assert.Equal(t, queryHash("token=abc"), ok["query"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, int64(502), entries[1].ContextMap()["status"])
}

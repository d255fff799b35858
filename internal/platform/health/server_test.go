package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func get(t *testing.T, h http.Handler, path string) (int, report) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var rep report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	return rec.Code, rep
}

func TestLiveness(t *testing.T) {
	s := NewServer(":0", zap.NewNop(), map[string]Check{
		"postgres": func(context.Context) error { return errors.New("down") },
	})

	code, rep := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", rep.Status)
}

func TestReadiness(t *testing.T) {
	healthy := true
	s := NewServer(":0", zap.NewNop(), map[string]Check{
		"kafka": func(context.Context) error { return nil },
		"redis": func(context.Context) error {
			if healthy {
				return nil
			}
			return errors.New("connection refused")
		},
	})

	code, rep := get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]string{"kafka": "ok", "redis": "ok"}, rep.Checks)

	healthy = false
	code, rep = get(t, s.Handler(), "/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", rep.Status)
	assert.Equal(t, "connection refused", rep.Checks["redis"])
	assert.Equal(t, "ok", rep.Checks["kafka"])
}

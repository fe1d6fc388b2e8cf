// AngelaMos | 2026
// handler_test.go

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func serve(t *testing.T, h *Handler, path string) (int, ReadinessResponse) {
	t.Helper()
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body ReadinessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestReadiness(t *testing.T) {
	down := pinger{err: errors.New("connection refused")}

	t.Run("Success_AllHealthy", func(t *testing.T) {
		h := NewHandler(
			Dependency{Name: "database", Checker: pinger{}},
			Dependency{Name: "redis", Checker: pinger{}, Optional: true},
		)
		code, body := serve(t, h, "/readyz")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", body.Status)
		assert.Len(t, body.Checks, 2)
	})

	t.Run("Success_OptionalDownIsDegraded", func(t *testing.T) {
		h := NewHandler(
			Dependency{Name: "database", Checker: pinger{}},
			Dependency{Name: "redis", Checker: down, Optional: true},
		)
		code, body := serve(t, h, "/readyz")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "degraded", body.Status)
		assert.False(t, body.Checks[1].Healthy)
	})

	t.Run("Error_RequiredDown", func(t *testing.T) {
		h := NewHandler(Dependency{Name: "database", Checker: down})
		code, body := serve(t, h, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", body.Status)
	})

	t.Run("Error_NotReady", func(t *testing.T) {
		h := NewHandler(Dependency{Name: "database", Checker: pinger{}})
		h.SetReady(false)
		code, body := serve(t, h, "/readyz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not_ready", body.Status)
	})

	t.Run("Error_ShuttingDown", func(t *testing.T) {
		h := NewHandler()
		h.SetShutdown(true)

		code, body := serve(t, h, "/livez")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "shutting_down", body.Status)

		code, _ = serve(t, h, "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, code)
	})
}

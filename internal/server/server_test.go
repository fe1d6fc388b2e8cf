// AngelaMos | 2026
// server_test.go

package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carterperez-dev/templates/erp-backend/internal/config"
)

type shutdownFlag struct{ down atomic.Bool }

func (f *shutdownFlag) SetShutdown(v bool) { f.down.Store(v) }

func TestServer(t *testing.T) {
	t.Run("Success_RouterRecovers", func(t *testing.T) {
		srv := New(Config{ServerConfig: config.ServerConfig{Host: "127.0.0.1", Port: 0}})
		srv.Router().Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("Success_GracefulShutdown", func(t *testing.T) {
		health := &shutdownFlag{}
		srv := New(Config{
			ServerConfig:  config.ServerConfig{Host: "127.0.0.1", Port: 0},
			HealthHandler: health,
		})
		assert.Equal(t, "127.0.0.1:0", srv.Addr())

		done := make(chan error, 1)
		go func() { done <- srv.Start() }()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, srv.Shutdown(ctx, 10*time.Millisecond))
		assert.True(t, health.down.Load())

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("server did not stop")
		}
	})

	t.Run("Error_DrainInterrupted", func(t *testing.T) {
		srv := New(Config{ServerConfig: config.ServerConfig{Host: "127.0.0.1", Port: 0}})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, srv.Shutdown(ctx, time.Minute))
	})
}

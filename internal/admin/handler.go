// AngelaMos | 2026
// handler.go

package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"

	"github.com/carterperez-dev/templates/erp-backend/internal/cleanup"
	"github.com/carterperez-dev/templates/erp-backend/internal/core"
	"github.com/carterperez-dev/templates/erp-backend/internal/middleware"
	"github.com/carterperez-dev/templates/erp-backend/internal/user"
)

const (
	PermUsersManage    = "users:manage"
	PermSessionsManage = "sessions:manage"
	PermMaintenance    = "maintenance:run"
)

type AuthService interface {
	ResetPassword(ctx context.Context, userID string) (string, error)
	LogoutAll(ctx context.Context, userID string) (int64, error)
	CountActiveSessions(ctx context.Context) (int64, error)
}

type UserService interface {
	GetUser(ctx context.Context, id string) (*user.User, error)
	ListUsers(ctx context.Context, params user.ListUsersParams) ([]user.User, int, error)
	SetActive(ctx context.Context, id string, active bool) (*user.User, error)
	UpdateRole(ctx context.Context, id, role string) (*user.User, error)
	Stats(ctx context.Context) (user.Stats, error)
}

type Cleaner interface {
	RunOnce(ctx context.Context, dryRun bool) (*cleanup.Report, error)
}

type Handler struct {
	dbStats    func() sql.DBStats
	redisStats func() *redis.PoolStats
	authSvc    AuthService
	userSvc    UserService
	cleaner    Cleaner
	validator  *validator.Validate
}

type HandlerConfig struct {
	DBStats    func() sql.DBStats
	RedisStats func() *redis.PoolStats
	AuthSvc    AuthService
	UserSvc    UserService
	Cleaner    Cleaner
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		dbStats:    cfg.DBStats,
		redisStats: cfg.RedisStats,
		authSvc:    cfg.AuthSvc,
		userSvc:    cfg.UserSvc,
		cleaner:    cfg.Cleaner,
		validator:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// RegisterRoutes mounts /admin. Every route requires authentication and a
// specific permission from the caller's token.
func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(authenticator)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(PermUsersManage))
			r.Get("/users", h.ListUsers)
			r.Get("/users/{userID}", h.GetUser)
			r.Put("/users/{userID}/active", h.SetActive)
			r.Put("/users/{userID}/role", h.UpdateRole)
			r.Post("/users/{userID}/reset-password", h.ResetPassword)
		})

		r.With(middleware.RequirePermission(PermSessionsManage)).
			Post("/users/{userID}/logout-all", h.LogoutAll)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePermission(PermMaintenance))
			r.Post("/cleanup", h.RunCleanup)
			r.Get("/stats", h.GetStats)
		})
	})
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := user.ListUsersParams{
		Search: q.Get("search"),
		Role:   q.Get("role"),
	}
	params.Page, _ = strconv.Atoi(q.Get("page"))          //nolint:errcheck // zero falls back to defaults
	params.PageSize, _ = strconv.Atoi(q.Get("page_size")) //nolint:errcheck // zero falls back to defaults
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			core.BadRequest(w, "active must be true or false")
			return
		}
		params.Active = &active
	}
	params.Normalize()

	users, total, err := h.userSvc.ListUsers(r.Context(), params)
	if err != nil {
		writeError(w, err, "users")
		return
	}

	core.OK(w, user.UserListResponse{
		Users:    user.ToUserResponseList(users),
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.userSvc.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err, "user")
		return
	}

	core.OK(w, user.ToUserResponse(u))
}

type SetActiveRequest struct {
	Active *bool `json:"active" validate:"required"`
}

// SetActive enables or disables an account. Disabling also ends every
// session the account holds.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req SetActiveRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "userID")
	if !*req.Active && userID == middleware.GetUserID(r.Context()) {
		core.BadRequest(w, "cannot deactivate your own account")
		return
	}

	u, err := h.userSvc.SetActive(r.Context(), userID, *req.Active)
	if err != nil {
		writeError(w, err, "user")
		return
	}

	if !u.IsActive {
		if _, err := h.authSvc.LogoutAll(r.Context(), userID); err != nil {
			writeError(w, err, "user")
			return
		}
	}

	core.OK(w, user.ToUserResponse(u))
}

// UpdateRole changes an account's role and ends its sessions so the next
// login carries the new permissions.
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req user.UpdateRoleRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "userID")

	u, err := h.userSvc.UpdateRole(r.Context(), userID, req.Role)
	if err != nil {
		writeError(w, err, "user")
		return
	}

	if _, err := h.authSvc.LogoutAll(r.Context(), userID); err != nil {
		writeError(w, err, "user")
		return
	}

	core.OK(w, user.ToUserResponse(u))
}

type ResetPasswordResponse struct {
	TemporaryPassword string `json:"temporary_password"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	temp, err := h.authSvc.ResetPassword(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err, "user")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	core.OK(w, ResetPasswordResponse{TemporaryPassword: temp})
}

type LogoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.authSvc.LogoutAll(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err, "user")
		return
	}

	core.OK(w, LogoutAllResponse{Revoked: n})
}

func (h *Handler) RunCleanup(w http.ResponseWriter, r *http.Request) {
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run")) //nolint:errcheck // absent means false

	report, err := h.cleaner.RunOnce(r.Context(), dryRun)
	if err != nil {
		writeError(w, err, "cleanup")
		return
	}

	core.OK(w, report)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessions, err := h.authSvc.CountActiveSessions(ctx)
	if err != nil {
		writeError(w, err, "stats")
		return
	}

	users, err := h.userSvc.Stats(ctx)
	if err != nil {
		writeError(w, err, "stats")
		return
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	core.OK(w, StatsResponse{
		ActiveSessions: sessions,
		Users:          users,
		Database:       h.getDBStats(),
		Redis:          h.getRedisStats(),
		Runtime: RuntimeStats{
			GoVersion:    runtime.Version(),
			NumGoroutine: runtime.NumGoroutine(),
			NumCPU:       runtime.NumCPU(),
			MemAlloc:     memStats.Alloc,
			MemSys:       memStats.Sys,
			NumGC:        memStats.NumGC,
		},
	})
}

func (h *Handler) getDBStats() *DBPoolStats {
	if h.dbStats == nil {
		return nil
	}

	stats := h.dbStats()
	return &DBPoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration.String(),
	}
}

func (h *Handler) getRedisStats() *RedisPoolStats {
	if h.redisStats == nil {
		return nil
	}

	stats := h.redisStats()
	return &RedisPoolStats{
		Hits:       stats.Hits,
		Misses:     stats.Misses,
		Timeouts:   stats.Timeouts,
		TotalConns: stats.TotalConns,
		IdleConns:  stats.IdleConns,
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 16<<10)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		core.BadRequest(w, "invalid request body")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return false
	}

	return true
}

func writeError(w http.ResponseWriter, err error, resource string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		core.NotFound(w, resource)
	case errors.Is(err, core.ErrInvalidInput):
		core.BadRequest(w, err.Error())
	case errors.Is(err, core.ErrStoreTimeout):
		core.JSONError(w, core.StoreTimeoutError())
	default:
		core.InternalServerError(w, err)
	}
}

type StatsResponse struct {
	ActiveSessions int64           `json:"active_sessions"`
	Users          user.Stats      `json:"users"`
	Database       *DBPoolStats    `json:"database,omitempty"`
	Redis          *RedisPoolStats `json:"redis,omitempty"`
	Runtime        RuntimeStats    `json:"runtime"`
}

type DBPoolStats struct {
	MaxOpenConnections int    `json:"max_open_connections"`
	OpenConnections    int    `json:"open_connections"`
	InUse              int    `json:"in_use"`
	Idle               int    `json:"idle"`
	WaitCount          int64  `json:"wait_count"`
	WaitDuration       string `json:"wait_duration"`
}

type RedisPoolStats struct {
	Hits       uint32 `json:"hits"`
	Misses     uint32 `json:"misses"`
	Timeouts   uint32 `json:"timeouts"`
	TotalConns uint32 `json:"total_conns"`
	IdleConns  uint32 `json:"idle_conns"`
}

type RuntimeStats struct {
	GoVersion    string `json:"go_version"`
	NumGoroutine int    `json:"num_goroutine"`
	NumCPU       int    `json:"num_cpu"`
	MemAlloc     uint64 `json:"mem_alloc_bytes"`
	MemSys       uint64 `json:"mem_sys_bytes"`
	NumGC        uint32 `json:"num_gc"`
}

package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	"github.com/canvango/canvango-group/internal/ports"
	"github.com/canvango/canvango-group/internal/service"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Manager *service.Manager
	Guard   *service.Guard
	SSO     ports.SSOProvider // optional
	Logger  *slog.Logger
}

// NewRouter builds the HTTP surface: auth endpoints, the guarded API, and
// health checks, wrapped in logging and panic recovery.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", healthHandler)
	mux.HandleFunc("HEAD /healthz", healthHandler)

	auth := &AuthHandlers{Manager: services.Manager, SSO: services.SSO, Logger: logger}
	mux.HandleFunc("POST /auth/login", auth.Login)
	mux.HandleFunc("POST /auth/register", auth.Register)
	mux.HandleFunc("POST /auth/logout", auth.Logout)
	mux.HandleFunc("GET /auth/status", auth.Status)
	mux.HandleFunc("POST /auth/refresh", auth.RefreshProfile)
	mux.HandleFunc("GET /auth/sso/login", auth.SSOLogin)
	mux.HandleFunc("GET /auth/callback", auth.SSOCallback)

	mw := AuthMiddleware{Guard: services.Guard, Manager: services.Manager}
	mux.Handle("GET /api/me", mw.RequireAuth()(http.HandlerFunc(meHandler)))
	mux.Handle("GET /api/admin/overview", mw.RequireRole(domainauth.RoleAdmin)(http.HandlerFunc(adminOverviewHandler)))

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

var errProfileUnresolved = errors.New("profile not resolved for this session")

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// meHandler returns the profile the middleware resolved for this request.
func meHandler(w http.ResponseWriter, r *http.Request) {
	profile, ok := ProfileFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "profile_unresolved",
			Err:     errProfileUnresolved,
		})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"id":        profile.ID,
		"username":  profile.Username,
		"email":     profile.Email,
		"full_name": profile.FullName,
		"role":      profile.Role,
		"balance":   profile.Balance,
	})
}

// adminOverviewHandler is reachable only through the admin role guard.
func adminOverviewHandler(w http.ResponseWriter, r *http.Request) {
	profile, _ := ProfileFromContext(r.Context())
	WriteJSON(w, http.StatusOK, map[string]any{
		"admin": profile.Username,
	})
}

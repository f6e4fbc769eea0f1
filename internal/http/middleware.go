package httpx

// Package httpx exposes the session lifecycle over HTTP: auth endpoints,
// guarded routes, and the usual request plumbing.

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	domainauth "github.com/canvango/canvango-group/internal/domain/auth"
	"github.com/canvango/canvango-group/internal/service"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.Info("http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware gates routes through the guard. The guard decides; this
// layer only translates verdicts into HTTP.
type AuthMiddleware struct {
	Guard   *service.Guard
	Manager *service.Manager
}

// RequireAuth admits any signed-in user and stashes the resolved profile in
// the request context.
func (a AuthMiddleware) RequireAuth() func(http.Handler) http.Handler {
	return a.require("")
}

// RequireRole admits users whose role satisfies the requirement, verified
// with a fresh role query per navigation.
func (a AuthMiddleware) RequireRole(role domainauth.Role) func(http.Handler) http.Handler {
	return a.require(role)
}

func (a AuthMiddleware) require(role domainauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			result := a.Guard.Check(r.Context(), role)
			if !result.Allowed() {
				a.deny(w, r, result)
				return
			}

			ctx := r.Context()
			if profile, ok := a.Manager.CurrentUser(); ok {
				ctx = SetProfileInContext(ctx, profile)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// deny renders a terminal denial: browsers bounce to the login page with the
// attempted path preserved, API clients get JSON.
func (a AuthMiddleware) deny(w http.ResponseWriter, r *http.Request, result service.CheckResult) {
	unauthenticated := !a.Manager.IsAuthenticated()

	if wantsHTML(r) && unauthenticated {
		target := url.URL{Path: "/login"}
		q := url.Values{}
		q.Set("redirect_uri", r.URL.RequestURI())
		target.RawQuery = q.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
		return
	}

	if unauthenticated {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	WriteError(w, ErrorParams{
		Code:    http.StatusForbidden,
		ErrCode: "insufficient_role",
		Err:     errors.New(result.Reason),
	})
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

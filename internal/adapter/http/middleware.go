package adapthttp

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"tensiometer/internal/app"
	"tensiometer/internal/domain"
)

type contextKey string

const userContextKey contextKey = "user"

var errNoCredentials = errors.New("no credentials")

// requireUser resolves the caller and attaches it to the request context.
// Unauthenticated requests get 401.
func (s *Server) requireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		switch {
		case err == nil:
			ctx := context.WithValue(r.Context(), userContextKey, user)
			next(w, r.WithContext(ctx))
		case errors.Is(err, errNoCredentials),
			errors.Is(err, app.ErrSessionNotFound),
			errors.Is(err, app.ErrSessionExpired),
			errors.Is(err, app.ErrUserNotFound):
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		default:
			log.Printf("auth error: %v", err)
			writeMessage(w, http.StatusInternalServerError, "Server error")
		}
	}
}

// authenticate checks the forward auth header first when trusted, then the
// bearer token or session cookie.
func (s *Server) authenticate(r *http.Request) (*domain.User, error) {
	if s.trustForwardAuth {
		if remoteUser := r.Header.Get("Remote-User"); remoteUser != "" {
			return s.authSvc.ValidateForwardAuth(r.Context(), remoteUser)
		}
	}
	token := sessionToken(r)
	if token == "" {
		return nil, errNoCredentials
	}
	return s.authSvc.ValidateSession(r.Context(), token)
}

func userFromContext(ctx context.Context) *domain.User {
	u, _ := ctx.Value(userContextKey).(*domain.User)
	return u
}

// statusRecorder captures the status code written by the wrapped handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func record(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := record(w)
		next.ServeHTTP(rec, r)
		log.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Microsecond))
	})
}

// withCORS sets the allow headers on every response and answers preflight
// requests directly.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.corsOrigin)
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		if s.corsOrigin != "*" {
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

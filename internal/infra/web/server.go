// File: internal/infra/web/server.go
package web

import (
	"net/http"
	"time"

	"render-studio/internal/infra/logging"
	"render-studio/internal/infra/notify"
	"render-studio/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// TrackScheduler starts the server-side polling loop for a freshly accepted
// submission.
type TrackScheduler interface {
	EnqueueTrack(userID, predictionID string) error
}

type Server struct {
	renderUC usecase.RenderUseCase
	tracker  TrackScheduler
	sink     *notify.Sink
	auth     *AuthManager
	watches  *watchRegistry
	log      *zerolog.Logger
}

func NewServer(renderUC usecase.RenderUseCase, tracker TrackScheduler, sink *notify.Sink, auth *AuthManager, logger *zerolog.Logger) *Server {
	return &Server{
		renderUC: renderUC,
		tracker:  tracker,
		sink:     sink,
		auth:     auth,
		log:      logger,
	}
}

// Router builds the full route tree. Render and notification routes sit
// behind the session middleware; health and metrics stay open.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer)
	r.Use(s.traceMiddleware)
	r.Use(s.requestLog)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/renders", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleList)
			r.Get("/{id}", s.handlePoll)
			r.Delete("/{id}", s.handleDelete)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleNotifications)
			r.Delete("/{id}", s.handleDismissNotification)
		})
	})

	return r
}

// authMiddleware resolves the caller from the session token and scopes the
// request context to that user.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid session")
			return
		}
		s.ensureWatch(claims.UserID())
		ctx := withUser(r.Context(), claims.UserID())
		ctx = logging.WithUserID(ctx, claims.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTraceID(r.Context(), uuid.NewString())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := logging.With(r.Context(), s.log)
		start := time.Now()
		ww := &respWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		l.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("duration", time.Since(start)).
			Msg("http_request")
	})
}

type respWriter struct {
	http.ResponseWriter
	status int
}

func (w *respWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

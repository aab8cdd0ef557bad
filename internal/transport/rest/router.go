package rest

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/paulexconde/followup/internal/services"
	"github.com/paulexconde/followup/internal/transport/rest/handler"
)

// Container holds all dependencies for the router
type Container struct {
	Engine services.EngineService
	Logger *slog.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	sessionHandler := handler.NewSessionHandler(c.Engine)

	r.Use(requestLogger(c.Logger))

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/sessions", sessionHandler.Create).Methods("POST")
	v1.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET")
	v1.HandleFunc("/sessions/{id}/answers", sessionHandler.SubmitAnswer).Methods("POST")
	v1.HandleFunc("/sessions/{id}/path", sessionHandler.GetPath).Methods("GET")
	v1.HandleFunc("/sessions/{id}/freeze", sessionHandler.Freeze).Methods("POST")
	v1.HandleFunc("/cases/{id}/sessions", sessionHandler.ListByCase).Methods("GET")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}

func requestLogger(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start),
			)
		})
	}
}

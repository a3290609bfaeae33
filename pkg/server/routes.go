package server

import (
	"fmt"
	"net/http"
	"time"

	httpLogger "github.com/chi-middleware/logrus-logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
	"github.com/riandyrn/otelchi"

	"github.com/rxevidence/rxevidence/internal"
	"github.com/rxevidence/rxevidence/pkg/auth"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/server/apihandlers"
)

var log = internal.GetLogger()

const (
	ReadHeaderTimeout = 5 * time.Second
	RouterName        = "rxevidence-api"
)

// Create creates a new HTTP server with the given app state
func Create(appState *models.AppState) (*http.Server, error) {
	router, err := setupRouter(appState)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", appState.Config.Server.Host, appState.Config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: ReadHeaderTimeout,
	}, nil
}

// @title						RxEvidence REST API
// @version					0.x
// @BasePath					/api/v1
// @schemes					http https
// @securityDefinitions.apikey	Bearer
// @in							header
// @name						Authorization
// @description				Type "Bearer" followed by a space and JWT token.
func setupRouter(appState *models.AppState) (*chi.Mux, error) {
	cfg := appState.Config

	router := chi.NewRouter()
	router.Use(httpLogger.Logger("router", log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, _ string) bool { return true },
		AllowedMethods:  []string{"GET", "POST", "DELETE"},
		AllowedHeaders:  []string{"Authorization", "Content-Type"},
	}))
	router.Use(SendVersion)
	router.Use(middleware.Heartbeat("/healthz"))
	if cfg.Server.MaxRequestSize > 0 {
		router.Use(middleware.RequestSize(cfg.Server.MaxRequestSize))
	}
	if cfg.Tracing.Enabled {
		router.Use(otelchi.Middleware(
			RouterName,
			otelchi.WithChiRoutes(router),
			otelchi.WithRequestMethodInSpanName(true),
		))
	}

	if cfg.Auth.Required {
		log.Info("JWT authentication required")
		verifier, err := auth.JWTVerifier(cfg)
		if err != nil {
			return nil, err
		}
		router.Use(verifier)
		router.Use(jwtauth.Authenticator)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(JSONContentType)

		r.Get("/health", apihandlers.HealthHandler(appState))
		r.Get("/stats", apihandlers.GetStatsHandler(appState))

		r.Route("/labels", func(r chi.Router) {
			r.Get("/", apihandlers.ListLabelsHandler(appState))
			r.Post("/", apihandlers.CreateLabelHandler(appState))
			r.Route("/{labelId}", func(r chi.Router) {
				r.Get("/", apihandlers.GetLabelHandler(appState))
				r.Delete("/", apihandlers.DeleteLabelHandler(appState))
			})
		})

		r.Get("/chunks/{chunkId}", apihandlers.GetChunkHandler(appState))

		r.Post("/search", apihandlers.SearchHandler(appState))
		r.Post("/answer", apihandlers.AnswerHandler(appState))
	})

	return router, nil
}

package apihandlers

import (
	"net/http"

	"github.com/rxevidence/rxevidence/config"
	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/server/handlertools"
)

// GetStatsHandler godoc
//
//	@Summary		Store statistics
//	@Description	Returns label, chunk and embedded chunk counts
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	models.StoreStats
//	@Failure		500	{object}	APIError	"Internal Server Error"
//	@Security		Bearer
//	@Router			/api/v1/stats [get]
func GetStatsHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := appState.LabelStore.Stats(r.Context())
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		if err := handlertools.EncodeJSON(w, stats); err != nil {
			handlertools.RenderError(w, err)
			return
		}
	}
}

// HealthHandler godoc
//
//	@Summary		Health check
//	@Description	Reports the server version and whether the store answers queries
//	@Tags			admin
//	@Produce		json
//	@Success		200	{object}	HealthResponse
//	@Failure		503	{object}	HealthResponse
//	@Router			/api/v1/health [get]
func HealthHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:  "ok",
			Version: config.VersionString,
			Store:   "ok",
		}

		if _, err := appState.LabelStore.Stats(r.Context()); err != nil {
			log.Errorf("health check: store unavailable: %v", err)
			response.Status = "degraded"
			response.Store = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
		}

		if err := handlertools.EncodeJSON(w, response); err != nil {
			handlertools.RenderError(w, err)
			return
		}
	}
}

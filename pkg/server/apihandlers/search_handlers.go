package apihandlers

import (
	"net/http"

	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/server/handlertools"
)

// SearchHandler godoc
//
//	@Summary		Search saved labels
//	@Description	Returns the chunks nearest to the query. Falls back to full-text search when semantic results are weak.
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.SearchPayload	true	"Search query"
//	@Success		200		{object}	models.SearchResult
//	@Failure		400		{object}	APIError	"Bad Request"
//	@Failure		502		{object}	APIError	"Embedding Service Unavailable"
//	@Failure		500		{object}	APIError	"Internal Server Error"
//	@Security		Bearer
//	@Router			/api/v1/search [post]
func SearchHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload models.SearchPayload
		if err := handlertools.DecodeAndValidateJSON(r, &payload); err != nil {
			handlertools.RenderError(w, err)
			return
		}

		result, err := appState.Retriever.Search(r.Context(), payload.Query, payload.K, payload.LabelID)
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		if err := handlertools.EncodeJSON(w, result); err != nil {
			handlertools.RenderError(w, err)
			return
		}
	}
}

// AnswerHandler godoc
//
//	@Summary		Answer a question from saved labels
//	@Description	Retrieves evidence for the question and generates a cited answer
//	@Tags			search
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.SearchPayload	true	"Question"
//	@Success		200		{object}	models.AnswerResult
//	@Failure		400		{object}	APIError	"Bad Request"
//	@Failure		502		{object}	APIError	"Generation Failed"
//	@Failure		500		{object}	APIError	"Internal Server Error"
//	@Security		Bearer
//	@Router			/api/v1/answer [post]
func AnswerHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload models.SearchPayload
		if err := handlertools.DecodeAndValidateJSON(r, &payload); err != nil {
			handlertools.RenderError(w, err)
			return
		}

		result, err := appState.Assistant.Answer(r.Context(), payload.Query, payload.K, payload.LabelID)
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		if err := handlertools.EncodeJSON(w, result); err != nil {
			handlertools.RenderError(w, err)
			return
		}
	}
}

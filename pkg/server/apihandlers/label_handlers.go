package apihandlers

import (
	"net/http"

	"github.com/jinzhu/copier"

	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/server/handlertools"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// CreateLabelHandler godoc
//
//	@Summary		Fetch and ingest a drug label
//	@Description	Fetches the FDA label for a drug, stores and chunks its sections and embeds the chunks
//	@Tags			labels
//	@Accept			json
//	@Produce		json
//	@Param			request	body		models.CreateLabelRequest	true	"Drug to fetch"
//	@Success		201		{object}	models.IngestSummary
//	@Failure		400		{object}	APIError	"Bad Request"
//	@Failure		404		{object}	APIError	"Label Not Found"
//	@Failure		502		{object}	APIError	"Upstream Unavailable"
//	@Failure		500		{object}	APIError	"Internal Server Error"
//	@Security		Bearer
//	@Router			/api/v1/labels [post]
func CreateLabelHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request models.CreateLabelRequest
		if err := handlertools.DecodeAndValidateJSON(r, &request); err != nil {
			handlertools.RenderError(w, err)
			return
		}

		summary, err := appState.Ingestor.FetchAndIngest(r.Context(), request.DrugName)
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		if err := handlertools.EncodeJSON(w, summary); err != nil {
			handlertools.RenderError(w, err)
			return
		}
	}
}

// ListLabelsHandler godoc
//
//	@Summary		List recently fetched labels
//	@Description	Returns saved labels, newest first
//	@Tags			labels
//	@Produce		json
//	@Param			limit	query		integer	false	"Maximum number of labels"	default(20)
//	@Success		200		{object}	ListLabelsResponse
//	@Failure		400		{object}	APIError	"Bad Request"
//	@Failure		500		{object}	APIError	"Internal Server Error"
//	@Security		Bearer
//	@Router			/api/v1/labels [get]
func ListLabelsHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := handlertools.IntFromQuery[int](r, "limit")
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}
		if limit <= 0 {
			limit = defaultListLimit
		}
		limit = min(limit, maxListLimit)

		labels, err := appState.LabelStore.ListRecentLabels(r.Context(), limit)
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		response := ListLabelsResponse{Labels: make([]LabelSummary, 0, len(labels))}
		for i := range labels {
			var summary LabelSummary
			if err := copier.Copy(&summary, &labels[i]); err != nil {
				handlertools.RenderError(w, err)
				return
			}
			response.Labels = append(response.Labels, summary)
		}

		if err := handlertools.EncodeJSON(w, response); err != nil {
			handlertools.RenderError(w, err)
			return
		}
	}
}

// GetLabelHandler godoc
//
//	@Summary		Returns a label by ID
//	@Description	Returns a saved label with its sections. The raw upstream record is included on request.
//	@Tags			labels
//	@Produce		json
//	@Param			labelId		path		integer	true	"Label ID"
//	@Param			include_raw	query		boolean	false	"Include the raw upstream record"
//	@Success		200			{object}	models.Label
//	@Failure		400			{object}	APIError	"Bad Request"
//	@Failure		404			{object}	APIError	"Not Found"
//	@Failure		500			{object}	APIError	"Internal Server Error"
//	@Security		Bearer
//	@Router			/api/v1/labels/{labelId} [get]
func GetLabelHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		labelID, err := handlertools.IDFromURL(r, "labelId")
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}
		includeRaw, err := handlertools.BoolFromQuery(r, "include_raw")
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		label, err := appState.LabelStore.GetLabel(r.Context(), labelID, includeRaw)
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		if err := handlertools.EncodeJSON(w, label); err != nil {
			handlertools.RenderError(w, err)
			return
		}
	}
}

// DeleteLabelHandler godoc
//
//	@Summary		Deletes a label
//	@Description	Deletes a label and all of its chunks
//	@Tags			labels
//	@Param			labelId	path	integer	true	"Label ID"
//	@Success		204
//	@Failure		400	{object}	APIError	"Bad Request"
//	@Failure		404	{object}	APIError	"Not Found"
//	@Failure		500	{object}	APIError	"Internal Server Error"
//	@Security		Bearer
//	@Router			/api/v1/labels/{labelId} [delete]
func DeleteLabelHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		labelID, err := handlertools.IDFromURL(r, "labelId")
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		if err := appState.LabelStore.DeleteLabel(r.Context(), labelID); err != nil {
			handlertools.RenderError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

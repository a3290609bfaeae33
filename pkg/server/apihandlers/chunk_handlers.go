package apihandlers

import (
	"net/http"

	"github.com/rxevidence/rxevidence/pkg/models"
	"github.com/rxevidence/rxevidence/pkg/server/handlertools"
)

// GetChunkHandler godoc
//
//	@Summary		Returns a chunk by ID
//	@Description	Returns the text of a stored chunk, as cited by search and answer
//	@Tags			chunks
//	@Produce		json
//	@Param			chunkId	path		integer	true	"Chunk ID"
//	@Success		200		{object}	models.Chunk
//	@Failure		400		{object}	APIError	"Bad Request"
//	@Failure		404		{object}	APIError	"Not Found"
//	@Failure		500		{object}	APIError	"Internal Server Error"
//	@Security		Bearer
//	@Router			/api/v1/chunks/{chunkId} [get]
func GetChunkHandler(appState *models.AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chunkID, err := handlertools.IDFromURL(r, "chunkId")
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		chunk, err := appState.LabelStore.GetChunk(r.Context(), chunkID)
		if err != nil {
			handlertools.RenderError(w, err)
			return
		}

		if err := handlertools.EncodeJSON(w, chunk); err != nil {
			handlertools.RenderError(w, err)
			return
		}
	}
}

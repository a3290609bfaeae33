// Package apihandlers implements the /api/v1 REST handlers over the label store,
// retriever, assistant and ingestion orchestrator held in models.AppState.
package apihandlers

import "github.com/rxevidence/rxevidence/internal"

var log = internal.GetLogger()

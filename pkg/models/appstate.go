package models

import (
	"github.com/rxevidence/rxevidence/config"
)

// AppState is a struct that holds the state of the application
// Use cmd.NewAppState to create a new instance
type AppState struct {
	LabelStore LabelStore
	Embedder   Embedder
	LLM        LLM
	Fetcher    LabelFetcher
	Retriever  Retriever
	Assistant  Assistant
	Ingestor   Ingestor
	Config     *config.Config
}

package models

import "context"

type Retriever interface {
	Search(ctx context.Context, query string, k int, labelID *int64) (*SearchResult, error)
}

type Assistant interface {
	Answer(ctx context.Context, question string, k int, labelID *int64) (*AnswerResult, error)
}

type Ingestor interface {
	FetchAndIngest(ctx context.Context, drugName string) (*IngestSummary, error)
	EmbedPending(ctx context.Context) (int, error)
}

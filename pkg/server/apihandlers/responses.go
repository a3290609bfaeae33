package apihandlers

import "time"

// APIError represents an error response. Used for swagger documentation.
type APIError struct {
	Message string `json:"message"`
}

// HealthResponse is returned by the health route.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Store   string `json:"store"`
}

// ListLabelsResponse wraps the recent labels list.
type ListLabelsResponse struct {
	Labels []LabelSummary `json:"labels"`
}

// LabelSummary is the list view of a label.
type LabelSummary struct {
	ID            int64     `json:"id"`
	DrugQuery     string    `json:"drug_query"`
	BrandName     string    `json:"brand_name"`
	GenericName   string    `json:"generic_name"`
	Manufacturer  string    `json:"manufacturer"`
	EffectiveTime string    `json:"effective_time"`
	FetchedAt     time.Time `json:"fetched_at"`
}

package model

// RetrievalMatch is one passage returned by the vector index for a query.
type RetrievalMatch struct {
	Title     string  `json:"title"`
	Passage   string  `json:"passage"`
	SourceURL string  `json:"sourceUrl"`
	Score     float64 `json:"score"`
}


package models

type QueryRAGResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// IndexStatsResponse reports the state of the vector index.
type IndexStatsResponse struct {
	Chunks int  `json:"chunks"`
	Loaded bool `json:"loaded"`
}

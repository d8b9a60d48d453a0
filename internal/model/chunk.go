package model

// Chunk is one window of a source document plus its embedding.
type Chunk struct {
	Text      string    `json:"text"`
	Source    string    `json:"source"`
	Page      int       `json:"page,omitempty"`
	Position  int       `json:"position"`
	Embedding []float32 `json:"-"`
}

// ChunkMatch is a retrieved chunk. Page is nil for documents without pages.
type ChunkMatch struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Page   *int    `json:"page"`
	Rank   int     `json:"rank"`
	Score  float32 `json:"score"`
}

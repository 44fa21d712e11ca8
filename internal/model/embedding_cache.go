package model

// EmbeddingCacheRow is one persisted question vector of a cached generation.
type EmbeddingCacheRow struct {
	FingerprintKey string    `json:"fingerprint_key"`
	Position       int       `json:"position"`
	ModelName      string    `json:"model_name"`
	Question       string    `json:"question"`
	Embedding      []float32 `json:"embedding"`
	Ctime          int64     `json:"ctime"`
}

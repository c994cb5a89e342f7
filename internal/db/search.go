package db

// KNNQuery is the input for vector similarity search. Filter is an optional
// FT.SEARCH pre-filter expression composed by the repository.
type KNNQuery struct {
	IndexName    string
	Filter       string
	Vector       []float32
	K            int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit; Score is cosine similarity in [0,1].
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// IndexDefinition describes an FT index over hash keys with one vector field
// plus tag fields.
type IndexDefinition struct {
	Name       string
	Prefix     string
	VectorDim  int
	TagFields  []string
	TextFields []string
}

package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Status  string `json:"status"`
	OwnerID string `json:"ownerId"`
}

// Query describes a search request. OwnerID is mandatory: authors only
// ever search their own forms.
type Query struct {
	Text         string
	OwnerID      string
	FilterStatus string // empty = all statuses
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push forms into a search index.
type Indexer interface {
	IndexForm(f FormRecord) error
	DeleteForm(id string) error
}

// FormRecord is the data we index for a form.
type FormRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	OwnerID     string `json:"ownerId"`
	Status      string `json:"status"`
}

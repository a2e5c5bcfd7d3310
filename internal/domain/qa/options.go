package qa

// ListOptions provides filtering options for listing records.
type ListOptions struct {
	ProjectID      string
	Statuses       []Status
	Category       string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// SearchOptions provides filtering options for search.
type SearchOptions struct {
	Statuses []Status
	Limit    int
	Offset   int
}

package shared

// ListFilters represents standard list page filters for master data.
type ListFilters struct {
	Page    int
	PerPage int
	Search  string
}

// Normalize applies defaults and bounds.
func (f ListFilters) Normalize() ListFilters {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PerPage <= 0 || f.PerPage > 100 {
		f.PerPage = 20
	}
	return f
}

// Offset returns the SQL offset for the page.
func (f ListFilters) Offset() int {
	return (f.Page - 1) * f.PerPage
}

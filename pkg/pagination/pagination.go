package pagination

// Offset pagination driven by page/limit query parameters.

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any page query can request.
	MaxLimit = 100
)

// Params holds pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Meta describes the page returned alongside a listing.
type Meta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// Normalize enforces the configured default and maximum limits and a
// one-based page number.
func (p Params) Normalize() Params {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// Offset returns the row offset for the normalized page.
func (p Params) Offset() int {
	normalized := p.Normalize()
	return (normalized.Page - 1) * normalized.Limit
}

// NewMeta builds page metadata from a total row count.
func NewMeta(params Params, totalItems int64) Meta {
	normalized := params.Normalize()
	totalPages := int((totalItems + int64(normalized.Limit) - 1) / int64(normalized.Limit))
	return Meta{
		Page:       normalized.Page,
		Limit:      normalized.Limit,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
}

package pagination

import (
	"fmt"
	"sort"
	"strings"

	"github.com/toky-team/toky-back-sub001/domain"
)

// Order is the direction of the sort value. The id tiebreaker is always
// ascending.
type Order string

const (
	Desc Order = "DESC"
	Asc  Order = "ASC"
)

func ParseOrder(s string) (Order, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", string(Desc):
		return Desc, nil
	case string(Asc):
		return Asc, nil
	}
	return "", fmt.Errorf("%w: invalid order %q", domain.ErrInvalidInput, s)
}

// ErrInvalidLimit is returned for a page request whose limit is not positive.
var ErrInvalidLimit = fmt.Errorf("%w: page limit must be positive", domain.ErrInvalidInput)

// Request asks for one page. The first page has no cursor.
type Request struct {
	Cursor string
	Limit  int
	Order  Order
}

// Normalize applies the default limit, clamps to max and validates the order
// and the cursor.
func (r Request) Normalize(defaultLimit, maxLimit int) (Request, error) {
	if r.Limit <= 0 {
		r.Limit = defaultLimit
	}
	if maxLimit > 0 && r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	if r.Limit <= 0 {
		r.Limit = 1
	}
	order, err := ParseOrder(string(r.Order))
	if err != nil {
		return Request{}, err
	}
	r.Order = order
	if r.Cursor != "" {
		if _, err := ParseCursorData(r.Cursor); err != nil {
			return Request{}, err
		}
	}
	return r, nil
}

// After returns the decoded cursor, or ok=false for a first page. A request
// that was never normalized and has no positive limit fails with
// ErrInvalidLimit.
func (r Request) After() (c CursorData, ok bool, err error) {
	if r.Limit <= 0 {
		return CursorData{}, false, ErrInvalidLimit
	}
	if r.Cursor == "" {
		return CursorData{}, false, nil
	}
	c, err = ParseCursorData(r.Cursor)
	if err != nil {
		return CursorData{}, false, err
	}
	return c, true, nil
}

// Page is one slice of an ordered result set.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasNext    bool   `json:"hasNext"`
}

// NewPage builds a page from a fetch of up to limit+1 rows. The extra row only
// signals that another page exists.
func NewPage[T any](rows []T, limit int, key func(T) CursorData) (Page[T], error) {
	if limit <= 0 {
		return Page[T]{}, ErrInvalidLimit
	}
	if len(rows) <= limit {
		if rows == nil {
			rows = []T{}
		}
		return Page[T]{Items: rows}, nil
	}
	items := rows[:limit]
	return Page[T]{
		Items:      items,
		NextCursor: CreateCursor(key(items[len(items)-1])),
		HasNext:    true,
	}, nil
}

// Before reports whether a sorts strictly before b in order.
func Before(a, b CursorData, order Order) bool {
	if a.SortValue != b.SortValue {
		if order == Asc {
			return a.SortValue < b.SortValue
		}
		return a.SortValue > b.SortValue
	}
	return a.ID < b.ID
}

// Paginate pages an in-memory result set. rows need not be sorted.
func Paginate[T any](rows []T, req Request, key func(T) CursorData) (Page[T], error) {
	after, hasCursor, err := req.After()
	if err != nil {
		return Page[T]{}, err
	}
	sorted := make([]T, 0, len(rows))
	for _, row := range rows {
		if hasCursor && !Before(after, key(row), req.Order) {
			continue
		}
		sorted = append(sorted, row)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return Before(key(sorted[i]), key(sorted[j]), req.Order)
	})
	if len(sorted) > req.Limit+1 {
		sorted = sorted[:req.Limit+1]
	}
	return NewPage(sorted, req.Limit, key)
}

// Package pagination implements keyset pagination over (sortValue, id) pairs
// with opaque cursors.
package pagination

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/toky-team/toky-back-sub001/domain"
)

// ErrInvalidCursor is a client input fault. It matches domain.ErrInvalidInput.
var ErrInvalidCursor = fmt.Errorf("%w: invalid cursor", domain.ErrInvalidInput)

const separator = "|"

// CursorData is the last row of a page: its sort value and its id tiebreaker.
type CursorData struct {
	SortValue float64
	ID        string
}

// CreateCursor encodes c as base64("<sortValue>|<id>"). Sort values use the
// shortest representation that parses back to the same float64.
func CreateCursor(c CursorData) string {
	raw := strconv.FormatFloat(c.SortValue, 'g', -1, 64) + separator + c.ID
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// ParseCursorData reverses CreateCursor. The id may itself contain the
// separator; the sort value never does.
func ParseCursorData(cursor string) (CursorData, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return CursorData{}, fmt.Errorf("%w: empty", ErrInvalidCursor)
	}
	raw, err := decodeBase64(cursor)
	if err != nil {
		return CursorData{}, fmt.Errorf("%w: not base64", ErrInvalidCursor)
	}
	value, id, ok := strings.Cut(string(raw), separator)
	if !ok {
		return CursorData{}, fmt.Errorf("%w: expected two fields", ErrInvalidCursor)
	}
	if id == "" {
		return CursorData{}, fmt.Errorf("%w: empty id", ErrInvalidCursor)
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return CursorData{}, fmt.Errorf("%w: sort value %q is not a number", ErrInvalidCursor, value)
	}
	return CursorData{SortValue: f, ID: id}, nil
}

// decodeBase64 accepts standard and URL safe alphabets, padded or not, since
// cursors often pass through query strings.
func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		b, err := enc.DecodeString(s)
		if err == nil {
			return b, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize applies when a listing omits pageSize.
	DefaultPageSize = 50
	// DefaultMaxPageSize is the upper bound applied to pageSize when Options leaves it unset.
	DefaultMaxPageSize = 100

	pageSizeParam  = "pageSize"
	pageTokenParam = "pageToken"
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Params is the page request read from the query string.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// Options set per-listing defaults. Zero values fall back to the package defaults.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

func (o Options) bounds() (def, limit int) {
	limit = o.MaxPageSize
	if limit <= 0 {
		limit = DefaultMaxPageSize
	}
	def = o.DefaultPageSize
	if def <= 0 {
		def = DefaultPageSize
	}
	return min(def, limit), limit
}

// Parse reads pageSize and pageToken. Oversized pages are clamped, not rejected.
func Parse(values url.Values, opts Options) (Params, error) {
	def, limit := opts.bounds()
	params := Params{PageSize: def}

	if raw := strings.TrimSpace(values.Get(pageSizeParam)); raw != "" {
		size, err := strconv.Atoi(raw)
		switch {
		case err != nil:
			return Params{}, fmt.Errorf("%w: must be an integer", ErrInvalidPageSize)
		case size <= 0:
			return Params{}, fmt.Errorf("%w: must be greater than zero", ErrInvalidPageSize)
		}
		params.PageSize = min(size, limit)
	}

	if raw := strings.TrimSpace(values.Get(pageTokenParam)); raw != "" {
		cursor, err := DecodeToken(raw)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = raw
		params.Cursor = cursor
	}
	return params, nil
}

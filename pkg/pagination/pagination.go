// Package pagination parses and clamps page/limit query parameters for list
// endpoints. Every list handler goes through Parse so the whole API shares
// one set of bounds.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds validated pagination parameters.
type Params struct {
	Page   int
	Limit  int
	Offset int
}

// Parse reads page and limit from the query string, falling back to the
// defaults and clamping limit to [1, MaxLimit]. Malformed values are treated
// as absent rather than rejected.
func Parse(c *gin.Context) Params {
	page := atoiOr(c.Query("page"), DefaultPage)
	limit := atoiOr(c.Query("limit"), DefaultLimit)

	if page < 1 {
		page = DefaultPage
	}
	switch {
	case limit < 1:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	return Params{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

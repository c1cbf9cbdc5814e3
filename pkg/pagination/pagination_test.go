package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest_Defaults(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/carts", nil)
	p := FromRequest(req)

	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 0, p.Offset)
}

func TestFromRequest_CustomValues(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/carts?page=3&per_page=50", nil)
	p := FromRequest(req)

	assert.Equal(t, 3, p.Page)
	assert.Equal(t, 50, p.PerPage)
	assert.Equal(t, 100, p.Offset) // (3-1) * 50
}

func TestFromRequest_InvalidValuesFallBack(t *testing.T) {
	for _, query := range []string{"page=0", "page=-1", "page=abc", "per_page=0", "per_page=200"} {
		req := httptest.NewRequest(http.MethodGet, "/carts?"+query, nil)
		p := FromRequest(req)
		assert.Equal(t, 1, p.Page, query)
		assert.Equal(t, 20, p.PerPage, query)
	}
}

func TestNewResult(t *testing.T) {
	params := Params{Page: 2, PerPage: 10, Offset: 10}
	res := NewResult([]string{"a", "b"}, 25, params)

	assert.Equal(t, 25, res.TotalCount)
	assert.Equal(t, 3, res.TotalPages)
	assert.True(t, res.HasNext)
	assert.True(t, res.HasPrev)
}

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

// Lookup kinds served by the profile form's searchable selects.
const (
	LookupEntity   = "entity"
	LookupState    = "state"
	LookupDistrict = "district"
	LookupBlock    = "block"
)

var lookupFilters = map[string][]string{
	LookupEntity:   {"name", "entity_type_id", "test_id"},
	LookupState:    {"name", "test_id"},
	LookupDistrict: {"name", "state_ids", "test_id"},
	LookupBlock:    {"name", "district_ids", "test_id"},
}

var ErrUnknownLookup = errors.New("unknown lookup kind")

// Lookup searches entities or locations. Only the filters a kind understands are
// forwarded; the first page of 50 is returned.
func (c *Client) Lookup(ctx context.Context, kind string, filters url.Values) ([]json.RawMessage, error) {
	allowed, ok := lookupFilters[kind]
	if !ok {
		return nil, ErrUnknownLookup
	}
	q := url.Values{"page": {"1"}, "size": {"50"}}
	path := "/location/" + kind + "/"
	if kind == LookupEntity {
		q.Set("sort_order", "asc")
		path = "/entity/"
	}
	for _, k := range allowed {
		if v := filters.Get(k); v != "" {
			q.Set(k, v)
		}
	}
	var page struct {
		Items []json.RawMessage `json:"items"`
	}
	if err := c.do(ctx, kind+" lookup", http.MethodGet, path, q, nil, &page); err != nil {
		return nil, err
	}
	if page.Items == nil {
		page.Items = []json.RawMessage{}
	}
	return page.Items, nil
}

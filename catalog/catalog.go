// Package catalog is a read-through view over the product list. The server
// is asked for the full (unpaginated) filtered result set; sorting and
// pagination both happen client-side over that in-memory list. This is a
// deliberate simplification - the catalog is small and the UI pages through
// it without refetching.
package catalog

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"sync"

	"github.com/snag21205/unimerch/api"
	"github.com/snag21205/unimerch/core"
)

// Sort names the client-side orderings.
type Sort string

const (
	SortNewest    Sort = "newest"
	SortOldest    Sort = "oldest"
	SortPriceLow  Sort = "price_low"
	SortPriceHigh Sort = "price_high"
	SortNameAsc   Sort = "name_asc"
	SortNameDesc  Sort = "name_desc"
)

// Filters restrict and order the product list. Price bounds apply to the
// listed price server-side; sorting is discount-aware via effective price.
type Filters struct {
	Search     string
	CategoryID int64
	MinPrice   *float64
	MaxPrice   *float64
	Sort       Sort
}

// View holds the fetched product list and serves derived pages from it.
type View struct {
	mu       sync.RWMutex
	products []core.Product

	api    *api.Client
	logger core.Logger
}

// New builds an empty view; call Load before paging.
func New(client *api.Client, logger core.Logger) *View {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &View{api: client, logger: logger}
}

// Load fetches the full filtered result set and sorts it locally.
func (v *View) Load(ctx context.Context, f Filters) error {
	query := url.Values{}
	if f.Search != "" {
		query.Set("search", f.Search)
	}
	if f.CategoryID > 0 {
		query.Set("category_id", strconv.FormatInt(f.CategoryID, 10))
	}
	if f.MinPrice != nil {
		query.Set("min_price", strconv.FormatFloat(*f.MinPrice, 'f', -1, 64))
	}
	if f.MaxPrice != nil {
		query.Set("max_price", strconv.FormatFloat(*f.MaxPrice, 'f', -1, 64))
	}

	var out struct {
		Products []core.Product `json:"products"`
	}
	if err := v.api.DoInto(ctx, api.Request{
		Endpoint: api.EndpointProducts,
		Query:    query,
	}, &out); err != nil {
		return err
	}

	sortProducts(out.Products, f.Sort)

	v.mu.Lock()
	v.products = out.Products
	v.mu.Unlock()

	v.logger.Debug("Catalog loaded", map[string]interface{}{
		"operation": "catalog_load",
		"count":     len(out.Products),
		"sort":      string(f.Sort),
	})
	return nil
}

// Products returns a copy of the current filtered/sorted list.
func (v *View) Products() []core.Product {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]core.Product, len(v.products))
	copy(out, v.products)
	return out
}

// Page is a pure slice over the already-loaded list: 1-based page number,
// deterministic, no refetch. Concatenating all pages reconstructs the list.
func (v *View) Page(number, size int) []core.Product {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if number < 1 || size < 1 {
		return nil
	}
	start := (number - 1) * size
	if start >= len(v.products) {
		return nil
	}
	end := start + size
	if end > len(v.products) {
		end = len(v.products)
	}
	out := make([]core.Product, end-start)
	copy(out, v.products[start:end])
	return out
}

// Get fetches a single product fresh from the server.
func (v *View) Get(ctx context.Context, id int64) (*core.Product, error) {
	var out core.Product
	err := v.api.DoInto(ctx, api.Request{
		Endpoint:   api.EndpointProduct,
		PathParams: map[string]string{"productId": strconv.FormatInt(id, 10)},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// sortProducts orders in place. The price sorts key on effective price so a
// discounted item sorts by what the customer actually pays, consistent with
// the cart's totals. Stable sort keeps equal keys in server order.
func sortProducts(products []core.Product, by Sort) {
	switch by {
	case SortNewest:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		})
	case SortOldest:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].CreatedAt.Before(products[j].CreatedAt)
		})
	case SortPriceLow:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].EffectivePrice() < products[j].EffectivePrice()
		})
	case SortPriceHigh:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].EffectivePrice() > products[j].EffectivePrice()
		})
	case SortNameAsc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Name < products[j].Name
		})
	case SortNameDesc:
		sort.SliceStable(products, func(i, j int) bool {
			return products[i].Name > products[j].Name
		})
	}
}

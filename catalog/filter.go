package catalog

import (
	"net/url"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

type SortOrder string

const (
	SortByName    SortOrder = "name"
	SortPriceLow  SortOrder = "price-low"
	SortPriceHigh SortOrder = "price-high"
)

// Filter narrows and orders a page of products after it arrives.
type Filter struct {
	Search   string
	MinPrice decimal.Decimal
	// nil means no upper bound
	MaxPrice *decimal.Decimal
	Sort     SortOrder
}

func ParseFilter(v url.Values) Filter {
	f := Filter{
		Search: strings.TrimSpace(v.Get("search")),
		Sort:   SortOrder(v.Get("sort")),
	}
	switch f.Sort {
	case SortByName, SortPriceLow, SortPriceHigh:
	default:
		f.Sort = SortByName
	}
	if min, err := decimal.NewFromString(v.Get("minPrice")); err == nil && min.IsPositive() {
		f.MinPrice = min
	}
	if max, err := decimal.NewFromString(v.Get("maxPrice")); err == nil {
		f.MaxPrice = &max
	}
	return f
}

func (f Filter) matches(p Product) bool {
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
		return false
	}
	if p.Price.LessThan(f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

// Apply returns the matching products in the requested order. The input is
// left untouched.
func (f Filter) Apply(products []Product) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.matches(p) {
			out = append(out, p)
		}
	}

	switch f.Sort {
	case SortPriceLow:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	case SortPriceHigh:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
		})
	}
	return out
}

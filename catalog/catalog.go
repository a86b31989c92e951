package catalog

import (
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

const PlaceholderImage = "/placeholder.svg"

/*
ImageSet is either a Single image or a Gallery of them. Listings only carry
one image, product detail may carry several.
*/
type ImageSet interface {
	// Primary is the image shown on cards and in the cart.
	Primary() string
	// All is every image in display order, never empty.
	All() []string
}

type Single string

func (s Single) Primary() string {
	if s == "" {
		return PlaceholderImage
	}
	return string(s)
}

func (s Single) All() []string {
	return []string{s.Primary()}
}

type Gallery []string

func (g Gallery) Primary() string {
	if len(g) == 0 {
		return PlaceholderImage
	}
	return g[0]
}

func (g Gallery) All() []string {
	if len(g) == 0 {
		return []string{PlaceholderImage}
	}
	out := make([]string, len(g))
	copy(out, g)
	return out
}

// NewImageSet prefers a non-empty gallery and falls back to the single image.
func NewImageSet(image string, images []string) ImageSet {
	if len(images) > 0 {
		return Gallery(images)
	}
	return Single(image)
}

type Product struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Images        ImageSet        `json:"-"`
	Description   string          `json:"description,omitempty"`
	Category      string          `json:"category,omitempty"`
	Subcategories []string        `json:"subcategories,omitempty"`
	Stock         *int            `json:"stock,omitempty"`
}

type productJSON struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Image         string          `json:"image,omitempty"`
	Images        []string        `json:"images,omitempty"`
	Description   string          `json:"description,omitempty"`
	Category      string          `json:"category,omitempty"`
	Subcategories []string        `json:"subcategories,omitempty"`
	Stock         *int            `json:"stock,omitempty"`
}

func (p *Product) UnmarshalJSON(b []byte) error {
	var raw productJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = Product{
		ID:            raw.ID,
		Name:          raw.Name,
		Price:         raw.Price,
		Images:        NewImageSet(raw.Image, raw.Images),
		Description:   raw.Description,
		Category:      raw.Category,
		Subcategories: raw.Subcategories,
		Stock:         raw.Stock,
	}
	return nil
}

func (p Product) MarshalJSON() ([]byte, error) {
	raw := productJSON{
		ID:            p.ID,
		Name:          p.Name,
		Price:         p.Price,
		Description:   p.Description,
		Category:      p.Category,
		Subcategories: p.Subcategories,
		Stock:         p.Stock,
	}
	images := p.Images
	if images == nil {
		images = Single("")
	}
	raw.Image = images.Primary()
	if g, ok := images.(Gallery); ok && len(g) > 0 {
		raw.Images = images.All()
	}
	return json.Marshal(raw)
}

// Image is the primary image, or the placeholder.
func (p Product) Image() string {
	if p.Images == nil {
		return PlaceholderImage
	}
	return p.Images.Primary()
}

type Subcategory struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Category struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Subcategories []Subcategory `json:"subcategories"`
}

// FindSubcategories returns the subcategories of the category with id, or
// nil when the id is unknown.
func FindSubcategories(categories []Category, id int64) []Subcategory {
	for _, c := range categories {
		if c.ID == id {
			return c.Subcategories
		}
	}
	return nil
}

type Link struct {
	URL    *string `json:"url"`
	Label  string  `json:"label"`
	Active bool    `json:"active"`
}

type Meta struct {
	CurrentPage int    `json:"current_page"`
	LastPage    int    `json:"last_page"`
	Links       []Link `json:"links"`
}

type Page struct {
	Data []Product `json:"data"`
	Meta Meta      `json:"meta"`
}

// ListQuery is the server side part of a catalog listing.
type ListQuery struct {
	Page           int
	CategoryID     int64
	SubcategoryIDs []int64
}

// WithCategory selects a category (0 for all); subcategories and page reset.
func (q ListQuery) WithCategory(id int64) ListQuery {
	return ListQuery{Page: 1, CategoryID: id}
}

// ToggleSubcategory adds or drops a subcategory and goes back to page 1.
func (q ListQuery) ToggleSubcategory(id int64, checked bool) ListQuery {
	ids := make([]int64, 0, len(q.SubcategoryIDs)+1)
	for _, existing := range q.SubcategoryIDs {
		if existing != id {
			ids = append(ids, existing)
		}
	}
	if checked {
		ids = append(ids, id)
	}
	return ListQuery{Page: 1, CategoryID: q.CategoryID, SubcategoryIDs: ids}
}

func (q ListQuery) Values() url.Values {
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	if q.CategoryID != 0 {
		v.Set("categoryId", strconv.FormatInt(q.CategoryID, 10))
	}
	for _, id := range q.SubcategoryIDs {
		v.Add("subcategoryIds[]", strconv.FormatInt(id, 10))
	}
	return v
}

// ParseListQuery reads the same parameters Values writes. Unparseable
// numbers are ignored.
func ParseListQuery(v url.Values) ListQuery {
	q := ListQuery{Page: 1}
	if page, err := strconv.Atoi(v.Get("page")); err == nil && page > 0 {
		q.Page = page
	}
	if id, err := strconv.ParseInt(v.Get("categoryId"), 10, 64); err == nil {
		q.CategoryID = id
	}
	for _, s := range v["subcategoryIds[]"] {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			q.SubcategoryIDs = append(q.SubcategoryIDs, id)
		}
	}
	return q
}

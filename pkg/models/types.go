package models

import (
	"fmt"
	"sort"
	"strings"
)

// SEOType represents a selectable optimization category
type SEOType string

const (
	// SEOTypeImages rewrites image alt text and filenames
	SEOTypeImages SEOType = "images"
	// SEOTypeContent rewrites product title and description
	SEOTypeContent SEOType = "content"
)

// SEOTypes is a set of optimization categories selected for one job invocation
type SEOTypes []SEOType

// ParseSEOTypes normalizes raw values into a deduplicated, sorted set.
// An empty input or an unknown value is an error.
func ParseSEOTypes(raw []string) (SEOTypes, error) {
	seen := make(map[SEOType]bool, len(raw))
	out := make(SEOTypes, 0, len(raw))
	for _, r := range raw {
		t := SEOType(strings.ToLower(strings.TrimSpace(r)))
		if t == "" {
			continue
		}
		if t != SEOTypeImages && t != SEOTypeContent {
			return nil, fmt.Errorf("unknown seo type %q (expected images or content)", r)
		}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one seo type is required")
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Has reports whether t is part of the set
func (s SEOTypes) Has(t SEOType) bool {
	for _, v := range s {
		if v == t {
			return true
		}
	}
	return false
}

// Strings returns the set as plain strings
func (s SEOTypes) Strings() []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[i] = string(v)
	}
	return out
}

// Product is a catalog product as returned by the commerce API
type Product struct {
	ID       int64     `json:"id"`
	Title    string    `json:"title"`
	BodyHTML string    `json:"body_html"`
	Handle   string    `json:"handle,omitempty"`
	Images   []Image   `json:"images"`
	Variants []Variant `json:"variants"`
}

// Image is a product image as returned by the commerce API
type Image struct {
	ID         int64   `json:"id"`
	ProductID  int64   `json:"product_id"`
	Position   int     `json:"position,omitempty"`
	Src        string  `json:"src"`
	Alt        string  `json:"alt,omitempty"`
	VariantIDs []int64 `json:"variant_ids"`
}

// Variant is a product variant; ImageID is nil when no image is assigned
type Variant struct {
	ID        int64  `json:"id"`
	ProductID int64  `json:"product_id"`
	Title     string `json:"title,omitempty"`
	ImageID   *int64 `json:"image_id"`
}

// ProductDetail is the live image and variant state of one product
type ProductDetail struct {
	Images   []Image
	Variants []Variant
}

// UploadedImage is the catalog's answer to an image upload
type UploadedImage struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
}

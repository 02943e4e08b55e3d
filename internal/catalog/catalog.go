// Package catalog defines the gateway to the product catalog. The engine
// only ever sees catalog data through this interface; the real storefront
// catalog lives outside this system.
package catalog

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("product not found")

// Product is the catalog view of a product as needed by recommendations.
type Product struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Price       float64  `json:"price"`
	Categories  []string `json:"categories,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	TotalSales  int      `json:"total_sales,omitempty"`
	Purchasable bool     `json:"purchasable"`
	InStock     bool     `json:"in_stock"`
}

// Recommendable reports whether the product may appear in a recommendation
// list: it must be purchasable, in stock and carry a price.
func (p Product) Recommendable() bool {
	return p.Purchasable && p.InStock && p.Price > 0
}

// SharedTerms counts taxonomy terms (categories and tags) shared with other.
func (p Product) SharedTerms(other Product) int {
	n := 0
	for _, c := range p.Categories {
		for _, oc := range other.Categories {
			if c == oc {
				n++
			}
		}
	}
	for _, t := range p.Tags {
		for _, ot := range other.Tags {
			if t == ot {
				n++
			}
		}
	}
	return n
}

// Gateway resolves product ids to catalog attributes and answers taxonomy and
// popularity queries.
type Gateway interface {
	// Product returns the catalog view for id, or ErrNotFound.
	Product(ctx context.Context, id int64) (Product, error)

	// SearchTaxonomy returns up to limit products sharing at least one of the
	// given categories or tags, excluding the listed ids.
	SearchTaxonomy(ctx context.Context, categories, tags []string, exclude []int64, limit int) ([]Product, error)

	// PopularityRank returns up to limit products ordered by total sales.
	PopularityRank(ctx context.Context, limit int) ([]Product, error)
}

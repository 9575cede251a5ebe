// Package parser classifies storefront responses and normalizes listings
// into products.
package parser

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aluiziolira/go-scrape-lazada/models"
)

var hundred = decimal.NewFromInt(100)

// NormalizePayload maps every listing of a successful page, keeping source order.
func NormalizePayload(payload *models.ListingPayload, currency, category, scrapedAt string) []models.Product {
	if payload == nil {
		return nil
	}
	items := payload.Mods.ListItems
	products := make([]models.Product, 0, len(items))
	for _, item := range items {
		products = append(products, NormalizeListing(item, currency, category, scrapedAt))
	}
	return products
}

// NormalizeListing maps one raw listing into a Product.
func NormalizeListing(item models.RawListing, currency, category, scrapedAt string) models.Product {
	original := item.OriginalPrice.String()
	formattedOriginal := ""
	if original != "" {
		formattedOriginal = currency + original
	}

	return models.Product{
		Name:            item.Name.String(),
		CurrentPrice:    item.PriceShow.String(),
		OriginalPrice:   formattedOriginal,
		DiscountPercent: DiscountPercent(item.Price.String(), original),
		Rating:          item.RatingScore.String(),
		Reviews:         item.Review.String(),
		Location:        item.Location.String(),
		ItemID:          item.ItemID.String(),
		SellerName:      item.SellerName.String(),
		BrandName:       item.BrandName.String(),
		ImageURL:        item.Image.String(),
		CategoryName:    category,
		ScrapedAt:       scrapedAt,
	}
}

// DiscountPercent returns "(original-current)/original" as a percentage with
// one decimal, e.g. "25.0%". It is empty when either price is missing or not
// numeric, or when there is no markdown.
func DiscountPercent(current, original string) string {
	current = strings.TrimSpace(current)
	original = strings.TrimSpace(original)
	if current == "" || original == "" {
		return ""
	}
	cur, err := decimal.NewFromString(current)
	if err != nil {
		return ""
	}
	orig, err := decimal.NewFromString(original)
	if err != nil {
		return ""
	}
	if !orig.GreaterThan(cur) || !orig.IsPositive() {
		return ""
	}
	pct := orig.Sub(cur).Div(orig).Mul(hundred)
	return pct.StringFixedBank(1) + "%"
}

// ValidateProduct reports listings missing the fields downstream tooling
// keys on. Invalid products are still persisted; callers only count them.
func ValidateProduct(p models.Product) error {
	if strings.TrimSpace(p.ItemID) == "" {
		return fmt.Errorf("product missing item id: %q", p.Name)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product %s missing name", p.ItemID)
	}
	if strings.TrimSpace(p.CategoryName) == "" {
		return fmt.Errorf("product %s missing category", p.ItemID)
	}
	return nil
}

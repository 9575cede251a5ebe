// Package models defines data structures for the scraper.
package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Product is one normalized listing. Field names are a stable contract for
// the CSV backups and the warehouse tables.
type Product struct {
	Name            string `csv:"name" json:"name"`
	CurrentPrice    string `csv:"current_price" json:"current_price"`
	OriginalPrice   string `csv:"original_price" json:"original_price"`
	DiscountPercent string `csv:"discount_percent" json:"discount_percent"`
	Rating          string `csv:"rating" json:"rating"`
	Reviews         string `csv:"reviews" json:"reviews"`
	Location        string `csv:"location" json:"location"`
	ItemID          string `csv:"item_id" json:"item_id"`
	SellerName      string `csv:"seller_name" json:"seller_name"`
	BrandName       string `csv:"brand_name" json:"brand_name"`
	ImageURL        string `csv:"image_url" json:"image_url"`

	CategoryName string `csv:"-" json:"category_name"`
	ScrapedAt    string `csv:"-" json:"scraped_at"`
}

// CSVHeader lists the backup file columns in order.
var CSVHeader = []string{
	"name", "current_price", "original_price", "discount_percent",
	"rating", "reviews", "location", "item_id", "seller_name",
	"brand_name", "image_url",
}

// CSVRecord returns the product as a row matching CSVHeader.
func (p Product) CSVRecord() []string {
	return []string{
		p.Name,
		p.CurrentPrice,
		p.OriginalPrice,
		p.DiscountPercent,
		p.Rating,
		p.Reviews,
		p.Location,
		p.ItemID,
		p.SellerName,
		p.BrandName,
		p.ImageURL,
	}
}

// ListingPayload is the subset of the storefront catalog response we read.
type ListingPayload struct {
	Ret  json.RawMessage `json:"ret,omitempty"`
	Mods struct {
		ListItems []RawListing `json:"listItems"`
	} `json:"mods"`
}

// RawListing is one entry of mods.listItems as the storefront returns it.
// Every field is optional upstream.
type RawListing struct {
	Name          FlexString `json:"name"`
	Price         FlexString `json:"price"`
	PriceShow     FlexString `json:"priceShow"`
	OriginalPrice FlexString `json:"originalPrice"`
	RatingScore   FlexString `json:"ratingScore"`
	Review        FlexString `json:"review"`
	Location      FlexString `json:"location"`
	ItemID        FlexString `json:"itemId"`
	SellerName    FlexString `json:"sellerName"`
	BrandName     FlexString `json:"brandName"`
	Image         FlexString `json:"image"`
}

// FlexString accepts a JSON string, number, or bool and keeps its text form.
// null and missing values decode to "".
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if b[0] == '{' || b[0] == '[' {
		*f = FlexString(b)
		return nil
	}
	if _, err := strconv.ParseFloat(string(b), 64); err == nil {
		*f = FlexString(b)
		return nil
	}
	if v, err := strconv.ParseBool(string(b)); err == nil {
		*f = FlexString(strconv.FormatBool(v))
		return nil
	}
	*f = FlexString(b)
	return nil
}

// String returns the text form.
func (f FlexString) String() string {
	return string(f)
}

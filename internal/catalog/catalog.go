// Package catalog defines the SO-101 component catalog: categories,
// components, vendors, and the current vendor quotes for each component.
package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Arm type values for Component.ArmType.
const (
	ArmLeader   = "leader"
	ArmFollower = "follower"
	ArmBoth     = "both"
)

// Category groups components (motors, controllers, power, cables, cameras, ...).
type Category struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	SortOrder   int    `json:"sort_order"`
}

// CategoryWithCount is a category plus the number of components in it.
type CategoryWithCount struct {
	Category
	ComponentCount int `json:"component_count"`
}

// Component is a single catalog part.
type Component struct {
	ID                int64          `json:"id"`
	Name              string         `json:"name"`
	Slug              string         `json:"slug"`
	CategoryID        int64          `json:"category_id"`
	CategorySlug      string         `json:"category_slug"`
	CategoryName      string         `json:"category_name"`
	Description       string         `json:"description,omitempty"`
	ImageURL          string         `json:"image_url,omitempty"`
	Specifications    map[string]any `json:"specifications"`
	IsDefaultForSO101 bool           `json:"is_default_for_so101"`
	QuantityPerArm    int            `json:"quantity_per_arm"`
	ArmType           string         `json:"arm_type"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Vendor is a supplier we track quotes for.
type Vendor struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	Slug                string `json:"slug"`
	WebsiteURL          string `json:"website_url,omitempty"`
	IsActive            bool   `json:"is_active"`
	ShipsToUS           bool   `json:"ships_to_us"`
	ShipsToEU           bool   `json:"ships_to_eu"`
	TypicalShippingDays int    `json:"typical_shipping_days,omitempty"`
}

// Quote is the current price of a component at one vendor.
// There is at most one quote per (component, vendor) pair.
type Quote struct {
	ID            int64            `json:"id"`
	ComponentID   int64            `json:"component_id"`
	VendorID      int64            `json:"vendor_id"`
	VendorName    string           `json:"vendor_name"`
	VendorSlug    string           `json:"vendor_slug"`
	Price         decimal.Decimal  `json:"price"`
	Currency      string           `json:"currency"`
	OriginalPrice *decimal.Decimal `json:"original_price,omitempty"`
	ShippingCost  *decimal.Decimal `json:"shipping_cost,omitempty"`
	ProductURL    string           `json:"product_url,omitempty"`
	SKU           string           `json:"sku,omitempty"`
	InStock       bool             `json:"in_stock"`
	StockQuantity *int             `json:"stock_quantity,omitempty"`
	FetchedAt     time.Time        `json:"fetched_at"`
}

// ComponentWithPricing is a list row: the component plus quote aggregates.
type ComponentWithPricing struct {
	Component
	LowestPrice     *decimal.Decimal `json:"lowest_price,omitempty"`
	VendorCount     int              `json:"vendor_count"`
	InStockAnywhere bool             `json:"in_stock_anywhere"`
}

// PriceStats summarizes the current quotes of a component.
type PriceStats struct {
	Lowest       *decimal.Decimal `json:"lowest,omitempty"`
	Highest      *decimal.Decimal `json:"highest,omitempty"`
	Average      *decimal.Decimal `json:"average,omitempty"`
	VendorCount  int              `json:"vendor_count"`
	InStockCount int              `json:"in_stock_count"`
}

// ComponentDetail is the full component view with all current quotes.
type ComponentDetail struct {
	Component
	Quotes []Quote    `json:"quotes"`
	Stats  PriceStats `json:"price_stats"`
}

// ListFilter narrows a catalog listing.
type ListFilter struct {
	CategorySlug string
	ArmType      string
	Search       string
	InStockOnly  bool
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Limit        int
	Offset       int
}

// ListResult is one page of a catalog listing.
type ListResult struct {
	Components []ComponentWithPricing `json:"components"`
	Total      int                    `json:"total"`
	Limit      int                    `json:"limit"`
	Offset     int                    `json:"offset"`
}

// DefaultItem is one line of the stock SO-101 build.
type DefaultItem struct {
	Component   Component        `json:"component"`
	Quantity    int              `json:"quantity"`
	LowestPrice *decimal.Decimal `json:"lowest_price,omitempty"`
}

// DefaultBuild is the reference bill of materials for an arm configuration.
type DefaultBuild struct {
	ArmType        string          `json:"arm_type"`
	Items          []DefaultItem   `json:"items"`
	EstimatedTotal decimal.Decimal `json:"estimated_total"`
	MissingPrices  []int64         `json:"missing_prices,omitempty"`
}

package catalog

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"so101-builder/pkg/apperr"
)

// SeedCategory is a category row in the seed fixture.
type SeedCategory struct {
	Name        string `yaml:"name"`
	Slug        string `yaml:"slug"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	SortOrder   int    `yaml:"sort_order"`
}

// SeedComponent is a component row in the seed fixture. Category references
// a category slug from the same fixture.
type SeedComponent struct {
	Name              string         `yaml:"name"`
	Slug              string         `yaml:"slug"`
	Category          string         `yaml:"category"`
	Description       string         `yaml:"description"`
	ImageURL          string         `yaml:"image_url"`
	Specifications    map[string]any `yaml:"specifications"`
	IsDefaultForSO101 bool           `yaml:"is_default_for_so101"`
	QuantityPerArm    int            `yaml:"quantity_per_arm"`
	ArmType           string         `yaml:"arm_type"`
}

// SeedVendor is a vendor row in the seed fixture.
type SeedVendor struct {
	Name                string `yaml:"name"`
	Slug                string `yaml:"slug"`
	WebsiteURL          string `yaml:"website_url"`
	IsActive            bool   `yaml:"is_active"`
	ShipsToUS           bool   `yaml:"ships_to_us"`
	ShipsToEU           bool   `yaml:"ships_to_eu"`
	TypicalShippingDays int    `yaml:"typical_shipping_days"`
}

// SeedQuote is an initial quote row. Component and Vendor reference slugs.
type SeedQuote struct {
	Component  string          `yaml:"component"`
	Vendor     string          `yaml:"vendor"`
	Price      decimal.Decimal `yaml:"-"`
	RawPrice   string          `yaml:"price"`
	Currency   string          `yaml:"currency"`
	ProductURL string          `yaml:"product_url"`
	SKU        string          `yaml:"sku"`
	InStock    bool            `yaml:"in_stock"`
}

// SeedData is the parsed and validated content of the seed fixtures.
type SeedData struct {
	Categories []SeedCategory
	Vendors    []SeedVendor
	Components []SeedComponent
	Quotes     []SeedQuote
}

type catalogFile struct {
	Categories []SeedCategory  `yaml:"categories"`
	Components []SeedComponent `yaml:"components"`
}

type vendorsFile struct {
	Vendors []SeedVendor `yaml:"vendors"`
	Quotes  []SeedQuote  `yaml:"quotes"`
}

// LoadSeed reads and validates the two seed fixture files.
func LoadSeed(catalogPath, vendorsPath string) (*SeedData, error) {
	catalogRaw, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("reading catalog fixture: %w", err)
	}
	vendorsRaw, err := os.ReadFile(vendorsPath)
	if err != nil {
		return nil, fmt.Errorf("reading vendors fixture: %w", err)
	}
	return ParseSeed(catalogRaw, vendorsRaw)
}

// ParseSeed parses seed fixtures from raw YAML.
func ParseSeed(catalogRaw, vendorsRaw []byte) (*SeedData, error) {
	var cf catalogFile
	if err := yaml.Unmarshal(catalogRaw, &cf); err != nil {
		return nil, fmt.Errorf("parsing catalog fixture: %w", err)
	}
	var vf vendorsFile
	if err := yaml.Unmarshal(vendorsRaw, &vf); err != nil {
		return nil, fmt.Errorf("parsing vendors fixture: %w", err)
	}

	data := &SeedData{
		Categories: cf.Categories,
		Components: cf.Components,
		Vendors:    vf.Vendors,
		Quotes:     vf.Quotes,
	}
	if err := data.validate(); err != nil {
		return nil, err
	}
	return data, nil
}

func (d *SeedData) validate() error {
	categories := make(map[string]bool, len(d.Categories))
	for _, c := range d.Categories {
		if c.Slug == "" || c.Name == "" {
			return apperr.Validation("category %q missing name or slug", c.Name)
		}
		if categories[c.Slug] {
			return apperr.Validation("duplicate category slug %q", c.Slug)
		}
		categories[c.Slug] = true
	}

	components := make(map[string]bool, len(d.Components))
	for i := range d.Components {
		c := &d.Components[i]
		if c.Slug == "" || c.Name == "" {
			return apperr.Validation("component %q missing name or slug", c.Name)
		}
		if components[c.Slug] {
			return apperr.Validation("duplicate component slug %q", c.Slug)
		}
		components[c.Slug] = true
		if !categories[c.Category] {
			return apperr.Validation("component %q references unknown category %q", c.Slug, c.Category)
		}
		switch c.ArmType {
		case ArmLeader, ArmFollower, ArmBoth:
		case "":
			c.ArmType = ArmBoth
		default:
			return apperr.Validation("component %q has invalid arm_type %q", c.Slug, c.ArmType)
		}
		if c.QuantityPerArm <= 0 {
			c.QuantityPerArm = 1
		}
	}

	vendors := make(map[string]bool, len(d.Vendors))
	for _, v := range d.Vendors {
		if v.Slug == "" || v.Name == "" {
			return apperr.Validation("vendor %q missing name or slug", v.Name)
		}
		if vendors[v.Slug] {
			return apperr.Validation("duplicate vendor slug %q", v.Slug)
		}
		vendors[v.Slug] = true
	}

	for i := range d.Quotes {
		q := &d.Quotes[i]
		if !components[q.Component] {
			return apperr.Validation("quote references unknown component %q", q.Component)
		}
		if !vendors[q.Vendor] {
			return apperr.Validation("quote references unknown vendor %q", q.Vendor)
		}
		price, err := decimal.NewFromString(q.RawPrice)
		if err != nil {
			return apperr.Validation("quote for %q at %q has invalid price %q", q.Component, q.Vendor, q.RawPrice)
		}
		if price.IsNegative() {
			return apperr.Validation("quote for %q at %q has negative price", q.Component, q.Vendor)
		}
		q.Price = price
		if q.Currency == "" {
			q.Currency = "USD"
		}
	}

	return nil
}

// Package pricing provides the Pricing Aggregator
// Combines the stored recommendation with current vendor quotes to produce
// setup totals, and keeps quote data fresh from web price search.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"so101-builder/db/clickhouse"
	"so101-builder/internal/catalog"
	"so101-builder/internal/recommend"
	"so101-builder/internal/wizard"
	"so101-builder/pkg/apperr"
)

// Aggregator is the Pricing Aggregator
type Aggregator struct {
	setups       Setups
	catalog      Catalog
	observations *clickhouse.Store // optional; nil means history is not configured
	quotes       QuoteWriter       // optional; required by Refresh only
	searchers    []Searcher        // tried in order by Refresh
	log          zerolog.Logger
}

// Setups resolves wizard sessions.
type Setups interface {
	Get(ctx context.Context, id uuid.UUID) (*wizard.Setup, error)
}

// Catalog supplies components and their current quotes.
type Catalog interface {
	ComponentsByIDs(ctx context.Context, ids []int64) ([]catalog.Component, error)
	QuotesByComponentIDs(ctx context.Context, ids []int64) (map[int64][]catalog.Quote, error)
	AllComponentIDs(ctx context.Context) ([]int64, error)
}

// QuoteWriter persists refreshed quotes.
type QuoteWriter interface {
	VendorsBySlug(ctx context.Context) (map[string]catalog.Vendor, error)
	UpsertQuote(ctx context.Context, quote *catalog.Quote) error
}

// NewAggregator creates a new pricing aggregator
func NewAggregator(setups Setups, cat Catalog, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		setups:  setups,
		catalog: cat,
		log:     logger,
	}
}

// WithObservations adds the price history store
func (a *Aggregator) WithObservations(store *clickhouse.Store) *Aggregator {
	a.observations = store
	return a
}

// WithQuoteWriter adds quote persistence for Refresh
func (a *Aggregator) WithQuoteWriter(w QuoteWriter) *Aggregator {
	a.quotes = w
	return a
}

// WithSearchers adds price search providers, tried in order
func (a *Aggregator) WithSearchers(searchers ...Searcher) *Aggregator {
	a.searchers = append(a.searchers, searchers...)
	return a
}

// Line is one priced recommendation line item
type Line struct {
	ComponentID   int64           `json:"component_id"`
	ComponentName string          `json:"component_name"`
	Category      string          `json:"category"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LineTotal     decimal.Decimal `json:"line_total"`
	Vendor        string          `json:"vendor"`
	ProductURL    string          `json:"product_url,omitempty"`
	InStock       bool            `json:"in_stock"`
	Priority      string          `json:"priority"`
}

// BudgetCheck compares the subtotal against the profile budget
type BudgetCheck struct {
	BudgetUSD  decimal.Decimal `json:"budget_usd"`
	Delta      decimal.Decimal `json:"delta"`
	OverBudget bool            `json:"over_budget"`
}

// SetupPricing is the complete cost breakdown for a setup
type SetupPricing struct {
	SetupID        uuid.UUID                  `json:"setup_id"`
	Lines          []Line                     `json:"lines"`
	Subtotal       decimal.Decimal            `json:"subtotal"`
	CostByCategory map[string]decimal.Decimal `json:"cost_by_category"`
	VendorsUsed    []string                   `json:"vendors_used"`
	Currency       string                     `json:"currency"`
	MissingPrices  []int64                    `json:"missing_prices,omitempty"`
	BudgetCheck    *BudgetCheck               `json:"budget_check,omitempty"`
	ComputedAt     time.Time                  `json:"computed_at"`
}

// ComponentPricing is the per-component quote view
type ComponentPricing struct {
	ComponentID   int64              `json:"component_id"`
	ComponentName string             `json:"component_name"`
	Quotes        []catalog.Quote    `json:"quotes"`
	Stats         catalog.PriceStats `json:"price_stats"`
}

// Observation is one point of the price history series
type Observation struct {
	ComponentID int64           `json:"component_id"`
	VendorID    int64           `json:"vendor_id"`
	VendorSlug  string          `json:"vendor_slug"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	InStock     bool            `json:"in_stock"`
	Source      string          `json:"source"`
	ObservedAt  time.Time       `json:"observed_at"`
}

// ForSetup prices the stored recommendation of a setup. For each recommended
// line the cheapest in-stock quote wins; a component with quotes but none in
// stock falls back to its cheapest quote; a component with no quotes at all
// goes to MissingPrices and contributes zero.
func (a *Aggregator) ForSetup(ctx context.Context, setupID uuid.UUID) (*SetupPricing, error) {
	setup, err := a.setups.Get(ctx, setupID)
	if err != nil {
		return nil, err
	}
	if len(setup.Recommendation) == 0 {
		return nil, apperr.Conflict("setup %s has no recommendation to price; generate one first", setupID)
	}

	var rec recommend.Recommendation
	if err := json.Unmarshal(setup.Recommendation, &rec); err != nil {
		return nil, apperr.Internal(err, "stored recommendation for setup %s is unreadable", setupID)
	}

	ids := make([]int64, 0, len(rec.Components))
	for _, line := range rec.Components {
		ids = append(ids, line.ComponentID)
	}

	components, err := a.catalog.ComponentsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading components: %w", err)
	}
	byID := make(map[int64]catalog.Component, len(components))
	for _, c := range components {
		byID[c.ID] = c
	}

	quotes, err := a.catalog.QuotesByComponentIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading quotes: %w", err)
	}

	result := &SetupPricing{
		SetupID:        setupID,
		Lines:          make([]Line, 0, len(rec.Components)),
		Subtotal:       decimal.Zero,
		CostByCategory: make(map[string]decimal.Decimal),
		Currency:       "USD",
		ComputedAt:     time.Now().UTC(),
	}
	vendorsUsed := make(map[string]bool)

	// Lines mirror the recommendation's component order.
	for _, recLine := range rec.Components {
		quote := selectQuote(quotes[recLine.ComponentID])
		if quote == nil {
			result.MissingPrices = append(result.MissingPrices, recLine.ComponentID)
			continue
		}

		name := recLine.ComponentName
		category := recLine.Category
		if comp, ok := byID[recLine.ComponentID]; ok {
			name = comp.Name
			category = comp.CategorySlug
		}

		lineTotal := quote.Price.Mul(decimal.NewFromInt(int64(recLine.Quantity))).Round(2)
		line := Line{
			ComponentID:   recLine.ComponentID,
			ComponentName: name,
			Category:      category,
			Quantity:      recLine.Quantity,
			UnitPrice:     quote.Price,
			LineTotal:     lineTotal,
			Vendor:        quote.VendorName,
			ProductURL:    quote.ProductURL,
			InStock:       quote.InStock,
			Priority:      recLine.Priority,
		}

		result.Subtotal = result.Subtotal.Add(lineTotal)
		result.CostByCategory[category] = result.CostByCategory[category].Add(lineTotal)
		vendorsUsed[quote.VendorName] = true
		result.Lines = append(result.Lines, line)
	}

	result.Subtotal = result.Subtotal.Round(2)
	for category, total := range result.CostByCategory {
		result.CostByCategory[category] = total.Round(2)
	}

	result.VendorsUsed = make([]string, 0, len(vendorsUsed))
	for vendor := range vendorsUsed {
		result.VendorsUsed = append(result.VendorsUsed, vendor)
	}
	sort.Strings(result.VendorsUsed)

	if setup.Profile.BudgetUSD != nil {
		budget := *setup.Profile.BudgetUSD
		result.BudgetCheck = &BudgetCheck{
			BudgetUSD:  budget,
			Delta:      budget.Sub(result.Subtotal).Round(2),
			OverBudget: result.Subtotal.GreaterThan(budget),
		}
	}

	if len(result.MissingPrices) > 0 {
		a.log.Warn().
			Str("setup_id", setupID.String()).
			Ints64("component_ids", result.MissingPrices).
			Msg("recommended components without quotes")
	}

	return result, nil
}

// ForComponent returns all current quotes for a component, cheapest first.
func (a *Aggregator) ForComponent(ctx context.Context, componentID int64) (*ComponentPricing, error) {
	components, err := a.catalog.ComponentsByIDs(ctx, []int64{componentID})
	if err != nil {
		return nil, fmt.Errorf("loading component %d: %w", componentID, err)
	}
	if len(components) == 0 {
		return nil, apperr.NotFound("component %d not found", componentID)
	}

	quotesByID, err := a.catalog.QuotesByComponentIDs(ctx, []int64{componentID})
	if err != nil {
		return nil, fmt.Errorf("loading quotes for component %d: %w", componentID, err)
	}

	quotes := make([]catalog.Quote, len(quotesByID[componentID]))
	copy(quotes, quotesByID[componentID])
	sort.Slice(quotes, func(i, j int) bool {
		if !quotes[i].Price.Equal(quotes[j].Price) {
			return quotes[i].Price.LessThan(quotes[j].Price)
		}
		return quotes[i].VendorName < quotes[j].VendorName
	})

	return &ComponentPricing{
		ComponentID:   componentID,
		ComponentName: components[0].Name,
		Quotes:        quotes,
		Stats:         catalog.StatsFor(quotes),
	}, nil
}

// History returns the observation time series for a component.
func (a *Aggregator) History(ctx context.Context, componentID int64, since time.Time) ([]Observation, error) {
	if a.observations == nil {
		return nil, apperr.Conflict("price history not configured")
	}

	components, err := a.catalog.ComponentsByIDs(ctx, []int64{componentID})
	if err != nil {
		return nil, fmt.Errorf("loading component %d: %w", componentID, err)
	}
	if len(components) == 0 {
		return nil, apperr.NotFound("component %d not found", componentID)
	}

	rows, err := a.observations.ObservationsSince(ctx, componentID, since)
	if err != nil {
		return nil, apperr.Upstream(err, "querying price history for component %d", componentID)
	}

	observations := make([]Observation, 0, len(rows))
	for _, row := range rows {
		observations = append(observations, Observation{
			ComponentID: row.ComponentID,
			VendorID:    row.VendorID,
			VendorSlug:  row.VendorSlug,
			Price:       row.Price,
			Currency:    row.Currency,
			InStock:     row.InStock,
			Source:      row.Source,
			ObservedAt:  row.ObservedAt,
		})
	}
	return observations, nil
}

// selectQuote picks the cheapest in-stock quote, falling back to the cheapest
// quote regardless of stock. Returns nil when there are no quotes.
func selectQuote(quotes []catalog.Quote) *catalog.Quote {
	var best, bestInStock *catalog.Quote
	for i := range quotes {
		q := &quotes[i]
		if best == nil || q.Price.LessThan(best.Price) {
			best = q
		}
		if q.InStock && (bestInStock == nil || q.Price.LessThan(bestInStock.Price)) {
			bestInStock = q
		}
	}
	if bestInStock != nil {
		return bestInStock
	}
	return best
}

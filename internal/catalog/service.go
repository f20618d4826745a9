package catalog

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"so101-builder/pkg/apperr"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Store is the persistence surface the catalog service needs.
type Store interface {
	ListComponents(ctx context.Context, f ListFilter) ([]ComponentWithPricing, int, error)
	GetComponent(ctx context.Context, id int64) (*Component, error)
	GetComponentBySlug(ctx context.Context, slug string) (*Component, error)
	ComponentsByIDs(ctx context.Context, ids []int64) ([]Component, error)
	QuotesByComponentIDs(ctx context.Context, ids []int64) (map[int64][]Quote, error)
	Categories(ctx context.Context) ([]CategoryWithCount, error)
	DefaultComponents(ctx context.Context) ([]Component, error)
}

// Service exposes catalog reads with input validation and quote aggregation.
type Service struct {
	store Store
}

// NewService creates a catalog service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// List returns one page of components matching the filter.
func (s *Service) List(ctx context.Context, f ListFilter) (*ListResult, error) {
	if err := validateFilter(&f); err != nil {
		return nil, err
	}

	components, total, err := s.store.ListComponents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing components: %w", err)
	}
	if components == nil {
		components = []ComponentWithPricing{}
	}

	return &ListResult{
		Components: components,
		Total:      total,
		Limit:      f.Limit,
		Offset:     f.Offset,
	}, nil
}

// Get returns the full detail for a component addressed by numeric id or slug.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*ComponentDetail, error) {
	var (
		comp *Component
		err  error
	)
	if id, perr := strconv.ParseInt(idOrSlug, 10, 64); perr == nil {
		comp, err = s.store.GetComponent(ctx, id)
	} else {
		comp, err = s.store.GetComponentBySlug(ctx, idOrSlug)
	}
	if err != nil {
		return nil, fmt.Errorf("loading component %q: %w", idOrSlug, err)
	}
	if comp == nil {
		return nil, apperr.NotFound("component %q not found", idOrSlug)
	}

	quotes, err := s.store.QuotesByComponentIDs(ctx, []int64{comp.ID})
	if err != nil {
		return nil, fmt.Errorf("loading quotes for component %d: %w", comp.ID, err)
	}

	detail := buildDetail(*comp, quotes[comp.ID])
	return &detail, nil
}

// DetailsByIDs bulk-loads component details, preserving input order.
// Every id must exist; missing ids are reported in one NotFound error.
func (s *Service) DetailsByIDs(ctx context.Context, ids []int64) ([]ComponentDetail, error) {
	components, err := s.store.ComponentsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading components: %w", err)
	}

	byID := make(map[int64]Component, len(components))
	for _, c := range components {
		byID[c.ID] = c
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, apperr.NotFound("components not found: %v", missing)
	}

	quotes, err := s.store.QuotesByComponentIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading quotes: %w", err)
	}

	details := make([]ComponentDetail, 0, len(ids))
	for _, id := range ids {
		details = append(details, buildDetail(byID[id], quotes[id]))
	}
	return details, nil
}

// Categories lists all categories with component counts, ordered by sort order.
func (s *Service) Categories(ctx context.Context) ([]CategoryWithCount, error) {
	cats, err := s.store.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	if cats == nil {
		cats = []CategoryWithCount{}
	}
	return cats, nil
}

// Defaults returns the reference SO-101 bill of materials for an arm
// configuration. A single build covers the follower arm only; a dual build
// adds the leader arm, doubling parts shared by both sides.
func (s *Service) Defaults(ctx context.Context, armType string) (*DefaultBuild, error) {
	if armType == "" {
		armType = "single"
	}
	if armType != "single" && armType != "dual" {
		return nil, apperr.Validation("arm_type must be \"single\" or \"dual\", got %q", armType)
	}

	components, err := s.store.DefaultComponents(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading default components: %w", err)
	}

	ids := make([]int64, 0, len(components))
	for _, c := range components {
		ids = append(ids, c.ID)
	}
	quotes, err := s.store.QuotesByComponentIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading quotes: %w", err)
	}

	build := &DefaultBuild{
		ArmType:        armType,
		Items:          make([]DefaultItem, 0, len(components)),
		EstimatedTotal: decimal.Zero,
	}

	for _, c := range components {
		arms := armsFor(c.ArmType, armType)
		if arms == 0 {
			continue
		}

		item := DefaultItem{
			Component: c,
			Quantity:  c.QuantityPerArm * arms,
		}
		if low := lowestQuote(quotes[c.ID]); low != nil {
			price := low.Price
			item.LowestPrice = &price
			build.EstimatedTotal = build.EstimatedTotal.Add(
				price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		} else {
			build.MissingPrices = append(build.MissingPrices, c.ID)
		}
		build.Items = append(build.Items, item)
	}

	build.EstimatedTotal = build.EstimatedTotal.Round(2)
	return build, nil
}

// armsFor returns how many arms of the build a part appears in.
func armsFor(componentArm, buildArm string) int {
	switch componentArm {
	case ArmFollower:
		return 1
	case ArmLeader:
		if buildArm == "dual" {
			return 1
		}
		return 0
	case ArmBoth:
		if buildArm == "dual" {
			return 2
		}
		return 1
	default:
		return 1
	}
}

func validateFilter(f *ListFilter) error {
	switch f.ArmType {
	case "", ArmLeader, ArmFollower, ArmBoth:
	default:
		return apperr.Validation("arm_type must be one of leader, follower, both; got %q", f.ArmType)
	}
	if f.MinPrice != nil && f.MinPrice.IsNegative() {
		return apperr.Validation("min_price must not be negative")
	}
	if f.MaxPrice != nil && f.MaxPrice.IsNegative() {
		return apperr.Validation("max_price must not be negative")
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return apperr.Validation("min_price %s exceeds max_price %s", f.MinPrice, f.MaxPrice)
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return nil
}

// buildDetail assembles a detail view, sorting quotes cheapest first.
func buildDetail(comp Component, quotes []Quote) ComponentDetail {
	sorted := make([]Quote, len(quotes))
	copy(sorted, quotes)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].Price.Equal(sorted[j].Price) {
			return sorted[i].Price.LessThan(sorted[j].Price)
		}
		return sorted[i].VendorName < sorted[j].VendorName
	})

	return ComponentDetail{
		Component: comp,
		Quotes:    sorted,
		Stats:     StatsFor(sorted),
	}
}

// StatsFor summarizes a set of quotes.
func StatsFor(quotes []Quote) PriceStats {
	stats := PriceStats{VendorCount: len(quotes)}
	if len(quotes) == 0 {
		return stats
	}

	sum := decimal.Zero
	low := quotes[0].Price
	high := quotes[0].Price
	for _, q := range quotes {
		sum = sum.Add(q.Price)
		if q.Price.LessThan(low) {
			low = q.Price
		}
		if q.Price.GreaterThan(high) {
			high = q.Price
		}
		if q.InStock {
			stats.InStockCount++
		}
	}

	avg := sum.Div(decimal.NewFromInt(int64(len(quotes)))).Round(2)
	stats.Lowest = &low
	stats.Highest = &high
	stats.Average = &avg
	return stats
}

func lowestQuote(quotes []Quote) *Quote {
	var best *Quote
	for i := range quotes {
		if best == nil || quotes[i].Price.LessThan(best.Price) {
			best = &quotes[i]
		}
	}
	return best
}

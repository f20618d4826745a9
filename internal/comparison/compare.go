// Package comparison builds side-by-side views of 2-5 components from the
// same category, splitting their specifications into shared and differing
// rows.
package comparison

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"so101-builder/internal/catalog"
	"so101-builder/pkg/apperr"
)

const (
	minCompared = 2
	maxCompared = 5
)

// absentValue marks a spec key a compared component does not carry.
const absentValue = "—"

// Entry is one compared component.
type Entry struct {
	Component   catalog.ComponentDetail `json:"component"`
	LowestPrice *decimal.Decimal        `json:"lowest_price,omitempty"`
}

// SpecRow is one differing specification across the compared components.
// Values is keyed by component id.
type SpecRow struct {
	Key    string            `json:"key"`
	Label  string            `json:"label"`
	Values map[string]string `json:"values"`
}

// Result is a full comparison.
type Result struct {
	Components     []Entry           `json:"components"`
	CommonSpecs    map[string]string `json:"common_specs"`
	DifferingSpecs []SpecRow         `json:"differing_specs"`
	RecommendedID  *int64            `json:"recommended_id,omitempty"`
	BestValueID    *int64            `json:"best_value_id,omitempty"`
}

// Catalog loads the components under comparison.
type Catalog interface {
	DetailsByIDs(ctx context.Context, ids []int64) ([]catalog.ComponentDetail, error)
}

// Service runs comparisons.
type Service struct {
	catalog Catalog
}

// NewService creates a comparison service.
func NewService(catalog Catalog) *Service {
	return &Service{catalog: catalog}
}

// Compare builds the comparison for the given component ids, in input order.
func (s *Service) Compare(ctx context.Context, ids []int64) (*Result, error) {
	if len(ids) < minCompared {
		return nil, apperr.Validation("at least %d components are required for comparison", minCompared)
	}
	if len(ids) > maxCompared {
		return nil, apperr.Validation("at most %d components can be compared at once", maxCompared)
	}
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, apperr.Validation("component %d appears more than once", id)
		}
		seen[id] = true
	}

	details, err := s.catalog.DetailsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	category := details[0].CategorySlug
	for _, d := range details[1:] {
		if d.CategorySlug != category {
			return nil, apperr.Validation("comparison requires components of the same category")
		}
	}

	result := &Result{
		Components:  make([]Entry, 0, len(details)),
		CommonSpecs: map[string]string{},
	}

	keys := make(map[string]bool)
	for _, d := range details {
		entry := Entry{Component: d}
		if d.Stats.Lowest != nil {
			price := *d.Stats.Lowest
			entry.LowestPrice = &price
		}
		result.Components = append(result.Components, entry)

		for key, value := range d.Specifications {
			if value == nil {
				continue
			}
			keys[key] = true
		}
	}

	for key := range keys {
		values := make(map[string]string, len(details))
		var (
			shared string
			first  = true
			common = true
		)
		for _, d := range details {
			idKey := strconv.FormatInt(d.ID, 10)
			v, ok := d.Specifications[key]
			if !ok || v == nil {
				values[idKey] = absentValue
				common = false
				continue
			}
			str := stringify(v)
			values[idKey] = str
			if first {
				shared = str
				first = false
			} else if str != shared {
				common = false
			}
		}
		if common {
			result.CommonSpecs[key] = shared
			continue
		}
		result.DifferingSpecs = append(result.DifferingSpecs, SpecRow{
			Key:    key,
			Label:  displayName(key),
			Values: values,
		})
	}

	sort.Slice(result.DifferingSpecs, func(i, j int) bool {
		return result.DifferingSpecs[i].Key < result.DifferingSpecs[j].Key
	})

	for _, e := range result.Components {
		if e.Component.IsDefaultForSO101 {
			id := e.Component.ID
			result.RecommendedID = &id
			break
		}
	}

	var best *Entry
	for i := range result.Components {
		e := &result.Components[i]
		if e.LowestPrice == nil {
			continue
		}
		if best == nil || e.LowestPrice.LessThan(*best.LowestPrice) {
			best = e
		}
	}
	if best != nil {
		id := best.Component.ID
		result.BestValueID = &id
	}

	return result, nil
}

// stringify renders a raw spec value for display and equality. Two values
// count as the same spec iff their rendered strings match.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "yes"
		}
		return "no"
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ", ")
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(raw)
	}
}

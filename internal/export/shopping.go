package export

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"so101-builder/internal/pricing"
)

// noQuoteNote marks shopping items the aggregator found no vendor quote for.
const noQuoteNote = "no current vendor quote"

// ShoppingItem is one line of the purchasing document. Items without a
// vendor quote keep nil prices and carry a note instead of vanishing.
type ShoppingItem struct {
	ComponentID int64            `json:"component_id"`
	Name        string           `json:"name"`
	Category    string           `json:"category"`
	Quantity    int              `json:"quantity"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	LineTotal   *decimal.Decimal `json:"line_total,omitempty"`
	Vendor      string           `json:"vendor,omitempty"`
	ProductURL  string           `json:"product_url,omitempty"`
	Priority    string           `json:"priority"`
	Note        string           `json:"note,omitempty"`
}

// VendorGroup collects the items to order from one vendor.
type VendorGroup struct {
	Vendor   string          `json:"vendor"`
	Items    []ShoppingItem  `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ShoppingList is the flat purchasing view of a setup.
type ShoppingList struct {
	SetupID      string          `json:"setup_id"`
	RobotType    string          `json:"robot_type"`
	Items        []ShoppingItem  `json:"items"`
	Total        decimal.Decimal `json:"total"`
	Currency     string          `json:"currency"`
	VendorGroups []VendorGroup   `json:"vendor_groups"`
}

// ShoppingListFor builds the purchasing document for a setup.
func (s *Service) ShoppingListFor(ctx context.Context, setupID uuid.UUID) (*ShoppingList, error) {
	state, err := s.assemble(ctx, setupID)
	if err != nil {
		return nil, err
	}
	return buildShoppingList(state), nil
}

// buildShoppingList converts assembled state into the shopping list. Items
// follow the recommendation order; vendor groups are ordered by group
// subtotal, largest first. The total is the aggregator's subtotal untouched.
func buildShoppingList(state *assembled) *ShoppingList {
	priced := make(map[int64]pricing.Line, len(state.pricing.Lines))
	for _, line := range state.pricing.Lines {
		priced[line.ComponentID] = line
	}

	list := &ShoppingList{
		SetupID:   state.setup.ID.String(),
		RobotType: state.robotType,
		Items:     make([]ShoppingItem, 0, len(state.rec.Components)),
		Total:     state.pricing.Subtotal,
		Currency:  state.pricing.Currency,
	}

	groups := make(map[string]*VendorGroup)
	for _, recLine := range state.rec.Components {
		line, ok := priced[recLine.ComponentID]
		if !ok {
			list.Items = append(list.Items, ShoppingItem{
				ComponentID: recLine.ComponentID,
				Name:        recLine.ComponentName,
				Category:    recLine.Category,
				Quantity:    recLine.Quantity,
				Priority:    recLine.Priority,
				Note:        noQuoteNote,
			})
			continue
		}

		unit := line.UnitPrice
		total := line.LineTotal
		item := ShoppingItem{
			ComponentID: line.ComponentID,
			Name:        line.ComponentName,
			Category:    line.Category,
			Quantity:    line.Quantity,
			UnitPrice:   &unit,
			LineTotal:   &total,
			Vendor:      line.Vendor,
			ProductURL:  line.ProductURL,
			Priority:    line.Priority,
		}
		list.Items = append(list.Items, item)

		group, ok := groups[line.Vendor]
		if !ok {
			group = &VendorGroup{Vendor: line.Vendor}
			groups[line.Vendor] = group
		}
		group.Items = append(group.Items, item)
		group.Subtotal = group.Subtotal.Add(total)
	}

	list.VendorGroups = make([]VendorGroup, 0, len(groups))
	for _, group := range groups {
		list.VendorGroups = append(list.VendorGroups, *group)
	}
	sort.Slice(list.VendorGroups, func(i, j int) bool {
		a, b := list.VendorGroups[i], list.VendorGroups[j]
		if !a.Subtotal.Equal(b.Subtotal) {
			return a.Subtotal.GreaterThan(b.Subtotal)
		}
		return a.Vendor < b.Vendor
	})
	return list
}

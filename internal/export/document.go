package export

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"so101-builder/internal/pricing"
	"so101-builder/internal/recommend"
	"so101-builder/internal/wizard"
)

// Document is the renderer-neutral model of the printable export: a title,
// a few meta rows, and a sequence of table sections.
type Document struct {
	Title    string
	Meta     []MetaRow
	Sections []Section
}

// MetaRow is one label/value pair under the document header.
type MetaRow struct {
	Label string
	Value string
}

// Section is one headed table. Widths are relative column weights; nil means
// equal columns. Footer renders bold below the rows. PageBreak starts the
// section on a fresh page.
type Section struct {
	Heading   string
	Header    []string
	Widths    []float64
	Rows      [][]string
	Footer    []string
	Note      string
	PageBreak bool
}

// buildDocument lays out the printable export: profile, recommendation,
// pricing with a totals row, and a shopping checklist on its own page.
func buildDocument(state *assembled, list *ShoppingList, generatedAt time.Time) *Document {
	return &Document{
		Title: "SO-101 Setup Plan",
		Meta: []MetaRow{
			{Label: "Robot", Value: robotLabel(state.robotType)},
			{Label: "Setup ID", Value: state.setup.ID.String()},
			{Label: "Generated", Value: generatedAt.Format("January 2, 2006 15:04 UTC")},
		},
		Sections: []Section{
			profileSection(state.setup.Profile),
			recommendationSection(state.rec),
			pricingSection(state.pricing),
			checklistSection(list),
		},
	}
}

func robotLabel(robotType string) string {
	switch robotType {
	case "so101_single":
		return "SO-101 single arm"
	case "so101_dual":
		return "SO-101 dual arm (leader and follower)"
	default:
		return robotType
	}
}

// profileSection lists the wizard answers the recommendation was built from.
func profileSection(p wizard.Profile) Section {
	rows := make([][]string, 0, 6)
	add := func(label, value string) {
		if value != "" {
			rows = append(rows, []string{label, value})
		}
	}
	add("Experience", p.Experience)
	if p.BudgetUSD != nil {
		add("Budget", money(*p.BudgetUSD))
	}
	add("Arm configuration", p.ArmType)
	add("Use case", p.UseCase)
	add("Compute platform", p.ComputePlatform)
	add("Camera preference", p.CameraPreference)

	return Section{
		Heading: "Profile",
		Widths:  []float64{1, 3},
		Rows:    rows,
	}
}

func recommendationSection(rec recommend.Recommendation) Section {
	rows := make([][]string, 0, len(rec.Components))
	for _, c := range rec.Components {
		rows = append(rows, []string{c.ComponentName, c.Category, strconv.Itoa(c.Quantity), c.Priority, c.Reason})
	}
	return Section{
		Heading: "Recommended Components",
		Header:  []string{"Component", "Category", "Qty", "Priority", "Reason"},
		Widths:  []float64{3, 1.5, 0.7, 1.2, 3.6},
		Rows:    rows,
		Note:    rec.Summary,
	}
}

func pricingSection(p *pricing.SetupPricing) Section {
	rows := make([][]string, 0, len(p.Lines))
	for _, line := range p.Lines {
		rows = append(rows, []string{
			line.ComponentName,
			line.Vendor,
			strconv.Itoa(line.Quantity),
			money(line.UnitPrice),
			money(line.LineTotal),
		})
	}

	notes := make([]string, 0, 2)
	if n := len(p.MissingPrices); n > 0 {
		notes = append(notes, fmt.Sprintf("%d component(s) have no current vendor quote and are not in the total.", n))
	}
	if bc := p.BudgetCheck; bc != nil {
		if bc.OverBudget {
			notes = append(notes, fmt.Sprintf("Over the %s budget by %s.", money(bc.BudgetUSD), money(bc.Delta.Abs())))
		} else {
			notes = append(notes, fmt.Sprintf("Within the %s budget with %s to spare.", money(bc.BudgetUSD), money(bc.Delta)))
		}
	}

	return Section{
		Heading: "Pricing",
		Header:  []string{"Component", "Vendor", "Qty", "Unit", "Line Total"},
		Widths:  []float64{3.4, 1.6, 0.7, 1.1, 1.2},
		Rows:    rows,
		Footer:  []string{"Total", "", "", "", money(p.Subtotal)},
		Note:    strings.Join(notes, " "),
	}
}

// checklistSection is the tear-off purchasing page.
func checklistSection(list *ShoppingList) Section {
	rows := make([][]string, 0, len(list.Items))
	for _, item := range list.Items {
		price := item.Note
		if item.LineTotal != nil {
			price = money(*item.LineTotal)
		}
		vendor := item.Vendor
		if vendor == "" {
			vendor = "-"
		}
		rows = append(rows, []string{"[ ]", fmt.Sprintf("%s (x%d)", item.Name, item.Quantity), vendor, price})
	}
	return Section{
		Heading:   "Shopping Checklist",
		Header:    []string{"", "Item", "Vendor", "Price"},
		Widths:    []float64{0.5, 4.5, 1.6, 1.7},
		Rows:      rows,
		Footer:    []string{"", "Total", "", money(list.Total)},
		PageBreak: true,
	}
}

// money formats a USD amount for print.
func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

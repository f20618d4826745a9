package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"so101-builder/internal/recommend"
	"so101-builder/internal/wizard"
)

func TestBuildDocumentSections(t *testing.T) {
	svc := newTestService(exportableSetup(t), pricingFixture())
	state, err := svc.assemble(context.Background(), testSetupID)
	require.NoError(t, err)

	doc := buildDocument(state, buildShoppingList(state), testNow)

	assert.Equal(t, "SO-101 Setup Plan", doc.Title)
	require.Len(t, doc.Meta, 3)
	assert.Equal(t, "SO-101 single arm", doc.Meta[0].Value)
	assert.Equal(t, testSetupID.String(), doc.Meta[1].Value)

	require.Len(t, doc.Sections, 4)
	assert.Equal(t, "Profile", doc.Sections[0].Heading)
	assert.Equal(t, "Recommended Components", doc.Sections[1].Heading)
	assert.Equal(t, "Pricing", doc.Sections[2].Heading)
	assert.Equal(t, "Shopping Checklist", doc.Sections[3].Heading)

	pricingSec := doc.Sections[2]
	require.Len(t, pricingSec.Rows, 2)
	assert.Equal(t, "$112.33", pricingSec.Footer[len(pricingSec.Footer)-1])
	assert.Contains(t, pricingSec.Note, "1 component(s) have no current vendor quote")
	assert.Contains(t, pricingSec.Note, "Within the $350.00 budget")

	checklist := doc.Sections[3]
	assert.True(t, checklist.PageBreak)
	require.Len(t, checklist.Rows, 3)
	assert.Equal(t, "no current vendor quote", checklist.Rows[2][3])
	assert.Equal(t, "$112.33", checklist.Footer[len(checklist.Footer)-1])
}

func TestProfileSectionSkipsUnanswered(t *testing.T) {
	section := profileSection(wizard.Profile{Experience: "beginner", ArmType: "single"})

	require.Len(t, section.Rows, 2)
	assert.Equal(t, []string{"Experience", "beginner"}, section.Rows[0])
	assert.Equal(t, []string{"Arm configuration", "single"}, section.Rows[1])
}

func TestPricingSectionOverBudgetNote(t *testing.T) {
	p := pricingFixture()
	p.BudgetCheck.OverBudget = true
	p.BudgetCheck.Delta = dec("-12.33")

	section := pricingSection(p)
	assert.Contains(t, section.Note, "Over the $350.00 budget by $12.33")
}

func TestColumnWidths(t *testing.T) {
	widths := columnWidths([]float64{1, 3}, 2)
	require.Len(t, widths, 2)
	assert.InDelta(t, 45.0, widths[0], 0.001)
	assert.InDelta(t, 135.0, widths[1], 0.001)

	equal := columnWidths(nil, 4)
	require.Len(t, equal, 4)
	assert.InDelta(t, 45.0, equal[0], 0.001)
}

func TestPDFRendersDocument(t *testing.T) {
	svc := newTestService(exportableSetup(t), pricingFixture())

	data, err := svc.PDF(context.Background(), testSetupID)
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")), "output does not start with a PDF header")
	assert.Greater(t, len(data), 1500)
}

func TestPDFPaginatesLongChecklist(t *testing.T) {
	rec := storedRec()
	for i := int64(10); i < 70; i++ {
		rec.Components = append(rec.Components, recommend.ComponentRec{
			ComponentID:   i,
			ComponentName: fmt.Sprintf("Spare Part %d", i),
			Category:      "accessories",
			Reason:        "spares for long sessions",
			Priority:      "optional",
			Quantity:      1,
		})
	}
	raw, err := json.Marshal(rec)
	require.NoError(t, err)

	setup := exportableSetup(t)
	setup.Recommendation = raw
	svc := newTestService(setup, pricingFixture())

	data, err := svc.PDF(context.Background(), testSetupID)
	require.NoError(t, err)

	// Page objects sit outside the compressed streams, so counting them is
	// reliable. "/Type /Pages" is the tree root, not a page.
	pages := bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
	assert.GreaterOrEqual(t, pages, 3, "60 extra rows must spill past one page")
}

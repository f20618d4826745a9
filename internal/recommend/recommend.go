// Package recommend turns a completed wizard profile into a structured
// component recommendation via the language model, with strict validation
// of the model output before anything is stored.
package recommend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"so101-builder/internal/catalog"
	"so101-builder/internal/llm"
	"so101-builder/internal/wizard"
	"so101-builder/pkg/apperr"
)

// Priority values for ComponentRec.Priority.
const (
	PriorityRequired    = "required"
	PriorityRecommended = "recommended"
	PriorityOptional    = "optional"
)

// ComponentRec is one recommended line item.
type ComponentRec struct {
	ComponentID   int64   `json:"component_id"`
	ComponentName string  `json:"component_name"`
	Category      string  `json:"category"`
	Reason        string  `json:"reason"`
	Priority      string  `json:"priority"`
	Quantity      int     `json:"quantity"`
	Alternatives  []int64 `json:"alternatives,omitempty"`
}

// Recommendation is the validated, stored model output for a setup.
// EstimatedTotal is the model's own figure and is advisory only; the pricing
// aggregator computes the authoritative total.
type Recommendation struct {
	Components      []ComponentRec   `json:"components"`
	Summary         string           `json:"summary"`
	EstimatedTotal  *decimal.Decimal `json:"estimated_total,omitempty"`
	Notes           []string         `json:"notes,omitempty"`
	ExperienceNotes string           `json:"experience_notes,omitempty"`
	BudgetNotes     string           `json:"budget_notes,omitempty"`
	UseCaseNotes    string           `json:"use_case_notes,omitempty"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Model           string           `json:"model,omitempty"`
}

// Setups is the wizard surface the engine needs.
type Setups interface {
	Get(ctx context.Context, id uuid.UUID) (*wizard.Setup, error)
	AttachRecommendation(ctx context.Context, id uuid.UUID, raw json.RawMessage) (*wizard.Setup, error)
}

// Catalog supplies the component listing the prompt is grounded in.
type Catalog interface {
	List(ctx context.Context, f catalog.ListFilter) (*catalog.ListResult, error)
}

// Engine generates, stores, and serves recommendations.
type Engine struct {
	setups    Setups
	catalog   Catalog
	llm       llm.Client
	modelName string
	log       zerolog.Logger
}

// NewEngine creates a recommendation engine.
func NewEngine(setups Setups, cat Catalog, client llm.Client, logger zerolog.Logger) *Engine {
	return &Engine{
		setups:  setups,
		catalog: cat,
		llm:     client,
		log:     logger,
	}
}

// WithModelName records the model name on stored recommendations.
func (e *Engine) WithModelName(name string) *Engine {
	e.modelName = name
	return e
}

// Generate produces and stores a recommendation for a completed setup.
// A setup that already has one must use Regenerate.
func (e *Engine) Generate(ctx context.Context, setupID uuid.UUID) (*Recommendation, error) {
	return e.generate(ctx, setupID, false)
}

// Regenerate replaces the stored recommendation.
func (e *Engine) Regenerate(ctx context.Context, setupID uuid.UUID) (*Recommendation, error) {
	return e.generate(ctx, setupID, true)
}

// Get returns the stored recommendation for a setup.
func (e *Engine) Get(ctx context.Context, setupID uuid.UUID) (*Recommendation, error) {
	setup, err := e.setups.Get(ctx, setupID)
	if err != nil {
		return nil, err
	}
	if len(setup.Recommendation) == 0 {
		return nil, apperr.NotFound("setup %s has no recommendation yet", setupID)
	}

	var rec Recommendation
	if err := json.Unmarshal(setup.Recommendation, &rec); err != nil {
		return nil, apperr.Internal(err, "stored recommendation for setup %s is unreadable", setupID)
	}
	return &rec, nil
}

func (e *Engine) generate(ctx context.Context, setupID uuid.UUID, overwrite bool) (*Recommendation, error) {
	setup, err := e.setups.Get(ctx, setupID)
	if err != nil {
		return nil, err
	}
	if !setup.Completed {
		return nil, apperr.Conflict("wizard for setup %s is not completed; finish all %d steps first", setupID, wizard.TotalSteps)
	}
	if !overwrite && len(setup.Recommendation) > 0 {
		return nil, apperr.Conflict("setup %s already has a recommendation; use regenerate to replace it", setupID)
	}

	listing, err := e.catalog.List(ctx, catalog.ListFilter{Limit: 200})
	if err != nil {
		return nil, fmt.Errorf("loading catalog for prompt: %w", err)
	}
	if len(listing.Components) == 0 {
		return nil, apperr.Conflict("component catalog is empty; seed it before generating recommendations")
	}

	prompt := buildRecommendationPrompt(setup.Profile, listing.Components)

	start := time.Now()
	raw, err := e.llm.CompleteWithSystem(ctx, recommendationSystemPrompt, prompt)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUpstream {
			return nil, err
		}
		return nil, apperr.Upstream(err, "recommendation model call failed")
	}
	e.log.Debug().
		Str("setup_id", setupID.String()).
		Dur("duration_ms", time.Since(start)).
		Int("response_bytes", len(raw)).
		Msg("model response received")

	rec, err := e.parseAndValidate(raw, listing.Components)
	if err != nil {
		e.log.Warn().
			Str("setup_id", setupID.String()).
			Err(err).
			Msg("model output rejected")
		return nil, err
	}

	rec.GeneratedAt = time.Now().UTC()
	rec.Model = e.modelName

	stored, err := json.Marshal(rec)
	if err != nil {
		return nil, apperr.Internal(err, "encoding recommendation")
	}
	if _, err := e.setups.AttachRecommendation(ctx, setupID, stored); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("setup_id", setupID.String()).
		Int("components", len(rec.Components)).
		Msg("recommendation stored")
	return rec, nil
}

// parseAndValidate enforces the output contract: syntactically valid JSON,
// schema-conformant, and referencing only catalog component ids. Any failure
// rejects the whole response; there is no partial acceptance or fallback.
func (e *Engine) parseAndValidate(raw string, components []catalog.ComponentWithPricing) (*Recommendation, error) {
	unfenced := stripCodeFences(raw)

	var doc any
	if err := json.Unmarshal([]byte(unfenced), &doc); err != nil {
		return nil, apperr.Generation("model output is not valid JSON: %v", err)
	}
	if err := validateRecommendationDoc(doc); err != nil {
		return nil, apperr.Generation("model output failed schema validation: %v", err)
	}

	var rec Recommendation
	if err := json.Unmarshal([]byte(unfenced), &rec); err != nil {
		return nil, apperr.Generation("model output does not decode: %v", err)
	}

	known := make(map[int64]bool, len(components))
	for _, c := range components {
		known[c.ID] = true
	}

	var unknown []int64
	for _, line := range rec.Components {
		if !known[line.ComponentID] {
			unknown = append(unknown, line.ComponentID)
		}
		for _, alt := range line.Alternatives {
			if !known[alt] {
				unknown = append(unknown, alt)
			}
		}
	}
	if len(unknown) > 0 {
		return nil, apperr.Generation("model referenced unknown component ids: %v", unknown)
	}

	return &rec, nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if present.
func stripCodeFences(s string) string {
	text := strings.TrimSpace(s)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	// Drop the opening fence line (``` or ```json).
	idx := strings.IndexByte(text, '\n')
	if idx < 0 {
		return text
	}
	text = text[idx+1:]

	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

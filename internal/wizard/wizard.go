// Package wizard manages guided setup sessions: a five step flow that
// collects the user profile an SO-101 recommendation is generated from.
package wizard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"so101-builder/pkg/apperr"
)

// SessionTTL is how long an untouched session stays retrievable.
const SessionTTL = 24 * time.Hour

// Profile is the answer set collected by the wizard. Fields fill in step
// order; zero values mean "not answered yet".
type Profile struct {
	Experience       string           `json:"experience,omitempty"`
	BudgetUSD        *decimal.Decimal `json:"budget_usd,omitempty"`
	ArmType          string           `json:"arm_type,omitempty"`
	UseCase          string           `json:"use_case,omitempty"`
	ComputePlatform  string           `json:"compute_platform,omitempty"`
	CameraPreference string           `json:"camera_preference,omitempty"`
}

// Setup is one wizard session. Recommendation holds the stored model output
// as raw JSON; the recommend package owns its shape.
type Setup struct {
	ID             uuid.UUID       `json:"id"`
	Profile        Profile         `json:"profile"`
	CurrentStep    int             `json:"current_step"`
	Completed      bool            `json:"completed"`
	Recommendation json.RawMessage `json:"recommendation,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// Store is the persistence surface for wizard sessions.
type Store interface {
	CreateSetup(ctx context.Context, setup *Setup) error
	GetSetup(ctx context.Context, id uuid.UUID) (*Setup, error)
	UpdateSetup(ctx context.Context, setup *Setup) error
	DeleteSetup(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteExpiredSetups(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service runs the wizard state machine.
type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewService creates a wizard service.
func NewService(store Store) *Service {
	return &Service{
		store: store,
		ttl:   SessionTTL,
		now:   time.Now,
	}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Start creates a fresh session at step 1.
func (s *Service) Start(ctx context.Context) (*Setup, error) {
	now := s.now().UTC()
	setup := &Setup{
		ID:          uuid.New(),
		CurrentStep: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.store.CreateSetup(ctx, setup); err != nil {
		return nil, fmt.Errorf("creating setup: %w", err)
	}
	return setup, nil
}

// Get loads a session. Expired sessions are reported as missing.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Setup, error) {
	setup, err := s.store.GetSetup(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading setup %s: %w", id, err)
	}
	if setup == nil || s.now().After(setup.ExpiresAt) {
		return nil, apperr.NotFound("setup %s not found", id)
	}
	return setup, nil
}

// Steps returns the static step metadata.
func (s *Service) Steps() []StepInfo {
	return Steps()
}

// SubmitStep validates and records the answer for the given step. Steps must
// be submitted strictly in order; changing an earlier answer requires Reset.
func (s *Service) SubmitStep(ctx context.Context, id uuid.UUID, step int, rawAnswer json.RawMessage) (*Setup, error) {
	setup, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if step < 1 || step > TotalSteps {
		return nil, apperr.Validation("step must be between 1 and %d, got %d", TotalSteps, step)
	}
	if setup.Completed {
		return nil, apperr.Conflict("wizard already completed; reset the setup to change answers")
	}
	if step != setup.CurrentStep {
		return nil, apperr.Conflict("expected step %d, got %d; steps must be answered in order", setup.CurrentStep, step)
	}

	answer, err := decodeAnswer(rawAnswer)
	if err != nil {
		return nil, err
	}
	if err := applyAnswer(&setup.Profile, step, answer); err != nil {
		return nil, err
	}

	if step == TotalSteps {
		setup.Completed = true
	} else {
		setup.CurrentStep = step + 1
	}
	setup.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateSetup(ctx, setup); err != nil {
		return nil, fmt.Errorf("saving setup %s: %w", id, err)
	}
	return setup, nil
}

// Reset clears all answers and any stored recommendation, returning the
// session to step 1 with a fresh expiry.
func (s *Service) Reset(ctx context.Context, id uuid.UUID) (*Setup, error) {
	setup, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	setup.Profile = Profile{}
	setup.Recommendation = nil
	setup.CurrentStep = 1
	setup.Completed = false
	setup.UpdatedAt = now
	setup.ExpiresAt = now.Add(s.ttl)

	if err := s.store.UpdateSetup(ctx, setup); err != nil {
		return nil, fmt.Errorf("resetting setup %s: %w", id, err)
	}
	return setup, nil
}

// AttachRecommendation stores serialized recommendation JSON on the setup,
// replacing any previous one. Content is owned by the recommend package.
func (s *Service) AttachRecommendation(ctx context.Context, id uuid.UUID, raw json.RawMessage) (*Setup, error) {
	setup, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	setup.Recommendation = raw
	setup.UpdatedAt = s.now().UTC()

	if err := s.store.UpdateSetup(ctx, setup); err != nil {
		return nil, fmt.Errorf("saving recommendation for setup %s: %w", id, err)
	}
	return setup, nil
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.store.DeleteSetup(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting setup %s: %w", id, err)
	}
	if !deleted {
		return apperr.NotFound("setup %s not found", id)
	}
	return nil
}

// PurgeExpired removes sessions past their expiry. Returns rows removed.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSetups(ctx, s.now().UTC())
}

// decodeAnswer parses the answer body keeping numbers exact.
func decodeAnswer(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, apperr.Validation("answer body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var answer map[string]any
	if err := dec.Decode(&answer); err != nil {
		return nil, apperr.Validation("answer must be a JSON object: %v", err)
	}
	return answer, nil
}

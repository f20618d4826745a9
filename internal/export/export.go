// Package export assembles a completed setup into shareable formats: a
// checksummed JSON bundle, a vendor-grouped shopping list, and a printable
// PDF. All formats derive from the same assembled state; totals always come
// from the pricing aggregator.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/rs/zerolog"

	"so101-builder/internal/pricing"
	"so101-builder/internal/recommend"
	"so101-builder/internal/wizard"
	"so101-builder/pkg/apperr"
)

// FormatVersion is the bundle schema version. Clients pin it with a semver
// constraint via the version parameter.
const FormatVersion = "1.0.0"

// ===== TYPES =====

// Bundle is the portable JSON export of a setup. Checksum is the sha256 hex
// digest of the bundle's JCS canonical form with the checksum field empty.
type Bundle struct {
	FormatVersion  string                   `json:"format_version"`
	RobotType      string                   `json:"robot_type"`
	SetupID        uuid.UUID                `json:"setup_id"`
	GeneratedAt    time.Time                `json:"generated_at"`
	Profile        wizard.Profile           `json:"profile"`
	Recommendation recommend.Recommendation `json:"recommendation"`
	Pricing        pricing.SetupPricing     `json:"pricing"`
	Checksum       string                   `json:"checksum,omitempty"`
}

// ComputeChecksum canonicalizes the bundle (checksum field excluded) per
// RFC 8785 and returns the sha256 hex digest.
func (b *Bundle) ComputeChecksum() (string, error) {
	clone := *b
	clone.Checksum = ""
	raw, err := json.Marshal(clone)
	if err != nil {
		return "", fmt.Errorf("marshaling bundle: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalizing bundle: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Verify recomputes the checksum and compares it to the stored one. A bundle
// that round-tripped through JSON verifies clean.
func (b *Bundle) Verify() error {
	want, err := b.ComputeChecksum()
	if err != nil {
		return err
	}
	if b.Checksum != want {
		return fmt.Errorf("bundle checksum mismatch: have %s, want %s", b.Checksum, want)
	}
	return nil
}

// Setups resolves wizard sessions.
type Setups interface {
	Get(ctx context.Context, id uuid.UUID) (*wizard.Setup, error)
}

// Pricer produces the authoritative cost breakdown for a setup.
type Pricer interface {
	ForSetup(ctx context.Context, setupID uuid.UUID) (*pricing.SetupPricing, error)
}

// Service assembles exports.
type Service struct {
	setups  Setups
	pricer  Pricer
	archive *ArchiveStore // optional; nil means archiving is not configured
	now     func() time.Time
	log     zerolog.Logger
}

// NewService creates an export service.
func NewService(setups Setups, pricer Pricer, logger zerolog.Logger) *Service {
	return &Service{
		setups: setups,
		pricer: pricer,
		now:    time.Now,
		log:    logger,
	}
}

// WithArchive enables S3 bundle archiving.
func (s *Service) WithArchive(store *ArchiveStore) *Service {
	s.archive = store
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ===== BUNDLE EXPORT =====

// JSON assembles the export bundle for a setup. A non-empty version
// constraint (for example "^1" or ">=1.0.0") must admit FormatVersion.
func (s *Service) JSON(ctx context.Context, setupID uuid.UUID, versionConstraint string) (*Bundle, error) {
	if err := checkVersion(versionConstraint); err != nil {
		return nil, err
	}

	state, err := s.assemble(ctx, setupID)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{
		FormatVersion:  FormatVersion,
		RobotType:      state.robotType,
		SetupID:        state.setup.ID,
		GeneratedAt:    s.now().UTC(),
		Profile:        state.setup.Profile,
		Recommendation: state.rec,
		Pricing:        *state.pricing,
	}
	checksum, err := bundle.ComputeChecksum()
	if err != nil {
		return nil, apperr.Internal(err, "computing bundle checksum for setup %s", setupID)
	}
	bundle.Checksum = checksum
	return bundle, nil
}

// PDF renders the printable export for a setup.
func (s *Service) PDF(ctx context.Context, setupID uuid.UUID) ([]byte, error) {
	state, err := s.assemble(ctx, setupID)
	if err != nil {
		return nil, err
	}

	doc := buildDocument(state, buildShoppingList(state), s.now().UTC())
	data, err := renderPDF(doc)
	if err != nil {
		return nil, apperr.Internal(err, "rendering pdf for setup %s", setupID)
	}
	return data, nil
}

// Filename is the attachment name for the PDF export.
func Filename(setupID uuid.UUID) string {
	return fmt.Sprintf("so101-setup-%s.pdf", setupID.String()[:8])
}

// ===== ASSEMBLY =====

// assembled is the shared state every export format is built from.
type assembled struct {
	setup     *wizard.Setup
	rec       recommend.Recommendation
	pricing   *pricing.SetupPricing
	robotType string
}

// assemble loads the setup and checks the export prerequisites: a completed
// wizard and a stored recommendation. Pricing is computed fresh.
func (s *Service) assemble(ctx context.Context, setupID uuid.UUID) (*assembled, error) {
	setup, err := s.setups.Get(ctx, setupID)
	if err != nil {
		return nil, err
	}
	if !setup.Completed {
		return nil, apperr.Conflict("setup %s is not exportable: wizard is at step %d of %d; finish the wizard first",
			setupID, setup.CurrentStep, wizard.TotalSteps)
	}
	if len(setup.Recommendation) == 0 {
		return nil, apperr.Conflict("setup %s is not exportable: no recommendation has been generated yet", setupID)
	}

	var rec recommend.Recommendation
	if err := json.Unmarshal(setup.Recommendation, &rec); err != nil {
		return nil, apperr.Internal(err, "stored recommendation for setup %s is unreadable", setupID)
	}

	setupPricing, err := s.pricer.ForSetup(ctx, setupID)
	if err != nil {
		return nil, fmt.Errorf("pricing setup %s: %w", setupID, err)
	}

	return &assembled{
		setup:     setup,
		rec:       rec,
		pricing:   setupPricing,
		robotType: "so101_" + setup.Profile.ArmType,
	}, nil
}

// checkVersion matches a client's semver constraint against FormatVersion.
func checkVersion(constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return apperr.Validation("invalid version constraint %q: %v", constraint, err)
	}
	if !c.Check(semver.MustParse(FormatVersion)) {
		return apperr.Validation("version constraint %q does not admit export format %s", constraint, FormatVersion)
	}
	return nil
}

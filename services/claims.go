package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/swissaxa/portal/ai"
	"github.com/swissaxa/portal/metrics"
	"github.com/swissaxa/portal/models"
	"github.com/swissaxa/portal/storage"
)

var (
	ErrNoEvidence        = errors.New("at least one photo or video is required as evidence")
	ErrPolicyNotFound    = errors.New("policy not found")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const (
	defaultPriority        = "normal"
	claimNumberMaxAttempts = 3
)

// Submission is a claim as entered by the customer.
type Submission struct {
	UserID      uint
	PolicyID    *uint
	Description string
	DamageType  string
	Latitude    *float64
	Longitude   *float64
	Address     string
	Files       []*multipart.FileHeader
}

// IntakeResult is what a successful submission returns.
type IntakeResult struct {
	Claim      models.Claim
	Enriched   bool
	DamageType string
	Priority   string
	Message    string
}

// ClaimIntake validates, enriches and persists claims.
type ClaimIntake struct {
	db       *gorm.DB
	advisor  ai.Advisor
	store    storage.EvidenceStore
	logger   *zap.Logger
	notifier NotificationStore
	mailer   Mailer
	tracker  EventTracker

	// NumberFunc generates claim numbers; replaced in tests to force collisions.
	NumberFunc func(time.Time) string
	now        func() time.Time
}

func NewClaimIntake(db *gorm.DB, advisor ai.Advisor, store storage.EvidenceStore, logger *zap.Logger) *ClaimIntake {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClaimIntake{
		db:         db,
		advisor:    advisor,
		store:      store,
		logger:     logger,
		NumberFunc: NewClaimNumber,
		now:        time.Now,
	}
}

// WithNotifications wires the best-effort collaborators. Any of them may be nil.
func (s *ClaimIntake) WithNotifications(notifier NotificationStore, mailer Mailer, tracker EventTracker) *ClaimIntake {
	s.notifier = notifier
	s.mailer = mailer
	s.tracker = tracker
	return s
}

// NewClaimNumber formats CLM-<YYYYMMDDHHMMSS>-<6 hex>; the suffix keeps same-second submissions apart.
func NewClaimNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("CLM-%s-%s", now.Format("20060102150405"), suffix)
}

// MediaTypeFor classifies evidence by extension.
func MediaTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".avi", ".mov":
		return models.MediaTypeVideo
	}
	return models.MediaTypePhoto
}

func evidenceFiles(files []*multipart.FileHeader) []*multipart.FileHeader {
	out := make([]*multipart.FileHeader, 0, len(files))
	for _, fh := range files {
		if fh != nil && fh.Filename != "" {
			out = append(out, fh)
		}
	}
	return out
}

// Submit files a claim. It returns ErrNoEvidence or ErrPolicyNotFound for invalid input;
// any other error means nothing was committed.
func (s *ClaimIntake) Submit(ctx context.Context, sub Submission) (IntakeResult, error) {
	files := evidenceFiles(sub.Files)
	if len(files) == 0 {
		metrics.RecordClaim("rejected")
		return IntakeResult{}, ErrNoEvidence
	}

	if sub.PolicyID != nil {
		var n int64
		err := s.db.WithContext(ctx).Model(&models.Policy{}).
			Where("id = ? AND user_id = ?", *sub.PolicyID, sub.UserID).
			Count(&n).Error
		if err != nil {
			metrics.RecordClaim("failed")
			return IntakeResult{}, fmt.Errorf("check policy: %w", err)
		}
		if n == 0 {
			metrics.RecordClaim("rejected")
			return IntakeResult{}, ErrPolicyNotFound
		}
	}

	description, damageType, priority := sub.Description, sub.DamageType, defaultPriority
	analysis := s.advisor.AnalyzeClaimDamage(ai.WithUserID(ctx, sub.UserID), ai.ClaimInput{Description: sub.Description})
	enriched := !analysis.UsedFallback
	if enriched {
		if damageType == "" {
			damageType = analysis.DamageType
		}
		if description == "" {
			description = analysis.SuggestedDescription
		}
		if analysis.Priority != "" {
			priority = analysis.Priority
		}
	}

	stored := make([]storage.StoredFile, 0, len(files))
	for _, fh := range files {
		sf, err := s.store.Save(fh, storage.CategoryClaims, sub.UserID)
		if err != nil {
			s.removeFiles(stored)
			metrics.RecordClaim("failed")
			return IntakeResult{}, fmt.Errorf("store evidence %q: %w", fh.Filename, err)
		}
		stored = append(stored, sf)
	}

	claim := models.Claim{
		UserID:      sub.UserID,
		PolicyID:    sub.PolicyID,
		Description: description,
		DamageType:  damageType,
		Latitude:    sub.Latitude,
		Longitude:   sub.Longitude,
		Address:     sub.Address,
		Status:      models.ClaimStatusSubmitted,
		Priority:    priority,
	}

	var err error
	for attempt := 1; attempt <= claimNumberMaxAttempts; attempt++ {
		claim.ID = 0
		claim.Media = nil
		claim.ClaimNumber = s.NumberFunc(s.now())
		err = s.persist(ctx, &claim, stored)
		if err == nil || !isDuplicateKey(err) {
			break
		}
		metrics.RecordClaimNumberRetry()
		s.logger.Warn("claim number collision, retrying",
			zap.String("claim_number", claim.ClaimNumber), zap.Int("attempt", attempt))
	}
	if err != nil {
		s.removeFiles(stored)
		metrics.RecordClaim("failed")
		return IntakeResult{}, fmt.Errorf("persist claim: %w", err)
	}
	metrics.RecordClaim("filed")

	if s.tracker != nil {
		uid := sub.UserID
		s.tracker.Track(ctx, Event{
			Type:   EventClaimFiled,
			Name:   claim.ClaimNumber,
			UserID: &uid,
			Metadata: map[string]any{
				"media_count": len(stored),
				"ai_enriched": enriched,
			},
		})
	}

	msg := "Claim filed successfully"
	if enriched {
		msg = fmt.Sprintf("Claim filed successfully. AI Analysis: %s detected (Priority: %s)", damageType, priority)
	}
	return IntakeResult{
		Claim:      claim,
		Enriched:   enriched,
		DamageType: damageType,
		Priority:   priority,
		Message:    msg,
	}, nil
}

func (s *ClaimIntake) persist(ctx context.Context, claim *models.Claim, stored []storage.StoredFile) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Media").Create(claim).Error; err != nil {
			return err
		}
		media := make([]models.ClaimMedia, 0, len(stored))
		for _, sf := range stored {
			media = append(media, models.ClaimMedia{
				ClaimID:   claim.ID,
				Filename:  sf.Filename,
				FilePath:  sf.Path,
				MediaType: MediaTypeFor(sf.Filename),
			})
		}
		if err := tx.Create(&media).Error; err != nil {
			return fmt.Errorf("attach media: %w", err)
		}
		claim.Media = media
		return nil
	})
}

func (s *ClaimIntake) removeFiles(files []storage.StoredFile) {
	for _, f := range files {
		if err := s.store.Remove(f.Path); err != nil {
			s.logger.Warn("remove evidence failed", zap.String("path", f.Path), zap.Error(err))
		}
	}
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key")
}

// List returns the user's claims with media, newest first.
func (s *ClaimIntake) List(ctx context.Context, userID uint) ([]models.Claim, error) {
	var claims []models.Claim
	err := s.db.WithContext(ctx).Preload("Media").
		Where("user_id = ?", userID).
		Order("submitted_at DESC, id DESC").
		Find(&claims).Error
	return claims, err
}

// Get returns one claim of the user. Claims of other users are reported as ErrNotFound.
func (s *ClaimIntake) Get(ctx context.Context, userID, id uint) (models.Claim, error) {
	var claim models.Claim
	err := s.db.WithContext(ctx).Preload("Media").
		Where("id = ? AND user_id = ?", id, userID).
		First(&claim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Claim{}, ErrNotFound
	}
	return claim, err
}

var claimTransitions = map[string][]string{
	models.ClaimStatusSubmitted: {models.ClaimStatusInReview},
	models.ClaimStatusInReview:  {models.ClaimStatusResolved, models.ClaimStatusRejected},
}

// CanTransition reports whether a claim may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range claimTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves a claim along its lifecycle and tells the owner.
func (s *ClaimIntake) UpdateStatus(ctx context.Context, id uint, status string) (models.Claim, error) {
	var claim models.Claim
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&claim, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if !CanTransition(claim.Status, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, claim.Status, status)
		}
		res := tx.Model(&models.Claim{}).
			Where("id = ? AND status = ?", claim.ID, claim.Status).
			Update("status", status)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: claim changed concurrently", ErrInvalidTransition)
		}
		claim.Status = status
		return nil
	})
	if err != nil {
		return models.Claim{}, err
	}
	s.announceStatus(ctx, claim)
	return claim, nil
}

func (s *ClaimIntake) announceStatus(ctx context.Context, claim models.Claim) {
	if s.notifier != nil {
		if _, err := s.notifier.Add(ctx, claim.UserID, ClaimUpdatedNotification(claim.ClaimNumber, claim.Status)); err != nil {
			metrics.RecordDegraded("notifications")
			s.logger.Warn("claim notification failed", zap.String("claim_number", claim.ClaimNumber), zap.Error(err))
		}
	}
	if s.mailer == nil || !s.mailer.Enabled() {
		return
	}
	var owner models.User
	if err := s.db.WithContext(ctx).Select("id", "email").First(&owner, claim.UserID).Error; err != nil {
		s.logger.Warn("claim owner lookup failed", zap.Uint("user_id", claim.UserID), zap.Error(err))
		return
	}
	if err := s.mailer.Send(ctx, ClaimUpdateMessage(owner.Email, claim.ClaimNumber, claim.Status)); err != nil {
		metrics.RecordDegraded("mail")
		s.logger.Warn("claim update email failed", zap.String("claim_number", claim.ClaimNumber), zap.Error(err))
	}
}

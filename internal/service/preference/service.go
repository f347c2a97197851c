// Package preference resolves and stores per-user notification preferences.
// Missing documents synthesize system defaults without persisting; updates
// replace the whole validated document.
package preference

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/contentforge/review-api/internal/model"
	"github.com/contentforge/review-api/internal/repository"
	apperrors "github.com/contentforge/review-api/pkg/errors"
)

const (
	cacheTTL     = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error)
	Update(ctx context.Context, userID uuid.UUID, doc *model.NotificationPreference) (*model.NotificationPreference, error)
}

type service struct {
	repo     repository.PreferenceRepository
	cache    *gocache.Cache
	validate *validator.Validate
}

func NewService(repo repository.PreferenceRepository) Service {
	return &service{
		repo:     repo,
		cache:    gocache.New(cacheTTL, cacheCleanup),
		validate: validator.New(),
	}
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	if cached, ok := s.cache.Get(userID.String()); ok {
		return cached.(*model.NotificationPreference), nil
	}

	pref, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Defaults are synthesized, never persisted, until the user
			// saves explicitly.
			return model.DefaultPreferences(userID), nil
		}
		return nil, apperrors.Internal(err)
	}

	s.cache.Set(userID.String(), pref, gocache.DefaultExpiration)
	return pref, nil
}

func (s *service) Update(ctx context.Context, userID uuid.UUID, doc *model.NotificationPreference) (*model.NotificationPreference, error) {
	doc.UserID = userID
	if err := s.validateDoc(doc); err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, doc); err != nil {
		return nil, apperrors.Internal(err)
	}
	s.cache.Delete(userID.String())
	return doc, nil
}

func (s *service) validateDoc(doc *model.NotificationPreference) error {
	if err := s.validate.Struct(doc); err != nil {
		return apperrors.Validation("invalid preference document", err)
	}

	for name, freq := range map[string]model.ChannelFrequency{
		"email": doc.Email.Frequency,
		"sms":   doc.SMS.Frequency,
		"push":  doc.Push.Frequency,
	} {
		if !freq.Valid() {
			return apperrors.Validation(fmt.Sprintf("unknown %s frequency %q", name, freq), nil)
		}
	}

	for category := range doc.Categories {
		if !category.Valid() {
			return apperrors.Validation(fmt.Sprintf("unknown category %q", category), nil)
		}
	}

	if doc.DoNotDisturb.Enabled {
		for field, value := range map[string]string{
			"start_time": doc.DoNotDisturb.StartTime,
			"end_time":   doc.DoNotDisturb.EndTime,
		} {
			if _, err := time.Parse("15:04", value); err != nil {
				return apperrors.Validation(fmt.Sprintf("invalid %s %q, want HH:MM", field, value), err)
			}
		}
	}

	if doc.Timezone == "" {
		doc.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(doc.Timezone); err != nil {
		return apperrors.Validation(fmt.Sprintf("unknown timezone %q", doc.Timezone), err)
	}
	return nil
}

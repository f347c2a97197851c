package preference

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentforge/review-api/internal/model"
	apperrors "github.com/contentforge/review-api/pkg/errors"
)

type fakePrefRepo struct {
	docs    map[uuid.UUID]*model.NotificationPreference
	getErr  error
	upserts int
}

func newFakePrefRepo() *fakePrefRepo {
	return &fakePrefRepo{docs: make(map[uuid.UUID]*model.NotificationPreference)}
}

func (f *fakePrefRepo) Get(_ context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *doc
	return &cp, nil
}

func (f *fakePrefRepo) Upsert(_ context.Context, pref *model.NotificationPreference) error {
	f.upserts++
	cp := *pref
	f.docs[pref.UserID] = &cp
	return nil
}

func TestGetSynthesizesDefaults(t *testing.T) {
	repo := newFakePrefRepo()
	svc := NewService(repo)
	userID := uuid.New()

	pref, err := svc.Get(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, userID, pref.UserID)
	assert.True(t, pref.Email.Enabled)
	assert.False(t, pref.SMS.Enabled)
	assert.True(t, pref.InApp.Enabled)
	assert.False(t, pref.DoNotDisturb.Enabled)
	assert.Equal(t, "UTC", pref.Timezone)

	// Defaults are never written back.
	assert.Zero(t, repo.upserts)
	assert.Empty(t, repo.docs)
}

func TestUpdateReplacesWholeDocument(t *testing.T) {
	ctx := context.Background()
	repo := newFakePrefRepo()
	svc := NewService(repo)
	userID := uuid.New()

	doc := model.DefaultPreferences(userID)
	doc.Push.Enabled = false
	doc.Categories[model.CategoryPayments] = false

	updated, err := svc.Update(ctx, userID, doc)
	require.NoError(t, err)
	assert.False(t, updated.Push.Enabled)

	stored, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, stored.Push.Enabled)
	assert.False(t, stored.CategoryEnabled(model.CategoryPayments))
	assert.True(t, stored.CategoryEnabled(model.CategoryOrders))
}

func TestUpdateOverridesDocumentUserID(t *testing.T) {
	repo := newFakePrefRepo()
	svc := NewService(repo)
	userID := uuid.New()

	doc := model.DefaultPreferences(uuid.New())
	updated, err := svc.Update(context.Background(), userID, doc)
	require.NoError(t, err)
	assert.Equal(t, userID, updated.UserID)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	repo := newFakePrefRepo()
	svc := NewService(repo)
	userID := uuid.New()

	first := model.DefaultPreferences(userID)
	_, err := svc.Update(ctx, userID, first)
	require.NoError(t, err)

	// Prime the cache.
	_, err = svc.Get(ctx, userID)
	require.NoError(t, err)

	second := model.DefaultPreferences(userID)
	second.Email.Enabled = false
	_, err = svc.Update(ctx, userID, second)
	require.NoError(t, err)

	fresh, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, fresh.Email.Enabled)
}

func TestUpdateValidation(t *testing.T) {
	svc := NewService(newFakePrefRepo())
	userID := uuid.New()

	cases := []struct {
		name   string
		mutate func(*model.NotificationPreference)
	}{
		{"bad frequency", func(p *model.NotificationPreference) {
			p.Email.Frequency = "hourly"
		}},
		{"bad category", func(p *model.NotificationPreference) {
			p.Categories["gossip"] = true
		}},
		{"bad dnd time", func(p *model.NotificationPreference) {
			p.DoNotDisturb.Enabled = true
			p.DoNotDisturb.StartTime = "25:99"
		}},
		{"bad timezone", func(p *model.NotificationPreference) {
			p.Timezone = "Mars/Olympus"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := model.DefaultPreferences(userID)
			tc.mutate(doc)
			_, err := svc.Update(context.Background(), userID, doc)
			assert.True(t, apperrors.Is(err, apperrors.ErrValidation), "got %v", err)
		})
	}
}

func TestUpdateDefaultsEmptyTimezone(t *testing.T) {
	svc := NewService(newFakePrefRepo())
	userID := uuid.New()

	doc := model.DefaultPreferences(userID)
	doc.Timezone = ""

	updated, err := svc.Update(context.Background(), userID, doc)
	require.NoError(t, err)
	assert.Equal(t, "UTC", updated.Timezone)
}

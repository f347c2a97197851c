package notification

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentforge/review-api/internal/model"
	apperrors "github.com/contentforge/review-api/pkg/errors"
	"github.com/contentforge/review-api/pkg/logger"
	"github.com/contentforge/review-api/pkg/metrics"
)

// fakeNotificationRepo keeps rows and the per-user counter in lockstep, the
// same contract the postgres repository provides transactionally.
type fakeNotificationRepo struct {
	rows     map[uuid.UUID]*model.Notification
	counters map[uuid.UUID]int64
}

func newFakeNotificationRepo() *fakeNotificationRepo {
	return &fakeNotificationRepo{
		rows:     make(map[uuid.UUID]*model.Notification),
		counters: make(map[uuid.UUID]int64),
	}
}

func (f *fakeNotificationRepo) Create(_ context.Context, n *model.Notification) error {
	n.Status = model.NotificationStatusUnread
	n.CreatedAt = time.Now()
	cp := *n
	f.rows[n.ID] = &cp
	f.counters[n.UserID]++
	return nil
}

func (f *fakeNotificationRepo) Get(_ context.Context, userID, id uuid.UUID) (*model.Notification, error) {
	n, ok := f.rows[id]
	if !ok || n.UserID != userID {
		return nil, sql.ErrNoRows
	}
	cp := *n
	return &cp, nil
}

func (f *fakeNotificationRepo) List(_ context.Context, userID uuid.UUID, filter *model.NotificationFilter) ([]*model.Notification, int64, error) {
	var out []*model.Notification
	for _, n := range f.rows {
		if n.UserID != userID {
			continue
		}
		if filter.Status != "" && n.Status != filter.Status {
			continue
		}
		if filter.Status == "" && n.Status == model.NotificationStatusArchived {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	return out, int64(len(out)), nil
}

func (f *fakeNotificationRepo) UnreadCount(_ context.Context, userID uuid.UUID) (int64, error) {
	return f.counters[userID], nil
}

func (f *fakeNotificationRepo) CountUnreadRows(_ context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	for _, n := range f.rows {
		if n.UserID == userID && n.Status == model.NotificationStatusUnread {
			count++
		}
	}
	return count, nil
}

func (f *fakeNotificationRepo) MarkRead(_ context.Context, userID, id uuid.UUID) (bool, error) {
	n, ok := f.rows[id]
	if !ok || n.UserID != userID {
		return false, sql.ErrNoRows
	}
	if n.Status != model.NotificationStatusUnread {
		return false, nil
	}
	n.Status = model.NotificationStatusRead
	f.counters[userID]--
	return true, nil
}

func (f *fakeNotificationRepo) MarkAllRead(_ context.Context, userID uuid.UUID) (int64, error) {
	var changed int64
	for _, n := range f.rows {
		if n.UserID == userID && n.Status == model.NotificationStatusUnread {
			n.Status = model.NotificationStatusRead
			changed++
		}
	}
	f.counters[userID] = 0
	return changed, nil
}

func (f *fakeNotificationRepo) Archive(_ context.Context, userID, id uuid.UUID) error {
	n, ok := f.rows[id]
	if !ok || n.UserID != userID {
		return sql.ErrNoRows
	}
	if n.Status == model.NotificationStatusUnread {
		f.counters[userID]--
	}
	n.Status = model.NotificationStatusArchived
	return nil
}

func (f *fakeNotificationRepo) Delete(_ context.Context, userID, id uuid.UUID) error {
	n, ok := f.rows[id]
	if !ok || n.UserID != userID {
		return sql.ErrNoRows
	}
	if n.Status == model.NotificationStatusUnread {
		f.counters[userID]--
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeNotificationRepo) DeleteArchivedBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

type fakePrefService struct {
	prefs map[uuid.UUID]*model.NotificationPreference
}

func (f *fakePrefService) Get(_ context.Context, userID uuid.UUID) (*model.NotificationPreference, error) {
	if p, ok := f.prefs[userID]; ok {
		return p, nil
	}
	return model.DefaultPreferences(userID), nil
}

func (f *fakePrefService) Update(_ context.Context, _ uuid.UUID, doc *model.NotificationPreference) (*model.NotificationPreference, error) {
	return doc, nil
}

type fakePusher struct {
	connections int
	accepted    int
	attempts    int
	payloads    [][]byte
}

func (f *fakePusher) Push(_ uuid.UUID, payload []byte) int {
	f.attempts++
	if f.accepted > 0 {
		f.payloads = append(f.payloads, payload)
	}
	return f.accepted
}

func (f *fakePusher) Connections(_ uuid.UUID) int {
	return f.connections
}

func newTestPipeline(repo *fakeNotificationRepo, prefs *fakePrefService, pusher *fakePusher) *service {
	svc := NewService(
		repo,
		prefs,
		pusher,
		nil,
		logger.NewLogger(nil),
		metrics.NewMetricsWith(prometheus.NewRegistry(), "test"),
		Config{PushRetries: 2, PushRetryDelay: time.Millisecond},
	)
	return svc.(*service)
}

func event(userID uuid.UUID) *model.NotificationEvent {
	return &model.NotificationEvent{
		ID:       uuid.New(),
		UserIDs:  []uuid.UUID{userID},
		Category: model.CategoryWebsites,
		Type:     model.TypeReviewCompleted,
		Title:    "Your content passed review",
		Message:  "Nice work",
		Priority: "medium",
	}
}

func TestDispatchPersistsAndPushes(t *testing.T) {
	userID := uuid.New()
	repo := newFakeNotificationRepo()
	pusher := &fakePusher{connections: 1, accepted: 1}
	svc := newTestPipeline(repo, &fakePrefService{}, pusher)

	require.NoError(t, svc.Dispatch(context.Background(), event(userID)))

	count, err := svc.UnreadCount(context.Background(), userID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, 1, pusher.attempts)
	require.Len(t, pusher.payloads, 1)
	assert.Contains(t, string(pusher.payloads[0]), `"event":"new_notification"`)
}

func TestDispatchSuppressedByCategory(t *testing.T) {
	userID := uuid.New()
	pref := model.DefaultPreferences(userID)
	pref.Categories[model.CategoryWebsites] = false

	repo := newFakeNotificationRepo()
	pusher := &fakePusher{connections: 1, accepted: 1}
	svc := newTestPipeline(repo, &fakePrefService{prefs: map[uuid.UUID]*model.NotificationPreference{userID: pref}}, pusher)

	require.NoError(t, svc.Dispatch(context.Background(), event(userID)))

	// Suppressed entirely: no record, no counter, no push.
	assert.Empty(t, repo.rows)
	assert.EqualValues(t, 0, repo.counters[userID])
	assert.Zero(t, pusher.attempts)
}

func TestDispatchSuppressedWhenInAppDisabled(t *testing.T) {
	userID := uuid.New()
	pref := model.DefaultPreferences(userID)
	pref.InApp.Enabled = false

	repo := newFakeNotificationRepo()
	svc := newTestPipeline(repo, &fakePrefService{prefs: map[uuid.UUID]*model.NotificationPreference{userID: pref}}, &fakePusher{})

	require.NoError(t, svc.Dispatch(context.Background(), event(userID)))
	assert.Empty(t, repo.rows)
}

func TestDNDMutesPushButPersists(t *testing.T) {
	userID := uuid.New()
	pref := model.DefaultPreferences(userID)
	pref.DoNotDisturb.Enabled = true

	repo := newFakeNotificationRepo()
	pusher := &fakePusher{connections: 1, accepted: 1}
	svc := newTestPipeline(repo, &fakePrefService{prefs: map[uuid.UUID]*model.NotificationPreference{userID: pref}}, pusher)

	// 23:30 UTC falls inside the default 22:00-08:00 window.
	svc.now = func() time.Time {
		return time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	}
	require.NoError(t, svc.Dispatch(context.Background(), event(userID)))

	assert.Len(t, repo.rows, 1)
	assert.EqualValues(t, 1, repo.counters[userID])
	assert.Zero(t, pusher.attempts)

	// 09:00 is outside the window; push resumes.
	svc.now = func() time.Time {
		return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	}
	require.NoError(t, svc.Dispatch(context.Background(), event(userID)))
	assert.Equal(t, 1, pusher.attempts)
}

func TestDNDWindowBoundaries(t *testing.T) {
	userID := uuid.New()
	pref := model.DefaultPreferences(userID)
	pref.DoNotDisturb.Enabled = true

	svc := newTestPipeline(newFakeNotificationRepo(), &fakePrefService{}, &fakePusher{})

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"window start is inside", time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC), true},
		{"window end is outside", time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), false},
		{"early morning is inside", time.Date(2025, 3, 10, 3, 15, 0, 0, time.UTC), true},
		{"midday is outside", time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc.now = func() time.Time { return tc.at }
			assert.Equal(t, tc.want, svc.inDNDWindow(pref))
		})
	}
}

func TestDNDNonWrappingWindow(t *testing.T) {
	userID := uuid.New()
	pref := model.DefaultPreferences(userID)
	pref.DoNotDisturb.Enabled = true
	pref.DoNotDisturb.StartTime = "12:00"
	pref.DoNotDisturb.EndTime = "14:00"

	svc := newTestPipeline(newFakeNotificationRepo(), &fakePrefService{}, &fakePusher{})

	svc.now = func() time.Time { return time.Date(2025, 3, 10, 13, 0, 0, 0, time.UTC) }
	assert.True(t, svc.inDNDWindow(pref))

	svc.now = func() time.Time { return time.Date(2025, 3, 10, 15, 0, 0, 0, time.UTC) }
	assert.False(t, svc.inDNDWindow(pref))
}

func TestDNDRespectsTimezone(t *testing.T) {
	userID := uuid.New()
	pref := model.DefaultPreferences(userID)
	pref.DoNotDisturb.Enabled = true
	pref.Timezone = "America/New_York"

	svc := newTestPipeline(newFakeNotificationRepo(), &fakePrefService{}, &fakePusher{})

	// 03:30 UTC in March is 22:30 or 23:30 in New York, inside the window
	// either side of the DST switch.
	svc.now = func() time.Time { return time.Date(2025, 3, 20, 3, 30, 0, 0, time.UTC) }
	assert.True(t, svc.inDNDWindow(pref))
}

func TestPushRetriesThenDrops(t *testing.T) {
	userID := uuid.New()
	repo := newFakeNotificationRepo()
	pusher := &fakePusher{connections: 1, accepted: 0}
	svc := newTestPipeline(repo, &fakePrefService{}, pusher)

	// A failed push never fails the dispatch; the record is already stored.
	require.NoError(t, svc.Dispatch(context.Background(), event(userID)))
	assert.Equal(t, 2, pusher.attempts)
	assert.Len(t, repo.rows, 1)
}

func TestPushSkippedWhenOffline(t *testing.T) {
	userID := uuid.New()
	pusher := &fakePusher{connections: 0}
	svc := newTestPipeline(newFakeNotificationRepo(), &fakePrefService{}, pusher)

	require.NoError(t, svc.Dispatch(context.Background(), event(userID)))
	assert.Zero(t, pusher.attempts)
}

func TestUnreadCounterTracksRowsThroughLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	repo := newFakeNotificationRepo()
	svc := newTestPipeline(repo, &fakePrefService{}, &fakePusher{})

	assertInvariant := func() {
		t.Helper()
		counter, err := repo.UnreadCount(ctx, userID)
		require.NoError(t, err)
		rows, err := repo.CountUnreadRows(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, rows, counter, "counter diverged from unread rows")
	}

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Dispatch(ctx, event(userID)))
	}
	for id := range repo.rows {
		ids = append(ids, id)
	}
	assertInvariant()

	require.NoError(t, svc.MarkAsRead(ctx, userID, ids[0]))
	assertInvariant()

	require.NoError(t, svc.Archive(ctx, userID, ids[1]))
	assertInvariant()

	require.NoError(t, svc.Delete(ctx, userID, ids[2]))
	assertInvariant()

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestMarkAsReadIsIdempotent(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	repo := newFakeNotificationRepo()
	svc := newTestPipeline(repo, &fakePrefService{}, &fakePusher{})

	require.NoError(t, svc.Dispatch(ctx, event(userID)))
	var id uuid.UUID
	for k := range repo.rows {
		id = k
	}

	require.NoError(t, svc.MarkAsRead(ctx, userID, id))
	require.NoError(t, svc.MarkAsRead(ctx, userID, id))

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func TestMarkAsReadUnknownNotification(t *testing.T) {
	svc := newTestPipeline(newFakeNotificationRepo(), &fakePrefService{}, &fakePusher{})

	err := svc.MarkAsRead(context.Background(), uuid.New(), uuid.New())
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestOwnerScoping(t *testing.T) {
	ctx := context.Background()
	owner := uuid.New()
	intruder := uuid.New()
	repo := newFakeNotificationRepo()
	svc := newTestPipeline(repo, &fakePrefService{}, &fakePusher{})

	require.NoError(t, svc.Dispatch(ctx, event(owner)))
	var id uuid.UUID
	for k := range repo.rows {
		id = k
	}

	assert.True(t, apperrors.Is(svc.MarkAsRead(ctx, intruder, id), apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(svc.Archive(ctx, intruder, id), apperrors.ErrNotFound))
	assert.True(t, apperrors.Is(svc.Delete(ctx, intruder, id), apperrors.ErrNotFound))
}

func TestMarkAllAsRead(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	repo := newFakeNotificationRepo()
	svc := newTestPipeline(repo, &fakePrefService{}, &fakePusher{})

	for i := 0; i < 4; i++ {
		require.NoError(t, svc.Dispatch(ctx, event(userID)))
	}
	require.NoError(t, svc.MarkAllAsRead(ctx, userID))

	count, err := svc.UnreadCount(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	rows, err := repo.CountUnreadRows(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, rows)
}

func TestListExcludesArchivedByDefault(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	repo := newFakeNotificationRepo()
	svc := newTestPipeline(repo, &fakePrefService{}, &fakePusher{})

	require.NoError(t, svc.Dispatch(ctx, event(userID)))
	require.NoError(t, svc.Dispatch(ctx, event(userID)))

	var id uuid.UUID
	for k := range repo.rows {
		id = k
		break
	}
	require.NoError(t, svc.Archive(ctx, userID, id))

	filter := &model.NotificationFilter{}
	filter.Normalize()
	items, total, err := svc.List(ctx, userID, filter)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, items, 1)

	filter.Status = model.NotificationStatusArchived
	items, _, err = svc.List(ctx, userID, filter)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestFanOutContinuesPastFailingUser(t *testing.T) {
	ctx := context.Background()
	good := uuid.New()
	bad := uuid.New()

	repo := newFakeNotificationRepo()
	pref := model.DefaultPreferences(bad)
	pref.InApp.Enabled = false
	svc := newTestPipeline(repo, &fakePrefService{prefs: map[uuid.UUID]*model.NotificationPreference{bad: pref}}, &fakePusher{})

	evt := event(good)
	evt.UserIDs = []uuid.UUID{bad, good}
	require.NoError(t, svc.Dispatch(ctx, evt))

	// The suppressed user got nothing, the other user got their copy.
	count, err := svc.UnreadCount(ctx, good)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.EqualValues(t, 0, repo.counters[bad])
}

package folders

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaksopan/SnapMe-sub000/internal/events"
	"github.com/leaksopan/SnapMe-sub000/internal/models"
	"github.com/leaksopan/SnapMe-sub000/internal/storage/memory"
)

// flakyObjects fails the next prefix delete when failPrefix is set.
type flakyObjects struct {
	*memory.ObjectStore
	failPrefix bool
}

func (f *flakyObjects) DeletePrefix(ctx context.Context, prefix string) error {
	if f.failPrefix {
		f.failPrefix = false
		return errors.New("object store unavailable")
	}
	return f.ObjectStore.DeletePrefix(ctx, prefix)
}

type fixture struct {
	manager *Manager
	records *memory.RecordStore
	objects *memory.ObjectStore
	bus     *events.LocalBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	records, err := memory.NewRecordStore()
	require.NoError(t, err)
	objects := memory.NewObjectStore()
	bus := events.NewLocalBus(logger)
	return &fixture{
		manager: NewManager(records, records, objects, bus, logger),
		records: records,
		objects: objects,
		bus:     bus,
	}
}

func (fx *fixture) folder(t *testing.T, name, phone string, status models.FolderStatus) *models.PhotoFolder {
	t.Helper()
	ctx := context.Background()
	f, err := fx.manager.CreateFolder(ctx, CreateFolderInput{CustomerName: name, CustomerPhone: phone})
	require.NoError(t, err)
	path := map[models.FolderStatus][]models.FolderStatus{
		models.StatusPending: nil,
		models.StatusReady:   {models.StatusReady},
		models.StatusClaimed: {models.StatusReady, models.StatusClaimed},
		models.StatusExpired: {models.StatusReady, models.StatusExpired},
	}
	for _, s := range path[status] {
		f, err = fx.manager.UpdateStatus(ctx, f.ID, s)
		require.NoError(t, err)
	}
	return f
}

func (fx *fixture) photo(t *testing.T, f *models.PhotoFolder, name string, data []byte) models.Photo {
	t.Helper()
	ctx := context.Background()
	p := models.Photo{
		ID:          name + "-id",
		FolderID:    f.ID,
		FileName:    name,
		FilePath:    f.FolderPath + "/" + name,
		ContentType: "image/jpeg",
		FileSize:    int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, fx.objects.Put(ctx, p.FilePath, bytes.NewReader(data), p.FileSize, p.ContentType))
	require.NoError(t, fx.records.CreatePhoto(ctx, &p))
	_, err := fx.records.RefreshAggregates(ctx, f.ID)
	require.NoError(t, err)
	return p
}

func TestCreateFolder(t *testing.T) {
	fx := newFixture(t)
	f, err := fx.manager.CreateFolder(context.Background(), CreateFolderInput{
		CustomerName:  "  Dewi Lestari ",
		CustomerPhone: "0812-555",
		PackageName:   "Family",
	})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, f.Status)
	assert.Equal(t, "Dewi Lestari", f.CustomerName)
	assert.Equal(t, 0, f.PhotoCount)
	assert.Equal(t, int64(0), f.TotalSize)
	assert.Nil(t, f.ClaimedAt)
	assert.Equal(t, "folders/"+f.ID, f.FolderPath)
	assert.Regexp(t, `^\d{8}_Dewi-Lestari_0812-555$`, f.FolderName)

	stored, err := fx.manager.GetByID(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, f.ID, stored.ID)
}

func TestCreateFolderRequiresNameAndPhone(t *testing.T) {
	fx := newFixture(t)
	tests := []struct {
		name  string
		input CreateFolderInput
		field string
	}{
		{"missing name", CreateFolderInput{CustomerPhone: "0812"}, "customer_name"},
		{"blank name", CreateFolderInput{CustomerName: "   ", CustomerPhone: "0812"}, "customer_name"},
		{"missing phone", CreateFolderInput{CustomerName: "Ana"}, "customer_phone"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.manager.CreateFolder(context.Background(), tc.input)
			var ve *models.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestGetByIDNotFound(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.manager.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransitionTable(t *testing.T) {
	all := []models.FolderStatus{models.StatusPending, models.StatusReady, models.StatusClaimed, models.StatusExpired}
	allowed := map[[2]models.FolderStatus]bool{
		{models.StatusPending, models.StatusReady}:   true,
		{models.StatusReady, models.StatusClaimed}:   true,
		{models.StatusReady, models.StatusExpired}:   true,
		{models.StatusClaimed, models.StatusExpired}: true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]models.FolderStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransition(models.StatusReady, "archived"))
}

func TestUpdateStatusPendingToClaimedRejected(t *testing.T) {
	fx := newFixture(t)
	f := fx.folder(t, "Budi", "0811", models.StatusPending)

	_, err := fx.manager.UpdateStatus(context.Background(), f.ID, models.StatusClaimed)
	var te *models.InvalidTransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, models.StatusPending, te.From)
	assert.Equal(t, models.StatusClaimed, te.To)

	stored, err := fx.manager.GetByID(context.Background(), f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, stored.Status)
	assert.Nil(t, stored.ClaimedAt)
}

func TestUpdateStatusClaimedAtFollowsStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fx.manager.now = func() time.Time { return fixed }

	f := fx.folder(t, "Citra", "0813", models.StatusReady)
	assert.Nil(t, f.ClaimedAt)

	claimed, err := fx.manager.UpdateStatus(ctx, f.ID, models.StatusClaimed)
	require.NoError(t, err)
	require.NotNil(t, claimed.ClaimedAt)
	assert.Equal(t, fixed, *claimed.ClaimedAt)

	expired, err := fx.manager.UpdateStatus(ctx, f.ID, models.StatusExpired)
	require.NoError(t, err)
	assert.Nil(t, expired.ClaimedAt)
	require.NotNil(t, expired.ExpiredAt)

	_, err = fx.manager.UpdateStatus(ctx, f.ID, models.StatusReady)
	assert.True(t, models.IsInvalidTransition(err))
}

func TestUpdateStatusPublishesEvent(t *testing.T) {
	fx := newFixture(t)
	var got []events.Event
	unsubscribe, err := fx.bus.Subscribe(events.FolderStatusChanged, func(_ context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)

	f := fx.folder(t, "Dina", "0814", models.StatusReady)
	require.NoError(t, unsubscribe())
	_, err = fx.manager.UpdateStatus(context.Background(), f.ID, models.StatusClaimed)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, f.ID, got[0].FolderID)
	assert.Equal(t, models.StatusPending, got[0].PreviousStatus)
	assert.Equal(t, models.StatusReady, got[0].Status)
}

func TestSearchForCustomerHidesPendingAndExpired(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	pending := fx.folder(t, "Eka Pending", "0899-100", models.StatusPending)
	ready := fx.folder(t, "Eka Ready", "0899-200", models.StatusReady)
	claimed := fx.folder(t, "Eka Claimed", "0899-300", models.StatusClaimed)
	expired := fx.folder(t, "Eka Expired", "0899-400", models.StatusExpired)

	got, err := fx.manager.Search(ctx, "0899", models.SearchByPhone, SearchOptions{ForCustomer: true})
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, f := range got {
		ids[f.ID] = true
		assert.True(t, f.Status.VisibleToCustomer())
	}
	assert.True(t, ids[ready.ID])
	assert.True(t, ids[claimed.ID])
	assert.False(t, ids[pending.ID])
	assert.False(t, ids[expired.ID])

	staff, err := fx.manager.Search(ctx, "eka", models.SearchByName, SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, staff, 4)

	n, err := fx.manager.Count(ctx, "EKA", models.SearchByName, SearchOptions{ForCustomer: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSearchPaging(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 5; i++ {
		fx.folder(t, "Fajar", "0815", models.StatusReady)
	}
	page, err := fx.manager.Search(context.Background(), "", models.SearchByPhone, SearchOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestMarkClaimedOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Gita", "0816", models.StatusReady)

	claimed, first, err := fx.manager.MarkClaimed(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
	require.NotNil(t, first.ClaimedAt)

	claimed, second, err := fx.manager.MarkClaimed(ctx, f.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, *first.ClaimedAt, *second.ClaimedAt)
}

func TestMarkClaimedConcurrent(t *testing.T) {
	fx := newFixture(t)
	f := fx.folder(t, "Hana", "0817", models.StatusReady)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, _, err := fx.manager.MarkClaimed(context.Background(), f.ID)
			assert.NoError(t, err)
			if claimed {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestMarkClaimedPendingRejected(t *testing.T) {
	fx := newFixture(t)
	f := fx.folder(t, "Indra", "0818", models.StatusPending)
	_, _, err := fx.manager.MarkClaimed(context.Background(), f.ID)
	assert.True(t, models.IsInvalidTransition(err))
}

func TestExpireRemovesPhotos(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Joko", "0819", models.StatusClaimed)
	fx.photo(t, f, "a.jpg", []byte("aaaa"))
	fx.photo(t, f, "b.jpg", []byte("bb"))

	expired, err := fx.manager.Expire(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, expired.Status)
	assert.Equal(t, 0, expired.PhotoCount)
	assert.Equal(t, int64(0), expired.TotalSize)
	assert.Equal(t, 0, fx.objects.Len())

	photos, err := fx.manager.ListPhotos(ctx, f.ID)
	require.NoError(t, err)
	assert.Empty(t, photos)
}

func TestExpireRetriesAfterFailedPurge(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	logger, _ := logtest.NewNullLogger()
	objects := &flakyObjects{ObjectStore: fx.objects, failPrefix: true}
	manager := NewManager(fx.records, fx.records, objects, fx.bus, logger)

	f := fx.folder(t, "Joko", "0819", models.StatusClaimed)
	p := fx.photo(t, f, "a.jpg", []byte("aaaa"))

	_, err := manager.Expire(ctx, f.ID)
	var be *models.BackendError
	require.ErrorAs(t, err, &be)

	stuck, err := manager.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, stuck.Status)
	assert.Equal(t, 1, stuck.PhotoCount)

	leftover, err := fx.records.ListExpiredWithPhotos(ctx)
	require.NoError(t, err)
	require.Len(t, leftover, 1)
	assert.Equal(t, f.ID, leftover[0].ID)

	expired, err := manager.Expire(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, expired.Status)
	assert.Equal(t, stuck.ExpiredAt, expired.ExpiredAt)
	assert.Equal(t, 0, expired.PhotoCount)
	assert.False(t, fx.objects.Has(p.FilePath))

	leftover, err = fx.records.ListExpiredWithPhotos(ctx)
	require.NoError(t, err)
	assert.Empty(t, leftover)
}

func TestExpirePendingRejected(t *testing.T) {
	fx := newFixture(t)
	f := fx.folder(t, "Nia", "0822", models.StatusPending)

	_, err := fx.manager.Expire(context.Background(), f.ID)
	assert.True(t, models.IsInvalidTransition(err))
}

func TestDeletePhotoRefreshesAggregates(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Kiki", "0820", models.StatusReady)
	a := fx.photo(t, f, "a.jpg", []byte("aaaa"))
	b := fx.photo(t, f, "b.jpg", []byte("bb"))

	updated, err := fx.manager.DeletePhoto(ctx, f.ID, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.PhotoCount)
	assert.Equal(t, b.FileSize, updated.TotalSize)
	assert.False(t, fx.objects.Has(a.FilePath))
	assert.True(t, fx.objects.Has(b.FilePath))

	_, err = fx.manager.DeletePhoto(ctx, "other-folder", b.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDeleteFolderCascades(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Lina", "0821", models.StatusReady)
	p := fx.photo(t, f, "a.jpg", []byte("aaaa"))

	require.NoError(t, fx.manager.Delete(ctx, f.ID))

	_, err := fx.manager.GetByID(ctx, f.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = fx.records.GetPhoto(ctx, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, fx.objects.Has(p.FilePath))

	assert.ErrorIs(t, fx.manager.Delete(ctx, f.ID), models.ErrNotFound)
}

package claim

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leaksopan/SnapMe-sub000/internal/events"
	"github.com/leaksopan/SnapMe-sub000/internal/folders"
	"github.com/leaksopan/SnapMe-sub000/internal/models"
	"github.com/leaksopan/SnapMe-sub000/internal/storage/memory"
)

// brokenObjects fails reads of keys matched by failOn.
type brokenObjects struct {
	*memory.ObjectStore
	failOn func(key string) bool
}

func (b *brokenObjects) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if b.failOn(key) {
		return nil, errors.New("connection reset")
	}
	return b.ObjectStore.Open(ctx, key)
}

type countingManager struct {
	FolderManager
	searches int
}

func (c *countingManager) Search(ctx context.Context, term string, mode models.SearchMode, opts folders.SearchOptions) ([]models.PhotoFolder, error) {
	c.searches++
	return c.FolderManager.Search(ctx, term, mode, opts)
}

type fixture struct {
	manager *folders.Manager
	records *memory.RecordStore
	objects *memory.ObjectStore
	bus     *events.LocalBus
	service *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	records, err := memory.NewRecordStore()
	require.NoError(t, err)
	objects := memory.NewObjectStore()
	bus := events.NewLocalBus(logger)
	manager := folders.NewManager(records, records, objects, bus, logger)
	return &fixture{
		manager: manager,
		records: records,
		objects: objects,
		bus:     bus,
		service: NewService(manager, records, objects, nil, time.Hour, logger),
	}
}

func (fx *fixture) folder(t *testing.T, name, phone string, status models.FolderStatus) *models.PhotoFolder {
	t.Helper()
	ctx := context.Background()
	f, err := fx.manager.CreateFolder(ctx, folders.CreateFolderInput{CustomerName: name, CustomerPhone: phone})
	require.NoError(t, err)
	steps := map[models.FolderStatus][]models.FolderStatus{
		models.StatusReady:   {models.StatusReady},
		models.StatusClaimed: {models.StatusReady, models.StatusClaimed},
		models.StatusExpired: {models.StatusReady, models.StatusExpired},
	}
	for _, s := range steps[status] {
		f, err = fx.manager.UpdateStatus(ctx, f.ID, s)
		require.NoError(t, err)
	}
	return f
}

func (fx *fixture) photo(t *testing.T, f *models.PhotoFolder, name, content string) models.Photo {
	t.Helper()
	ctx := context.Background()
	p := models.Photo{
		ID:          f.ID + "-" + name,
		FolderID:    f.ID,
		FileName:    name,
		FilePath:    f.FolderPath + "/" + name,
		ContentType: "image/jpeg",
		FileSize:    int64(len(content)),
		CreatedAt:   time.Now().UTC(),
	}
	require.NoError(t, fx.objects.Put(ctx, p.FilePath, strings.NewReader(content), p.FileSize, p.ContentType))
	require.NoError(t, fx.records.CreatePhoto(ctx, &p))
	return p
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	out := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		out[f.Name] = string(b)
	}
	return out
}

func TestSearchExcludesPendingAndExpired(t *testing.T) {
	fx := newFixture(t)
	fx.folder(t, "Maya", "0857-111", models.StatusPending)
	ready := fx.folder(t, "Maya", "0857-222", models.StatusReady)
	fx.folder(t, "Maya", "0857-333", models.StatusExpired)

	got, err := fx.service.Search(context.Background(), " 0857 ", models.SearchByPhone)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ready.ID, got[0].ID)
}

func TestSearchEmptyTermSkipsStore(t *testing.T) {
	fx := newFixture(t)
	logger, _ := logtest.NewNullLogger()
	counting := &countingManager{FolderManager: fx.manager}
	svc := NewService(counting, fx.records, fx.objects, nil, time.Hour, logger)

	got, err := svc.Search(context.Background(), "   ", models.SearchByName)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, counting.searches)

	got, err = svc.Search(context.Background(), "nobody", models.SearchByName)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 1, counting.searches)
}

func TestGetVisibleFolder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	pending := fx.folder(t, "Nina", "0858", models.StatusPending)
	claimed := fx.folder(t, "Nina", "0858", models.StatusClaimed)

	_, err := fx.service.GetVisibleFolder(ctx, pending.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	got, err := fx.service.GetVisibleFolder(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, claimed.ID, got.ID)
}

func TestDownloadURLsAreCached(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Oki", "0859", models.StatusReady)
	p := fx.photo(t, f, "a.jpg", "AAA")

	first, err := fx.service.GetDownloadURL(ctx, p.FilePath)
	require.NoError(t, err)
	assert.Contains(t, first, "expires=")

	second, err := fx.service.GetDownloadURL(ctx, p.FilePath)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, fx.service.urls.Len())

	require.NoError(t, fx.service.urls.HandlePhotoDeleted(ctx, events.Event{FilePath: p.FilePath}))
	assert.Equal(t, 0, fx.service.urls.Len())
}

func TestBatchDownloadURLsReportPerPath(t *testing.T) {
	fx := newFixture(t)
	f := fx.folder(t, "Putu", "0860", models.StatusReady)
	p := fx.photo(t, f, "a.jpg", "AAA")

	got := fx.service.GetBatchDownloadURLs(context.Background(), []string{p.FilePath, "folders/x/missing.jpg"})
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].URL)
	assert.Empty(t, got[0].Error)
	assert.Empty(t, got[1].URL)
	assert.NotEmpty(t, got[1].Error)
}

func TestGalleryPrefersThumbnails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Rudi", "0861", models.StatusReady)
	p := fx.photo(t, f, "a.jpg", "AAA")
	fx.photo(t, f, "b.jpg", "BBB")

	thumb := f.FolderPath + "/thumbs/a.jpg"
	require.NoError(t, fx.objects.Put(ctx, thumb, strings.NewReader("t"), 1, "image/jpeg"))
	stored, err := fx.records.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	require.NoError(t, fx.records.DeletePhoto(ctx, p.ID))
	stored.ThumbnailPath = thumb
	require.NoError(t, fx.records.CreatePhoto(ctx, stored))

	_, gallery, err := fx.service.Gallery(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, gallery, 2)
	for _, g := range gallery {
		require.NotEmpty(t, g.PreviewURL)
		if g.ID == p.ID {
			assert.Contains(t, g.PreviewURL, "/thumbs/")
		} else {
			assert.NotContains(t, g.PreviewURL, "/thumbs/")
		}
	}

	pending := fx.folder(t, "Rudi", "0861", models.StatusPending)
	_, _, err = fx.service.Gallery(ctx, pending.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDownloadPhotoCountsDownload(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Sari", "0862", models.StatusReady)
	p := fx.photo(t, f, "a.jpg", "AAA")

	u, err := fx.service.DownloadPhoto(ctx, f.ID, p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, u)

	stored, err := fx.records.GetPhoto(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.DownloadCount)

	// A single photo does not claim the folder.
	got, err := fx.manager.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.Status)

	other := fx.folder(t, "Sari", "0862", models.StatusReady)
	_, err = fx.service.DownloadPhoto(ctx, other.ID, p.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestDownloadAllClaimsOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Tono", "0863", models.StatusReady)
	a := fx.photo(t, f, "a.jpg", "AAA")
	fx.photo(t, f, "b.jpg", "BBBB")

	var buf bytes.Buffer
	res, err := fx.service.DownloadAll(ctx, f.ID, &buf)
	require.NoError(t, err)
	assert.True(t, res.Claimed)
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, res.Included)
	assert.Equal(t, map[string]string{"a.jpg": "AAA", "b.jpg": "BBBB"}, readZip(t, buf.Bytes()))

	first, err := fx.manager.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClaimed, first.Status)
	require.NotNil(t, first.ClaimedAt)

	buf.Reset()
	res, err = fx.service.DownloadAll(ctx, f.ID, &buf)
	require.NoError(t, err)
	assert.False(t, res.Claimed)
	assert.NotZero(t, buf.Len())

	second, err := fx.manager.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClaimed, second.Status)
	assert.Equal(t, *first.ClaimedAt, *second.ClaimedAt)

	stored, err := fx.records.GetPhoto(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.DownloadCount)
}

func TestDownloadAllPartialFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Umi", "0864", models.StatusReady)
	fx.photo(t, f, "a.jpg", "AAA")
	broken := fx.photo(t, f, "b.jpg", "BBB")
	fx.photo(t, f, "c.jpg", "CCC")

	logger, _ := logtest.NewNullLogger()
	objects := &brokenObjects{ObjectStore: fx.objects, failOn: func(key string) bool { return key == broken.FilePath }}
	svc := NewService(fx.manager, fx.records, objects, nil, time.Hour, logger)

	var buf bytes.Buffer
	res, err := svc.DownloadAll(ctx, f.ID, &buf)
	require.NoError(t, err)
	assert.True(t, res.Claimed)
	assert.Len(t, res.Included, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "b.jpg", res.Failed[0].FileName)
	assert.Len(t, readZip(t, buf.Bytes()), 2)

	stored, err := fx.records.GetPhoto(ctx, broken.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.DownloadCount)
}

func TestDownloadAllNothingArchived(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	f := fx.folder(t, "Vina", "0865", models.StatusReady)
	fx.photo(t, f, "a.jpg", "AAA")

	logger, _ := logtest.NewNullLogger()
	objects := &brokenObjects{ObjectStore: fx.objects, failOn: func(string) bool { return true }}
	svc := NewService(fx.manager, fx.records, objects, nil, time.Hour, logger)

	var buf bytes.Buffer
	res, err := svc.DownloadAll(ctx, f.ID, &buf)
	assert.ErrorIs(t, err, ErrNothingArchived)
	assert.False(t, res.Claimed)
	assert.Zero(t, buf.Len())

	got, err := fx.manager.GetByID(ctx, f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.Status)
	assert.Nil(t, got.ClaimedAt)

	empty := fx.folder(t, "Vina", "0865", models.StatusReady)
	_, err = fx.service.DownloadAll(ctx, empty.ID, &buf)
	assert.ErrorIs(t, err, ErrNothingArchived)
}

func TestDownloadAllHiddenFolder(t *testing.T) {
	fx := newFixture(t)
	f := fx.folder(t, "Wawan", "0866", models.StatusPending)
	fx.photo(t, f, "a.jpg", "AAA")

	var buf bytes.Buffer
	_, err := fx.service.DownloadAll(context.Background(), f.ID, &buf)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Zero(t, buf.Len())
}

func TestArchiveNameDeduplicates(t *testing.T) {
	seen := map[string]int{}
	assert.Equal(t, "a.jpg", archiveName(seen, "a.jpg"))
	assert.Equal(t, "a (2).jpg", archiveName(seen, "a.jpg"))
	assert.Equal(t, "a (3).jpg", archiveName(seen, "a.jpg"))
	assert.Equal(t, "b.jpg", archiveName(seen, "../b.jpg"))
}

func TestArchiveNameSkipsTakenNames(t *testing.T) {
	seen := map[string]int{}
	var got []string
	for _, name := range []string{"a (2).jpg", "a.jpg", "a.jpg", "a.jpg", "a (2).jpg"} {
		got = append(got, archiveName(seen, name))
	}
	assert.Equal(t, []string{"a (2).jpg", "a.jpg", "a (3).jpg", "a (4).jpg", "a (2) (2).jpg"}, got)

	unique := map[string]bool{}
	for _, name := range got {
		assert.False(t, unique[name], "duplicate entry %q", name)
		unique[name] = true
	}
}

// Package folders owns the photo folder lifecycle: creation, status
// transitions, search, and deletion of folders and their photos.
package folders

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/events"
	"github.com/leaksopan/SnapMe-sub000/internal/models"
	"github.com/leaksopan/SnapMe-sub000/internal/storage"
)

const folderPrefix = "folders"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9]+`)

type CreateFolderInput struct {
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CustomerEmail string `json:"customer_email"`
	PackageName   string `json:"package_name"`
	TransactionID string `json:"transaction_id"`
}

type SearchOptions struct {
	// ForCustomer restricts results to folders a customer may see.
	ForCustomer bool
	Limit       int
	Offset      int
}

type Manager struct {
	folders storage.FolderRepository
	photos  storage.PhotoRepository
	objects storage.ObjectStore
	bus     events.Bus
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewManager(folders storage.FolderRepository, photos storage.PhotoRepository, objects storage.ObjectStore, bus events.Bus, logger logrus.FieldLogger) *Manager {
	return &Manager{
		folders: folders,
		photos:  photos,
		objects: objects,
		bus:     bus,
		logger:  logger.WithField("component", "folders"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FolderPath is the object store namespace of a folder.
func FolderPath(id string) string {
	return path.Join(folderPrefix, id)
}

func folderName(created time.Time, customer, phone string) string {
	clean := func(s string) string {
		return strings.Trim(unsafeNameChars.ReplaceAllString(s, "-"), "-")
	}
	return fmt.Sprintf("%s_%s_%s", created.Format("20060102"), clean(customer), clean(phone))
}

func (m *Manager) CreateFolder(ctx context.Context, in CreateFolderInput) (*models.PhotoFolder, error) {
	name := strings.TrimSpace(in.CustomerName)
	phone := strings.TrimSpace(in.CustomerPhone)
	if name == "" {
		return nil, &models.ValidationError{Field: "customer_name", Message: "is required"}
	}
	if phone == "" {
		return nil, &models.ValidationError{Field: "customer_phone", Message: "is required"}
	}

	now := m.now()
	id := uuid.New().String()
	folder := &models.PhotoFolder{
		ID:            id,
		CustomerName:  name,
		CustomerPhone: phone,
		CustomerEmail: strings.TrimSpace(in.CustomerEmail),
		PackageName:   strings.TrimSpace(in.PackageName),
		TransactionID: strings.TrimSpace(in.TransactionID),
		Status:        models.StatusPending,
		FolderPath:    FolderPath(id),
		FolderName:    folderName(now, name, phone),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := m.folders.CreateFolder(ctx, folder); err != nil {
		return nil, models.Backend("create folder", err)
	}
	foldersCreatedTotal.Inc()
	m.logger.WithField("folder_id", id).Infof("folder created for %s", folder.FolderName)

	m.publish(ctx, events.New(events.FolderCreated, id), func(e *events.Event) {
		e.Status = folder.Status
	})
	return folder, nil
}

func (m *Manager) GetByID(ctx context.Context, id string) (*models.PhotoFolder, error) {
	f, err := m.folders.GetFolder(ctx, id)
	if err != nil {
		return nil, models.Backend("get folder", err)
	}
	return f, nil
}

func (m *Manager) query(term string, mode models.SearchMode, opts SearchOptions) models.FolderQuery {
	if mode == "" {
		mode = models.SearchByPhone
	}
	q := models.FolderQuery{
		Term:   strings.TrimSpace(term),
		Mode:   mode,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	if opts.ForCustomer {
		q.Statuses = models.CustomerVisibleStatuses
	}
	return q
}

// Search matches term case-insensitively against the phone or the name of
// the customer. Customer searches never return pending or expired folders.
func (m *Manager) Search(ctx context.Context, term string, mode models.SearchMode, opts SearchOptions) ([]models.PhotoFolder, error) {
	q := m.query(term, mode, opts)
	folders, err := m.folders.SearchFolders(ctx, q)
	if err != nil {
		return nil, models.Backend("search folders", err)
	}
	if opts.ForCustomer {
		// The repository already filters; keep the guarantee local as well.
		visible := folders[:0]
		for _, f := range folders {
			if f.Status.VisibleToCustomer() {
				visible = append(visible, f)
			}
		}
		folders = visible
	}
	return folders, nil
}

func (m *Manager) Count(ctx context.Context, term string, mode models.SearchMode, opts SearchOptions) (int64, error) {
	n, err := m.folders.CountFolders(ctx, m.query(term, mode, opts))
	if err != nil {
		return 0, models.Backend("count folders", err)
	}
	return n, nil
}

// UpdateStatus moves a folder to status, enforcing the lifecycle table.
func (m *Manager) UpdateStatus(ctx context.Context, id string, status models.FolderStatus) (*models.PhotoFolder, error) {
	f, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.transition(ctx, f, status)
}

// MarkClaimed claims a ready folder. It reports false without error when the
// folder was already claimed.
func (m *Manager) MarkClaimed(ctx context.Context, id string) (bool, *models.PhotoFolder, error) {
	f, err := m.GetByID(ctx, id)
	if err != nil {
		return false, nil, err
	}
	if f.Status == models.StatusClaimed {
		return false, f, nil
	}

	updated, err := m.transition(ctx, f, models.StatusClaimed)
	if err == nil {
		return true, updated, nil
	}

	// Lost the race to another download of the same folder.
	var te *models.InvalidTransitionError
	if errors.As(err, &te) && te.From == models.StatusClaimed {
		current, getErr := m.GetByID(ctx, id)
		if getErr != nil {
			return false, nil, getErr
		}
		return false, current, nil
	}
	return false, nil, err
}

// Expire moves a ready or claimed folder to expired and removes its photos.
// On a folder that is already expired it only removes what is left, so a purge
// that failed halfway can be retried.
func (m *Manager) Expire(ctx context.Context, id string) (*models.PhotoFolder, error) {
	f, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := f
	if f.Status != models.StatusExpired {
		updated, err = m.transition(ctx, f, models.StatusExpired)
		if err != nil {
			return nil, err
		}
	}

	removed, err := m.purgePhotos(ctx, updated, "expired")
	if err != nil {
		return nil, err
	}
	agg, err := m.folders.RefreshAggregates(ctx, id)
	if err != nil {
		return nil, models.Backend("refresh aggregates", err)
	}
	updated.PhotoCount = agg.PhotoCount
	updated.TotalSize = agg.TotalSize

	m.logger.WithFields(logrus.Fields{"folder_id": id, "photos": removed}).Info("folder expired")
	return updated, nil
}

func (m *Manager) transition(ctx context.Context, f *models.PhotoFolder, to models.FolderStatus) (*models.PhotoFolder, error) {
	from := f.Status
	if err := checkTransition(from, to); err != nil {
		return nil, err
	}

	now := m.now()
	change := storage.StatusChange{Status: to, UpdatedAt: now, ExpiredAt: f.ExpiredAt}
	switch to {
	case models.StatusClaimed:
		change.ClaimedAt = &now
	case models.StatusExpired:
		change.ExpiredAt = &now
	}

	ok, err := m.folders.SetStatus(ctx, f.ID, from, change)
	if err != nil {
		return nil, models.Backend("update folder status", err)
	}
	if !ok {
		current, err := m.GetByID(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		return nil, &models.InvalidTransitionError{From: current.Status, To: to}
	}

	updated := *f
	updated.Status = to
	updated.ClaimedAt = change.ClaimedAt
	updated.ExpiredAt = change.ExpiredAt
	updated.UpdatedAt = now

	statusTransitionsTotal.WithLabelValues(string(from), string(to)).Inc()
	m.logger.WithFields(logrus.Fields{"folder_id": f.ID, "from": from, "to": to}).Info("folder status changed")
	m.publish(ctx, events.New(events.FolderStatusChanged, f.ID), func(e *events.Event) {
		e.Status = to
		e.PreviousStatus = from
	})
	return &updated, nil
}

func (m *Manager) ListPhotos(ctx context.Context, folderID string) ([]models.Photo, error) {
	if _, err := m.GetByID(ctx, folderID); err != nil {
		return nil, err
	}
	photos, err := m.photos.ListPhotos(ctx, folderID)
	if err != nil {
		return nil, models.Backend("list photos", err)
	}
	return photos, nil
}

// Delete removes a folder, its photo objects and its photo rows.
func (m *Manager) Delete(ctx context.Context, id string) error {
	f, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}

	photos, err := m.photos.ListPhotos(ctx, id)
	if err != nil {
		return models.Backend("list photos", err)
	}
	// Objects first: a failure here leaves the rows in place so the delete can be retried.
	if err := m.objects.DeletePrefix(ctx, f.FolderPath+"/"); err != nil {
		return models.Backend("delete folder objects", err)
	}
	if err := m.folders.DeleteFolder(ctx, id); err != nil {
		return models.Backend("delete folder", err)
	}

	photosDeletedTotal.WithLabelValues("folder_deleted").Add(float64(len(photos)))
	m.logger.WithFields(logrus.Fields{"folder_id": id, "photos": len(photos)}).Info("folder deleted")
	m.publish(ctx, events.New(events.FolderDeleted, id), func(e *events.Event) {
		e.Status = f.Status
	})
	for _, p := range photos {
		m.publishPhotoDeleted(ctx, p)
	}
	return nil
}

// DeletePhoto removes one photo and refreshes the folder aggregates.
func (m *Manager) DeletePhoto(ctx context.Context, folderID, photoID string) (*models.PhotoFolder, error) {
	p, err := m.photos.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, models.Backend("get photo", err)
	}
	if p.FolderID != folderID {
		return nil, models.ErrNotFound
	}

	if err := m.deleteObjects(ctx, *p); err != nil {
		return nil, err
	}
	if err := m.photos.DeletePhoto(ctx, photoID); err != nil {
		return nil, models.Backend("delete photo", err)
	}
	agg, err := m.folders.RefreshAggregates(ctx, folderID)
	if err != nil {
		return nil, models.Backend("refresh aggregates", err)
	}

	photosDeletedTotal.WithLabelValues("staff").Inc()
	m.logger.WithFields(logrus.Fields{"folder_id": folderID, "photo_id": photoID}).Info("photo deleted")
	m.publishPhotoDeleted(ctx, *p)

	f, err := m.GetByID(ctx, folderID)
	if err != nil {
		return nil, err
	}
	f.PhotoCount = agg.PhotoCount
	f.TotalSize = agg.TotalSize
	return f, nil
}

func (m *Manager) purgePhotos(ctx context.Context, f *models.PhotoFolder, reason string) (int, error) {
	photos, err := m.photos.ListPhotos(ctx, f.ID)
	if err != nil {
		return 0, models.Backend("list photos", err)
	}
	if err := m.objects.DeletePrefix(ctx, f.FolderPath+"/"); err != nil {
		return 0, models.Backend("delete folder objects", err)
	}
	n, err := m.photos.DeleteFolderPhotos(ctx, f.ID)
	if err != nil {
		return 0, models.Backend("delete photos", err)
	}
	photosDeletedTotal.WithLabelValues(reason).Add(float64(n))
	for _, p := range photos {
		m.publishPhotoDeleted(ctx, p)
	}
	return n, nil
}

func (m *Manager) deleteObjects(ctx context.Context, p models.Photo) error {
	if err := m.objects.Delete(ctx, p.FilePath); err != nil && !errors.Is(err, models.ErrNotFound) {
		return models.Backend("delete photo object", err)
	}
	if p.ThumbnailPath == "" {
		return nil
	}
	if err := m.objects.Delete(ctx, p.ThumbnailPath); err != nil && !errors.Is(err, models.ErrNotFound) {
		m.logger.WithField("photo_id", p.ID).Warnf("failed to delete thumbnail %s: %v", p.ThumbnailPath, err)
	}
	return nil
}

func (m *Manager) publishPhotoDeleted(ctx context.Context, p models.Photo) {
	m.publish(ctx, events.New(events.PhotoDeleted, p.FolderID), func(e *events.Event) {
		e.PhotoID = p.ID
		e.FilePath = p.FilePath
		e.ThumbnailPath = p.ThumbnailPath
		e.Size = p.FileSize
	})
}

// publish never fails the caller: the record change has already happened.
func (m *Manager) publish(ctx context.Context, e events.Event, fill func(*events.Event)) {
	if fill != nil {
		fill(&e)
	}
	if err := m.bus.Publish(ctx, e); err != nil {
		m.logger.WithFields(logrus.Fields{"event": e.Type, "folder_id": e.FolderID}).Warnf("failed to publish event: %v", err)
	}
}

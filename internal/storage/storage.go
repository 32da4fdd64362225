package storage

import (
	"context"
	"io"
	"time"

	"github.com/leaksopan/SnapMe-sub000/internal/models"
)

// FolderRepository is the record store contract for photo folders.
type FolderRepository interface {
	CreateFolder(ctx context.Context, folder *models.PhotoFolder) error
	GetFolder(ctx context.Context, id string) (*models.PhotoFolder, error)
	SearchFolders(ctx context.Context, q models.FolderQuery) ([]models.PhotoFolder, error)
	CountFolders(ctx context.Context, q models.FolderQuery) (int64, error)
	// SetStatus moves the folder from `from` to change.Status only if its
	// current status is still `from`. It reports false when another writer
	// got there first.
	SetStatus(ctx context.Context, id string, from models.FolderStatus, change StatusChange) (bool, error)
	// RefreshAggregates recomputes photo_count and total_size from the photo rows.
	RefreshAggregates(ctx context.Context, id string) (models.FolderAggregates, error)
	DeleteFolder(ctx context.Context, id string) error
	ListClaimedBefore(ctx context.Context, cutoff time.Time) ([]models.PhotoFolder, error)
	ListReadyCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.PhotoFolder, error)
	// ListExpiredWithPhotos returns expired folders whose photos were not fully removed.
	ListExpiredWithPhotos(ctx context.Context) ([]models.PhotoFolder, error)
}

// PhotoRepository is the record store contract for photos.
type PhotoRepository interface {
	CreatePhoto(ctx context.Context, photo *models.Photo) error
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)
	ListPhotos(ctx context.Context, folderID string) ([]models.Photo, error)
	IncrementDownloadCount(ctx context.Context, ids []string) error
	DeletePhoto(ctx context.Context, id string) error
	DeleteFolderPhotos(ctx context.Context, folderID string) (int, error)
}

// RecordStore is a backend serving both repositories.
type RecordStore interface {
	FolderRepository
	PhotoRepository
	Ping(ctx context.Context) error
	Close() error
}

// ObjectStore is the storage gateway for photo bytes.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// PresignGet returns a read URL that stops working after expiry.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

type StatusChange struct {
	Status    models.FolderStatus
	ClaimedAt *time.Time
	ExpiredAt *time.Time
	UpdatedAt time.Time
}

// Package memory holds in-process implementations of the record store and the
// object store. They back local development (STORE_BACKEND=memory) and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/leaksopan/SnapMe-sub000/internal/models"
	"github.com/leaksopan/SnapMe-sub000/internal/storage"
)

const (
	foldersTable = "folders"
	photosTable  = "photos"
)

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		foldersTable: {
			Name: foldersTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"status": {
					Name:    "status",
					Indexer: &memdb.StringFieldIndex{Field: "Status"},
				},
			},
		},
		photosTable: {
			Name: photosTable,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:    "id",
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
				"folder": {
					Name:    "folder",
					Indexer: &memdb.StringFieldIndex{Field: "FolderID"},
				},
				"path": {
					Name:   "path",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "FolderID"},
							&memdb.StringFieldIndex{Field: "FilePath"},
						},
					},
				},
			},
		},
	},
}

// RecordStore implements storage.RecordStore on top of go-memdb.
type RecordStore struct {
	db *memdb.MemDB
}

var _ storage.RecordStore = (*RecordStore)(nil)

func NewRecordStore() (*RecordStore, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create memdb: %w", err)
	}
	return &RecordStore{db: db}, nil
}

func (s *RecordStore) Ping(context.Context) error { return nil }

func (s *RecordStore) Close() error { return nil }

func copyFolder(f *models.PhotoFolder) *models.PhotoFolder {
	c := *f
	if f.ClaimedAt != nil {
		t := *f.ClaimedAt
		c.ClaimedAt = &t
	}
	if f.ExpiredAt != nil {
		t := *f.ExpiredAt
		c.ExpiredAt = &t
	}
	return &c
}

func (s *RecordStore) CreateFolder(_ context.Context, f *models.PhotoFolder) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	existing, err := txn.First(foldersTable, "id", f.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("folder %s already exists", f.ID)
	}
	if err := txn.Insert(foldersTable, copyFolder(f)); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *RecordStore) GetFolder(_ context.Context, id string) (*models.PhotoFolder, error) {
	txn := s.db.Txn(false)
	raw, err := txn.First(foldersTable, "id", id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, models.ErrNotFound
	}
	return copyFolder(raw.(*models.PhotoFolder)), nil
}

func matchFolder(f *models.PhotoFolder, q models.FolderQuery) bool {
	if !q.MatchesStatus(f.Status) {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(q.Term))
	if term == "" {
		return true
	}
	field := f.CustomerPhone
	if q.Mode == models.SearchByName {
		field = f.CustomerName
	}
	return strings.Contains(strings.ToLower(field), term)
}

func (s *RecordStore) filterFolders(q models.FolderQuery) ([]models.PhotoFolder, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(foldersTable, "id")
	if err != nil {
		return nil, err
	}
	folders := []models.PhotoFolder{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		f := raw.(*models.PhotoFolder)
		if matchFolder(f, q) {
			folders = append(folders, *copyFolder(f))
		}
	}
	sort.SliceStable(folders, func(i, j int) bool {
		return folders[i].CreatedAt.After(folders[j].CreatedAt)
	})
	return folders, nil
}

func (s *RecordStore) SearchFolders(_ context.Context, q models.FolderQuery) ([]models.PhotoFolder, error) {
	folders, err := s.filterFolders(q)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 {
		if q.Offset >= len(folders) {
			return []models.PhotoFolder{}, nil
		}
		end := q.Offset + q.Limit
		if end > len(folders) {
			end = len(folders)
		}
		folders = folders[q.Offset:end]
	}
	return folders, nil
}

func (s *RecordStore) CountFolders(_ context.Context, q models.FolderQuery) (int64, error) {
	folders, err := s.filterFolders(q)
	if err != nil {
		return 0, err
	}
	return int64(len(folders)), nil
}

func (s *RecordStore) SetStatus(_ context.Context, id string, from models.FolderStatus, change storage.StatusChange) (bool, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(foldersTable, "id", id)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, models.ErrNotFound
	}
	f := copyFolder(raw.(*models.PhotoFolder))
	if f.Status != from {
		return false, nil
	}
	f.Status = change.Status
	f.ClaimedAt = change.ClaimedAt
	f.ExpiredAt = change.ExpiredAt
	f.UpdatedAt = change.UpdatedAt
	if err := txn.Insert(foldersTable, copyFolder(f)); err != nil {
		return false, err
	}
	txn.Commit()
	return true, nil
}

func (s *RecordStore) RefreshAggregates(_ context.Context, id string) (models.FolderAggregates, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	var agg models.FolderAggregates
	raw, err := txn.First(foldersTable, "id", id)
	if err != nil {
		return agg, err
	}
	if raw == nil {
		return agg, models.ErrNotFound
	}
	it, err := txn.Get(photosTable, "folder", id)
	if err != nil {
		return agg, err
	}
	for p := it.Next(); p != nil; p = it.Next() {
		agg.PhotoCount++
		agg.TotalSize += p.(*models.Photo).FileSize
	}
	f := copyFolder(raw.(*models.PhotoFolder))
	f.PhotoCount = agg.PhotoCount
	f.TotalSize = agg.TotalSize
	f.UpdatedAt = time.Now().UTC()
	if err := txn.Insert(foldersTable, f); err != nil {
		return agg, err
	}
	txn.Commit()
	return agg, nil
}

func (s *RecordStore) DeleteFolder(_ context.Context, id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(foldersTable, "id", id)
	if err != nil {
		return err
	}
	if raw == nil {
		return models.ErrNotFound
	}
	if _, err := txn.DeleteAll(photosTable, "folder", id); err != nil {
		return err
	}
	if err := txn.Delete(foldersTable, raw); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *RecordStore) listByStatus(status models.FolderStatus, keep func(*models.PhotoFolder) bool) ([]models.PhotoFolder, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(foldersTable, "status", string(status))
	if err != nil {
		return nil, err
	}
	folders := []models.PhotoFolder{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		f := raw.(*models.PhotoFolder)
		if keep(f) {
			folders = append(folders, *copyFolder(f))
		}
	}
	return folders, nil
}

func (s *RecordStore) ListClaimedBefore(_ context.Context, cutoff time.Time) ([]models.PhotoFolder, error) {
	return s.listByStatus(models.StatusClaimed, func(f *models.PhotoFolder) bool {
		return f.ClaimedAt != nil && f.ClaimedAt.Before(cutoff)
	})
}

func (s *RecordStore) ListReadyCreatedBefore(_ context.Context, cutoff time.Time) ([]models.PhotoFolder, error) {
	return s.listByStatus(models.StatusReady, func(f *models.PhotoFolder) bool {
		return f.CreatedAt.Before(cutoff)
	})
}

func (s *RecordStore) ListExpiredWithPhotos(_ context.Context) ([]models.PhotoFolder, error) {
	return s.listByStatus(models.StatusExpired, func(f *models.PhotoFolder) bool {
		return f.PhotoCount > 0
	})
}

func (s *RecordStore) CreatePhoto(_ context.Context, p *models.Photo) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	folder, err := txn.First(foldersTable, "id", p.FolderID)
	if err != nil {
		return err
	}
	if folder == nil {
		return models.ErrNotFound
	}
	dup, err := txn.First(photosTable, "path", p.FolderID, p.FilePath)
	if err != nil {
		return err
	}
	if dup != nil {
		return fmt.Errorf("photo path %s already exists in folder %s", p.FilePath, p.FolderID)
	}
	c := *p
	if err := txn.Insert(photosTable, &c); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *RecordStore) GetPhoto(_ context.Context, id string) (*models.Photo, error) {
	txn := s.db.Txn(false)
	raw, err := txn.First(photosTable, "id", id)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, models.ErrNotFound
	}
	c := *raw.(*models.Photo)
	return &c, nil
}

func (s *RecordStore) ListPhotos(_ context.Context, folderID string) ([]models.Photo, error) {
	txn := s.db.Txn(false)
	it, err := txn.Get(photosTable, "folder", folderID)
	if err != nil {
		return nil, err
	}
	photos := []models.Photo{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		photos = append(photos, *raw.(*models.Photo))
	}
	sort.SliceStable(photos, func(i, j int) bool {
		if photos[i].CreatedAt.Equal(photos[j].CreatedAt) {
			return photos[i].FileName < photos[j].FileName
		}
		return photos[i].CreatedAt.Before(photos[j].CreatedAt)
	})
	return photos, nil
}

func (s *RecordStore) IncrementDownloadCount(_ context.Context, ids []string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	for _, id := range ids {
		raw, err := txn.First(photosTable, "id", id)
		if err != nil {
			return err
		}
		if raw == nil {
			continue
		}
		c := *raw.(*models.Photo)
		c.DownloadCount++
		if err := txn.Insert(photosTable, &c); err != nil {
			return err
		}
	}
	txn.Commit()
	return nil
}

func (s *RecordStore) DeletePhoto(_ context.Context, id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(photosTable, "id", id)
	if err != nil {
		return err
	}
	if raw == nil {
		return models.ErrNotFound
	}
	if err := txn.Delete(photosTable, raw); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (s *RecordStore) DeleteFolderPhotos(_ context.Context, folderID string) (int, error) {
	txn := s.db.Txn(true)
	defer txn.Abort()

	n, err := txn.DeleteAll(photosTable, "folder", folderID)
	if err != nil {
		return 0, err
	}
	txn.Commit()
	return n, nil
}

// Package claim serves the customer side of a folder: search by phone or
// name, signed photo URLs, and the archive download that claims the folder.
package claim

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/folders"
	"github.com/leaksopan/SnapMe-sub000/internal/models"
	"github.com/leaksopan/SnapMe-sub000/internal/storage"
)

const DefaultURLExpiry = time.Hour

// FolderManager is the part of folders.Manager the claim flow relies on.
type FolderManager interface {
	GetByID(ctx context.Context, id string) (*models.PhotoFolder, error)
	Search(ctx context.Context, term string, mode models.SearchMode, opts folders.SearchOptions) ([]models.PhotoFolder, error)
	ListPhotos(ctx context.Context, folderID string) ([]models.Photo, error)
	MarkClaimed(ctx context.Context, id string) (bool, *models.PhotoFolder, error)
}

type SignedURL struct {
	Path  string `json:"path"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

type GalleryPhoto struct {
	models.Photo
	PreviewURL string `json:"preview_url,omitempty"`
	Error      string `json:"error,omitempty"`
}

type Service struct {
	folders   FolderManager
	photos    storage.PhotoRepository
	objects   storage.ObjectStore
	urls      *URLCache
	urlExpiry time.Duration
	logger    logrus.FieldLogger
}

func NewService(folders FolderManager, photos storage.PhotoRepository, objects storage.ObjectStore, urls *URLCache, urlExpiry time.Duration, logger logrus.FieldLogger) *Service {
	if urlExpiry <= 0 {
		urlExpiry = DefaultURLExpiry
	}
	if urls == nil {
		urls = NewURLCache(0, urlExpiry)
	}
	return &Service{
		folders:   folders,
		photos:    photos,
		objects:   objects,
		urls:      urls,
		urlExpiry: urlExpiry,
		logger:    logger.WithField("component", "claim"),
	}
}

// Search finds the folders a customer may claim. A blank term returns no
// folders without touching the store; no match is an empty result, not an error.
func (s *Service) Search(ctx context.Context, term string, mode models.SearchMode) ([]models.PhotoFolder, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []models.PhotoFolder{}, nil
	}
	found, err := s.folders.Search(ctx, term, mode, folders.SearchOptions{ForCustomer: true})
	if err != nil {
		claimSearchesTotal.WithLabelValues("error").Inc()
		s.logger.WithField("mode", mode).Errorf("customer search failed: %v", err)
		return nil, models.Backend("search folders", err)
	}
	if len(found) == 0 {
		claimSearchesTotal.WithLabelValues("empty").Inc()
		return []models.PhotoFolder{}, nil
	}
	claimSearchesTotal.WithLabelValues("found").Inc()
	return found, nil
}

// GetVisibleFolder loads a folder for a share link. Folders a customer may not
// see are reported as not found.
func (s *Service) GetVisibleFolder(ctx context.Context, id string) (*models.PhotoFolder, error) {
	f, err := s.folders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !f.Status.VisibleToCustomer() {
		return nil, models.ErrNotFound
	}
	return f, nil
}

// GetDownloadURL returns a time-limited URL for one stored object.
func (s *Service) GetDownloadURL(ctx context.Context, filePath string) (string, error) {
	if u, ok := s.urls.Get(filePath); ok {
		signedURLsTotal.WithLabelValues("hit").Inc()
		return u, nil
	}
	u, err := s.objects.PresignGet(ctx, filePath, s.urlExpiry)
	if err != nil {
		return "", models.Backend("sign url", err)
	}
	signedURLsTotal.WithLabelValues("miss").Inc()
	s.urls.Add(filePath, u)
	return u, nil
}

// GetBatchDownloadURLs signs every path, reporting failures per path.
func (s *Service) GetBatchDownloadURLs(ctx context.Context, filePaths []string) []SignedURL {
	out := make([]SignedURL, 0, len(filePaths))
	for _, p := range filePaths {
		u, err := s.GetDownloadURL(ctx, p)
		if err != nil {
			out = append(out, SignedURL{Path: p, Error: err.Error()})
			continue
		}
		out = append(out, SignedURL{Path: p, URL: u})
	}
	return out
}

// Gallery lists the photos of a visible folder with preview URLs, using the
// thumbnail when one exists.
func (s *Service) Gallery(ctx context.Context, folderID string) (*models.PhotoFolder, []GalleryPhoto, error) {
	f, err := s.GetVisibleFolder(ctx, folderID)
	if err != nil {
		return nil, nil, err
	}
	photos, err := s.folders.ListPhotos(ctx, folderID)
	if err != nil {
		return nil, nil, err
	}

	paths := make([]string, len(photos))
	for i, p := range photos {
		paths[i] = p.FilePath
		if p.ThumbnailPath != "" {
			paths[i] = p.ThumbnailPath
		}
	}
	signed := s.GetBatchDownloadURLs(ctx, paths)

	gallery := make([]GalleryPhoto, len(photos))
	for i, p := range photos {
		gallery[i] = GalleryPhoto{Photo: p, PreviewURL: signed[i].URL, Error: signed[i].Error}
	}
	return f, gallery, nil
}

// DownloadPhoto signs the original of one photo and counts the download.
func (s *Service) DownloadPhoto(ctx context.Context, folderID, photoID string) (string, error) {
	if _, err := s.GetVisibleFolder(ctx, folderID); err != nil {
		return "", err
	}
	p, err := s.photos.GetPhoto(ctx, photoID)
	if err != nil {
		return "", models.Backend("get photo", err)
	}
	if p.FolderID != folderID {
		return "", models.ErrNotFound
	}

	u, err := s.GetDownloadURL(ctx, p.FilePath)
	if err != nil {
		return "", err
	}
	if err := s.photos.IncrementDownloadCount(ctx, []string{p.ID}); err != nil {
		s.logger.WithField("photo_id", p.ID).Warnf("failed to count download: %v", err)
	}
	return u, nil
}

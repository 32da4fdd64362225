// Package uploads stores batches of photos into a folder, isolating the
// failure of each file from the rest of the batch.
package uploads

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/events"
	"github.com/leaksopan/SnapMe-sub000/internal/models"
	"github.com/leaksopan/SnapMe-sub000/internal/storage"
)

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Scanner rejects infected uploads with a ValidationError.
type Scanner interface {
	Scan(ctx context.Context, r io.Reader) error
}

// Thumbnailer renders a JPEG preview of an image.
type Thumbnailer interface {
	Generate(r io.Reader) ([]byte, error)
}

// ProgressFunc is called once per stored file with its index in the batch.
type ProgressFunc func(index, percent int)

type FileFailure struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
	Err      error  `json:"-"`
}

type BatchResult struct {
	Successful []models.Photo `json:"successful"`
	Failed     []FileFailure  `json:"failed"`
}

type Option func(*Coordinator)

func WithScanner(s Scanner) Option {
	return func(c *Coordinator) { c.scanner = s }
}

func WithThumbnailer(t Thumbnailer) Option {
	return func(c *Coordinator) { c.thumbnailer = t }
}

func WithMaxFileSize(n int64) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxFileSize = n
		}
	}
}

type Coordinator struct {
	folders     storage.FolderRepository
	photos      storage.PhotoRepository
	objects     storage.ObjectStore
	bus         events.Bus
	scanner     Scanner
	thumbnailer Thumbnailer
	maxFileSize int64
	logger      logrus.FieldLogger
	now         func() time.Time
}

func NewCoordinator(folders storage.FolderRepository, photos storage.PhotoRepository, objects storage.ObjectStore, bus events.Bus, logger logrus.FieldLogger, opts ...Option) *Coordinator {
	c := &Coordinator{
		folders:     folders,
		photos:      photos,
		objects:     objects,
		bus:         bus,
		maxFileSize: MaxFileSize,
		logger:      logger.WithField("component", "uploads"),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate applies the coordinator's size limit instead of the default one.
func (c *Coordinator) Validate(f File) error {
	return validateFile(f, c.maxFileSize)
}

// UploadMultiple stores files into the folder one after another. It only
// fails as a whole when the folder is missing or expired; every per-file
// problem is reported in the result.
func (c *Coordinator) UploadMultiple(ctx context.Context, folderID string, files []File, onProgress ProgressFunc) (*BatchResult, error) {
	folder, err := c.folders.GetFolder(ctx, folderID)
	if err != nil {
		return nil, models.Backend("get folder", err)
	}
	if folder.Status == models.StatusExpired {
		return nil, &models.ValidationError{Field: "folder", Message: "folder has expired"}
	}

	result := &BatchResult{Successful: []models.Photo{}, Failed: []FileFailure{}}
	for i, f := range files {
		start := time.Now()
		photo, err := c.uploadOne(ctx, folder, f)
		if err != nil {
			uploadedFilesTotal.WithLabelValues("failed").Inc()
			c.logger.WithFields(logrus.Fields{"folder_id": folderID, "file": f.Name}).Warnf("upload failed: %v", err)
			result.Failed = append(result.Failed, FileFailure{FileName: f.Name, Reason: err.Error(), Err: err})
			continue
		}
		uploadDuration.Observe(time.Since(start).Seconds())
		uploadedFilesTotal.WithLabelValues("stored").Inc()
		uploadedBytesTotal.Add(float64(photo.FileSize))
		result.Successful = append(result.Successful, *photo)
		if onProgress != nil {
			onProgress(i, 100)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"folder_id":  folderID,
		"successful": len(result.Successful),
		"failed":     len(result.Failed),
	}).Info("upload batch finished")
	return result, nil
}

func (c *Coordinator) uploadOne(ctx context.Context, folder *models.PhotoFolder, f File) (*models.Photo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.Validate(f); err != nil {
		return nil, err
	}

	data, err := c.read(f)
	if err != nil {
		return nil, err
	}

	// The declared type comes from the client; trust only the content.
	detected := mimetype.Detect(data).String()
	if !allowedTypes[baseContentType(detected)] {
		return nil, &models.ValidationError{Field: f.Name, Message: fmt.Sprintf("content is %s, not a supported image", detected)}
	}
	contentType := baseContentType(detected)

	if c.scanner != nil {
		if err := c.scanner.Scan(ctx, bytes.NewReader(data)); err != nil {
			if models.IsValidation(err) {
				return nil, err
			}
			return nil, models.Backend("virus scan", err)
		}
	}

	id := uuid.New().String()
	name := safeFileName(f.Name)
	key := path.Join(folder.FolderPath, id[:8]+"_"+name)
	size := int64(len(data))

	if err := c.objects.Put(ctx, key, bytes.NewReader(data), size, contentType); err != nil {
		return nil, models.Backend("store photo", err)
	}

	photo := &models.Photo{
		ID:            id,
		FolderID:      folder.ID,
		FileName:      f.Name,
		FilePath:      key,
		ThumbnailPath: c.storeThumbnail(ctx, folder, id, name, data),
		ContentType:   contentType,
		FileSize:      size,
		CreatedAt:     c.now(),
	}

	if err := c.photos.CreatePhoto(ctx, photo); err != nil {
		c.cleanup(photo)
		return nil, models.Backend("insert photo", err)
	}

	if _, err := c.folders.RefreshAggregates(ctx, folder.ID); err != nil {
		// The photo row exists; the next refresh recomputes the counters.
		c.logger.WithField("folder_id", folder.ID).Warnf("failed to refresh aggregates: %v", err)
	}

	e := events.New(events.PhotoUploaded, folder.ID)
	e.PhotoID = photo.ID
	e.FilePath = photo.FilePath
	e.ThumbnailPath = photo.ThumbnailPath
	e.Size = photo.FileSize
	if err := c.bus.Publish(ctx, e); err != nil {
		c.logger.WithField("photo_id", photo.ID).Warnf("failed to publish upload event: %v", err)
	}
	return photo, nil
}

func (c *Coordinator) read(f File) ([]byte, error) {
	if f.Open == nil {
		return nil, &models.ValidationError{Field: f.Name, Message: "file has no content"}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, c.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	if int64(len(data)) > c.maxFileSize {
		return nil, &models.ValidationError{Field: f.Name, Message: "file exceeds the size limit"}
	}
	if len(data) == 0 {
		return nil, &models.ValidationError{Field: f.Name, Message: "file is empty"}
	}
	return data, nil
}

// storeThumbnail is best effort; the photo is stored without a preview on failure.
func (c *Coordinator) storeThumbnail(ctx context.Context, folder *models.PhotoFolder, id, name string, data []byte) string {
	if c.thumbnailer == nil {
		return ""
	}
	thumb, err := c.thumbnailer.Generate(bytes.NewReader(data))
	if err != nil {
		c.logger.WithField("file", name).Warnf("thumbnail generation failed: %v", err)
		return ""
	}
	key := path.Join(folder.FolderPath, "thumbs", id[:8]+"_"+strings.TrimSuffix(name, path.Ext(name))+".jpg")
	if err := c.objects.Put(ctx, key, bytes.NewReader(thumb), int64(len(thumb)), "image/jpeg"); err != nil {
		c.logger.WithField("file", name).Warnf("failed to store thumbnail: %v", err)
		return ""
	}
	return key
}

// cleanup removes the objects of a photo whose record insert failed.
func (c *Coordinator) cleanup(p *models.Photo) {
	// The request context may already be cancelled at this point.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, key := range []string{p.FilePath, p.ThumbnailPath} {
		if key == "" {
			continue
		}
		if err := c.objects.Delete(ctx, key); err != nil && !errors.Is(err, models.ErrNotFound) {
			c.logger.WithFields(logrus.Fields{"key": key, "folder_id": p.FolderID, "orphan": true}).
				Errorf("failed to remove object after record insert failure: %v", err)
		}
	}
}

func safeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Trim(unsafeFileChars.ReplaceAllString(name, "_"), "._")
	if name == "" {
		return "photo"
	}
	return name
}

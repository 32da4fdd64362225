package claim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/models"
)

// ErrNothingArchived is returned by DownloadAll when no photo could be read.
// Nothing has been written to the destination and the folder is not claimed.
var ErrNothingArchived = errors.New("no photos could be archived")

type ArchiveFailure struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

type ArchiveResult struct {
	Included []string         `json:"included"`
	Failed   []ArchiveFailure `json:"failed"`
	Claimed  bool             `json:"claimed"`
}

// DownloadAll writes a zip of every photo in a visible folder to w. Photos
// that cannot be read are skipped. When at least one photo made it into the
// archive, their download counters are bumped and a ready folder is claimed.
func (s *Service) DownloadAll(ctx context.Context, folderID string, w io.Writer) (*ArchiveResult, error) {
	f, err := s.GetVisibleFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	photos, err := s.folders.ListPhotos(ctx, folderID)
	if err != nil {
		return nil, err
	}

	result := &ArchiveResult{Included: []string{}, Failed: []ArchiveFailure{}}
	log := s.logger.WithField("folder_id", folderID)

	// The writer is created with the first readable photo so that a folder
	// whose photos all fail leaves w untouched.
	var (
		zw       *zip.Writer
		names    = map[string]int{}
		included []string
	)
	for _, p := range photos {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		data, err := s.readObject(ctx, p.FilePath)
		if err != nil {
			log.WithField("photo_id", p.ID).Warnf("skipping photo in archive: %v", err)
			result.Failed = append(result.Failed, ArchiveFailure{FileName: p.FileName, Reason: err.Error()})
			continue
		}

		if zw == nil {
			zw = zip.NewWriter(w)
		}
		hdr := &zip.FileHeader{
			Name:     archiveName(names, p.FileName),
			Method:   zip.Store,
			Modified: p.CreatedAt,
		}
		entry, err := zw.CreateHeader(hdr)
		if err != nil {
			return result, models.Backend("write archive", err)
		}
		if _, err := entry.Write(data); err != nil {
			return result, models.Backend("write archive", err)
		}
		included = append(included, p.ID)
		result.Included = append(result.Included, hdr.Name)
	}

	if zw == nil {
		archivesTotal.WithLabelValues("empty").Inc()
		log.WithField("failed", len(result.Failed)).Warn("archive has no photos, folder not claimed")
		return result, ErrNothingArchived
	}
	if err := zw.Close(); err != nil {
		return result, models.Backend("write archive", err)
	}

	if err := s.photos.IncrementDownloadCount(ctx, included); err != nil {
		log.Warnf("failed to count downloads: %v", err)
	}

	claimed, _, err := s.folders.MarkClaimed(ctx, f.ID)
	if err != nil {
		archivesTotal.WithLabelValues("claim_failed").Inc()
		return result, fmt.Errorf("archive sent but claim failed: %w", err)
	}
	result.Claimed = claimed
	if claimed {
		claimsTotal.Inc()
	}

	outcome := "complete"
	if len(result.Failed) > 0 {
		outcome = "partial"
	}
	archivesTotal.WithLabelValues(outcome).Inc()
	log.WithFields(logrus.Fields{
		"included": len(result.Included),
		"failed":   len(result.Failed),
		"claimed":  claimed,
	}).Info("folder archive downloaded")
	return result, nil
}

func (s *Service) readObject(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.objects.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// archiveName keeps entry names unique: a second "a.jpg" becomes "a (2).jpg".
func archiveName(seen map[string]int, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		name = "photo"
	}
	if seen[name] == 0 {
		seen[name]++
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	// A generated name may already be taken by a photo that was literally
	// named that way.
	n := seen[name]
	candidate := name
	for seen[candidate] > 0 {
		n++
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	seen[name] = n
	seen[candidate]++
	return candidate
}

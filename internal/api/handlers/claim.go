package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/leaksopan/SnapMe-sub000/internal/claim"
	"github.com/leaksopan/SnapMe-sub000/internal/models"
)

// customerFolder is the folder view served to unauthenticated customers.
type customerFolder struct {
	ID           string              `json:"id"`
	CustomerName string              `json:"customer_name"`
	PackageName  string              `json:"package_name,omitempty"`
	Status       models.FolderStatus `json:"status"`
	PhotoCount   int                 `json:"photo_count"`
	TotalSize    int64               `json:"total_size"`
	CreatedAt    time.Time           `json:"created_at"`
	ClaimedAt    *time.Time          `json:"claimed_at,omitempty"`
}

func toCustomerFolder(f models.PhotoFolder) customerFolder {
	return customerFolder{
		ID:           f.ID,
		CustomerName: f.CustomerName,
		PackageName:  f.PackageName,
		Status:       f.Status,
		PhotoCount:   f.PhotoCount,
		TotalSize:    f.TotalSize,
		CreatedAt:    f.CreatedAt,
		ClaimedAt:    f.ClaimedAt,
	}
}

func (h *Handler) SearchClaim(c *gin.Context) {
	mode, err := models.ParseSearchMode(c.Query("mode"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	found, err := h.Claim.Search(c.Request.Context(), c.Query("term"), mode)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "search failed, please try again"})
		h.Logger.Errorf("claim search failed: %v", err)
		return
	}

	out := make([]customerFolder, 0, len(found))
	for _, f := range found {
		out = append(out, toCustomerFolder(f))
	}
	c.JSON(http.StatusOK, gin.H{"folders": out})
}

func (h *Handler) GetClaimFolder(c *gin.Context) {
	f, err := h.Claim.GetVisibleFolder(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toCustomerFolder(*f))
}

func (h *Handler) Gallery(c *gin.Context) {
	f, photos, err := h.Claim.Gallery(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"folder": toCustomerFolder(*f), "photos": photos})
}

func (h *Handler) DownloadPhoto(c *gin.Context) {
	u, err := h.Claim.DownloadPhoto(c.Request.Context(), c.Param("id"), c.Param("photoId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": u})
}

// archiveResponse sets the download headers right before the first byte of
// the archive, so an archive that never starts can still be answered with JSON.
type archiveResponse struct {
	c        *gin.Context
	filename string
	started  bool
}

func (w *archiveResponse) Write(p []byte) (int, error) {
	if !w.started {
		w.started = true
		w.c.Header("Content-Type", "application/zip")
		w.c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", w.filename))
		w.c.Status(http.StatusOK)
	}
	return w.c.Writer.Write(p)
}

// DownloadArchive streams every photo of the folder as a zip and claims the
// folder on its first full download.
func (h *Handler) DownloadArchive(c *gin.Context) {
	ctx := c.Request.Context()
	f, err := h.Claim.GetVisibleFolder(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	w := &archiveResponse{c: c, filename: f.FolderName + ".zip"}
	result, err := h.Claim.DownloadAll(ctx, f.ID, w)
	if err != nil {
		if w.started {
			// Headers are gone; the client sees a truncated or complete archive.
			h.Logger.WithField("folder_id", f.ID).Errorf("archive download: %v", err)
			return
		}
		if errors.Is(err, claim.ErrNothingArchived) {
			if result != nil && len(result.Failed) > 0 {
				c.JSON(http.StatusBadGateway, gin.H{"error": "photos could not be retrieved, please try again", "failed": result.Failed})
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "folder has no photos"})
			return
		}
		h.respondError(c, err)
		return
	}
	if len(result.Failed) > 0 {
		h.Logger.WithField("folder_id", f.ID).Warnf("archive sent without %d photos", len(result.Failed))
	}
}

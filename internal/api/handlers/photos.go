package handlers

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/leaksopan/SnapMe-sub000/internal/uploads"
)

// UploadPhotos accepts one or more photos under "files", or a single "file".
func (h *Handler) UploadPhotos(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse multipart form: " + err.Error()})
		return
	}

	var headers []*multipart.FileHeader

	// Preferred: "files"
	if fs, found := form.File["files"]; found && len(fs) > 0 {
		headers = fs
	}

	// Fallback: "file"
	if len(headers) == 0 {
		if f, found := form.File["file"]; found && len(f) > 0 {
			headers = f
		}
	}

	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files provided"})
		return
	}

	files := make([]uploads.File, 0, len(headers))
	for _, fh := range headers {
		files = append(files, uploads.FromFileHeader(fh))
	}

	folderID := c.Param("id")
	log := h.Logger.WithField("folder_id", folderID)
	result, err := h.Uploads.UploadMultiple(c.Request.Context(), folderID, files, func(index, percent int) {
		log.Debugf("file %d/%d stored (%d%%)", index+1, len(files), percent)
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	folder, err := h.Folders.GetByID(c.Request.Context(), folderID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"folder":     folder,
		"successful": result.Successful,
		"failed":     result.Failed,
	})
}

func (h *Handler) ListPhotos(c *gin.Context) {
	photos, err := h.Folders.ListPhotos(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

func (h *Handler) DeletePhoto(c *gin.Context) {
	folder, err := h.Folders.DeletePhoto(c.Request.Context(), c.Param("id"), c.Param("photoId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "photo deleted", "folder": folder})
}

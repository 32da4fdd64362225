package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/leaksopan/SnapMe-sub000/internal/folders"
	"github.com/leaksopan/SnapMe-sub000/internal/models"
)

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) CreateFolder(c *gin.Context) {
	var in folders.CreateFolderInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	folder, err := h.Folders.CreateFolder(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, folder)
}

// pagination reads page and pageSize, defaulting to the first 50 results.
func pagination(c *gin.Context) (page, pageSize int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	pageSize, err = strconv.Atoi(c.DefaultQuery("pageSize", "50"))
	if err != nil || pageSize < 1 {
		pageSize = 50
	}
	// Cap page size to avoid abuse
	if pageSize > 500 {
		pageSize = 500
	}
	return page, pageSize
}

func (h *Handler) ListFolders(c *gin.Context) {
	mode, err := models.ParseSearchMode(c.Query("mode"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	term := c.Query("term")
	page, pageSize := pagination(c)
	opts := folders.SearchOptions{Limit: pageSize, Offset: (page - 1) * pageSize}

	ctx := c.Request.Context()
	list, err := h.Folders.Search(ctx, term, mode, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	total, err := h.Folders.Count(ctx, term, mode, opts)
	if err != nil {
		h.respondError(c, err)
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize != 0 {
		totalPages++
	}

	c.JSON(http.StatusOK, gin.H{
		"folders":    list,
		"page":       page,
		"pageSize":   pageSize,
		"total":      total,
		"totalPages": totalPages,
	})
}

func (h *Handler) GetFolder(c *gin.Context) {
	folder, err := h.Folders.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, folder)
}

func (h *Handler) UpdateFolderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	folder, err := h.Folders.UpdateStatus(c.Request.Context(), c.Param("id"), models.FolderStatus(req.Status))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, folder)
}

func (h *Handler) DeleteFolder(c *gin.Context) {
	id := c.Param("id")
	if err := h.Folders.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "folder deleted", "id": id})
}

func (h *Handler) RunSweep(c *gin.Context) {
	report, err := h.Sweeper.Run(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

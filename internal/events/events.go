// Package events carries record-store change notifications (folder created,
// status changed, photo uploaded, ...) between components.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leaksopan/SnapMe-sub000/internal/models"
)

type Type string

const (
	FolderCreated       Type = "photo_folders.created"
	FolderStatusChanged Type = "photo_folders.status_changed"
	FolderDeleted       Type = "photo_folders.deleted"
	PhotoUploaded       Type = "photos.uploaded"
	PhotoDeleted        Type = "photos.deleted"
)

// AllTypes lists every event type published by the service.
var AllTypes = []Type{FolderCreated, FolderStatusChanged, FolderDeleted, PhotoUploaded, PhotoDeleted}

type Event struct {
	ID             string              `json:"id"`
	Type           Type                `json:"type"`
	FolderID       string              `json:"folder_id"`
	PhotoID        string              `json:"photo_id,omitempty"`
	FilePath       string              `json:"file_path,omitempty"`
	ThumbnailPath  string              `json:"thumbnail_path,omitempty"`
	Size           int64               `json:"size,omitempty"`
	Status         models.FolderStatus `json:"status,omitempty"`
	PreviousStatus models.FolderStatus `json:"previous_status,omitempty"`
	OccurredAt     time.Time           `json:"occurred_at"`
}

func New(t Type, folderID string) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		FolderID:   folderID,
		OccurredAt: time.Now().UTC(),
	}
}

type Handler func(ctx context.Context, e Event) error

// Unsubscribe detaches a handler registered with Bus.Subscribe.
type Unsubscribe func() error

type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(t Type, h Handler) (Unsubscribe, error)
	Close() error
}

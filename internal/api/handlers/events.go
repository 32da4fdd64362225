package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/events"
)

// AuditLog writes every folder and photo event to the log.
func AuditLog(logger logrus.FieldLogger) events.Handler {
	return func(_ context.Context, e events.Event) error {
		fields := logrus.Fields{"event": e.Type, "event_id": e.ID, "folder_id": e.FolderID}
		if e.PhotoID != "" {
			fields["photo_id"] = e.PhotoID
		}
		if e.Status != "" {
			fields["status"] = e.Status
		}
		if e.PreviousStatus != "" {
			fields["previous_status"] = e.PreviousStatus
		}
		logger.WithFields(fields).Info("[EVENTS] received")
		return nil
	}
}

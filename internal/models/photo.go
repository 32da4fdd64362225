package models

import "time"

type Photo struct {
	ID            string    `json:"id"`
	FolderID      string    `json:"folder_id"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	ContentType   string    `json:"content_type"`
	FileSize      int64     `json:"file_size"`
	DownloadCount int       `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// FolderAggregates are the derived counters stored on a folder row.
type FolderAggregates struct {
	PhotoCount int
	TotalSize  int64
}

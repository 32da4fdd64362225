package models

import (
	"fmt"
	"time"
)

// FolderStatus is the lifecycle state of a customer photo folder.
type FolderStatus string

const (
	StatusPending FolderStatus = "pending"
	StatusReady   FolderStatus = "ready"
	StatusClaimed FolderStatus = "claimed"
	StatusExpired FolderStatus = "expired"
)

// CustomerVisibleStatuses are the only statuses an unauthenticated customer may see.
var CustomerVisibleStatuses = []FolderStatus{StatusReady, StatusClaimed}

func (s FolderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusClaimed, StatusExpired:
		return true
	}
	return false
}

// VisibleToCustomer reports whether folders in this status may be found by customers.
func (s FolderStatus) VisibleToCustomer() bool {
	return s == StatusReady || s == StatusClaimed
}

func ParseFolderStatus(s string) (FolderStatus, error) {
	st := FolderStatus(s)
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", s)}
	}
	return st, nil
}

// SearchMode selects the folder field a search term is matched against.
type SearchMode string

const (
	SearchByPhone SearchMode = "phone"
	SearchByName  SearchMode = "name"
)

func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(s) {
	case SearchByPhone, "":
		return SearchByPhone, nil
	case SearchByName:
		return SearchByName, nil
	}
	return "", &ValidationError{Field: "mode", Message: fmt.Sprintf("unknown search mode %q", s)}
}

type PhotoFolder struct {
	ID            string       `json:"id"`
	CustomerName  string       `json:"customer_name"`
	CustomerPhone string       `json:"customer_phone"`
	CustomerEmail string       `json:"customer_email,omitempty"`
	PackageName   string       `json:"package_name,omitempty"`
	Status        FolderStatus `json:"status"`
	PhotoCount    int          `json:"photo_count"`
	TotalSize     int64        `json:"total_size"`
	FolderPath    string       `json:"folder_path"`
	FolderName    string       `json:"folder_name"`
	TransactionID string       `json:"transaction_id,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
	ClaimedAt     *time.Time   `json:"claimed_at,omitempty"`
	ExpiredAt     *time.Time   `json:"expired_at,omitempty"`
}

// FolderQuery filters folder searches. An empty Term matches every folder.
type FolderQuery struct {
	Term     string
	Mode     SearchMode
	Statuses []FolderStatus
	Limit    int
	Offset   int
}

// MatchesStatus reports whether status passes the query's status filter.
func (q FolderQuery) MatchesStatus(status FolderStatus) bool {
	if len(q.Statuses) == 0 {
		return true
	}
	for _, s := range q.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

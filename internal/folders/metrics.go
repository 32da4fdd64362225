package folders

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	statusTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapme_folder_transitions_total",
			Help: "Folder status transitions by target status",
		},
		[]string{"from", "to"},
	)

	foldersCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapme_folders_created_total",
			Help: "Photo folders created",
		},
	)

	photosDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapme_photos_deleted_total",
			Help: "Photos removed, by reason",
		},
		[]string{"reason"},
	)
)

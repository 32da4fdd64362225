package uploads

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uploadedFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapme_upload_files_total",
			Help: "Uploaded photo files by result",
		},
		[]string{"result"},
	)

	uploadedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapme_upload_bytes_total",
			Help: "Bytes of photos stored",
		},
	)

	uploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "snapme_upload_file_duration_seconds",
			Help:    "Time to store one photo, including record insert",
			Buckets: prometheus.DefBuckets,
		},
	)
)

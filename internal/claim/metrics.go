package claim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	claimSearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapme_claim_searches_total",
			Help: "Customer folder searches by outcome",
		},
		[]string{"outcome"},
	)

	signedURLsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapme_signed_urls_total",
			Help: "Signed URL requests by cache result",
		},
		[]string{"cache"},
	)

	archivesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapme_archives_total",
			Help: "Folder archive downloads by result",
		},
		[]string{"result"},
	)

	claimsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "snapme_claims_total",
			Help: "Folders claimed by a customer download",
		},
	)
)

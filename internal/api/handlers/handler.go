package handlers

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/claim"
	"github.com/leaksopan/SnapMe-sub000/internal/folders"
	"github.com/leaksopan/SnapMe-sub000/internal/sweep"
	"github.com/leaksopan/SnapMe-sub000/internal/uploads"
)

// HealthCheck reports whether one backend is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	Folders *folders.Manager
	Uploads *uploads.Coordinator
	Claim   *claim.Service
	Sweeper *sweep.Sweeper
	Checks  map[string]HealthCheck
	Logger  logrus.FieldLogger
}

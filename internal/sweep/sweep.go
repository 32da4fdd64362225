// Package sweep expires folders whose retention period has passed.
package sweep

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/models"
)

// DefaultClaimedRetention is how long photos stay available after the first
// customer download.
const DefaultClaimedRetention = 72 * time.Hour

// Candidates lists folders old enough to expire.
type Candidates interface {
	ListClaimedBefore(ctx context.Context, cutoff time.Time) ([]models.PhotoFolder, error)
	ListReadyCreatedBefore(ctx context.Context, cutoff time.Time) ([]models.PhotoFolder, error)
	ListExpiredWithPhotos(ctx context.Context) ([]models.PhotoFolder, error)
}

// Expirer moves one folder to expired and removes its photos.
type Expirer interface {
	Expire(ctx context.Context, id string) (*models.PhotoFolder, error)
}

type Config struct {
	ClaimedRetention time.Duration
	// ReadyRetention expires never-claimed folders this long after creation.
	// Zero disables it.
	ReadyRetention time.Duration
}

type Report struct {
	Expired []string `json:"expired"`
	Failed  []string `json:"failed"`
}

type Sweeper struct {
	candidates Candidates
	expirer    Expirer
	cfg        Config
	logger     logrus.FieldLogger
	now        func() time.Time
}

func New(candidates Candidates, expirer Expirer, cfg Config, logger logrus.FieldLogger) *Sweeper {
	if cfg.ClaimedRetention <= 0 {
		cfg.ClaimedRetention = DefaultClaimedRetention
	}
	return &Sweeper{
		candidates: candidates,
		expirer:    expirer,
		cfg:        cfg,
		logger:     logger.WithField("component", "sweep"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run expires every due folder. A failure on one folder is logged and
// reported; the sweep continues with the next one.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	now := s.now()
	report := &Report{Expired: []string{}, Failed: []string{}}

	due, err := s.candidates.ListClaimedBefore(ctx, now.Add(-s.cfg.ClaimedRetention))
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return nil, models.Backend("list claimed folders", err)
	}
	if s.cfg.ReadyRetention > 0 {
		stale, err := s.candidates.ListReadyCreatedBefore(ctx, now.Add(-s.cfg.ReadyRetention))
		if err != nil {
			sweepRunsTotal.WithLabelValues("error").Inc()
			return nil, models.Backend("list ready folders", err)
		}
		due = append(due, stale...)
	}
	// Folders whose purge failed on an earlier run.
	leftover, err := s.candidates.ListExpiredWithPhotos(ctx)
	if err != nil {
		sweepRunsTotal.WithLabelValues("error").Inc()
		return nil, models.Backend("list expired folders", err)
	}
	due = append(due, leftover...)

	for _, f := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if _, err := s.expirer.Expire(ctx, f.ID); err != nil {
			s.logger.WithFields(logrus.Fields{"folder_id": f.ID, "status": f.Status}).Errorf("failed to expire folder: %v", err)
			report.Failed = append(report.Failed, f.ID)
			continue
		}
		report.Expired = append(report.Expired, f.ID)
	}

	sweepRunsTotal.WithLabelValues("ok").Inc()
	foldersExpiredTotal.Add(float64(len(report.Expired)))
	sweepDuration.Observe(time.Since(start).Seconds())
	s.logger.WithFields(logrus.Fields{
		"expired": len(report.Expired),
		"failed":  len(report.Failed),
	}).Info("expiry sweep finished")
	return report, nil
}

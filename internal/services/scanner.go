package services

import (
	"context"
	"fmt"
	"io"

	clamd "github.com/dutchcoders/go-clamd"
	"github.com/sirupsen/logrus"

	"github.com/leaksopan/SnapMe-sub000/internal/models"
)

// ClamAVScanner streams uploads to a clamd daemon before they reach storage.
type ClamAVScanner struct {
	client *clamd.Clamd
	logger logrus.FieldLogger
}

func NewClamAVScanner(address string, logger logrus.FieldLogger) *ClamAVScanner {
	return &ClamAVScanner{client: clamd.NewClamd(address), logger: logger}
}

func (s *ClamAVScanner) Ping() error {
	return s.client.Ping()
}

// Scan returns a ValidationError when clamd reports an infection and a plain
// error when the scan itself could not run.
func (s *ClamAVScanner) Scan(ctx context.Context, r io.Reader) error {
	abort := make(chan bool, 1)
	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return fmt.Errorf("clamav scan failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			abort <- true
			return ctx.Err()
		case res, ok := <-results:
			if !ok {
				return nil
			}
			switch res.Status {
			case clamd.RES_FOUND:
				s.logger.WithField("signature", res.Description).Warn("virus detected in upload")
				return &models.ValidationError{Field: "file", Message: "virus detected: " + res.Description}
			case clamd.RES_ERROR, clamd.RES_PARSE_ERROR:
				return fmt.Errorf("clamav scan error: %s", res.Description)
			}
		}
	}
}
